package notify

import (
	"encoding/json"
	"fmt"

	"github.com/beadhub/beadhub/internal/events"
	"github.com/beadhub/beadhub/internal/models"
)

// statusChangePayload is the outbox payload written by the sync engine.
type statusChangePayload struct {
	BeadID      string `json:"bead_id"`
	Title       string `json:"title"`
	OldStatus   string `json:"old_status"`
	NewStatus   string `json:"new_status"`
	ChangedBy   string `json:"changed_by"`
	Repo        string `json:"repo"`
	Fingerprint string `json:"fingerprint"`
}

// render turns an outbox entry into a mail subject and body. The fingerprint
// rides in the body metadata so recipients can dedupe redelivery.
func render(entry *models.OutboxEntry) (subject, body string, err error) {
	switch entry.EventType {
	case events.TypeBeadStatusChanged:
		var p statusChangePayload
		if err := json.Unmarshal(entry.Payload, &p); err != nil {
			return "", "", fmt.Errorf("failed to decode payload: %w", err)
		}
		subject = fmt.Sprintf("%s: %s -> %s", p.BeadID, p.OldStatus, p.NewStatus)
		body = fmt.Sprintf(
			"Bead %s (%s) moved from %s to %s by %s.\n\nrepo: %s\nfingerprint: %s\n",
			p.BeadID, p.Title, p.OldStatus, p.NewStatus, p.ChangedBy, p.Repo, p.Fingerprint)
		return subject, body, nil
	default:
		subject = fmt.Sprintf("Notification: %s", entry.EventType)
		body = fmt.Sprintf("%s\n\nfingerprint: %s\n", string(entry.Payload), entry.Fingerprint)
		return subject, body, nil
	}
}
