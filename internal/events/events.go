// Package events defines the domain event envelope and the bus that carries
// it. Two backends exist: Redis pub/sub (default, shares the ephemeral store)
// and NATS. Live subscribers attach through the Hub, which fans events out
// with per-subscriber buffering.
package events

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Event types.
const (
	TypeBeadClaimed          = "bead.claimed"
	TypeBeadUnclaimed        = "bead.unclaimed"
	TypeBeadStatusChanged    = "bead.status_changed"
	TypeMessageDelivered     = "message.delivered"
	TypeMessageAcknowledged  = "message.acknowledged"
	TypeChatMessageSent      = "chat.message_sent"
	TypeEscalationCreated    = "escalation.created"
	TypeEscalationResponded  = "escalation.responded"
	TypeReservationAcquired  = "reservation.acquired"
	TypeReservationReleased  = "reservation.released"
	TypeReservationRenewed   = "reservation.renewed"
	TypeSyncCompleted        = "sync.completed"
)

// Event is the common envelope for all domain events.
type Event struct {
	Type        string         `json:"type"`
	ProjectID   string         `json:"project_id"`
	WorkspaceID string         `json:"workspace_id,omitempty"`
	Alias       string         `json:"alias,omitempty"`
	HumanName   string         `json:"human_name,omitempty"`
	Repo        string         `json:"repo,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
	Seq         uint64         `json:"seq,omitempty"`
	Data        map[string]any `json:"data,omitempty"`
}

// Fingerprint derives the dedupe key for a status-change notification.
// Recipients carrying the same fingerprint are duplicates of one transition.
func Fingerprint(beadID, oldStatus, newStatus string, ts time.Time) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s|%d", beadID, oldStatus, newStatus, ts.UnixMicro())))
	return hex.EncodeToString(h[:16])
}
