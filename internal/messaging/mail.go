// Package messaging implements the mail and chat planes over the durable and
// ephemeral stores, with delivery events on the bus.
package messaging

import (
	"context"
	"log"
	"time"

	"github.com/beadhub/beadhub/internal/apperr"
	"github.com/beadhub/beadhub/internal/database"
	"github.com/beadhub/beadhub/internal/ephemeral"
	"github.com/beadhub/beadhub/internal/events"
	"github.com/beadhub/beadhub/internal/models"
)

// Bounds on mail fields.
const (
	MaxSubjectLen = 200
	MaxBodyBytes  = 64 * 1024
)

// Mail is the durable, read-receipted message service.
type Mail struct {
	db    *database.Database
	store *ephemeral.Store
	bus   events.Bus
}

// NewMail builds the mail service.
func NewMail(db *database.Database, store *ephemeral.Store, bus events.Bus) *Mail {
	return &Mail{db: db, store: store, bus: bus}
}

func validPriority(p string) bool {
	switch p {
	case models.PriorityLow, models.PriorityNormal, models.PriorityHigh, models.PriorityUrgent:
		return true
	}
	return false
}

// Send stores a mail, publishes message.delivered, and wakes the recipient's
// inbox channel. At-least-once: the row commits before the event.
func (m *Mail) Send(ctx context.Context, msg *models.MailMessage) (*models.MailMessage, error) {
	if len(msg.Body) == 0 {
		return nil, apperr.New(apperr.Validation, "mail body must not be empty")
	}
	if len(msg.Body) > MaxBodyBytes {
		return nil, apperr.New(apperr.Validation, "mail body exceeds %d bytes", MaxBodyBytes)
	}
	if len(msg.Subject) > MaxSubjectLen {
		return nil, apperr.New(apperr.Validation, "mail subject exceeds %d characters", MaxSubjectLen)
	}
	if msg.Priority == "" {
		msg.Priority = models.PriorityNormal
	}
	if !validPriority(msg.Priority) {
		return nil, apperr.New(apperr.Validation, "invalid priority %q", msg.Priority)
	}

	if _, err := m.db.GetWorkspace(ctx, msg.ProjectID, msg.ToID); err != nil {
		return nil, err
	}
	if err := m.db.InsertMail(ctx, msg); err != nil {
		return nil, err
	}

	if err := m.bus.Publish(ctx, &events.Event{
		Type:        events.TypeMessageDelivered,
		ProjectID:   msg.ProjectID,
		WorkspaceID: msg.ToID,
		Alias:       msg.FromAlias,
		Timestamp:   time.Now().UTC(),
		Data: map[string]any{
			"message_id": msg.ID,
			"from_alias": msg.FromAlias,
			"subject":    msg.Subject,
			"priority":   msg.Priority,
		},
	}); err != nil {
		log.Printf("[Mail] Failed to publish delivery event for %s: %v", msg.ID, err)
	}
	if err := m.store.WakeInbox(ctx, msg.ToID); err != nil {
		log.Printf("[Mail] Failed to wake inbox of %s: %v", msg.ToID, err)
	}
	return msg, nil
}

// Inbox lists a workspace's mail.
func (m *Mail) Inbox(ctx context.Context, projectID, workspaceID string, unreadOnly bool, limit int, cursorCreatedAt *time.Time, cursorID string) ([]*models.MailMessage, error) {
	return m.db.Inbox(ctx, projectID, workspaceID, unreadOnly, limit, cursorCreatedAt, cursorID)
}

// Acknowledge marks a mail read and publishes message.acknowledged. Repeat
// acks keep the first read_at and skip the event.
func (m *Mail) Acknowledge(ctx context.Context, projectID, messageID, workspaceID string) (*models.MailMessage, error) {
	msg, first, err := m.db.AcknowledgeMail(ctx, projectID, messageID, workspaceID)
	if err != nil {
		return nil, err
	}
	if first {
		if err := m.bus.Publish(ctx, &events.Event{
			Type:        events.TypeMessageAcknowledged,
			ProjectID:   projectID,
			WorkspaceID: workspaceID,
			Timestamp:   time.Now().UTC(),
			Data:        map[string]any{"message_id": messageID},
		}); err != nil {
			log.Printf("[Mail] Failed to publish ack event for %s: %v", messageID, err)
		}
	}
	return msg, nil
}
