package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/beadhub/beadhub/internal/models"
)

const outboxColumns = `id, project_id, workspace_id, alias, event_type, payload, fingerprint,
	attempts, last_error, status, next_attempt_at, created_at, processed_at, delivered_message_id`

func scanOutbox(row interface{ Scan(...any) error }) (*models.OutboxEntry, error) {
	var e models.OutboxEntry
	var payload []byte
	err := row.Scan(&e.ID, &e.ProjectID, &e.WorkspaceID, &e.Alias, &e.EventType, &payload,
		&e.Fingerprint, &e.Attempts, &e.LastError, &e.Status, &e.NextAttemptAt,
		&e.CreatedAt, &e.ProcessedAt, &e.DeliveredMsgID)
	if err != nil {
		return nil, err
	}
	e.Payload = json.RawMessage(payload)
	return &e, nil
}

// enqueueOutboxTx inserts one notification entry inside the caller's
// transaction, co-committing it with the event that produced it.
func enqueueOutboxTx(ctx context.Context, tx *sql.Tx, e *models.OutboxEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	if e.NextAttemptAt.IsZero() {
		e.NextAttemptAt = now
	}
	if e.Status == "" {
		e.Status = models.OutboxPending
	}
	_, err := tx.ExecContext(ctx, rebind(
		`INSERT INTO notification_outbox (id, project_id, workspace_id, alias, event_type,
			payload, fingerprint, status, next_attempt_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		e.ID, e.ProjectID, e.WorkspaceID, e.Alias, e.EventType,
		[]byte(e.Payload), e.Fingerprint, e.Status, e.NextAttemptAt, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to enqueue notification: %w", err)
	}
	return nil
}

// ClaimOutboxBatch picks up to limit due entries with SKIP LOCKED and flips
// them to processing. FIFO per project by creation time.
func (d *Database) ClaimOutboxBatch(ctx context.Context, limit, maxAttempts int) ([]*models.OutboxEntry, error) {
	var out []*models.OutboxEntry
	err := d.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, rebind(
			`SELECT `+outboxColumns+` FROM notification_outbox
			 WHERE status IN ('pending', 'failed') AND attempts < ? AND next_attempt_at <= now()
			 ORDER BY project_id, created_at
			 LIMIT ? FOR UPDATE SKIP LOCKED`),
			maxAttempts, limit)
		if err != nil {
			return fmt.Errorf("failed to select outbox batch: %w", err)
		}
		for rows.Next() {
			e, err := scanOutbox(rows)
			if err != nil {
				rows.Close()
				return fmt.Errorf("failed to scan outbox entry: %w", err)
			}
			out = append(out, e)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		for _, e := range out {
			if _, err := tx.ExecContext(ctx, rebind(
				`UPDATE notification_outbox SET status = 'processing' WHERE id = ?`), e.ID); err != nil {
				return fmt.Errorf("failed to mark entry processing: %w", err)
			}
			e.Status = models.OutboxProcessing
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CompleteOutboxEntry marks an entry delivered.
func (d *Database) CompleteOutboxEntry(ctx context.Context, id, messageID string) error {
	_, err := d.db.ExecContext(ctx, rebind(
		`UPDATE notification_outbox
		 SET status = 'completed', processed_at = now(), delivered_message_id = ?
		 WHERE id = ?`), messageID, id)
	if err != nil {
		return fmt.Errorf("failed to complete outbox entry: %w", err)
	}
	return nil
}

// FailOutboxEntry records a delivery failure. Below maxAttempts the entry goes
// back to pending with the given retry time; at the cap it is failed for good.
func (d *Database) FailOutboxEntry(ctx context.Context, id, lastError string, attempts, maxAttempts int, nextAttemptAt time.Time) error {
	status := models.OutboxPending
	if attempts >= maxAttempts {
		status = models.OutboxFailed
	}
	_, err := d.db.ExecContext(ctx, rebind(
		`UPDATE notification_outbox
		 SET status = ?, attempts = ?, last_error = ?, next_attempt_at = ?
		 WHERE id = ?`), status, attempts, lastError, nextAttemptAt, id)
	if err != nil {
		return fmt.Errorf("failed to record outbox failure: %w", err)
	}
	return nil
}

// RecentlyDelivered reports whether a completed entry with the same recipient
// and fingerprint exists inside the dedupe window.
func (d *Database) RecentlyDelivered(ctx context.Context, workspaceID, fingerprint string, window time.Duration) (bool, error) {
	var exists bool
	err := d.db.QueryRowContext(ctx, rebind(
		`SELECT EXISTS (
			SELECT 1 FROM notification_outbox
			WHERE workspace_id = ? AND fingerprint = ? AND status = 'completed' AND processed_at > ?
		)`), workspaceID, fingerprint, time.Now().UTC().Add(-window)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check delivery dedupe: %w", err)
	}
	return exists, nil
}
