package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/beadhub/beadhub/internal/apperr"
	"github.com/beadhub/beadhub/internal/models"
)

const mailColumns = `id, project_id, from_workspace_id, from_alias, to_workspace_id, subject,
	body, priority, thread_id, fingerprint, read, read_by, read_at, created_at`

func scanMail(row interface{ Scan(...any) error }) (*models.MailMessage, error) {
	var m models.MailMessage
	err := row.Scan(&m.ID, &m.ProjectID, &m.FromID, &m.FromAlias, &m.ToID, &m.Subject,
		&m.Body, &m.Priority, &m.ThreadID, &m.Fingerprint, &m.Read, &m.ReadBy, &m.ReadAt,
		&m.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// InsertMail stores a mail row.
func (d *Database) InsertMail(ctx context.Context, m *models.MailMessage) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	if m.Priority == "" {
		m.Priority = models.PriorityNormal
	}
	_, err := d.db.ExecContext(ctx, rebind(
		`INSERT INTO messages (id, project_id, from_workspace_id, from_alias, to_workspace_id,
			subject, body, priority, thread_id, fingerprint, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		m.ID, m.ProjectID, m.FromID, m.FromAlias, m.ToID,
		m.Subject, m.Body, m.Priority, m.ThreadID, m.Fingerprint, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert mail: %w", err)
	}
	return nil
}

// Inbox lists mail for a workspace, newest first, with cursor pagination.
func (d *Database) Inbox(ctx context.Context, projectID, workspaceID string, unreadOnly bool, limit int, cursorCreatedAt *time.Time, cursorID string) ([]*models.MailMessage, error) {
	q := `SELECT ` + mailColumns + ` FROM messages WHERE project_id = ? AND to_workspace_id = ?`
	args := []any{projectID, workspaceID}
	if unreadOnly {
		q += ` AND read = false`
	}
	if cursorCreatedAt != nil {
		q += ` AND (created_at, id) < (?, ?)`
		args = append(args, *cursorCreatedAt, cursorID)
	}
	q += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := d.db.QueryContext(ctx, rebind(q), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list inbox: %w", err)
	}
	defer rows.Close()

	var out []*models.MailMessage
	for rows.Next() {
		m, err := scanMail(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan mail: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// UnreadCount returns the number of unread mails per workspace id.
func (d *Database) UnreadCount(ctx context.Context, projectID string) (map[string]int, error) {
	rows, err := d.db.QueryContext(ctx, rebind(
		`SELECT to_workspace_id, COUNT(*) FROM messages
		 WHERE project_id = ? AND read = false GROUP BY to_workspace_id`), projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to count unread mail: %w", err)
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var ws string
		var n int
		if err := rows.Scan(&ws, &n); err != nil {
			return nil, fmt.Errorf("failed to scan unread count: %w", err)
		}
		out[ws] = n
	}
	return out, rows.Err()
}

// AcknowledgeMail marks a mail read by its recipient. Acking twice keeps the
// first read_at; the returned flag is true only for the first ack.
func (d *Database) AcknowledgeMail(ctx context.Context, projectID, messageID, workspaceID string) (*models.MailMessage, bool, error) {
	var out *models.MailMessage
	var first bool
	err := d.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, rebind(
			`SELECT `+mailColumns+` FROM messages WHERE id = ? AND project_id = ? FOR UPDATE`),
			messageID, projectID)
		m, err := scanMail(row)
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.New(apperr.NotFound, "message %s not found", messageID)
		}
		if err != nil {
			return fmt.Errorf("failed to lock mail: %w", err)
		}
		if m.ToID != workspaceID {
			return apperr.New(apperr.Forbidden, "message %s is not addressed to this workspace", messageID)
		}
		if m.Read {
			out = m
			return nil
		}
		now := time.Now().UTC()
		if _, err := tx.ExecContext(ctx, rebind(
			`UPDATE messages SET read = true, read_by = ?, read_at = ? WHERE id = ?`),
			workspaceID, now, messageID); err != nil {
			return fmt.Errorf("failed to acknowledge mail: %w", err)
		}
		m.Read = true
		m.ReadBy = &workspaceID
		m.ReadAt = &now
		out = m
		first = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return out, first, nil
}
