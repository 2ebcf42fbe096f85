package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/beadhub/beadhub/internal/apperr"
	"github.com/beadhub/beadhub/internal/models"
)

// DefaultEscalationExpiry applies when the caller sets no deadline.
const DefaultEscalationExpiry = 72 * time.Hour

const escalationColumns = `id, project_id, workspace_id, alias, subject, situation, options,
	status, response, response_note, responded_by, responded_at, expires_at, created_at`

func scanEscalation(row interface{ Scan(...any) error }) (*models.Escalation, error) {
	var e models.Escalation
	var options pq.StringArray
	err := row.Scan(&e.ID, &e.ProjectID, &e.WorkspaceID, &e.Alias, &e.Subject, &e.Situation,
		&options, &e.Status, &e.Response, &e.ResponseNote, &e.RespondedBy, &e.RespondedAt,
		&e.ExpiresAt, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	e.Options = options
	return &e, nil
}

// CreateEscalation inserts a pending escalation.
func (d *Database) CreateEscalation(ctx context.Context, e *models.Escalation) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	if e.ExpiresAt.IsZero() {
		e.ExpiresAt = now.Add(DefaultEscalationExpiry)
	}
	e.Status = models.EscalationPending
	_, err := d.db.ExecContext(ctx, rebind(
		`INSERT INTO escalations (id, project_id, workspace_id, alias, subject, situation,
			options, status, expires_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		e.ID, e.ProjectID, e.WorkspaceID, e.Alias, e.Subject, e.Situation,
		pq.Array(e.Options), e.Status, e.ExpiresAt, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create escalation: %w", err)
	}
	return nil
}

// GetEscalation returns one escalation, lazily expiring it when its deadline
// has passed.
func (d *Database) GetEscalation(ctx context.Context, projectID, id string) (*models.Escalation, error) {
	row := d.db.QueryRowContext(ctx, rebind(
		`SELECT `+escalationColumns+` FROM escalations WHERE id = ? AND project_id = ?`),
		id, projectID)
	e, err := scanEscalation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.New(apperr.NotFound, "escalation %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get escalation: %w", err)
	}
	if e.Status == models.EscalationPending && time.Now().After(e.ExpiresAt) {
		if _, err := d.db.ExecContext(ctx, rebind(
			`UPDATE escalations SET status = 'expired' WHERE id = ? AND status = 'pending'`), id); err == nil {
			e.Status = models.EscalationExpired
		}
	}
	return e, nil
}

// ListEscalations returns escalations newest first, filtered by status when
// non-empty.
func (d *Database) ListEscalations(ctx context.Context, projectID, status string, limit int) ([]*models.Escalation, error) {
	q := `SELECT ` + escalationColumns + ` FROM escalations WHERE project_id = ?`
	args := []any{projectID}
	if status != "" {
		q += ` AND status = ?`
		args = append(args, status)
	}
	q += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := d.db.QueryContext(ctx, rebind(q), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list escalations: %w", err)
	}
	defer rows.Close()

	var out []*models.Escalation
	for rows.Next() {
		e, err := scanEscalation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan escalation: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// RespondEscalation records the response. A repeated call with the same
// response is a no-op; a different response on a responded escalation
// conflicts, as does responding to an expired one.
func (d *Database) RespondEscalation(ctx context.Context, projectID, id, response string, note, respondedBy *string) (*models.Escalation, error) {
	var out *models.Escalation
	err := d.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, rebind(
			`SELECT `+escalationColumns+` FROM escalations WHERE id = ? AND project_id = ? FOR UPDATE`),
			id, projectID)
		e, err := scanEscalation(row)
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.New(apperr.NotFound, "escalation %s not found", id)
		}
		if err != nil {
			return fmt.Errorf("failed to lock escalation: %w", err)
		}

		switch e.Status {
		case models.EscalationResponded:
			if e.Response != nil && *e.Response == response {
				out = e
				return nil
			}
			return apperr.New(apperr.Conflict, "escalation %s already responded", id)
		case models.EscalationExpired:
			return apperr.New(apperr.Conflict, "escalation %s has expired", id)
		}
		if time.Now().After(e.ExpiresAt) {
			if _, err := tx.ExecContext(ctx, rebind(
				`UPDATE escalations SET status = 'expired' WHERE id = ?`), id); err != nil {
				return fmt.Errorf("failed to expire escalation: %w", err)
			}
			return apperr.New(apperr.Conflict, "escalation %s has expired", id)
		}

		now := time.Now().UTC()
		if _, err := tx.ExecContext(ctx, rebind(
			`UPDATE escalations SET status = 'responded', response = ?, response_note = ?,
				responded_by = ?, responded_at = ? WHERE id = ?`),
			response, note, respondedBy, now, id); err != nil {
			return fmt.Errorf("failed to respond to escalation: %w", err)
		}
		e.Status = models.EscalationResponded
		e.Response = &response
		e.ResponseNote = note
		e.RespondedBy = respondedBy
		e.RespondedAt = &now
		out = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
