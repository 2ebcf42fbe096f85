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

const subscriptionColumns = `id, project_id, workspace_id, bead_id, repo, event_types, created_at`

func scanSubscription(row interface{ Scan(...any) error }) (*models.Subscription, error) {
	var s models.Subscription
	var types pq.StringArray
	err := row.Scan(&s.ID, &s.ProjectID, &s.WorkspaceID, &s.BeadID, &s.Repo, &types, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	s.EventTypes = types
	return &s, nil
}

// CreateSubscription inserts a subscription. Duplicate tuples conflict.
func (d *Database) CreateSubscription(ctx context.Context, s *models.Subscription) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if len(s.EventTypes) == 0 {
		s.EventTypes = []string{"status_change"}
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	_, err := d.db.ExecContext(ctx, rebind(
		`INSERT INTO subscriptions (id, project_id, workspace_id, bead_id, repo, event_types, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`),
		s.ID, s.ProjectID, s.WorkspaceID, s.BeadID, s.Repo, pq.Array(s.EventTypes), s.CreatedAt)
	if isUniqueViolation(err) {
		return apperr.New(apperr.Conflict, "already subscribed to %s", s.BeadID)
	}
	if err != nil {
		return fmt.Errorf("failed to create subscription: %w", err)
	}
	return nil
}

// DeleteSubscription removes a subscription owned by workspaceID.
func (d *Database) DeleteSubscription(ctx context.Context, projectID, workspaceID, id string) error {
	res, err := d.db.ExecContext(ctx, rebind(
		`DELETE FROM subscriptions WHERE id = ? AND project_id = ? AND workspace_id = ?`),
		id, projectID, workspaceID)
	if err != nil {
		return fmt.Errorf("failed to delete subscription: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.New(apperr.NotFound, "subscription %s not found", id)
	}
	return nil
}

// ListSubscriptions returns a workspace's subscriptions.
func (d *Database) ListSubscriptions(ctx context.Context, projectID, workspaceID string) ([]*models.Subscription, error) {
	rows, err := d.db.QueryContext(ctx, rebind(
		`SELECT `+subscriptionColumns+` FROM subscriptions
		 WHERE project_id = ? AND workspace_id = ? ORDER BY created_at DESC`),
		projectID, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	defer rows.Close()

	var out []*models.Subscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subscription: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// subscriptionsForBeadTx returns subscriptions matching (project, bead, repo).
// Repo-agnostic subscriptions match any repo; repo-specific ones match only
// their repo.
func subscriptionsForBeadTx(ctx context.Context, tx *sql.Tx, projectID, beadID, repo, eventType string) ([]*models.Subscription, error) {
	rows, err := tx.QueryContext(ctx, rebind(
		`SELECT `+subscriptionColumns+` FROM subscriptions
		 WHERE project_id = ? AND bead_id = ? AND (repo IS NULL OR repo = ?) AND ? = ANY(event_types)`),
		projectID, beadID, repo, eventType)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to match subscriptions: %w", err)
	}
	defer rows.Close()

	var out []*models.Subscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subscription: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
