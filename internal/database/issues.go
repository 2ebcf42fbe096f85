package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/beadhub/beadhub/internal/apperr"
	"github.com/beadhub/beadhub/internal/models"
)

const issueColumns = `project_id, bead_id, title, body, status, priority, assignee, creator,
	labels, parent_ref, blocked_by, created_at, updated_at, closed_at`

func scanIssue(row interface{ Scan(...any) error }) (*models.Issue, error) {
	var (
		i         models.Issue
		labels    pq.StringArray
		parentRaw []byte
		blockedBy []byte
	)
	err := row.Scan(&i.ProjectID, &i.BeadID, &i.Title, &i.Body, &i.Status, &i.Priority,
		&i.Assignee, &i.Creator, &labels, &parentRaw, &blockedBy,
		&i.CreatedAt, &i.UpdatedAt, &i.ClosedAt)
	if err != nil {
		return nil, err
	}
	i.Labels = labels
	if len(parentRaw) > 0 {
		var ref models.BeadRef
		if err := json.Unmarshal(parentRaw, &ref); err == nil {
			i.Parent = &ref
		}
	}
	if len(blockedBy) > 0 {
		if err := json.Unmarshal(blockedBy, &i.BlockedBy); err != nil {
			return nil, fmt.Errorf("failed to decode blocked_by: %w", err)
		}
	}
	return &i, nil
}

// upsertIssueTx writes one issue row under a row lock and reports the previous
// status ("" when the row is new). The lock serialises concurrent syncs
// touching the same bead.
func upsertIssueTx(ctx context.Context, tx *sql.Tx, issue *models.Issue) (prevStatus string, err error) {
	err = tx.QueryRowContext(ctx, rebind(
		`SELECT status FROM beads_issues WHERE project_id = ? AND bead_id = ? FOR UPDATE`),
		issue.ProjectID, issue.BeadID).Scan(&prevStatus)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("failed to lock issue: %w", err)
	}

	var parentRaw any
	if issue.Parent != nil {
		b, err := json.Marshal(issue.Parent)
		if err != nil {
			return "", fmt.Errorf("failed to encode parent: %w", err)
		}
		parentRaw = b
	}
	blockedRaw, err := json.Marshal(issue.BlockedBy)
	if err != nil {
		return "", fmt.Errorf("failed to encode blocked_by: %w", err)
	}
	if issue.BlockedBy == nil {
		blockedRaw = []byte("[]")
	}

	_, err = tx.ExecContext(ctx, rebind(
		`INSERT INTO beads_issues (project_id, bead_id, title, body, status, priority, assignee,
			creator, labels, parent_ref, blocked_by, created_at, updated_at, closed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (project_id, bead_id) DO UPDATE SET
			title = EXCLUDED.title,
			body = EXCLUDED.body,
			status = EXCLUDED.status,
			priority = EXCLUDED.priority,
			assignee = EXCLUDED.assignee,
			creator = EXCLUDED.creator,
			labels = EXCLUDED.labels,
			parent_ref = EXCLUDED.parent_ref,
			blocked_by = EXCLUDED.blocked_by,
			updated_at = EXCLUDED.updated_at,
			closed_at = EXCLUDED.closed_at`),
		issue.ProjectID, issue.BeadID, issue.Title, issue.Body, issue.Status, issue.Priority,
		issue.Assignee, issue.Creator, pq.Array(issue.Labels), parentRaw, blockedRaw,
		issue.CreatedAt, issue.UpdatedAt, issue.ClosedAt)
	if err != nil {
		return "", fmt.Errorf("failed to upsert issue %s: %w", issue.BeadID, err)
	}
	return prevStatus, nil
}

// deleteIssuesTx hard-deletes the given bead ids. The client is authoritative.
func deleteIssuesTx(ctx context.Context, tx *sql.Tx, projectID string, beadIDs []string) (int, error) {
	if len(beadIDs) == 0 {
		return 0, nil
	}
	res, err := tx.ExecContext(ctx, rebind(
		`DELETE FROM beads_issues WHERE project_id = ? AND bead_id = ANY(?)`),
		projectID, pq.Array(beadIDs))
	if err != nil {
		return 0, fmt.Errorf("failed to delete issues: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// GetIssue returns one issue.
func (d *Database) GetIssue(ctx context.Context, projectID, beadID string) (*models.Issue, error) {
	row := d.db.QueryRowContext(ctx, rebind(
		`SELECT `+issueColumns+` FROM beads_issues WHERE project_id = ? AND bead_id = ?`),
		projectID, beadID)
	i, err := scanIssue(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.New(apperr.NotFound, "bead %s not found", beadID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get issue: %w", err)
	}
	return i, nil
}

// IssueFilter narrows ListIssues.
type IssueFilter struct {
	Status   string
	Assignee string
	Label    string
	Search   string // trigram match on title/body
}

// ListIssues returns issues ordered by updated_at descending with cursor
// pagination.
func (d *Database) ListIssues(ctx context.Context, projectID string, f IssueFilter, limit int, cursorUpdatedAt *time.Time, cursorID string) ([]*models.Issue, error) {
	q := `SELECT ` + issueColumns + ` FROM beads_issues WHERE project_id = ?`
	args := []any{projectID}
	if f.Status != "" {
		q += ` AND status = ?`
		args = append(args, f.Status)
	}
	if f.Assignee != "" {
		q += ` AND assignee = ?`
		args = append(args, f.Assignee)
	}
	if f.Label != "" {
		q += ` AND ? = ANY(labels)`
		args = append(args, f.Label)
	}
	if f.Search != "" {
		q += ` AND (title ILIKE '%' || ? || '%' OR body ILIKE '%' || ? || '%')`
		args = append(args, f.Search, f.Search)
	}
	if cursorUpdatedAt != nil {
		q += ` AND (updated_at, bead_id) < (?, ?)`
		args = append(args, *cursorUpdatedAt, cursorID)
	}
	q += ` ORDER BY updated_at DESC, bead_id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := d.db.QueryContext(ctx, rebind(q), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list issues: %w", err)
	}
	defer rows.Close()

	var out []*models.Issue
	for rows.Next() {
		i, err := scanIssue(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan issue: %w", err)
		}
		out = append(out, i)
	}
	return out, rows.Err()
}

// AllIssues returns every issue in the project. Used by the ready query, which
// needs the full blocker graph.
func (d *Database) AllIssues(ctx context.Context, projectID string) ([]*models.Issue, error) {
	rows, err := d.db.QueryContext(ctx, rebind(
		`SELECT `+issueColumns+` FROM beads_issues WHERE project_id = ?`), projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to load issues: %w", err)
	}
	defer rows.Close()

	var out []*models.Issue
	for rows.Next() {
		i, err := scanIssue(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan issue: %w", err)
		}
		out = append(out, i)
	}
	return out, rows.Err()
}
