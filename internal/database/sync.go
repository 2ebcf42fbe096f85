package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/beadhub/beadhub/internal/events"
	"github.com/beadhub/beadhub/internal/models"
)

// StatusChange records one detected transition during a sync.
type StatusChange struct {
	BeadID      string    `json:"bead_id"`
	Title       string    `json:"title"`
	OldStatus   string    `json:"old_status"`
	NewStatus   string    `json:"new_status"`
	ChangedAt   time.Time `json:"changed_at"`
	Fingerprint string    `json:"fingerprint"`
}

// SyncApplyParams is a fully-parsed sync request.
type SyncApplyParams struct {
	ProjectID   string
	WorkspaceID string
	Alias       string
	Repo        string // canonical origin for subscription matching
	Issues      []*models.Issue
	DeletedIDs  []string
	Claims      []*models.Claim
}

// SyncApplyResult reports what the transaction changed.
type SyncApplyResult struct {
	Upserts             int
	Deletes             int
	StatusChanges       []StatusChange
	NotificationsQueued int
	ClaimsAdded         []string
	ClaimsRemoved       []string
}

// SyncApply runs the whole sync reconciliation in one transaction: issue
// upserts with previous-status capture, hard deletes, claim reconciliation,
// and one outbox entry per matching subscription for every status change.
// Outbox rows commit with the changes they describe.
func (d *Database) SyncApply(ctx context.Context, p SyncApplyParams) (*SyncApplyResult, error) {
	var out SyncApplyResult
	err := d.withTx(ctx, func(tx *sql.Tx) error {
		for _, issue := range p.Issues {
			issue.ProjectID = p.ProjectID
			prev, err := upsertIssueTx(ctx, tx, issue)
			if err != nil {
				return err
			}
			out.Upserts++
			if prev != "" && prev != issue.Status {
				out.StatusChanges = append(out.StatusChanges, StatusChange{
					BeadID:      issue.BeadID,
					Title:       issue.Title,
					OldStatus:   prev,
					NewStatus:   issue.Status,
					ChangedAt:   issue.UpdatedAt,
					Fingerprint: events.Fingerprint(issue.BeadID, prev, issue.Status, issue.UpdatedAt),
				})
			}
		}

		deleted, err := deleteIssuesTx(ctx, tx, p.ProjectID, p.DeletedIDs)
		if err != nil {
			return err
		}
		out.Deletes = deleted

		added, removed, err := reconcileClaimsTx(ctx, tx, p.ProjectID, p.WorkspaceID, p.Claims)
		if err != nil {
			return err
		}
		out.ClaimsAdded, out.ClaimsRemoved = added, removed

		for _, sc := range out.StatusChanges {
			subs, err := subscriptionsForBeadTx(ctx, tx, p.ProjectID, sc.BeadID, p.Repo, "status_change")
			if err != nil {
				return err
			}
			for _, sub := range subs {
				// The workspace that pushed the change does not notify itself.
				if sub.WorkspaceID == p.WorkspaceID {
					continue
				}
				payload, err := json.Marshal(map[string]any{
					"bead_id":     sc.BeadID,
					"title":       sc.Title,
					"old_status":  sc.OldStatus,
					"new_status":  sc.NewStatus,
					"changed_by":  p.Alias,
					"repo":        p.Repo,
					"changed_at":  sc.ChangedAt,
					"fingerprint": sc.Fingerprint,
				})
				if err != nil {
					return fmt.Errorf("failed to encode notification payload: %w", err)
				}
				alias := ""
				if w, err := getWorkspaceAliasTx(ctx, tx, p.ProjectID, sub.WorkspaceID); err == nil {
					alias = w
				}
				entry := &models.OutboxEntry{
					ProjectID:   p.ProjectID,
					WorkspaceID: sub.WorkspaceID,
					Alias:       alias,
					EventType:   events.TypeBeadStatusChanged,
					Payload:     payload,
					Fingerprint: sc.Fingerprint,
				}
				if err := enqueueOutboxTx(ctx, tx, entry); err != nil {
					return err
				}
				out.NotificationsQueued++
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func getWorkspaceAliasTx(ctx context.Context, tx *sql.Tx, projectID, workspaceID string) (string, error) {
	var alias string
	err := tx.QueryRowContext(ctx, rebind(
		`SELECT alias FROM workspaces WHERE project_id = ? AND id = ?`),
		projectID, workspaceID).Scan(&alias)
	return alias, err
}
