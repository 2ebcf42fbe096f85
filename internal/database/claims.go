package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/beadhub/beadhub/internal/apperr"
	"github.com/beadhub/beadhub/internal/models"
)

const claimColumns = `project_id, bead_id, workspace_id, alias, human_name, apex_bead_id, claimed_at`

func scanClaim(row interface{ Scan(...any) error }) (*models.Claim, error) {
	var c models.Claim
	err := row.Scan(&c.ProjectID, &c.BeadID, &c.WorkspaceID, &c.Alias, &c.HumanName,
		&c.ApexBeadID, &c.ClaimedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Claimants returns the current holders of a bead.
func (d *Database) Claimants(ctx context.Context, projectID, beadID string) ([]models.Claimant, error) {
	rows, err := d.db.QueryContext(ctx, rebind(
		`SELECT alias, human_name FROM bead_claims WHERE project_id = ? AND bead_id = ? ORDER BY claimed_at`),
		projectID, beadID)
	if err != nil {
		return nil, fmt.Errorf("failed to list claimants: %w", err)
	}
	defer rows.Close()

	var out []models.Claimant
	for rows.Next() {
		var c models.Claimant
		if err := rows.Scan(&c.Alias, &c.HumanName); err != nil {
			return nil, fmt.Errorf("failed to scan claimant: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// AcquireClaim inserts a claim row. Without jumpIn, an existing claim by any
// other workspace is a conflict carrying the claimants so callers can surface
// who holds the bead. Re-claiming one's own bead refreshes the row.
func (d *Database) AcquireClaim(ctx context.Context, claim *models.Claim, jumpIn bool) error {
	return d.withTx(ctx, func(tx *sql.Tx) error {
		return acquireClaimTx(ctx, tx, claim, jumpIn)
	})
}

func acquireClaimTx(ctx context.Context, tx *sql.Tx, claim *models.Claim, jumpIn bool) error {
	if !jumpIn {
		rows, err := tx.QueryContext(ctx, rebind(
			`SELECT alias, human_name FROM bead_claims
			 WHERE project_id = ? AND bead_id = ? AND workspace_id != ?`),
			claim.ProjectID, claim.BeadID, claim.WorkspaceID)
		if err != nil {
			return fmt.Errorf("failed to check claimants: %w", err)
		}
		var holders []models.Claimant
		for rows.Next() {
			var c models.Claimant
			if err := rows.Scan(&c.Alias, &c.HumanName); err != nil {
				rows.Close()
				return fmt.Errorf("failed to scan claimant: %w", err)
			}
			holders = append(holders, c)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		if len(holders) > 0 {
			names := make([]string, len(holders))
			fields := make([]map[string]any, len(holders))
			for i, h := range holders {
				names[i] = h.Alias
				f := map[string]any{"alias": h.Alias}
				if h.HumanName != nil {
					f["human_name"] = *h.HumanName
				}
				fields[i] = f
			}
			return apperr.New(apperr.Conflict, "%s is claimed by %s", claim.BeadID, strings.Join(names, ", ")).
				WithFields(map[string]any{"claimants": fields})
		}
	}

	if claim.ClaimedAt.IsZero() {
		claim.ClaimedAt = time.Now().UTC()
	}
	_, err := tx.ExecContext(ctx, rebind(
		`INSERT INTO bead_claims (project_id, bead_id, workspace_id, alias, human_name, apex_bead_id, claimed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (project_id, bead_id, workspace_id) DO UPDATE SET
			alias = EXCLUDED.alias,
			human_name = EXCLUDED.human_name,
			apex_bead_id = EXCLUDED.apex_bead_id`),
		claim.ProjectID, claim.BeadID, claim.WorkspaceID, claim.Alias, claim.HumanName,
		claim.ApexBeadID, claim.ClaimedAt)
	if err != nil {
		return fmt.Errorf("failed to insert claim: %w", err)
	}
	return nil
}

// ReleaseClaim removes a claim row. Releasing a claim not held is a no-op.
func (d *Database) ReleaseClaim(ctx context.Context, projectID, beadID, workspaceID string) (bool, error) {
	res, err := d.db.ExecContext(ctx, rebind(
		`DELETE FROM bead_claims WHERE project_id = ? AND bead_id = ? AND workspace_id = ?`),
		projectID, beadID, workspaceID)
	if err != nil {
		return false, fmt.Errorf("failed to release claim: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// ListClaims returns claims ordered by claimed_at descending with cursor
// pagination. workspaceID and beadID filter when non-empty.
func (d *Database) ListClaims(ctx context.Context, projectID, workspaceID, beadID string, limit int, cursorClaimedAt *time.Time, cursorBead string) ([]*models.Claim, error) {
	q := `SELECT ` + claimColumns + ` FROM bead_claims WHERE project_id = ?`
	args := []any{projectID}
	if workspaceID != "" {
		q += ` AND workspace_id = ?`
		args = append(args, workspaceID)
	}
	if beadID != "" {
		q += ` AND bead_id = ?`
		args = append(args, beadID)
	}
	if cursorClaimedAt != nil {
		q += ` AND (claimed_at, bead_id) < (?, ?)`
		args = append(args, *cursorClaimedAt, cursorBead)
	}
	q += ` ORDER BY claimed_at DESC, bead_id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := d.db.QueryContext(ctx, rebind(q), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list claims: %w", err)
	}
	defer rows.Close()

	var out []*models.Claim
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan claim: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// reconcileClaimsTx makes the stored claims for one workspace match the
// snapshot: claims absent from the snapshot are removed, new ones inserted.
// Returns the bead ids added and removed.
func reconcileClaimsTx(ctx context.Context, tx *sql.Tx, projectID, workspaceID string, snapshot []*models.Claim) (added, removed []string, err error) {
	rows, err := tx.QueryContext(ctx, rebind(
		`SELECT bead_id FROM bead_claims WHERE project_id = ? AND workspace_id = ?`),
		projectID, workspaceID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read current claims: %w", err)
	}
	current := map[string]bool{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, nil, fmt.Errorf("failed to scan claim: %w", err)
		}
		current[id] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	want := map[string]bool{}
	for _, c := range snapshot {
		want[c.BeadID] = true
		if current[c.BeadID] {
			continue
		}
		c.ProjectID = projectID
		c.WorkspaceID = workspaceID
		if err := acquireClaimTx(ctx, tx, c, true); err != nil {
			return nil, nil, err
		}
		added = append(added, c.BeadID)
	}

	var stale []string
	for id := range current {
		if !want[id] {
			stale = append(stale, id)
		}
	}
	if len(stale) > 0 {
		_, err = tx.ExecContext(ctx, rebind(
			`DELETE FROM bead_claims WHERE project_id = ? AND workspace_id = ? AND bead_id = ANY(?)`),
			projectID, workspaceID, pq.Array(stale))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to remove stale claims: %w", err)
		}
		removed = stale
	}
	return added, removed, nil
}

// ConflictBeads returns beads with two or more active claimants, with the
// claimants for each.
func (d *Database) ConflictBeads(ctx context.Context, projectID string) (map[string][]models.Claimant, error) {
	rows, err := d.db.QueryContext(ctx, rebind(
		`SELECT bead_id, alias, human_name FROM bead_claims
		 WHERE project_id = ? AND bead_id IN (
			SELECT bead_id FROM bead_claims WHERE project_id = ? GROUP BY bead_id HAVING COUNT(*) > 1
		 ) ORDER BY bead_id, claimed_at`),
		projectID, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list conflicts: %w", err)
	}
	defer rows.Close()

	out := map[string][]models.Claimant{}
	for rows.Next() {
		var beadID string
		var c models.Claimant
		if err := rows.Scan(&beadID, &c.Alias, &c.HumanName); err != nil {
			return nil, fmt.Errorf("failed to scan conflict: %w", err)
		}
		out[beadID] = append(out[beadID], c)
	}
	return out, rows.Err()
}
