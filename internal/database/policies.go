package database

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/beadhub/beadhub/internal/apperr"
	"github.com/beadhub/beadhub/internal/models"
)

const policyColumns = `id, project_id, version, bundle, created_by, created_at`

func scanPolicy(row interface{ Scan(...any) error }) (*models.Policy, error) {
	var p models.Policy
	var bundle []byte
	err := row.Scan(&p.ID, &p.ProjectID, &p.Version, &bundle, &p.CreatedBy, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(bundle, &p.Bundle); err != nil {
		return nil, fmt.Errorf("failed to decode policy bundle: %w", err)
	}
	return &p, nil
}

// GetPolicy returns one policy version by id.
func (d *Database) GetPolicy(ctx context.Context, policyID string) (*models.Policy, error) {
	row := d.db.QueryRowContext(ctx, rebind(
		`SELECT `+policyColumns+` FROM project_policies WHERE id = ?`), policyID)
	p, err := scanPolicy(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.New(apperr.NotFound, "policy %s not found", policyID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get policy: %w", err)
	}
	return p, nil
}

// ActivePolicy returns the project's active policy, or NotFound when none is
// set.
func (d *Database) ActivePolicy(ctx context.Context, projectID string) (*models.Policy, error) {
	row := d.db.QueryRowContext(ctx, rebind(
		`SELECT p.id, p.project_id, p.version, p.bundle, p.created_by, p.created_at
		 FROM project_policies p
		 JOIN projects pr ON pr.active_policy_id = p.id
		 WHERE pr.id = ?`), projectID)
	p, err := scanPolicy(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.New(apperr.NotFound, "project %s has no active policy", projectID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active policy: %w", err)
	}
	return p, nil
}

// PolicyHistory lists policy versions newest first.
func (d *Database) PolicyHistory(ctx context.Context, projectID string, limit int) ([]*models.Policy, error) {
	rows, err := d.db.QueryContext(ctx, rebind(
		`SELECT `+policyColumns+` FROM project_policies
		 WHERE project_id = ? ORDER BY version DESC LIMIT ?`), projectID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list policy history: %w", err)
	}
	defer rows.Close()

	var out []*models.Policy
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan policy: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// CreatePolicyResult reports whether a new version was allocated.
type CreatePolicyResult struct {
	Policy  *models.Policy
	Created bool
}

// CreatePolicy allocates the next version for the project under a row lock.
// When basePolicyID is set and does not match the current active policy the
// call fails with conflict. A bundle byte-identical to the latest version
// returns that version with Created=false.
func (d *Database) CreatePolicy(ctx context.Context, projectID string, bundle models.PolicyBundle, basePolicyID, createdBy *string) (*CreatePolicyResult, error) {
	bundleJSON, err := json.Marshal(bundle)
	if err != nil {
		return nil, fmt.Errorf("failed to encode bundle: %w", err)
	}

	var out CreatePolicyResult
	err = d.withTx(ctx, func(tx *sql.Tx) error {
		var activeID sql.NullString
		err := tx.QueryRowContext(ctx, rebind(
			`SELECT active_policy_id FROM projects WHERE id = ? AND deleted_at IS NULL FOR UPDATE`),
			projectID).Scan(&activeID)
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.New(apperr.NotFound, "project %s not found", projectID)
		}
		if err != nil {
			return fmt.Errorf("failed to lock project: %w", err)
		}

		if basePolicyID != nil && (!activeID.Valid || activeID.String != *basePolicyID) {
			return apperr.New(apperr.Conflict,
				"base policy %s is no longer the active policy", *basePolicyID)
		}

		// Idempotent create: identical latest bundle short-circuits.
		row := tx.QueryRowContext(ctx, rebind(
			`SELECT `+policyColumns+` FROM project_policies
			 WHERE project_id = ? ORDER BY version DESC LIMIT 1`), projectID)
		latest, err := scanPolicy(row)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("failed to read latest policy: %w", err)
		}
		if latest != nil {
			latestJSON, err := json.Marshal(latest.Bundle)
			if err == nil && bytes.Equal(latestJSON, bundleJSON) {
				out.Policy = latest
				out.Created = false
				return nil
			}
		}

		var next int
		if err := tx.QueryRowContext(ctx, rebind(
			`SELECT COALESCE(MAX(version), 0) + 1 FROM project_policies WHERE project_id = ?`),
			projectID).Scan(&next); err != nil {
			return fmt.Errorf("failed to allocate version: %w", err)
		}

		p := &models.Policy{
			ID:        uuid.NewString(),
			ProjectID: projectID,
			Version:   next,
			Bundle:    bundle,
			CreatedBy: createdBy,
			CreatedAt: time.Now().UTC(),
		}
		if _, err := tx.ExecContext(ctx, rebind(
			`INSERT INTO project_policies (id, project_id, version, bundle, created_by, created_at)
			 VALUES (?, ?, ?, ?, ?, ?)`),
			p.ID, p.ProjectID, p.Version, bundleJSON, p.CreatedBy, p.CreatedAt); err != nil {
			return fmt.Errorf("failed to insert policy: %w", err)
		}
		out.Policy = p
		out.Created = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ActivatePolicy points the project at policyID. The policy must belong to
// the project.
func (d *Database) ActivatePolicy(ctx context.Context, projectID, policyID string) error {
	return d.withTx(ctx, func(tx *sql.Tx) error {
		var owner string
		err := tx.QueryRowContext(ctx, rebind(
			`SELECT project_id FROM project_policies WHERE id = ?`), policyID).Scan(&owner)
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.New(apperr.NotFound, "policy %s not found", policyID)
		}
		if err != nil {
			return fmt.Errorf("failed to look up policy: %w", err)
		}
		if owner != projectID {
			return apperr.New(apperr.Forbidden, "policy %s belongs to another project", policyID)
		}
		res, err := tx.ExecContext(ctx, rebind(
			`UPDATE projects SET active_policy_id = ?, updated_at = now() WHERE id = ? AND deleted_at IS NULL`),
			policyID, projectID)
		if err != nil {
			return fmt.Errorf("failed to activate policy: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return apperr.New(apperr.NotFound, "project %s not found", projectID)
		}
		return nil
	})
}
