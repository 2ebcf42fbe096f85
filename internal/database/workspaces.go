package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/beadhub/beadhub/internal/apperr"
	"github.com/beadhub/beadhub/internal/models"
)

const workspaceColumns = `id, project_id, repo_id, alias, human_name, member_email, role, class,
	current_branch, focus_bead_id, hostname, workspace_path, timezone,
	last_seen_at, created_at, updated_at, deleted_at`

func scanWorkspace(row interface{ Scan(...any) error }) (*models.Workspace, error) {
	var w models.Workspace
	err := row.Scan(&w.ID, &w.ProjectID, &w.RepoID, &w.Alias, &w.HumanName, &w.MemberEmail,
		&w.Role, &w.Class, &w.CurrentBranch, &w.FocusBeadID, &w.Hostname, &w.WorkspacePath,
		&w.Timezone, &w.LastSeenAt, &w.CreatedAt, &w.UpdatedAt, &w.DeletedAt)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// RegisterWorkspaceParams carries everything the registration transaction
// needs. The caller mints the API key; only the hash is stored here.
type RegisterWorkspaceParams struct {
	WorkspaceID   string // equals the agent id minted by the auth layer
	ProjectSlug   string
	RepoOrigin    string // canonical form; empty for dashboard class
	RepoName      string
	Alias         string
	AliasFallback []string // tried in order when Alias is taken and AutoAlias is set
	AutoAlias     bool
	HumanName     *string
	Role          *string
	Class         string
	Hostname      *string
	WorkspacePath *string
	Timezone      *string
	KeyID         string
	KeyHash       string
}

// RegisterWorkspaceResult reports what the transaction created.
type RegisterWorkspaceResult struct {
	Project   *models.Project
	Repo      *models.Repo
	Workspace *models.Workspace
	Existing  bool
}

// RegisterWorkspace atomically ensures the project and repo, stores the key
// hash, and creates the workspace row. Re-registering an existing workspace id
// returns the existing row unchanged. Alias collisions fall through the
// fallback list when AutoAlias is set, otherwise conflict.
func (d *Database) RegisterWorkspace(ctx context.Context, p RegisterWorkspaceParams) (*RegisterWorkspaceResult, error) {
	if p.Class == "" {
		p.Class = models.ClassAgent
	}
	if p.Class == models.ClassAgent && p.RepoOrigin == "" {
		return nil, apperr.New(apperr.Validation, "agent workspaces require a repo origin")
	}

	var out RegisterWorkspaceResult
	err := d.withTx(ctx, func(tx *sql.Tx) error {
		project, err := ensureProjectTx(ctx, tx, p.ProjectSlug)
		if err != nil {
			return err
		}
		out.Project = project

		var repoID *string
		if p.RepoOrigin != "" {
			repo, err := ensureRepoTx(ctx, tx, project.ID, p.RepoOrigin, p.RepoName)
			if err != nil {
				return err
			}
			out.Repo = repo
			repoID = &repo.ID
		}

		// Idempotent re-registration.
		row := tx.QueryRowContext(ctx,
			rebind(`SELECT `+workspaceColumns+` FROM workspaces WHERE id = ?`), p.WorkspaceID)
		existing, err := scanWorkspace(row)
		if err == nil {
			if existing.DeletedAt != nil {
				return apperr.New(apperr.Gone, "workspace %s is deleted", p.WorkspaceID)
			}
			if existing.ProjectID != project.ID {
				return apperr.New(apperr.Conflict, "workspace %s belongs to another project", p.WorkspaceID)
			}
			out.Workspace = existing
			out.Existing = true
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("failed to look up workspace: %w", err)
		}

		alias, err := pickAliasTx(ctx, tx, project.ID, p.Alias, p.AliasFallback, p.AutoAlias)
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, rebind(
			`INSERT INTO api_keys (id, project_id, agent_id, name, key_hash) VALUES (?, ?, ?, ?, ?)`),
			p.KeyID, project.ID, p.WorkspaceID, alias, p.KeyHash); err != nil {
			return fmt.Errorf("failed to store api key: %w", err)
		}

		now := time.Now().UTC()
		w := &models.Workspace{
			ID:            p.WorkspaceID,
			ProjectID:     project.ID,
			RepoID:        repoID,
			Alias:         alias,
			HumanName:     p.HumanName,
			Role:          p.Role,
			Class:         p.Class,
			Hostname:      p.Hostname,
			WorkspacePath: p.WorkspacePath,
			Timezone:      p.Timezone,
			LastSeenAt:    &now,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		_, err = tx.ExecContext(ctx, rebind(
			`INSERT INTO workspaces (id, project_id, repo_id, alias, human_name, role, class,
				hostname, workspace_path, timezone, last_seen_at, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
			w.ID, w.ProjectID, w.RepoID, w.Alias, w.HumanName, w.Role, w.Class,
			w.Hostname, w.WorkspacePath, w.Timezone, w.LastSeenAt, w.CreatedAt, w.UpdatedAt)
		if isUniqueViolation(err) {
			return apperr.New(apperr.Conflict, "alias %s is already taken", alias).
				WithFields(map[string]any{"alias": alias})
		}
		if err != nil {
			return fmt.Errorf("failed to create workspace: %w", err)
		}
		out.Workspace = w
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// pickAliasTx returns the requested alias, or the first free fallback when the
// requested one is held by an active workspace and AutoAlias allows it.
func pickAliasTx(ctx context.Context, tx *sql.Tx, projectID, alias string, fallback []string, auto bool) (string, error) {
	candidates := append([]string{alias}, fallback...)
	for _, c := range candidates {
		if c == "" {
			continue
		}
		var taken bool
		err := tx.QueryRowContext(ctx, rebind(
			`SELECT EXISTS (SELECT 1 FROM workspaces WHERE project_id = ? AND alias = ? AND deleted_at IS NULL)`),
			projectID, c).Scan(&taken)
		if err != nil {
			return "", fmt.Errorf("failed to check alias: %w", err)
		}
		if !taken {
			return c, nil
		}
		if !auto {
			return "", apperr.New(apperr.Conflict, "alias %s is already taken", c).
				WithFields(map[string]any{"alias": c})
		}
	}
	return "", apperr.New(apperr.Conflict, "no free alias available")
}

// GetWorkspace returns the workspace by id, including soft-deleted rows.
func (d *Database) GetWorkspace(ctx context.Context, projectID, id string) (*models.Workspace, error) {
	row := d.db.QueryRowContext(ctx, rebind(
		`SELECT `+workspaceColumns+` FROM workspaces WHERE id = ? AND project_id = ?`), id, projectID)
	w, err := scanWorkspace(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.New(apperr.NotFound, "workspace %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get workspace: %w", err)
	}
	return w, nil
}

// WorkspacePatch carries the mutable workspace fields. Nil means unchanged.
type WorkspacePatch struct {
	HumanName     *string
	Role          *string
	CurrentBranch *string
	FocusBeadID   *string
	Hostname      *string
	WorkspacePath *string
	Timezone      *string
}

// UpdateWorkspace applies a patch to the mutable fields. Immutable fields are
// guarded at both the API layer and the database trigger.
func (d *Database) UpdateWorkspace(ctx context.Context, projectID, id string, patch WorkspacePatch) (*models.Workspace, error) {
	w, err := d.GetWorkspace(ctx, projectID, id)
	if err != nil {
		return nil, err
	}
	if w.DeletedAt != nil {
		return nil, apperr.New(apperr.Gone, "workspace %s is deleted", id)
	}

	if patch.HumanName != nil {
		w.HumanName = patch.HumanName
	}
	if patch.Role != nil {
		w.Role = patch.Role
	}
	if patch.CurrentBranch != nil {
		w.CurrentBranch = patch.CurrentBranch
	}
	if patch.FocusBeadID != nil {
		w.FocusBeadID = patch.FocusBeadID
	}
	if patch.Hostname != nil {
		w.Hostname = patch.Hostname
	}
	if patch.WorkspacePath != nil {
		w.WorkspacePath = patch.WorkspacePath
	}
	if patch.Timezone != nil {
		w.Timezone = patch.Timezone
	}
	w.UpdatedAt = time.Now().UTC()

	_, err = d.db.ExecContext(ctx, rebind(
		`UPDATE workspaces SET human_name = ?, role = ?, current_branch = ?, focus_bead_id = ?,
			hostname = ?, workspace_path = ?, timezone = ?, updated_at = ?
		 WHERE id = ? AND project_id = ?`),
		w.HumanName, w.Role, w.CurrentBranch, w.FocusBeadID,
		w.Hostname, w.WorkspacePath, w.Timezone, w.UpdatedAt, id, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to update workspace: %w", err)
	}
	return w, nil
}

// TouchWorkspace refreshes last_seen_at. Called on every authenticated write.
func (d *Database) TouchWorkspace(ctx context.Context, projectID, id string, at time.Time) error {
	_, err := d.db.ExecContext(ctx, rebind(
		`UPDATE workspaces SET last_seen_at = ? WHERE id = ? AND project_id = ? AND deleted_at IS NULL`),
		at, id, projectID)
	if err != nil {
		return fmt.Errorf("failed to touch workspace: %w", err)
	}
	return nil
}

// SoftDeleteWorkspace marks deleted_at. Already-deleted is a no-op.
func (d *Database) SoftDeleteWorkspace(ctx context.Context, projectID, id string) error {
	res, err := d.db.ExecContext(ctx, rebind(
		`UPDATE workspaces SET deleted_at = now() WHERE id = ? AND project_id = ? AND deleted_at IS NULL`),
		id, projectID)
	if err != nil {
		return fmt.Errorf("failed to delete workspace: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := d.GetWorkspace(ctx, projectID, id); err != nil {
			return err
		}
	}
	return nil
}

// RestoreWorkspace clears deleted_at, keeping original bindings. Fails with
// conflict if the alias has been taken by another active workspace meanwhile.
func (d *Database) RestoreWorkspace(ctx context.Context, projectID, id string) (*models.Workspace, error) {
	var w *models.Workspace
	err := d.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, rebind(
			`SELECT `+workspaceColumns+` FROM workspaces WHERE id = ? AND project_id = ? FOR UPDATE`),
			id, projectID)
		var err error
		w, err = scanWorkspace(row)
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.New(apperr.NotFound, "workspace %s not found", id)
		}
		if err != nil {
			return fmt.Errorf("failed to get workspace: %w", err)
		}
		if w.DeletedAt == nil {
			return nil // already active
		}

		_, err = tx.ExecContext(ctx, rebind(
			`UPDATE workspaces SET deleted_at = NULL, updated_at = now() WHERE id = ?`), id)
		if isUniqueViolation(err) {
			return apperr.New(apperr.Conflict, "alias %s is already taken", w.Alias)
		}
		if err != nil {
			return fmt.Errorf("failed to restore workspace: %w", err)
		}
		w.DeletedAt = nil
		return nil
	})
	if err != nil {
		return nil, err
	}
	return w, nil
}

// ListWorkspaces returns the project's workspaces ordered by creation, newest
// first, with cursor pagination. includeDeleted controls soft-deleted rows.
func (d *Database) ListWorkspaces(ctx context.Context, projectID string, includeDeleted bool, limit int, cursorCreatedAt *time.Time, cursorID string) ([]*models.Workspace, error) {
	q := `SELECT ` + workspaceColumns + ` FROM workspaces WHERE project_id = ?`
	args := []any{projectID}
	if !includeDeleted {
		q += ` AND deleted_at IS NULL`
	}
	if cursorCreatedAt != nil {
		q += ` AND (created_at, id) < (?, ?)`
		args = append(args, *cursorCreatedAt, cursorID)
	}
	q += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := d.db.QueryContext(ctx, rebind(q), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list workspaces: %w", err)
	}
	defer rows.Close()

	var out []*models.Workspace
	for rows.Next() {
		w, err := scanWorkspace(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workspace: %w", err)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// ActiveWorkspaces returns all non-deleted workspaces in the project.
func (d *Database) ActiveWorkspaces(ctx context.Context, projectID string) ([]*models.Workspace, error) {
	rows, err := d.db.QueryContext(ctx, rebind(
		`SELECT `+workspaceColumns+` FROM workspaces WHERE project_id = ? AND deleted_at IS NULL ORDER BY alias`),
		projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list workspaces: %w", err)
	}
	defer rows.Close()

	var out []*models.Workspace
	for rows.Next() {
		w, err := scanWorkspace(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workspace: %w", err)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}
