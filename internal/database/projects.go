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

const projectColumns = `id, tenant_id, slug, visibility, active_policy_id, created_at, updated_at, deleted_at`

func scanProject(row interface{ Scan(...any) error }) (*models.Project, error) {
	var p models.Project
	err := row.Scan(&p.ID, &p.TenantID, &p.Slug, &p.Visibility, &p.ActivePolicyID,
		&p.CreatedAt, &p.UpdatedAt, &p.DeletedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetProject returns the project by id, including soft-deleted rows.
func (d *Database) GetProject(ctx context.Context, id string) (*models.Project, error) {
	row := d.db.QueryRowContext(ctx,
		rebind(`SELECT `+projectColumns+` FROM projects WHERE id = ?`), id)
	p, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.New(apperr.NotFound, "project %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return p, nil
}

// GetProjectBySlug returns the active project with the given slug.
func (d *Database) GetProjectBySlug(ctx context.Context, slug string) (*models.Project, error) {
	row := d.db.QueryRowContext(ctx,
		rebind(`SELECT `+projectColumns+` FROM projects WHERE slug = ? AND deleted_at IS NULL`), slug)
	p, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.New(apperr.NotFound, "project %s not found", slug)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project by slug: %w", err)
	}
	return p, nil
}

// ensureProjectTx gets or creates the active project with the given slug.
func ensureProjectTx(ctx context.Context, tx *sql.Tx, slug string) (*models.Project, error) {
	row := tx.QueryRowContext(ctx,
		rebind(`SELECT `+projectColumns+` FROM projects WHERE slug = ? AND deleted_at IS NULL`), slug)
	p, err := scanProject(row)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to look up project: %w", err)
	}

	now := time.Now().UTC()
	p = &models.Project{
		ID:         uuid.NewString(),
		Slug:       slug,
		Visibility: models.VisibilityPrivate,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	_, err = tx.ExecContext(ctx, rebind(
		`INSERT INTO projects (id, slug, visibility, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`),
		p.ID, p.Slug, p.Visibility, p.CreatedAt, p.UpdatedAt)
	if isUniqueViolation(err) {
		// Lost a create race; re-read the winner.
		row = tx.QueryRowContext(ctx,
			rebind(`SELECT `+projectColumns+` FROM projects WHERE slug = ? AND deleted_at IS NULL`), slug)
		return scanProject(row)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create project: %w", err)
	}
	return p, nil
}

// isUniqueViolation reports whether err is a PostgreSQL unique violation.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
