package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/beadhub/beadhub/internal/apperr"
	"github.com/beadhub/beadhub/internal/models"
)

// CanonicalizeOrigin normalises a git remote URL so that equivalent remotes
// key the same repo row: scp-style SSH becomes ssh URLs, credentials and the
// .git suffix are stripped, host and scheme are lowercased.
func CanonicalizeOrigin(origin string) (string, error) {
	s := strings.TrimSpace(origin)
	if s == "" {
		return "", apperr.New(apperr.Validation, "repo origin must not be empty")
	}

	// scp-style: git@host:org/repo.git
	if !strings.Contains(s, "://") {
		if at := strings.Index(s, "@"); at >= 0 {
			if colon := strings.Index(s[at:], ":"); colon > 0 {
				host := s[at+1 : at+colon]
				path := s[at+colon+1:]
				s = "ssh://" + host + "/" + path
			}
		} else {
			// Bare local path.
			s = "file://" + s
		}
	}

	u, err := url.Parse(s)
	if err != nil {
		return "", apperr.New(apperr.Validation, "invalid repo origin %q", origin)
	}
	host := strings.ToLower(u.Hostname())
	path := strings.TrimSuffix(strings.TrimSuffix(u.Path, "/"), ".git")
	if host == "" && u.Scheme != "file" {
		return "", apperr.New(apperr.Validation, "invalid repo origin %q", origin)
	}
	return strings.ToLower(u.Scheme) + "://" + host + path, nil
}

const repoColumns = `id, project_id, canonical_origin, name, created_at, deleted_at`

func scanRepo(row interface{ Scan(...any) error }) (*models.Repo, error) {
	var r models.Repo
	if err := row.Scan(&r.ID, &r.ProjectID, &r.CanonicalOrigin, &r.Name, &r.CreatedAt, &r.DeletedAt); err != nil {
		return nil, err
	}
	return &r, nil
}

// ensureRepoTx gets or creates the repo for canonicalOrigin inside projectID.
// A repo already bound to a different project is a conflict; repos are never
// re-bound.
func ensureRepoTx(ctx context.Context, tx *sql.Tx, projectID, canonicalOrigin, name string) (*models.Repo, error) {
	row := tx.QueryRowContext(ctx,
		rebind(`SELECT `+repoColumns+` FROM repos WHERE canonical_origin = ?`), canonicalOrigin)
	r, err := scanRepo(row)
	if err == nil {
		if r.ProjectID != projectID {
			return nil, apperr.New(apperr.Conflict,
				"repo %s is bound to another project", canonicalOrigin)
		}
		return r, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to look up repo: %w", err)
	}

	r = &models.Repo{
		ID:              uuid.NewString(),
		ProjectID:       projectID,
		CanonicalOrigin: canonicalOrigin,
		Name:            name,
		CreatedAt:       time.Now().UTC(),
	}
	_, err = tx.ExecContext(ctx, rebind(
		`INSERT INTO repos (id, project_id, canonical_origin, name, created_at) VALUES (?, ?, ?, ?, ?)`),
		r.ID, r.ProjectID, r.CanonicalOrigin, r.Name, r.CreatedAt)
	if isUniqueViolation(err) {
		row = tx.QueryRowContext(ctx,
			rebind(`SELECT `+repoColumns+` FROM repos WHERE canonical_origin = ?`), canonicalOrigin)
		r, err = scanRepo(row)
		if err != nil {
			return nil, fmt.Errorf("failed to re-read repo: %w", err)
		}
		if r.ProjectID != projectID {
			return nil, apperr.New(apperr.Conflict,
				"repo %s is bound to another project", canonicalOrigin)
		}
		return r, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create repo: %w", err)
	}
	return r, nil
}

// EnsureRepo is the standalone form of ensureRepoTx.
func (d *Database) EnsureRepo(ctx context.Context, projectID, canonicalOrigin, name string) (*models.Repo, error) {
	var r *models.Repo
	err := d.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		r, err = ensureRepoTx(ctx, tx, projectID, canonicalOrigin, name)
		return err
	})
	return r, err
}

// ListRepos returns the project's active repos.
func (d *Database) ListRepos(ctx context.Context, projectID string) ([]*models.Repo, error) {
	rows, err := d.db.QueryContext(ctx, rebind(
		`SELECT `+repoColumns+` FROM repos WHERE project_id = ? AND deleted_at IS NULL ORDER BY created_at`),
		projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list repos: %w", err)
	}
	defer rows.Close()

	var out []*models.Repo
	for rows.Next() {
		r, err := scanRepo(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan repo: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// SoftDeleteRepo marks the repo deleted. Hard deletes are not supported.
func (d *Database) SoftDeleteRepo(ctx context.Context, projectID, repoID string) error {
	res, err := d.db.ExecContext(ctx, rebind(
		`UPDATE repos SET deleted_at = now() WHERE id = ? AND project_id = ? AND deleted_at IS NULL`),
		repoID, projectID)
	if err != nil {
		return fmt.Errorf("failed to delete repo: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apperr.New(apperr.NotFound, "repo %s not found", repoID)
	}
	return nil
}
