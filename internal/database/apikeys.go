package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/beadhub/beadhub/internal/apperr"
)

// KeyRecord is what a bearer-token lookup resolves to.
type KeyRecord struct {
	KeyID     string
	ProjectID string
	AgentID   *string // nil for project-scoped keys
}

// LookupKeyHash resolves a hashed bearer secret. Revoked keys and keys of
// soft-deleted projects do not resolve.
func (d *Database) LookupKeyHash(ctx context.Context, keyHash string) (*KeyRecord, error) {
	var rec KeyRecord
	var projectDeleted sql.NullTime
	err := d.db.QueryRowContext(ctx, rebind(
		`SELECT k.id, k.project_id, k.agent_id, p.deleted_at
		 FROM api_keys k JOIN projects p ON p.id = k.project_id
		 WHERE k.key_hash = ? AND k.revoked_at IS NULL`), keyHash).
		Scan(&rec.KeyID, &rec.ProjectID, &rec.AgentID, &projectDeleted)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.New(apperr.Unauthenticated, "invalid API key")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up api key: %w", err)
	}
	if projectDeleted.Valid {
		return nil, apperr.New(apperr.NotFound, "project not found")
	}
	return &rec, nil
}

// InsertKey stores a key hash outside the registration transaction, for
// project-scoped keys minted by the CLI.
func (d *Database) InsertKey(ctx context.Context, id, projectID string, agentID *string, name, keyHash string) error {
	_, err := d.db.ExecContext(ctx, rebind(
		`INSERT INTO api_keys (id, project_id, agent_id, name, key_hash) VALUES (?, ?, ?, ?, ?)`),
		id, projectID, agentID, name, keyHash)
	if err != nil {
		return fmt.Errorf("failed to insert api key: %w", err)
	}
	return nil
}
