package database

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/beadhub/beadhub/internal/models"
)

// Audit appends an event record. Audit failures are logged, never surfaced;
// the mutation they describe has already committed.
func (d *Database) Audit(ctx context.Context, projectID string, actorID *string, action, subject string, detail any) {
	var raw []byte
	if detail != nil {
		var err error
		raw, err = json.Marshal(detail)
		if err != nil {
			raw = nil
		}
	}
	_, err := d.db.ExecContext(ctx, rebind(
		`INSERT INTO audit_log (id, project_id, actor_id, action, subject, detail, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`),
		uuid.NewString(), projectID, actorID, action, subject, raw, time.Now().UTC())
	if err != nil {
		log.Printf("[Audit] Failed to record %s on %s: %v", action, subject, err)
	}
}

// AuditTrail returns recent audit entries, newest first.
func (d *Database) AuditTrail(ctx context.Context, projectID string, limit int) ([]*models.AuditEntry, error) {
	rows, err := d.db.QueryContext(ctx, rebind(
		`SELECT id, project_id, actor_id, action, subject, detail, created_at
		 FROM audit_log WHERE project_id = ? ORDER BY created_at DESC LIMIT ?`),
		projectID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.AuditEntry
	for rows.Next() {
		var e models.AuditEntry
		var detail []byte
		if err := rows.Scan(&e.ID, &e.ProjectID, &e.ActorID, &e.Action, &e.Subject, &detail, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Detail = detail
		out = append(out, &e)
	}
	return out, rows.Err()
}
