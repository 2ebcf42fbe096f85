// Package syncer implements the client-push reconciliation: parse issue
// payloads, upsert the mirror, detect status transitions, reconcile claims,
// and queue notifications for subscribers.
package syncer

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/beadhub/beadhub/internal/apperr"
	"github.com/beadhub/beadhub/internal/database"
	"github.com/beadhub/beadhub/internal/events"
	"github.com/beadhub/beadhub/internal/models"
)

// ClaimSnapshot is one entry of the client's current-claims list. The
// optional command line attributes how the claim came to be.
type ClaimSnapshot struct {
	BeadID      string  `json:"bead_id"`
	ApexBeadID  *string `json:"apex_bead_id,omitempty"`
	CommandLine string  `json:"command_line,omitempty"`
}

// Request is a fully-identified sync call.
type Request struct {
	ProjectID   string
	WorkspaceID string
	Alias       string
	HumanName   *string
	Repo        string

	IssuesJSONL      string
	ChangedIssues    []json.RawMessage
	DeletedIDs       []string
	ClaimsSnapshot   []ClaimSnapshot
	NotificationsAck []string
}

// Result mirrors the response counts.
type Result struct {
	Mode                string                  `json:"mode"`
	Upserts             int                     `json:"upserts"`
	Deletes             int                     `json:"deletes"`
	StatusChanges       int                     `json:"status_changes"`
	NotificationsQueued int                     `json:"notifications_queued"`
	Changes             []database.StatusChange `json:"-"`
}

// Engine serialises syncs per workspace and drives the reconciliation
// transaction.
type Engine struct {
	db  *database.Database
	bus events.Bus

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New builds the engine.
func New(db *database.Database, bus events.Bus) *Engine {
	return &Engine{db: db, bus: bus, locks: make(map[string]*sync.Mutex)}
}

func (e *Engine) workspaceLock(workspaceID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[workspaceID]
	if !ok {
		l = &sync.Mutex{}
		e.locks[workspaceID] = l
	}
	return l
}

// Sync runs one reconciliation. One sync per workspace is in flight at a
// time; syncs from different workspaces interleave freely.
func (e *Engine) Sync(ctx context.Context, req *Request) (*Result, error) {
	lock := e.workspaceLock(req.WorkspaceID)
	lock.Lock()
	defer lock.Unlock()

	var issues []*models.Issue
	mode := "incremental"
	if req.IssuesJSONL != "" {
		mode = "full"
		var err error
		issues, err = ParseJSONL(req.IssuesJSONL)
		if err != nil {
			return nil, err
		}
	}
	for _, raw := range req.ChangedIssues {
		var rec issueRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, apperr.New(apperr.Validation, "malformed changed issue record")
		}
		issue, err := recordToIssue(&rec)
		if err != nil {
			return nil, err
		}
		issues = append(issues, issue)
	}

	claims := make([]*models.Claim, 0, len(req.ClaimsSnapshot))
	for _, snap := range req.ClaimsSnapshot {
		if snap.BeadID == "" {
			if id, ok := claimFromCommandLine(snap.CommandLine); ok {
				snap.BeadID = id
			} else {
				continue
			}
		}
		claims = append(claims, &models.Claim{
			BeadID:     snap.BeadID,
			Alias:      req.Alias,
			HumanName:  req.HumanName,
			ApexBeadID: snap.ApexBeadID,
		})
	}

	applied, err := e.db.SyncApply(ctx, database.SyncApplyParams{
		ProjectID:   req.ProjectID,
		WorkspaceID: req.WorkspaceID,
		Alias:       req.Alias,
		Repo:        req.Repo,
		Issues:      issues,
		DeletedIDs:  req.DeletedIDs,
		Claims:      claims,
	})
	if err != nil {
		return nil, err
	}

	for _, msgID := range req.NotificationsAck {
		if _, _, err := e.db.AcknowledgeMail(ctx, req.ProjectID, msgID, req.WorkspaceID); err != nil {
			log.Printf("[Sync] Failed to ack notification %s: %v", msgID, err)
		}
	}

	e.publish(ctx, req, applied)

	return &Result{
		Mode:                mode,
		Upserts:             applied.Upserts,
		Deletes:             applied.Deletes,
		StatusChanges:       len(applied.StatusChanges),
		NotificationsQueued: applied.NotificationsQueued,
		Changes:             applied.StatusChanges,
	}, nil
}

// publish emits the post-commit events. Publish failures are logged, not
// surfaced: the durable state has already committed and the outbox covers
// subscribed recipients.
func (e *Engine) publish(ctx context.Context, req *Request, applied *database.SyncApplyResult) {
	base := events.Event{
		ProjectID:   req.ProjectID,
		WorkspaceID: req.WorkspaceID,
		Alias:       req.Alias,
		Repo:        req.Repo,
		Timestamp:   time.Now().UTC(),
	}
	if req.HumanName != nil {
		base.HumanName = *req.HumanName
	}

	emit := func(evType string, data map[string]any) {
		ev := base
		ev.Type = evType
		ev.Data = data
		if err := e.bus.Publish(ctx, &ev); err != nil {
			log.Printf("[Sync] Failed to publish %s: %v", evType, err)
		}
	}

	for _, sc := range applied.StatusChanges {
		emit(events.TypeBeadStatusChanged, map[string]any{
			"bead_id":    sc.BeadID,
			"title":      sc.Title,
			"old_status": sc.OldStatus,
			"new_status": sc.NewStatus,
		})
	}
	for _, beadID := range applied.ClaimsAdded {
		emit(events.TypeBeadClaimed, map[string]any{"bead_id": beadID})
	}
	for _, beadID := range applied.ClaimsRemoved {
		emit(events.TypeBeadUnclaimed, map[string]any{"bead_id": beadID})
	}
	emit(events.TypeSyncCompleted, map[string]any{
		"upserts":        applied.Upserts,
		"deletes":        applied.Deletes,
		"status_changes": len(applied.StatusChanges),
	})
}
