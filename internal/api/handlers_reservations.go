package api

import (
	"net/http"
	"time"

	"github.com/beadhub/beadhub/internal/apperr"
	"github.com/beadhub/beadhub/internal/events"
	"github.com/beadhub/beadhub/internal/models"
)

type reserveRequest struct {
	WorkspaceID string `json:"workspace_id"`
	Path        string `json:"path"`
	Reason      string `json:"reason"`
	TTLSeconds  int    `json:"ttl_seconds"`
}

// handleReserve acquires or renews an advisory file lock. A path held by
// another workspace returns 409 with the holder; the lock stays advisory, the
// client decides whether to proceed anyway.
func (s *Server) handleReserve(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	var req reserveRequest
	if err := parseJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}
	if req.WorkspaceID == "" {
		req.WorkspaceID = id.AgentID
	}
	if err := id.BindActor(req.WorkspaceID); err != nil {
		respondError(w, err)
		return
	}
	if req.Path == "" {
		respondError(w, apperr.New(apperr.Validation, "reservation path must not be empty"))
		return
	}

	ws, err := s.db.GetWorkspace(r.Context(), id.ProjectID, req.WorkspaceID)
	if err != nil {
		respondError(w, err)
		return
	}
	if ws.DeletedAt != nil {
		respondError(w, apperr.New(apperr.Gone, "workspace %s is deleted", ws.ID))
		return
	}

	ttl := time.Duration(req.TTLSeconds) * time.Second
	ok, result, err := s.store.Reserve(r.Context(), models.Reservation{
		ProjectID:   id.ProjectID,
		Path:        req.Path,
		WorkspaceID: ws.ID,
		Alias:       ws.Alias,
		Reason:      req.Reason,
	}, ttl)
	if err != nil {
		respondError(w, err)
		return
	}
	if !ok {
		respondError(w, apperr.New(apperr.Conflict, "%s is reserved by %s", req.Path, result.Alias).
			WithFields(map[string]any{
				"holder":     result.Alias,
				"expires_at": result.ExpiresAt,
			}))
		return
	}

	// A renewal keeps its original acquired_at, so an old timestamp means the
	// caller already held the path.
	evType := events.TypeReservationAcquired
	if time.Since(result.AcquiredAt) > time.Second {
		evType = events.TypeReservationRenewed
	}
	s.publish(r.Context(), &events.Event{
		Type:        evType,
		ProjectID:   id.ProjectID,
		WorkspaceID: ws.ID,
		Alias:       ws.Alias,
		Data: map[string]any{
			"path":       result.Path,
			"expires_at": result.ExpiresAt,
		},
	})
	respondJSON(w, http.StatusCreated, result)
}

func (s *Server) handleReleaseReservation(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	path := r.PathValue("path")
	workspaceID := r.URL.Query().Get("workspace_id")
	if workspaceID == "" {
		workspaceID = id.AgentID
	}
	if err := id.BindActor(workspaceID); err != nil {
		respondError(w, err)
		return
	}

	released, err := s.store.Release(r.Context(), id.ProjectID, path, workspaceID)
	if err != nil {
		respondError(w, err)
		return
	}
	if released {
		s.publish(r.Context(), &events.Event{
			Type:        events.TypeReservationReleased,
			ProjectID:   id.ProjectID,
			WorkspaceID: workspaceID,
			Data:        map[string]any{"path": path},
		})
	}
	respondJSON(w, http.StatusOK, map[string]any{"released": released})
}

func (s *Server) handleListReservations(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	reservations, err := s.store.ListReservations(r.Context(), id.ProjectID)
	if err != nil {
		respondError(w, err)
		return
	}
	if reservations == nil {
		reservations = []*models.Reservation{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"reservations": reservations})
}
