package api

import (
	"net/http"
	"time"

	"github.com/beadhub/beadhub/internal/apperr"
	"github.com/beadhub/beadhub/internal/events"
	"github.com/beadhub/beadhub/internal/models"
)

type claimRequest struct {
	WorkspaceID string  `json:"workspace_id"`
	BeadID      string  `json:"bead_id"`
	ApexBeadID  *string `json:"apex_bead_id"`
	JumpIn      bool    `json:"jump_in"`
}

func (s *Server) handleAcquireClaim(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	var req claimRequest
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
	if err := validateBeadID(req.BeadID); err != nil {
		respondError(w, err)
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

	claim := &models.Claim{
		ProjectID:   id.ProjectID,
		BeadID:      req.BeadID,
		WorkspaceID: ws.ID,
		Alias:       ws.Alias,
		HumanName:   ws.HumanName,
		ApexBeadID:  req.ApexBeadID,
	}
	if err := s.db.AcquireClaim(r.Context(), claim, req.JumpIn); err != nil {
		respondError(w, err)
		return
	}

	s.publish(r.Context(), &events.Event{
		Type:        events.TypeBeadClaimed,
		ProjectID:   id.ProjectID,
		WorkspaceID: ws.ID,
		Alias:       ws.Alias,
		Data:        map[string]any{"bead_id": req.BeadID, "jump_in": req.JumpIn},
	})
	respondJSON(w, http.StatusCreated, claim)
}

func (s *Server) handleReleaseClaim(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	var req claimRequest
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
	if err := validateBeadID(req.BeadID); err != nil {
		respondError(w, err)
		return
	}

	released, err := s.db.ReleaseClaim(r.Context(), id.ProjectID, req.BeadID, req.WorkspaceID)
	if err != nil {
		respondError(w, err)
		return
	}
	if released {
		s.publish(r.Context(), &events.Event{
			Type:        events.TypeBeadUnclaimed,
			ProjectID:   id.ProjectID,
			WorkspaceID: req.WorkspaceID,
			Data:        map[string]any{"bead_id": req.BeadID},
		})
	}
	respondJSON(w, http.StatusOK, map[string]any{"released": released})
}

func (s *Server) handleListClaims(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	limit, err := parseLimit(r)
	if err != nil {
		respondError(w, err)
		return
	}
	cur, err := decodeCursor(r)
	if err != nil {
		respondError(w, err)
		return
	}
	var cursorAt *time.Time
	var cursorBead string
	if cur != nil {
		cursorAt, cursorBead = &cur.SortKey, cur.ID
	}

	q := r.URL.Query()
	items, err := s.db.ListClaims(r.Context(), id.ProjectID, q.Get("workspace_id"), q.Get("bead_id"),
		limit+1, cursorAt, cursorBead)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, paginate(items, limit, func(c *models.Claim) (time.Time, string) {
		return c.ClaimedAt, c.BeadID
	}))
}
