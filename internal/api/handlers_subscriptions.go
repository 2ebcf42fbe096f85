package api

import (
	"net/http"

	"github.com/beadhub/beadhub/internal/models"
)

type createSubscriptionRequest struct {
	WorkspaceID string   `json:"workspace_id"`
	BeadID      string   `json:"bead_id"`
	Repo        *string  `json:"repo"`
	EventTypes  []string `json:"event_types"`
}

func (s *Server) handleCreateSubscription(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	var req createSubscriptionRequest
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

	sub := &models.Subscription{
		ProjectID:   id.ProjectID,
		WorkspaceID: req.WorkspaceID,
		BeadID:      req.BeadID,
		Repo:        req.Repo,
		EventTypes:  req.EventTypes,
	}
	if err := s.db.CreateSubscription(r.Context(), sub); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, sub)
}

func (s *Server) handleDeleteSubscription(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	workspaceID := r.URL.Query().Get("workspace_id")
	if workspaceID == "" {
		workspaceID = id.AgentID
	}
	if err := id.BindActor(workspaceID); err != nil {
		respondError(w, err)
		return
	}
	if err := s.db.DeleteSubscription(r.Context(), id.ProjectID, workspaceID, r.PathValue("id")); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

func (s *Server) handleListSubscriptions(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	workspaceID := r.URL.Query().Get("workspace_id")
	if workspaceID == "" {
		workspaceID = id.AgentID
	}
	if err := id.BindActor(workspaceID); err != nil {
		respondError(w, err)
		return
	}
	subs, err := s.db.ListSubscriptions(r.Context(), id.ProjectID, workspaceID)
	if err != nil {
		respondError(w, err)
		return
	}
	if subs == nil {
		subs = []*models.Subscription{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"subscriptions": subs})
}
