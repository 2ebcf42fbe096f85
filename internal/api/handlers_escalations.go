package api

import (
	"net/http"
	"time"

	"github.com/beadhub/beadhub/internal/apperr"
	"github.com/beadhub/beadhub/internal/events"
	"github.com/beadhub/beadhub/internal/models"
)

type createEscalationRequest struct {
	WorkspaceID   string   `json:"workspace_id"`
	Subject       string   `json:"subject"`
	Situation     string   `json:"situation"`
	Options       []string `json:"options"`
	ExpiresInSecs int      `json:"expires_in_seconds"`
}

func (s *Server) handleCreateEscalation(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	var req createEscalationRequest
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
	if req.Subject == "" || req.Situation == "" {
		respondError(w, apperr.New(apperr.Validation, "escalation requires subject and situation"))
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

	esc := &models.Escalation{
		ProjectID:   id.ProjectID,
		WorkspaceID: ws.ID,
		Alias:       ws.Alias,
		Subject:     req.Subject,
		Situation:   req.Situation,
		Options:     req.Options,
	}
	if req.ExpiresInSecs > 0 {
		esc.ExpiresAt = time.Now().UTC().Add(time.Duration(req.ExpiresInSecs) * time.Second)
	}
	if err := s.db.CreateEscalation(r.Context(), esc); err != nil {
		respondError(w, err)
		return
	}

	s.db.Audit(r.Context(), id.ProjectID, &ws.ID, "escalation.create", esc.ID, nil)
	s.publish(r.Context(), &events.Event{
		Type:        events.TypeEscalationCreated,
		ProjectID:   id.ProjectID,
		WorkspaceID: ws.ID,
		Alias:       ws.Alias,
		Data: map[string]any{
			"escalation_id": esc.ID,
			"subject":       esc.Subject,
		},
	})
	respondJSON(w, http.StatusCreated, esc)
}

func (s *Server) handleListEscalations(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	limit, err := parseLimit(r)
	if err != nil {
		respondError(w, err)
		return
	}
	items, err := s.db.ListEscalations(r.Context(), id.ProjectID, r.URL.Query().Get("status"), limit)
	if err != nil {
		respondError(w, err)
		return
	}
	if items == nil {
		items = []*models.Escalation{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"escalations": items})
}

func (s *Server) handleGetEscalation(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	esc, err := s.db.GetEscalation(r.Context(), id.ProjectID, r.PathValue("id"))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, esc)
}

type respondEscalationRequest struct {
	Response string  `json:"response"`
	Note     *string `json:"note"`
}

func (s *Server) handleRespondEscalation(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	if id.PublicReader() {
		respondError(w, apperr.New(apperr.Forbidden, "public readers cannot write"))
		return
	}
	var req respondEscalationRequest
	if err := parseJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}
	if req.Response == "" {
		respondError(w, apperr.New(apperr.Validation, "response must not be empty"))
		return
	}

	var respondedBy *string
	if id.ActorID != "" {
		actor := id.ActorID
		respondedBy = &actor
	} else if id.AgentID != "" {
		actor := id.AgentID
		respondedBy = &actor
	}

	esc, err := s.db.RespondEscalation(r.Context(), id.ProjectID, r.PathValue("id"),
		req.Response, req.Note, respondedBy)
	if err != nil {
		respondError(w, err)
		return
	}

	s.db.Audit(r.Context(), id.ProjectID, respondedBy, "escalation.respond", esc.ID, nil)
	s.publish(r.Context(), &events.Event{
		Type:        events.TypeEscalationResponded,
		ProjectID:   id.ProjectID,
		WorkspaceID: esc.WorkspaceID,
		Alias:       esc.Alias,
		Data: map[string]any{
			"escalation_id": esc.ID,
			"response":      req.Response,
		},
	})
	respondJSON(w, http.StatusOK, esc)
}
