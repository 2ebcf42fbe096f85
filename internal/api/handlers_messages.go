package api

import (
	"net/http"
	"time"

	"github.com/beadhub/beadhub/internal/apperr"
	"github.com/beadhub/beadhub/internal/models"
)

type sendMailRequest struct {
	FromWorkspaceID string  `json:"from_workspace_id"`
	ToWorkspaceID   string  `json:"to_workspace_id"`
	ToAlias         string  `json:"to_alias"`
	Subject         string  `json:"subject"`
	Body            string  `json:"body"`
	Priority        string  `json:"priority"`
	ThreadID        *string `json:"thread_id"`
}

func (s *Server) handleSendMail(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	var req sendMailRequest
	if err := parseJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}
	if req.FromWorkspaceID == "" {
		req.FromWorkspaceID = id.AgentID
	}
	if err := id.BindActor(req.FromWorkspaceID); err != nil {
		respondError(w, err)
		return
	}

	sender, err := s.db.GetWorkspace(r.Context(), id.ProjectID, req.FromWorkspaceID)
	if err != nil {
		respondError(w, err)
		return
	}
	if sender.DeletedAt != nil {
		respondError(w, apperr.New(apperr.Gone, "workspace %s is deleted", sender.ID))
		return
	}

	toID := req.ToWorkspaceID
	if toID == "" && req.ToAlias != "" {
		all, err := s.db.ActiveWorkspaces(r.Context(), id.ProjectID)
		if err != nil {
			respondError(w, err)
			return
		}
		for _, ws := range all {
			if ws.Alias == req.ToAlias {
				toID = ws.ID
				break
			}
		}
		if toID == "" {
			respondError(w, apperr.New(apperr.NotFound, "no workspace with alias %s", req.ToAlias))
			return
		}
	}
	if toID == "" {
		respondError(w, apperr.New(apperr.Validation, "mail requires a recipient"))
		return
	}

	msg, err := s.mail.Send(r.Context(), &models.MailMessage{
		ProjectID: id.ProjectID,
		FromID:    sender.ID,
		FromAlias: sender.Alias,
		ToID:      toID,
		Subject:   req.Subject,
		Body:      req.Body,
		Priority:  req.Priority,
		ThreadID:  req.ThreadID,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, msg)
}

func (s *Server) handleInbox(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	if id.PublicReader() {
		respondError(w, apperr.New(apperr.Forbidden, "public readers have no inbox"))
		return
	}
	q := r.URL.Query()
	workspaceID := q.Get("workspace_id")
	if workspaceID == "" {
		workspaceID = id.AgentID
	}
	if err := id.BindActor(workspaceID); err != nil {
		respondError(w, err)
		return
	}
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
	var cursorID string
	if cur != nil {
		cursorAt, cursorID = &cur.SortKey, cur.ID
	}

	items, err := s.mail.Inbox(r.Context(), id.ProjectID, workspaceID,
		q.Get("unread") == "true", limit+1, cursorAt, cursorID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, paginate(items, limit, func(m *models.MailMessage) (time.Time, string) {
		return m.CreatedAt, m.ID
	}))
}

func (s *Server) handleAckMail(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	var req struct {
		WorkspaceID string `json:"workspace_id"`
	}
	if r.ContentLength != 0 {
		if err := parseJSON(r, &req); err != nil {
			respondError(w, err)
			return
		}
	}
	if req.WorkspaceID == "" {
		req.WorkspaceID = id.AgentID
	}
	if err := id.BindActor(req.WorkspaceID); err != nil {
		respondError(w, err)
		return
	}

	msg, err := s.mail.Acknowledge(r.Context(), id.ProjectID, r.PathValue("id"), req.WorkspaceID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, msg)
}
