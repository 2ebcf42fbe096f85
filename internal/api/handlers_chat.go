package api

import (
	"net/http"
	"time"

	"github.com/beadhub/beadhub/internal/apperr"
	"github.com/beadhub/beadhub/internal/ephemeral"
	"github.com/beadhub/beadhub/internal/models"
)

type startChatRequest struct {
	FromWorkspaceID   string   `json:"from_workspace_id"`
	ToAliases         []string `json:"to_aliases"`
	Body              string   `json:"body"`
	Wait              *int     `json:"wait_seconds"`
	StartConversation bool     `json:"start_conversation"`
}

// chatDeadline picks the wait duration: explicit seconds win, otherwise the
// conversation opener gets the long default and a plain send the short one.
func chatDeadline(waitSeconds *int, conversation bool) time.Duration {
	if waitSeconds != nil {
		d := time.Duration(*waitSeconds) * time.Second
		if d < 0 {
			d = 0
		}
		if d > ephemeral.MaxWait {
			d = ephemeral.MaxWait
		}
		return d
	}
	if conversation {
		return ephemeral.ConversationWait
	}
	return ephemeral.DefaultWait
}

type chatWaitResponse struct {
	Session   *models.ChatSession   `json:"session"`
	MessageID string                `json:"message_id"`
	Delivered bool                  `json:"delivered"`
	Outcome   string                `json:"outcome"`
	Messages  []*models.ChatMessage `json:"messages"`
	SSEURL    string                `json:"sse_url,omitempty"`
}

// handleStartChat opens (or re-enters) a session, sends the first message,
// and blocks for a reply up to the deadline.
func (s *Server) handleStartChat(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	var req startChatRequest
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

	started, err := s.chat.Start(r.Context(), id.ProjectID, sender.ID, sender.Alias, req.ToAliases, req.Body)
	if err != nil {
		respondError(w, err)
		return
	}

	deadline := chatDeadline(req.Wait, req.StartConversation)
	resp := chatWaitResponse{
		Session:   started.Session,
		MessageID: started.InitialMessageID,
		Delivered: started.Delivered,
		Outcome:   "sent",
		SSEURL:    started.SSEURL,
	}
	if deadline > 0 {
		result, history, err := s.chat.Wait(r.Context(), id.ProjectID, started.Session.ID, sender.ID, deadline)
		if err != nil {
			respondError(w, err)
			return
		}
		resp.Messages = history
		resp.Outcome = waitOutcome(result)
	}
	respondJSON(w, http.StatusCreated, resp)
}

func waitOutcome(res *ephemeral.WaitResult) string {
	switch {
	case res == nil || res.Deadline:
		return "timeout"
	case res.Signal == "leave":
		return "peer_left"
	default:
		return "reply"
	}
}

type sendChatRequest struct {
	FromWorkspaceID string `json:"from_workspace_id"`
	Body            string `json:"body"`
	Leaving         bool   `json:"leaving"`
	Wait            *int   `json:"wait_seconds"`
}

// handleSendChat appends to a session and optionally blocks for a reply.
// Leaving sends the final message and never waits.
func (s *Server) handleSendChat(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	sessionID := r.PathValue("id")
	var req sendChatRequest
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

	sent, err := s.chat.Send(r.Context(), id.ProjectID, sessionID, sender.ID, sender.Alias, req.Body, req.Leaving)
	if err != nil {
		respondError(w, err)
		return
	}

	resp := chatWaitResponse{
		MessageID: sent.Message.ID,
		Delivered: sent.Delivered,
		Outcome:   "sent",
	}
	if req.Leaving {
		respondJSON(w, http.StatusCreated, resp)
		return
	}

	deadline := chatDeadline(req.Wait, false)
	if deadline > 0 {
		result, history, err := s.chat.Wait(r.Context(), id.ProjectID, sessionID, sender.ID, deadline)
		if err != nil {
			respondError(w, err)
			return
		}
		resp.Messages = history
		resp.Outcome = waitOutcome(result)
	}
	respondJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleChatHistory(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	limit, err := parseLimit(r)
	if err != nil {
		respondError(w, err)
		return
	}
	workspaceID := r.URL.Query().Get("workspace_id")
	if workspaceID == "" {
		workspaceID = id.AgentID
	}
	if err := id.BindActor(workspaceID); err != nil {
		respondError(w, err)
		return
	}
	messages, err := s.chat.History(r.Context(), id.ProjectID, r.PathValue("id"), workspaceID, limit)
	if err != nil {
		respondError(w, err)
		return
	}
	if messages == nil {
		messages = []*models.ChatMessage{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"messages": messages})
}

func (s *Server) handleListChatSessions(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	limit, err := parseLimit(r)
	if err != nil {
		respondError(w, err)
		return
	}
	workspaceID := r.URL.Query().Get("workspace_id")
	if workspaceID == "" {
		workspaceID = id.AgentID
	}
	if err := id.BindActor(workspaceID); err != nil {
		respondError(w, err)
		return
	}
	sessions, err := s.chat.Sessions(r.Context(), id.ProjectID, workspaceID, limit)
	if err != nil {
		respondError(w, err)
		return
	}
	if sessions == nil {
		sessions = []*models.ChatSession{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func (s *Server) handlePendingChat(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	workspaceID := r.URL.Query().Get("workspace_id")
	if workspaceID == "" {
		workspaceID = id.AgentID
	}
	if err := id.BindActor(workspaceID); err != nil {
		respondError(w, err)
		return
	}
	pending, err := s.chat.Pending(r.Context(), id.ProjectID, workspaceID)
	if err != nil {
		respondError(w, err)
		return
	}
	if pending == nil {
		pending = []*models.ChatMessage{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"pending": pending})
}

func (s *Server) handleExtendWait(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	var req struct {
		WorkspaceID string `json:"workspace_id"`
		Seconds     int    `json:"seconds"`
	}
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
	granted, err := s.chat.ExtendWait(r.Context(), id.ProjectID, r.PathValue("id"),
		req.WorkspaceID, time.Duration(req.Seconds)*time.Second)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"granted_seconds": int(granted.Seconds())})
}

// Admin chat endpoints serve dashboard observers. Agents never need them.

func (s *Server) requireDashboard(r *http.Request) (*models.Workspace, error) {
	id := identity(r)
	if id.AgentID == "" {
		// Project-scoped keys act as implicit dashboards.
		return nil, nil
	}
	ws, err := s.db.GetWorkspace(r.Context(), id.ProjectID, id.AgentID)
	if err != nil {
		return nil, err
	}
	if ws.Class != models.ClassDashboard {
		return nil, apperr.New(apperr.Forbidden, "chat administration requires a dashboard workspace")
	}
	return ws, nil
}

func (s *Server) handleAdminChatSessions(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	if _, err := s.requireDashboard(r); err != nil {
		respondError(w, err)
		return
	}
	limit, err := parseLimit(r)
	if err != nil {
		respondError(w, err)
		return
	}
	sessions, err := s.chat.AdminSessions(r.Context(), id.ProjectID, limit)
	if err != nil {
		respondError(w, err)
		return
	}
	if sessions == nil {
		sessions = []*models.ChatSession{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func (s *Server) handleAdminChatJoin(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	ws, err := s.requireDashboard(r)
	if err != nil {
		respondError(w, err)
		return
	}
	if ws == nil {
		respondError(w, apperr.New(apperr.Forbidden, "joining requires a dashboard workspace"))
		return
	}
	session, err := s.chat.AdminJoin(r.Context(), id.ProjectID, r.PathValue("id"), ws.ID, ws.Alias)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, session)
}

func (s *Server) handleAdminChatHistory(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	if _, err := s.requireDashboard(r); err != nil {
		respondError(w, err)
		return
	}
	limit, err := parseLimit(r)
	if err != nil {
		respondError(w, err)
		return
	}
	messages, err := s.chat.AdminHistory(r.Context(), id.ProjectID, r.PathValue("id"), limit)
	if err != nil {
		respondError(w, err)
		return
	}
	if messages == nil {
		messages = []*models.ChatMessage{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"messages": messages})
}
