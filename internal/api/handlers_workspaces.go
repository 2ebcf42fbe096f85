package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/beadhub/beadhub/internal/apperr"
	"github.com/beadhub/beadhub/internal/database"
	"github.com/beadhub/beadhub/internal/ephemeral"
	"github.com/beadhub/beadhub/internal/models"
)

// redactWorkspace strips PII for public readers. The alias stays visible.
func redactWorkspace(w *models.Workspace) *models.Workspace {
	clone := *w
	clone.HumanName = nil
	clone.MemberEmail = nil
	clone.Role = nil
	clone.Hostname = nil
	clone.WorkspacePath = nil
	return &clone
}

// withPresence annotates a workspace with its live presence state.
func (s *Server) withPresence(r *http.Request, w *models.Workspace, records map[string]*ephemeral.PresenceRecord) *models.Workspace {
	lastSeen := time.Time{}
	if w.LastSeenAt != nil {
		lastSeen = *w.LastSeenAt
	}
	if records != nil {
		if rec, ok := records[w.ID]; ok && rec.LastSeen.After(lastSeen) {
			lastSeen = rec.LastSeen
		}
	}
	w.Presence = ephemeral.PresenceState(lastSeen, s.cfg.Presence.TTL, time.Now())
	return w
}

func (s *Server) handleListWorkspaces(w http.ResponseWriter, r *http.Request) {
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
	var cursorID string
	if cur != nil {
		cursorAt, cursorID = &cur.SortKey, cur.ID
	}
	includeDeleted := r.URL.Query().Get("include_deleted") == "true" && !id.PublicReader()

	items, err := s.db.ListWorkspaces(r.Context(), id.ProjectID, includeDeleted, limit+1, cursorAt, cursorID)
	if err != nil {
		respondError(w, err)
		return
	}
	records, err := s.store.ProjectPresence(r.Context(), id.ProjectID)
	if err != nil {
		records = nil
	}
	for i, ws := range items {
		s.withPresence(r, ws, records)
		if id.PublicReader() {
			items[i] = redactWorkspace(ws)
		}
	}
	respondJSON(w, http.StatusOK, paginate(items, limit, func(ws *models.Workspace) (time.Time, string) {
		return ws.CreatedAt, ws.ID
	}))
}

func (s *Server) handleGetWorkspace(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	ws, err := s.db.GetWorkspace(r.Context(), id.ProjectID, r.PathValue("id"))
	if err != nil {
		respondError(w, err)
		return
	}
	s.withPresence(r, ws, nil)
	if id.PublicReader() {
		ws = redactWorkspace(ws)
	}
	respondJSON(w, http.StatusOK, ws)
}

type workspacePatchRequest struct {
	HumanName     *string `json:"human_name"`
	Role          *string `json:"role"`
	CurrentBranch *string `json:"current_branch"`
	FocusBeadID   *string `json:"focus_bead_id"`
	Hostname      *string `json:"hostname"`
	WorkspacePath *string `json:"workspace_path"`
	Timezone      *string `json:"timezone"`
}

func (s *Server) handlePatchWorkspace(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	wsID := r.PathValue("id")
	if err := id.BindActor(wsID); err != nil {
		respondError(w, err)
		return
	}

	// Catch attempts to change immutable bindings before decoding the patch.
	var rawFields map[string]json.RawMessage
	if err := parseJSON(r, &rawFields); err != nil {
		respondError(w, err)
		return
	}
	for _, immutable := range []string{"alias", "project_id", "repo_id", "class", "workspace_id", "id"} {
		if _, ok := rawFields[immutable]; ok {
			respondError(w, apperr.New(apperr.PreconditionFailed,
				"%s cannot be changed after creation", immutable))
			return
		}
	}
	raw, _ := json.Marshal(rawFields)
	var req workspacePatchRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		respondError(w, apperr.New(apperr.Validation, "invalid patch body"))
		return
	}
	if req.Role != nil {
		if err := validateRole(*req.Role); err != nil {
			respondError(w, err)
			return
		}
	}

	ws, err := s.db.UpdateWorkspace(r.Context(), id.ProjectID, wsID, database.WorkspacePatch{
		HumanName:     req.HumanName,
		Role:          req.Role,
		CurrentBranch: req.CurrentBranch,
		FocusBeadID:   req.FocusBeadID,
		Hostname:      req.Hostname,
		WorkspacePath: req.WorkspacePath,
		Timezone:      req.Timezone,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, ws)
}

func (s *Server) handleDeleteWorkspace(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	wsID := r.PathValue("id")
	if err := id.BindActor(wsID); err != nil {
		respondError(w, err)
		return
	}
	if err := s.db.SoftDeleteWorkspace(r.Context(), id.ProjectID, wsID); err != nil {
		respondError(w, err)
		return
	}
	if err := s.store.ClearPresence(r.Context(), id.ProjectID, wsID); err != nil {
		// Presence is best effort; the TTL will finish the job.
		_ = err
	}
	s.db.Audit(r.Context(), id.ProjectID, &wsID, "workspace.delete", wsID, nil)
	respondJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

func (s *Server) handleRestoreWorkspace(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	wsID := r.PathValue("id")
	if err := id.BindActor(wsID); err != nil {
		respondError(w, err)
		return
	}
	ws, err := s.db.RestoreWorkspace(r.Context(), id.ProjectID, wsID)
	if err != nil {
		respondError(w, err)
		return
	}
	s.db.Audit(r.Context(), id.ProjectID, &wsID, "workspace.restore", ws.Alias, nil)
	respondJSON(w, http.StatusOK, ws)
}

func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	wsID := r.PathValue("id")
	if err := id.BindActor(wsID); err != nil {
		respondError(w, err)
		return
	}
	ws, err := s.db.GetWorkspace(r.Context(), id.ProjectID, wsID)
	if err != nil {
		respondError(w, err)
		return
	}
	if ws.DeletedAt != nil {
		respondError(w, apperr.New(apperr.Gone, "workspace %s is deleted", wsID))
		return
	}
	now := time.Now().UTC()
	if err := s.db.TouchWorkspace(r.Context(), id.ProjectID, wsID, now); err != nil {
		respondError(w, err)
		return
	}
	if err := s.store.TouchPresence(r.Context(), ephemeral.PresenceRecord{
		WorkspaceID: wsID,
		ProjectID:   id.ProjectID,
		Alias:       ws.Alias,
		LastSeen:    now,
	}, s.cfg.Presence.TTL); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"workspace_id": wsID,
		"last_seen_at": now,
	})
}

// handleTeam is the project roster with presence merged in.
func (s *Server) handleTeam(w http.ResponseWriter, r *http.Request) {
	s.teamView(w, r, false)
}

// handleOnline is the roster filtered to active workspaces.
func (s *Server) handleOnline(w http.ResponseWriter, r *http.Request) {
	s.teamView(w, r, true)
}

func (s *Server) teamView(w http.ResponseWriter, r *http.Request, onlineOnly bool) {
	id := identity(r)
	workspaces, err := s.db.ActiveWorkspaces(r.Context(), id.ProjectID)
	if err != nil {
		respondError(w, err)
		return
	}
	records, err := s.store.ProjectPresence(r.Context(), id.ProjectID)
	if err != nil {
		records = nil
	}

	out := make([]*models.Workspace, 0, len(workspaces))
	for _, ws := range workspaces {
		s.withPresence(r, ws, records)
		if onlineOnly && ws.Presence != ephemeral.PresenceActive {
			continue
		}
		if id.PublicReader() {
			ws = redactWorkspace(ws)
		}
		out = append(out, ws)
	}
	respondJSON(w, http.StatusOK, map[string]any{"workspaces": out})
}
