package api

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/beadhub/beadhub/internal/apperr"
	"github.com/beadhub/beadhub/internal/auth"
	"github.com/beadhub/beadhub/internal/database"
	"github.com/beadhub/beadhub/internal/models"
)

type initRequest struct {
	ProjectSlug   string  `json:"project_slug"`
	RepoOrigin    string  `json:"repo_origin"`
	RepoName      string  `json:"repo_name"`
	Alias         string  `json:"alias"`
	AutoAlias     bool    `json:"auto_alias"`
	HumanName     *string `json:"human_name"`
	Role          *string `json:"role"`
	Class         string  `json:"class"`
	Hostname      *string `json:"hostname"`
	WorkspacePath *string `json:"workspace_path"`
	Timezone      *string `json:"timezone"`
}

type initResponse struct {
	WorkspaceID string            `json:"workspace_id"`
	Alias       string            `json:"alias"`
	ProjectID   string            `json:"project_id"`
	ProjectSlug string            `json:"project_slug"`
	RepoID      *string           `json:"repo_id,omitempty"`
	APIKey      string            `json:"api_key"`
	Existing    bool              `json:"existing"`
	Workspace   *models.Workspace `json:"workspace"`
}

// handleInit is the unauthenticated bootstrap: project, repo, identity, key,
// and workspace in one transaction. The plaintext key appears in this
// response and nowhere else.
func (s *Server) handleInit(w http.ResponseWriter, r *http.Request) {
	var req initRequest
	if err := parseJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}
	if err := validateSlug(req.ProjectSlug); err != nil {
		respondError(w, err)
		return
	}
	if req.Alias == "" && req.AutoAlias {
		req.Alias = classicNames[0]
	}
	if err := validateAlias(req.Alias); err != nil {
		respondError(w, err)
		return
	}
	if req.Role != nil {
		if err := validateRole(*req.Role); err != nil {
			respondError(w, err)
			return
		}
	}
	if req.Class == "" {
		req.Class = models.ClassAgent
	}
	if req.Class != models.ClassAgent && req.Class != models.ClassDashboard {
		respondError(w, apperr.New(apperr.Validation, "invalid workspace class %q", req.Class))
		return
	}

	var origin string
	if req.Class == models.ClassAgent {
		var err error
		origin, err = database.CanonicalizeOrigin(req.RepoOrigin)
		if err != nil {
			respondError(w, err)
			return
		}
	}

	plaintext, err := auth.MintKey()
	if err != nil {
		respondError(w, err)
		return
	}

	var fallback []string
	if req.AutoAlias {
		fallback = aliasSuggestions("")
	}
	result, err := s.db.RegisterWorkspace(r.Context(), database.RegisterWorkspaceParams{
		WorkspaceID:   uuid.NewString(),
		ProjectSlug:   req.ProjectSlug,
		RepoOrigin:    origin,
		RepoName:      req.RepoName,
		Alias:         req.Alias,
		AliasFallback: fallback,
		AutoAlias:     req.AutoAlias,
		HumanName:     req.HumanName,
		Role:          req.Role,
		Class:         req.Class,
		Hostname:      req.Hostname,
		WorkspacePath: req.WorkspacePath,
		Timezone:      req.Timezone,
		KeyID:         uuid.NewString(),
		KeyHash:       auth.HashKey(plaintext),
	})
	if err != nil {
		respondError(w, err)
		return
	}

	s.db.Audit(r.Context(), result.Project.ID, &result.Workspace.ID,
		"workspace.register", result.Workspace.Alias, nil)

	resp := initResponse{
		WorkspaceID: result.Workspace.ID,
		Alias:       result.Workspace.Alias,
		ProjectID:   result.Project.ID,
		ProjectSlug: result.Project.Slug,
		APIKey:      plaintext,
		Existing:    result.Existing,
		Workspace:   result.Workspace,
	}
	if result.Repo != nil {
		resp.RepoID = &result.Repo.ID
	}
	respondJSON(w, http.StatusCreated, resp)
}

// handleRegisterWorkspace registers a workspace against an existing
// credential; re-registering the same workspace id returns the same row.
func (s *Server) handleRegisterWorkspace(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	var req initRequest
	if err := parseJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}
	if err := validateAlias(req.Alias); err != nil {
		respondError(w, err)
		return
	}
	if id.AgentID == "" {
		respondError(w, apperr.New(apperr.Forbidden, "registration requires a workspace-bound credential"))
		return
	}

	project, err := s.db.GetProject(r.Context(), id.ProjectID)
	if err != nil {
		respondError(w, err)
		return
	}

	var origin string
	if req.Class == "" || req.Class == models.ClassAgent {
		origin, err = database.CanonicalizeOrigin(req.RepoOrigin)
		if err != nil {
			respondError(w, err)
			return
		}
	}

	plaintext, err := auth.MintKey()
	if err != nil {
		respondError(w, err)
		return
	}
	result, err := s.db.RegisterWorkspace(r.Context(), database.RegisterWorkspaceParams{
		WorkspaceID:   id.AgentID,
		ProjectSlug:   project.Slug,
		RepoOrigin:    origin,
		RepoName:      req.RepoName,
		Alias:         req.Alias,
		AutoAlias:     req.AutoAlias,
		AliasFallback: aliasSuggestions(""),
		HumanName:     req.HumanName,
		Role:          req.Role,
		Class:         req.Class,
		Hostname:      req.Hostname,
		WorkspacePath: req.WorkspacePath,
		Timezone:      req.Timezone,
		KeyID:         uuid.NewString(),
		KeyHash:       auth.HashKey(plaintext),
	})
	if err != nil {
		respondError(w, err)
		return
	}
	status := http.StatusCreated
	if result.Existing {
		status = http.StatusOK
	}
	respondJSON(w, status, result.Workspace)
}

// handleSuggestAlias returns the first free aliases for the caller's project.
func (s *Server) handleSuggestAlias(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	prefix := r.URL.Query().Get("prefix")

	workspaces, err := s.db.ActiveWorkspaces(r.Context(), id.ProjectID)
	if err != nil {
		respondError(w, err)
		return
	}
	taken := map[string]bool{}
	for _, ws := range workspaces {
		taken[ws.Alias] = true
	}

	var free []string
	for _, name := range aliasSuggestions(prefix) {
		if !taken[name] {
			free = append(free, name)
		}
		if len(free) >= 5 {
			break
		}
	}
	respondJSON(w, http.StatusOK, map[string]any{"suggestions": free})
}
