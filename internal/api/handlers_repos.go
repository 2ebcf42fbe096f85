package api

import (
	"net/http"

	"github.com/beadhub/beadhub/internal/database"
)

type createRepoRequest struct {
	Origin string `json:"origin"`
	Name   string `json:"name"`
}

func (s *Server) handleCreateRepo(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	var req createRepoRequest
	if err := parseJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}
	origin, err := database.CanonicalizeOrigin(req.Origin)
	if err != nil {
		respondError(w, err)
		return
	}
	repo, err := s.db.EnsureRepo(r.Context(), id.ProjectID, origin, req.Name)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, repo)
}

func (s *Server) handleListRepos(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	repos, err := s.db.ListRepos(r.Context(), id.ProjectID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"repos": repos})
}

func (s *Server) handleDeleteRepo(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	repoID := r.PathValue("id")
	if err := s.db.SoftDeleteRepo(r.Context(), id.ProjectID, repoID); err != nil {
		respondError(w, err)
		return
	}
	s.db.Audit(r.Context(), id.ProjectID, nil, "repo.delete", repoID, nil)
	respondJSON(w, http.StatusOK, map[string]any{"deleted": true})
}
