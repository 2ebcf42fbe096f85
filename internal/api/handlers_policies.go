package api

import (
	"net/http"

	"github.com/beadhub/beadhub/internal/apperr"
	"github.com/beadhub/beadhub/internal/models"
)

func (s *Server) handleActivePolicy(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	p, err := s.policies.Active(r.Context(), id.ProjectID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (s *Server) handlePolicyHistory(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	limit, err := parseLimit(r)
	if err != nil {
		respondError(w, err)
		return
	}
	history, err := s.policies.History(r.Context(), id.ProjectID, limit)
	if err != nil {
		respondError(w, err)
		return
	}
	if history == nil {
		history = []*models.Policy{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"policies": history})
}

func (s *Server) handleGetPolicy(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	p, err := s.policies.Get(r.Context(), id.ProjectID, r.PathValue("id"))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

type createPolicyRequest struct {
	Bundle       models.PolicyBundle `json:"bundle"`
	BasePolicyID *string             `json:"base_policy_id"`
	Activate     bool                `json:"activate"`
}

type createPolicyResponse struct {
	Policy  *models.Policy `json:"policy"`
	Created bool           `json:"created"`
}

// handleCreatePolicy allocates the next version. base_policy_id carries the
// optimistic-concurrency token: a stale base conflicts. Posting the latest
// bundle unchanged returns it with created=false.
func (s *Server) handleCreatePolicy(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	if id.PublicReader() {
		respondError(w, apperr.New(apperr.Forbidden, "public readers cannot write"))
		return
	}
	var req createPolicyRequest
	if err := parseJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}

	var createdBy *string
	if id.AgentID != "" {
		actor := id.AgentID
		createdBy = &actor
	}
	result, err := s.policies.Create(r.Context(), id.ProjectID, req.Bundle, req.BasePolicyID, createdBy)
	if err != nil {
		respondError(w, err)
		return
	}
	if req.Activate && result.Created {
		if err := s.policies.Activate(r.Context(), id.ProjectID, result.Policy.ID); err != nil {
			respondError(w, err)
			return
		}
	}

	s.db.Audit(r.Context(), id.ProjectID, createdBy, "policy.create", result.Policy.ID, nil)
	status := http.StatusCreated
	if !result.Created {
		status = http.StatusOK
	}
	respondJSON(w, status, createPolicyResponse{Policy: result.Policy, Created: result.Created})
}

func (s *Server) handleActivatePolicy(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	policyID := r.PathValue("id")
	if err := s.policies.Activate(r.Context(), id.ProjectID, policyID); err != nil {
		respondError(w, err)
		return
	}
	s.db.Audit(r.Context(), id.ProjectID, nil, "policy.activate", policyID, nil)
	respondJSON(w, http.StatusOK, map[string]any{"active_policy_id": policyID})
}

func (s *Server) handleResetPolicy(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	var createdBy *string
	if id.AgentID != "" {
		actor := id.AgentID
		createdBy = &actor
	}
	p, err := s.policies.Reset(r.Context(), id.ProjectID, createdBy)
	if err != nil {
		respondError(w, err)
		return
	}
	s.db.Audit(r.Context(), id.ProjectID, createdBy, "policy.reset", p.ID, nil)
	respondJSON(w, http.StatusCreated, p)
}

// handleReloadPolicyDefaults re-reads the default bundle from the asset dir.
// Existing policy versions are untouched; only future bootstraps and resets
// see the new defaults.
func (s *Server) handleReloadPolicyDefaults(w http.ResponseWriter, r *http.Request) {
	if err := s.policies.Reload(); err != nil {
		respondError(w, apperr.Wrap(apperr.Internal, err, "failed to reload policy defaults"))
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"reloaded": true})
}
