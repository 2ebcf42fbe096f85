package api

import (
	"encoding/json"
	"net/http"

	"github.com/beadhub/beadhub/internal/apperr"
	"github.com/beadhub/beadhub/internal/models"
	"github.com/beadhub/beadhub/internal/syncer"
)

type syncRequest struct {
	WorkspaceID      string                 `json:"workspace_id"`
	Repo             string                 `json:"repo"`
	IssuesJSONL      string                 `json:"issues_jsonl"`
	ChangedIssues    []json.RawMessage      `json:"changed_issues"`
	DeletedIDs       []string               `json:"deleted_ids"`
	ClaimsSnapshot   []syncer.ClaimSnapshot `json:"claims_snapshot"`
	NotificationsAck []string               `json:"notifications_ack"`
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	var req syncRequest
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

	ws, err := s.db.GetWorkspace(r.Context(), id.ProjectID, req.WorkspaceID)
	if err != nil {
		respondError(w, err)
		return
	}
	if ws.DeletedAt != nil {
		respondError(w, apperr.New(apperr.Gone, "workspace %s is deleted", ws.ID))
		return
	}
	repo := req.Repo
	if repo == "" && ws.RepoID != nil {
		if repos, err := s.db.ListRepos(r.Context(), id.ProjectID); err == nil {
			for _, candidate := range repos {
				if candidate.ID == *ws.RepoID {
					repo = candidate.CanonicalOrigin
					break
				}
			}
		}
	}

	result, err := s.sync.Sync(r.Context(), &syncer.Request{
		ProjectID:        id.ProjectID,
		WorkspaceID:      ws.ID,
		Alias:            ws.Alias,
		HumanName:        ws.HumanName,
		Repo:             repo,
		IssuesJSONL:      req.IssuesJSONL,
		ChangedIssues:    req.ChangedIssues,
		DeletedIDs:       req.DeletedIDs,
		ClaimsSnapshot:   req.ClaimsSnapshot,
		NotificationsAck: req.NotificationsAck,
	})
	if err != nil {
		respondError(w, err)
		return
	}

	s.metrics.SyncsTotal.WithLabelValues(result.Mode).Inc()
	s.metrics.StatusChanges.Add(float64(result.StatusChanges))
	respondJSON(w, http.StatusOK, result)
}

type checkRequest struct {
	WorkspaceID string   `json:"workspace_id"`
	BeadID      string   `json:"bead_id"`
	Paths       []string `json:"paths"`
}

type checkFinding struct {
	Kind    string            `json:"kind"`
	Detail  string            `json:"detail"`
	Path    string            `json:"path,omitempty"`
	Holders []models.Claimant `json:"holders,omitempty"`
}

type checkResponse struct {
	Verdict  string         `json:"verdict"`
	Findings []checkFinding `json:"findings"`
}

// handleCheck is the pre-flight: would claiming this bead or touching these
// paths step on someone? Claims by others reject, reservations by others warn.
func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	var req checkRequest
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

	resp := checkResponse{Verdict: "allow", Findings: []checkFinding{}}

	if req.BeadID != "" {
		if err := validateBeadID(req.BeadID); err != nil {
			respondError(w, err)
			return
		}
		claims, err := s.db.ListClaims(r.Context(), id.ProjectID, "", req.BeadID, maxLimit, nil, "")
		if err != nil {
			respondError(w, err)
			return
		}
		var others []models.Claimant
		for _, c := range claims {
			if c.WorkspaceID != req.WorkspaceID {
				others = append(others, models.Claimant{Alias: c.Alias, HumanName: c.HumanName})
			}
		}
		if len(others) > 0 {
			resp.Verdict = "reject"
			resp.Findings = append(resp.Findings, checkFinding{
				Kind:    "claim",
				Detail:  req.BeadID + " is already claimed",
				Holders: others,
			})
		}
	}

	for _, path := range req.Paths {
		holder, err := s.store.Holder(r.Context(), id.ProjectID, path)
		if err != nil {
			respondError(w, err)
			return
		}
		if holder != nil && holder.WorkspaceID != req.WorkspaceID {
			if resp.Verdict == "allow" {
				resp.Verdict = "warn"
			}
			resp.Findings = append(resp.Findings, checkFinding{
				Kind:   "reservation",
				Detail: path + " is reserved by " + holder.Alias,
				Path:   path,
			})
		}
	}

	respondJSON(w, http.StatusOK, resp)
}
