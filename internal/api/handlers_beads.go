package api

import (
	"net/http"
	"time"

	"github.com/beadhub/beadhub/internal/beads"
	"github.com/beadhub/beadhub/internal/database"
	"github.com/beadhub/beadhub/internal/models"
)

func (s *Server) handleListIssues(w http.ResponseWriter, r *http.Request) {
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

	q := r.URL.Query()
	filter := database.IssueFilter{
		Status:   q.Get("status"),
		Assignee: q.Get("assignee"),
		Label:    q.Get("label"),
		Search:   q.Get("search"),
	}
	items, err := s.db.ListIssues(r.Context(), id.ProjectID, filter, limit+1, cursorAt, cursorID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, paginate(items, limit, func(i *models.Issue) (time.Time, string) {
		return i.UpdatedAt, i.BeadID
	}))
}

func (s *Server) handleGetIssue(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	beadID := r.PathValue("bead_id")
	if err := validateBeadID(beadID); err != nil {
		respondError(w, err)
		return
	}
	issue, err := s.db.GetIssue(r.Context(), id.ProjectID, beadID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, issue)
}

// handleReadyBeads returns open beads with no blocking dependencies, computed
// over the project's full blocker graph.
func (s *Server) handleReadyBeads(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	all, err := s.db.AllIssues(r.Context(), id.ProjectID)
	if err != nil {
		respondError(w, err)
		return
	}
	ready := beads.Ready(all)
	if ready == nil {
		ready = []*models.Issue{}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"ready": ready,
		"count": len(ready),
	})
}
