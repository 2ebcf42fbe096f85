package api

import (
	"net/http"

	"github.com/beadhub/beadhub/internal/apperr"
)

// handleHealth reports readiness: both backing stores must answer.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(r.Context()); err != nil {
		respondError(w, apperr.Wrap(apperr.Unavailable, err, "database unreachable"))
		return
	}
	if err := s.store.Ping(r.Context()); err != nil {
		respondError(w, apperr.Wrap(apperr.Unavailable, err, "ephemeral store unreachable"))
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}
