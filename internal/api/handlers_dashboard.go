package api

import (
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/beadhub/beadhub/internal/apperr"
)

// handleDashboardConfig tells a dashboard client which features the server
// offers before it authenticates.
func (s *Server) handleDashboardConfig(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"proxy_auth":      s.resolver.ProxyEnabled(),
		"identity_tokens": s.cfg.Dashboard.JWTSecret != "",
		"event_stream":    "/v1/status/stream",
		"event_websocket": "/v1/status/ws",
	})
}

type identityClaims struct {
	ProjectID   string `json:"project_id"`
	WorkspaceID string `json:"workspace_id,omitempty"`
	Alias       string `json:"alias,omitempty"`
	jwt.RegisteredClaims
}

// handleDashboardIdentity mints a short-lived signed token describing the
// caller, for dashboard frontends that cannot hold the raw API key.
func (s *Server) handleDashboardIdentity(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	if s.cfg.Dashboard.JWTSecret == "" {
		respondError(w, apperr.New(apperr.Unavailable, "identity tokens are not configured"))
		return
	}
	if id.PublicReader() {
		respondError(w, apperr.New(apperr.Forbidden, "public readers cannot mint identity tokens"))
		return
	}

	claims := identityClaims{
		ProjectID:   id.ProjectID,
		WorkspaceID: id.AgentID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "beadhub",
			Subject:   id.PrincipalID,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.cfg.Dashboard.TokenTTL)),
		},
	}
	if id.AgentID != "" {
		if ws, err := s.db.GetWorkspace(r.Context(), id.ProjectID, id.AgentID); err == nil {
			claims.Alias = ws.Alias
		}
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).
		SignedString([]byte(s.cfg.Dashboard.JWTSecret))
	if err != nil {
		respondError(w, apperr.Wrap(apperr.Internal, err, "failed to sign identity token"))
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"token":      token,
		"expires_in": int(s.cfg.Dashboard.TokenTTL.Seconds()),
	})
}
