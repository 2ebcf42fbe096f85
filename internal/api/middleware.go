package api

import (
	"bufio"
	"context"
	"log"
	"net"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/beadhub/beadhub/internal/apperr"
	"github.com/beadhub/beadhub/internal/auth"
	"github.com/beadhub/beadhub/internal/ephemeral"
)

type contextKey string

const identityKey contextKey = "identity"

// identity pulls the resolved caller from the request context.
func identity(r *http.Request) *auth.Identity {
	id, _ := r.Context().Value(identityKey).(*auth.Identity)
	return id
}

// withAuth resolves the caller, preferring the signed-proxy header, then the
// bearer token. Public headers are ignored whenever a valid proxy header is
// present; the proxy header itself is ignored when proxy mode is disabled.
func (s *Server) withAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var id *auth.Identity
		var err error

		if proxyHeader := r.Header.Get(auth.HeaderProxyAuth); proxyHeader != "" && s.resolver.ProxyEnabled() {
			id, err = s.resolver.ResolveProxy(proxyHeader)
		} else {
			id, err = s.resolver.ResolveBearer(r.Context(), r.Header.Get("Authorization"))
		}
		if err != nil {
			respondError(w, err)
			return
		}

		if id.PublicReader() {
			if r.Method != http.MethodGet {
				respondError(w, apperr.New(apperr.Forbidden, "public readers cannot write"))
				return
			}
			project, err := s.db.GetProject(r.Context(), id.ProjectID)
			if err != nil {
				respondError(w, err)
				return
			}
			if project.Visibility != "public" || project.DeletedAt != nil {
				respondError(w, apperr.New(apperr.Forbidden, "project is not public"))
				return
			}
		}

		// Presence rides on every authenticated write.
		if r.Method != http.MethodGet && id.AgentID != "" {
			now := time.Now().UTC()
			if err := s.db.TouchWorkspace(r.Context(), id.ProjectID, id.AgentID, now); err != nil {
				log.Printf("[API] Failed to touch workspace %s: %v", id.AgentID, err)
			}
			if w, err := s.db.GetWorkspace(r.Context(), id.ProjectID, id.AgentID); err == nil && w.DeletedAt == nil {
				if err := s.store.TouchPresence(r.Context(), ephemeral.PresenceRecord{
					WorkspaceID: id.AgentID,
					ProjectID:   id.ProjectID,
					Alias:       w.Alias,
					LastSeen:    now,
				}, s.cfg.Presence.TTL); err != nil {
					log.Printf("[API] Failed to touch presence for %s: %v", id.AgentID, err)
				}
			}
		}

		ctx := context.WithValue(r.Context(), identityKey, id)
		next(w, r.WithContext(ctx))
	}
}

// statusRecorder captures the response code for logging and metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack lets the websocket upgrade reach the raw connection.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, http.ErrNotSupported
	}
	return h.Hijack()
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		elapsed := time.Since(start)
		s.metrics.RecordHTTP(r.Method, r.URL.Path, rec.status, elapsed)
		if s.cfg.LogLevel == "debug" || rec.status >= 500 {
			log.Printf("[API] %s %s -> %d (%s)", r.Method, r.URL.Path, rec.status, elapsed)
		}
	})
}

func (s *Server) withRecover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Printf("[API] Panic in %s %s: %v\n%s", r.Method, r.URL.Path, rec, debug.Stack())
				respondError(w, apperr.New(apperr.Internal, "internal server error"))
			}
		}()
		next.ServeHTTP(w, r)
	})
}
