// Package api is the HTTP boundary: routing, identity resolution, request
// validation, and mapping component errors to transport statuses.
package api

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/beadhub/beadhub/internal/auth"
	"github.com/beadhub/beadhub/internal/config"
	"github.com/beadhub/beadhub/internal/database"
	"github.com/beadhub/beadhub/internal/ephemeral"
	"github.com/beadhub/beadhub/internal/events"
	"github.com/beadhub/beadhub/internal/messaging"
	"github.com/beadhub/beadhub/internal/metrics"
	"github.com/beadhub/beadhub/internal/policy"
	"github.com/beadhub/beadhub/internal/syncer"
)

// Server wires every component behind the HTTP surface. One value, passed
// explicitly; no process-wide mutable state.
type Server struct {
	cfg      *config.Config
	db       *database.Database
	store    *ephemeral.Store
	bus      events.Bus
	hub      *events.Hub
	resolver *auth.Resolver
	sync     *syncer.Engine
	mail     *messaging.Mail
	chat     *messaging.Chat
	policies *policy.Engine
	metrics  *metrics.Metrics
}

// NewServer assembles the boundary.
func NewServer(cfg *config.Config, db *database.Database, store *ephemeral.Store, bus events.Bus, hub *events.Hub, policies *policy.Engine) *Server {
	s := &Server{
		cfg:      cfg,
		db:       db,
		store:    store,
		bus:      bus,
		hub:      hub,
		resolver: auth.NewResolver(db, cfg.ProxySecret()),
		policies: policies,
		metrics:  metrics.Get(),
	}
	s.sync = syncer.New(db, bus)
	s.mail = messaging.NewMail(db, store, bus)
	s.chat = messaging.NewChat(db, store, bus, s.chatObserved)
	return s
}

// Mail exposes the mail service for the notification dispatcher.
func (s *Server) Mail() *messaging.Mail { return s.mail }

// publish sends an event on the bus. Failures are logged, not surfaced: the
// durable state has already committed by the time events go out.
func (s *Server) publish(ctx context.Context, ev *events.Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	if err := s.bus.Publish(ctx, ev); err != nil {
		log.Printf("[API] Failed to publish %s: %v", ev.Type, err)
	}
}

// chatObserved reports whether any live subscriber would see chat events for
// the project right now.
func (s *Server) chatObserved(projectID string) bool {
	return s.hub.SubscriberCountFor(projectID) > 0
}

// Handler builds the full route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("POST /v1/init", s.handleInit)
	mux.HandleFunc("GET /v1/aliases/suggest", s.withAuth(s.handleSuggestAlias))

	mux.HandleFunc("POST /v1/workspaces/register", s.withAuth(s.handleRegisterWorkspace))
	mux.HandleFunc("GET /v1/workspaces", s.withAuth(s.handleListWorkspaces))
	mux.HandleFunc("GET /v1/workspaces/team", s.withAuth(s.handleTeam))
	mux.HandleFunc("GET /v1/workspaces/online", s.withAuth(s.handleOnline))
	mux.HandleFunc("GET /v1/workspaces/{id}", s.withAuth(s.handleGetWorkspace))
	mux.HandleFunc("PATCH /v1/workspaces/{id}", s.withAuth(s.handlePatchWorkspace))
	mux.HandleFunc("DELETE /v1/workspaces/{id}", s.withAuth(s.handleDeleteWorkspace))
	mux.HandleFunc("POST /v1/workspaces/{id}/restore", s.withAuth(s.handleRestoreWorkspace))
	mux.HandleFunc("POST /v1/workspaces/{id}/heartbeat", s.withAuth(s.handleHeartbeat))

	mux.HandleFunc("GET /v1/repos", s.withAuth(s.handleListRepos))
	mux.HandleFunc("POST /v1/repos", s.withAuth(s.handleCreateRepo))
	mux.HandleFunc("DELETE /v1/repos/{id}", s.withAuth(s.handleDeleteRepo))

	mux.HandleFunc("POST /v1/bdh/sync", s.withAuth(s.handleSync))
	mux.HandleFunc("POST /v1/bdh/check", s.withAuth(s.handleCheck))

	mux.HandleFunc("GET /v1/beads/issues", s.withAuth(s.handleListIssues))
	mux.HandleFunc("GET /v1/beads/issues/{bead_id}", s.withAuth(s.handleGetIssue))
	mux.HandleFunc("GET /v1/beads/ready", s.withAuth(s.handleReadyBeads))

	mux.HandleFunc("POST /v1/claims", s.withAuth(s.handleAcquireClaim))
	mux.HandleFunc("DELETE /v1/claims", s.withAuth(s.handleReleaseClaim))
	mux.HandleFunc("GET /v1/claims", s.withAuth(s.handleListClaims))

	mux.HandleFunc("GET /v1/status", s.withAuth(s.handleStatus))
	mux.HandleFunc("GET /v1/status/stream", s.withAuth(s.handleStatusStream))
	mux.HandleFunc("GET /v1/status/ws", s.withAuth(s.handleStatusWebSocket))

	mux.HandleFunc("POST /v1/messages", s.withAuth(s.handleSendMail))
	mux.HandleFunc("GET /v1/messages/inbox", s.withAuth(s.handleInbox))
	mux.HandleFunc("POST /v1/messages/{id}/ack", s.withAuth(s.handleAckMail))

	mux.HandleFunc("POST /v1/chat/sessions", s.withAuth(s.handleStartChat))
	mux.HandleFunc("GET /v1/chat/sessions", s.withAuth(s.handleListChatSessions))
	mux.HandleFunc("POST /v1/chat/sessions/{id}/messages", s.withAuth(s.handleSendChat))
	mux.HandleFunc("GET /v1/chat/sessions/{id}/messages", s.withAuth(s.handleChatHistory))
	mux.HandleFunc("GET /v1/chat/pending", s.withAuth(s.handlePendingChat))
	mux.HandleFunc("POST /v1/chat/sessions/{id}/extend-wait", s.withAuth(s.handleExtendWait))
	mux.HandleFunc("GET /v1/chat/admin/sessions", s.withAuth(s.handleAdminChatSessions))
	mux.HandleFunc("POST /v1/chat/admin/sessions/{id}/join", s.withAuth(s.handleAdminChatJoin))
	mux.HandleFunc("GET /v1/chat/admin/sessions/{id}/messages", s.withAuth(s.handleAdminChatHistory))

	mux.HandleFunc("POST /v1/reservations", s.withAuth(s.handleReserve))
	mux.HandleFunc("DELETE /v1/reservations/{path...}", s.withAuth(s.handleReleaseReservation))
	mux.HandleFunc("GET /v1/reservations", s.withAuth(s.handleListReservations))

	mux.HandleFunc("GET /v1/policies/active", s.withAuth(s.handleActivePolicy))
	mux.HandleFunc("GET /v1/policies/history", s.withAuth(s.handlePolicyHistory))
	mux.HandleFunc("POST /v1/policies", s.withAuth(s.handleCreatePolicy))
	mux.HandleFunc("POST /v1/policies/reset", s.withAuth(s.handleResetPolicy))
	mux.HandleFunc("POST /v1/policies/reload-defaults", s.withAuth(s.handleReloadPolicyDefaults))
	mux.HandleFunc("GET /v1/policies/{id}", s.withAuth(s.handleGetPolicy))
	mux.HandleFunc("POST /v1/policies/{id}/activate", s.withAuth(s.handleActivatePolicy))

	mux.HandleFunc("POST /v1/escalations", s.withAuth(s.handleCreateEscalation))
	mux.HandleFunc("GET /v1/escalations", s.withAuth(s.handleListEscalations))
	mux.HandleFunc("GET /v1/escalations/{id}", s.withAuth(s.handleGetEscalation))
	mux.HandleFunc("POST /v1/escalations/{id}/respond", s.withAuth(s.handleRespondEscalation))

	mux.HandleFunc("POST /v1/subscriptions", s.withAuth(s.handleCreateSubscription))
	mux.HandleFunc("DELETE /v1/subscriptions/{id}", s.withAuth(s.handleDeleteSubscription))
	mux.HandleFunc("GET /v1/subscriptions", s.withAuth(s.handleListSubscriptions))

	mux.HandleFunc("GET /v1/dashboard/config", s.handleDashboardConfig)
	mux.HandleFunc("POST /v1/dashboard/identity", s.withAuth(s.handleDashboardIdentity))

	return s.withRecover(s.withLogging(s.withTimeout(mux)))
}

// withTimeout enforces the per-request hard cap, except on streaming routes.
func (s *Server) withTimeout(next http.Handler) http.Handler {
	timeout := s.cfg.Server.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isStreaming(r) || isBlocking(r) {
			next.ServeHTTP(w, r)
			return
		}
		http.TimeoutHandler(next, timeout, `{"detail":"request timed out","code":"unavailable"}`).ServeHTTP(w, r)
	})
}

func isStreaming(r *http.Request) bool {
	return r.URL.Path == "/v1/status/stream" || r.URL.Path == "/v1/status/ws"
}

// isBlocking marks routes that may suspend past the default timeout, like
// chat send-and-wait.
func isBlocking(r *http.Request) bool {
	return r.Method == http.MethodPost &&
		(r.URL.Path == "/v1/chat/sessions" ||
			(len(r.URL.Path) > len("/v1/chat/sessions/") &&
				r.URL.Path[:len("/v1/chat/sessions/")] == "/v1/chat/sessions/"))
}
