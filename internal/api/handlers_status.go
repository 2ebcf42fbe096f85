package api

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/beadhub/beadhub/internal/apperr"
	"github.com/beadhub/beadhub/internal/events"
	"github.com/beadhub/beadhub/internal/models"
)

// streamHeartbeat keeps idle SSE connections from being reaped by proxies.
const streamHeartbeat = 15 * time.Second

type statusSnapshot struct {
	Project      *models.Project              `json:"project"`
	Workspaces   []*models.Workspace          `json:"workspaces"`
	Claims       []*models.Claim              `json:"claims"`
	Conflicts    map[string][]models.Claimant `json:"conflicts"`
	Reservations []*models.Reservation        `json:"reservations"`
	UnreadMail   map[string]int               `json:"unread_mail"`
	GeneratedAt  time.Time                    `json:"generated_at"`
}

// handleStatus returns the full coordination picture in one read.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	ctx := r.Context()

	project, err := s.db.GetProject(ctx, id.ProjectID)
	if err != nil {
		respondError(w, err)
		return
	}
	workspaces, err := s.db.ActiveWorkspaces(ctx, id.ProjectID)
	if err != nil {
		respondError(w, err)
		return
	}
	records, err := s.store.ProjectPresence(ctx, id.ProjectID)
	if err != nil {
		records = nil
	}
	for i, ws := range workspaces {
		s.withPresence(r, ws, records)
		if id.PublicReader() {
			workspaces[i] = redactWorkspace(ws)
		}
	}

	claims, err := s.db.ListClaims(ctx, id.ProjectID, "", "", maxLimit, nil, "")
	if err != nil {
		respondError(w, err)
		return
	}
	conflicts, err := s.db.ConflictBeads(ctx, id.ProjectID)
	if err != nil {
		respondError(w, err)
		return
	}
	reservations, err := s.store.ListReservations(ctx, id.ProjectID)
	if err != nil {
		respondError(w, err)
		return
	}
	unread := map[string]int{}
	if !id.PublicReader() {
		unread, err = s.db.UnreadCount(ctx, id.ProjectID)
		if err != nil {
			respondError(w, err)
			return
		}
	}

	respondJSON(w, http.StatusOK, statusSnapshot{
		Project:      project,
		Workspaces:   workspaces,
		Claims:       claims,
		Conflicts:    conflicts,
		Reservations: reservations,
		UnreadMail:   unread,
		GeneratedAt:  time.Now().UTC(),
	})
}

// streamFilter builds the subscriber filter from query parameters. The
// project boundary comes from the credential, never from the query.
func streamFilter(r *http.Request, projectID string) events.Filter {
	q := r.URL.Query()
	f := events.Filter{
		ProjectID: projectID,
		Repo:      q.Get("repo"),
		HumanName: q.Get("human_name"),
	}
	if raw := q.Get("event_types"); raw != "" {
		f.EventTypes = map[string]bool{}
		for _, t := range strings.Split(raw, ",") {
			if t = strings.TrimSpace(t); t != "" {
				f.EventTypes[t] = true
			}
		}
	}
	return f
}

// handleStatusStream is the SSE feed of project events. Each event carries a
// monotonic seq; a gap means the consumer fell behind and lost events.
func (s *Server) handleStatusStream(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, apperr.New(apperr.Internal, "streaming unsupported"))
		return
	}
	sub := s.hub.Subscribe(uuid.NewString(), streamFilter(r, id.ProjectID))
	defer s.hub.Unsubscribe(sub.ID)
	s.metrics.StreamSubscribers.Inc()
	defer s.metrics.StreamSubscribers.Dec()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ticker := time.NewTicker(streamHeartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, payload)
			flusher.Flush()
		}
	}
}

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Credentials gate access; cross-origin dashboards are expected.
	CheckOrigin: func(*http.Request) bool { return true },
}

// handleStatusWebSocket is the websocket variant of the event stream.
func (s *Server) handleStatusWebSocket(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[API] Websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	sub := s.hub.Subscribe(uuid.NewString(), streamFilter(r, id.ProjectID))
	defer s.hub.Unsubscribe(sub.ID)
	s.metrics.StreamSubscribers.Inc()
	defer s.metrics.StreamSubscribers.Dec()

	// Reader detects client close; we never expect inbound frames.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(streamHeartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		}
	}
}
