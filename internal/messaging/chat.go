package messaging

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/beadhub/beadhub/internal/apperr"
	"github.com/beadhub/beadhub/internal/database"
	"github.com/beadhub/beadhub/internal/ephemeral"
	"github.com/beadhub/beadhub/internal/events"
	"github.com/beadhub/beadhub/internal/models"
)

// Chat implements persistent sessions with wait/leave semantics. Waits live
// in the ephemeral store; a server restart drops them and waiters fall back
// to their deadlines.
type Chat struct {
	db    *database.Database
	store *ephemeral.Store
	bus   events.Bus

	// liveObservers reports whether any live stream subscriber would see
	// chat events for the project. Feeds the delivered flag.
	liveObservers func(projectID string) bool
}

// NewChat builds the chat service.
func NewChat(db *database.Database, store *ephemeral.Store, bus events.Bus, liveObservers func(projectID string) bool) *Chat {
	if liveObservers == nil {
		liveObservers = func(string) bool { return false }
	}
	return &Chat{db: db, store: store, bus: bus, liveObservers: liveObservers}
}

// StartResult is the reply to opening (or re-entering) a session.
type StartResult struct {
	Session          *models.ChatSession `json:"session"`
	InitialMessageID string              `json:"initial_message_id"`
	SSEURL           string              `json:"sse_url"`
	Delivered        bool                `json:"delivered"`
}

// Start opens the session for (sender, recipients) implicitly and sends the
// first message into it.
func (c *Chat) Start(ctx context.Context, projectID, fromID, fromAlias string, toAliases []string, body string) (*StartResult, error) {
	if len(toAliases) == 0 {
		return nil, apperr.New(apperr.Validation, "chat requires at least one recipient alias")
	}
	if body == "" {
		return nil, apperr.New(apperr.Validation, "chat message must not be empty")
	}

	participants := []string{fromID}
	aliases := []string{fromAlias}
	for _, alias := range toAliases {
		ws, err := c.workspaceByAlias(ctx, projectID, alias)
		if err != nil {
			return nil, err
		}
		participants = append(participants, ws.ID)
		aliases = append(aliases, ws.Alias)
	}

	session, _, err := c.db.EnsureChatSession(ctx, projectID, participants, aliases)
	if err != nil {
		return nil, err
	}

	sent, err := c.Send(ctx, projectID, session.ID, fromID, fromAlias, body, false)
	if err != nil {
		return nil, err
	}
	return &StartResult{
		Session:          session,
		InitialMessageID: sent.Message.ID,
		SSEURL:           fmt.Sprintf("/v1/status/stream?project_id=%s&event_types=%s", projectID, events.TypeChatMessageSent),
		Delivered:        sent.Delivered,
	}, nil
}

func (c *Chat) workspaceByAlias(ctx context.Context, projectID, alias string) (*models.Workspace, error) {
	all, err := c.db.ActiveWorkspaces(ctx, projectID)
	if err != nil {
		return nil, err
	}
	for _, w := range all {
		if w.Alias == alias {
			return w, nil
		}
	}
	return nil, apperr.New(apperr.NotFound, "no workspace with alias %s", alias)
}

// SendResult is the reply to a send.
type SendResult struct {
	Message   *models.ChatMessage `json:"message"`
	Delivered bool                `json:"delivered"`
}

// Send appends a message to a session the sender participates in, releases
// peer waits, and publishes chat.message_sent. leaving marks final intent and
// signals peers with "leave" instead of "reply".
func (c *Chat) Send(ctx context.Context, projectID, sessionID, senderID, alias, body string, leaving bool) (*SendResult, error) {
	if body == "" {
		return nil, apperr.New(apperr.Validation, "chat message must not be empty")
	}
	if len(body) > MaxBodyBytes {
		return nil, apperr.New(apperr.Validation, "chat message exceeds %d bytes", MaxBodyBytes)
	}
	session, err := c.db.GetChatSession(ctx, projectID, sessionID)
	if err != nil {
		return nil, err
	}
	if !contains(session.Participants, senderID) {
		return nil, apperr.New(apperr.Forbidden, "workspace is not a participant of this session")
	}

	msg := &models.ChatMessage{
		SessionID: sessionID,
		SenderID:  senderID,
		Alias:     alias,
		Body:      body,
		Leaving:   leaving,
	}
	if err := c.db.InsertChatMessage(ctx, msg); err != nil {
		return nil, err
	}

	// Delivered means someone can observe the message right now: an active
	// peer wait or a live stream subscriber. Compute before releasing waits.
	waiting, err := c.store.ActiveWaiters(ctx, sessionID, senderID)
	if err != nil {
		log.Printf("[Chat] Failed to count waiters for %s: %v", sessionID, err)
	}
	delivered := waiting > 0 || c.liveObservers(projectID)

	signal := "reply"
	if leaving {
		signal = "leave"
	}
	if _, err := c.store.SignalWaiters(ctx, sessionID, senderID, signal); err != nil {
		log.Printf("[Chat] Failed to signal waiters for %s: %v", sessionID, err)
	}

	if err := c.bus.Publish(ctx, &events.Event{
		Type:        events.TypeChatMessageSent,
		ProjectID:   projectID,
		WorkspaceID: senderID,
		Alias:       alias,
		Timestamp:   time.Now().UTC(),
		Data: map[string]any{
			"session_id": sessionID,
			"message_id": msg.ID,
			"leaving":    leaving,
		},
	}); err != nil {
		log.Printf("[Chat] Failed to publish message event: %v", err)
	}

	return &SendResult{Message: msg, Delivered: delivered}, nil
}

// Wait blocks the sender until a peer message, a peer leave, or the deadline.
// A zero deadline returns immediately. Client disconnect cancels the wait.
func (c *Chat) Wait(ctx context.Context, projectID, sessionID, waiterID string, deadline time.Duration) (*ephemeral.WaitResult, []*models.ChatMessage, error) {
	session, err := c.db.GetChatSession(ctx, projectID, sessionID)
	if err != nil {
		return nil, nil, err
	}
	if !contains(session.Participants, waiterID) {
		return nil, nil, apperr.New(apperr.Forbidden, "workspace is not a participant of this session")
	}
	if deadline > ephemeral.MaxWait {
		deadline = ephemeral.MaxWait
	}

	if deadline > 0 {
		if err := c.store.BeginWait(ctx, sessionID, waiterID, deadline); err != nil {
			return nil, nil, err
		}
		defer c.store.EndWait(context.WithoutCancel(ctx), sessionID, waiterID)
	}

	res, err := c.store.AwaitSignal(ctx, sessionID, waiterID, deadline)
	if err != nil {
		return nil, nil, err
	}

	history, err := c.db.ChatHistory(ctx, sessionID, 50)
	if err != nil {
		return nil, nil, err
	}
	return &res, history, nil
}

// ExtendWait refreshes the waiter's deadline marker up to the hard cap. The
// blocked request itself re-arms on its next AwaitSignal cycle.
func (c *Chat) ExtendWait(ctx context.Context, projectID, sessionID, waiterID string, extension time.Duration) (time.Duration, error) {
	if extension <= 0 {
		extension = ephemeral.DefaultWait
	}
	if extension > ephemeral.MaxWait {
		extension = ephemeral.MaxWait
	}
	session, err := c.db.GetChatSession(ctx, projectID, sessionID)
	if err != nil {
		return 0, err
	}
	if !contains(session.Participants, waiterID) {
		return 0, apperr.New(apperr.Forbidden, "workspace is not a participant of this session")
	}
	if err := c.store.BeginWait(ctx, sessionID, waiterID, extension); err != nil {
		return 0, err
	}
	return extension, nil
}

// Pending lists sessions whose latest message awaits the workspace.
func (c *Chat) Pending(ctx context.Context, projectID, workspaceID string) ([]*models.ChatMessage, error) {
	return c.db.PendingChat(ctx, projectID, workspaceID)
}

// History returns the session log for a participant.
func (c *Chat) History(ctx context.Context, projectID, sessionID, workspaceID string, limit int) ([]*models.ChatMessage, error) {
	session, err := c.db.GetChatSession(ctx, projectID, sessionID)
	if err != nil {
		return nil, err
	}
	if !contains(session.Participants, workspaceID) {
		return nil, apperr.New(apperr.Forbidden, "workspace is not a participant of this session")
	}
	return c.db.ChatHistory(ctx, sessionID, limit)
}

// Sessions lists the workspace's sessions.
func (c *Chat) Sessions(ctx context.Context, projectID, workspaceID string, limit int) ([]*models.ChatSession, error) {
	return c.db.ListChatSessions(ctx, projectID, workspaceID, limit)
}

// AdminSessions lists every session in the project for dashboard observers.
func (c *Chat) AdminSessions(ctx context.Context, projectID string, limit int) ([]*models.ChatSession, error) {
	return c.db.ListChatSessions(ctx, projectID, "", limit)
}

// AdminJoin adds an observer to a session. Idempotent.
func (c *Chat) AdminJoin(ctx context.Context, projectID, sessionID, workspaceID, alias string) (*models.ChatSession, error) {
	return c.db.AddChatParticipant(ctx, projectID, sessionID, workspaceID, alias)
}

// AdminHistory returns the session log without a participation check.
func (c *Chat) AdminHistory(ctx context.Context, projectID, sessionID string, limit int) ([]*models.ChatMessage, error) {
	if _, err := c.db.GetChatSession(ctx, projectID, sessionID); err != nil {
		return nil, err
	}
	return c.db.ChatHistory(ctx, sessionID, limit)
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
