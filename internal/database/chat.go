package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/beadhub/beadhub/internal/apperr"
	"github.com/beadhub/beadhub/internal/models"
)

const chatSessionColumns = `id, project_id, participants, aliases, created_at, updated_at`

func scanChatSession(row interface{ Scan(...any) error }) (*models.ChatSession, error) {
	var s models.ChatSession
	var participants, aliases pq.StringArray
	err := row.Scan(&s.ID, &s.ProjectID, &participants, &aliases, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	s.Participants = participants
	s.Aliases = aliases
	return &s, nil
}

// participantKey derives the lookup key for an unordered participant set.
func participantKey(workspaceIDs []string) string {
	ids := append([]string(nil), workspaceIDs...)
	sort.Strings(ids)
	return strings.Join(ids, "|")
}

// EnsureChatSession finds the session for the participant set or creates it.
// The key is frozen at creation; observers added later do not change it.
func (d *Database) EnsureChatSession(ctx context.Context, projectID string, participants, aliases []string) (*models.ChatSession, bool, error) {
	key := participantKey(participants)
	row := d.db.QueryRowContext(ctx, rebind(
		`SELECT `+chatSessionColumns+` FROM chat_sessions WHERE project_id = ? AND participant_key = ?`),
		projectID, key)
	s, err := scanChatSession(row)
	if err == nil {
		return s, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("failed to look up chat session: %w", err)
	}

	now := time.Now().UTC()
	s = &models.ChatSession{
		ID:           uuid.NewString(),
		ProjectID:    projectID,
		Participants: participants,
		Aliases:      aliases,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	_, err = d.db.ExecContext(ctx, rebind(
		`INSERT INTO chat_sessions (id, project_id, participants, aliases, participant_key, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`),
		s.ID, s.ProjectID, pq.Array(s.Participants), pq.Array(s.Aliases), key, s.CreatedAt, s.UpdatedAt)
	if isUniqueViolation(err) {
		row = d.db.QueryRowContext(ctx, rebind(
			`SELECT `+chatSessionColumns+` FROM chat_sessions WHERE project_id = ? AND participant_key = ?`),
			projectID, key)
		s, err = scanChatSession(row)
		if err != nil {
			return nil, false, fmt.Errorf("failed to re-read chat session: %w", err)
		}
		return s, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to create chat session: %w", err)
	}
	return s, true, nil
}

// GetChatSession returns one session.
func (d *Database) GetChatSession(ctx context.Context, projectID, sessionID string) (*models.ChatSession, error) {
	row := d.db.QueryRowContext(ctx, rebind(
		`SELECT `+chatSessionColumns+` FROM chat_sessions WHERE id = ? AND project_id = ?`),
		sessionID, projectID)
	s, err := scanChatSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.New(apperr.NotFound, "chat session %s not found", sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get chat session: %w", err)
	}
	return s, nil
}

// AddChatParticipant joins a workspace to the session as an observer.
// Joining twice is a no-op.
func (d *Database) AddChatParticipant(ctx context.Context, projectID, sessionID, workspaceID, alias string) (*models.ChatSession, error) {
	var out *models.ChatSession
	err := d.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, rebind(
			`SELECT `+chatSessionColumns+` FROM chat_sessions WHERE id = ? AND project_id = ? FOR UPDATE`),
			sessionID, projectID)
		s, err := scanChatSession(row)
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.New(apperr.NotFound, "chat session %s not found", sessionID)
		}
		if err != nil {
			return fmt.Errorf("failed to lock chat session: %w", err)
		}
		for _, p := range s.Participants {
			if p == workspaceID {
				out = s
				return nil
			}
		}
		s.Participants = append(s.Participants, workspaceID)
		s.Aliases = append(s.Aliases, alias)
		s.UpdatedAt = time.Now().UTC()
		if _, err := tx.ExecContext(ctx, rebind(
			`UPDATE chat_sessions SET participants = ?, aliases = ?, updated_at = ? WHERE id = ?`),
			pq.Array(s.Participants), pq.Array(s.Aliases), s.UpdatedAt, sessionID); err != nil {
			return fmt.Errorf("failed to add participant: %w", err)
		}
		out = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// InsertChatMessage appends a message and bumps the session.
func (d *Database) InsertChatMessage(ctx context.Context, m *models.ChatMessage) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	return d.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, rebind(
			`INSERT INTO chat_messages (id, session_id, sender_workspace_id, alias, body, leaving, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`),
			m.ID, m.SessionID, m.SenderID, m.Alias, m.Body, m.Leaving, m.CreatedAt); err != nil {
			return fmt.Errorf("failed to insert chat message: %w", err)
		}
		if _, err := tx.ExecContext(ctx, rebind(
			`UPDATE chat_sessions SET updated_at = ? WHERE id = ?`), m.CreatedAt, m.SessionID); err != nil {
			return fmt.Errorf("failed to bump chat session: %w", err)
		}
		return nil
	})
}

const chatMessageColumns = `id, session_id, sender_workspace_id, alias, body, leaving, created_at`

func scanChatMessage(row interface{ Scan(...any) error }) (*models.ChatMessage, error) {
	var m models.ChatMessage
	err := row.Scan(&m.ID, &m.SessionID, &m.SenderID, &m.Alias, &m.Body, &m.Leaving, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// ChatHistory returns a session's messages in insert order.
func (d *Database) ChatHistory(ctx context.Context, sessionID string, limit int) ([]*models.ChatMessage, error) {
	rows, err := d.db.QueryContext(ctx, rebind(
		`SELECT `+chatMessageColumns+` FROM chat_messages
		 WHERE session_id = ? ORDER BY created_at, id LIMIT ?`), sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load chat history: %w", err)
	}
	defer rows.Close()

	var out []*models.ChatMessage
	for rows.Next() {
		m, err := scanChatMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan chat message: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ListChatSessions returns sessions in the project, most recently active
// first. workspaceID narrows to sessions the workspace participates in.
func (d *Database) ListChatSessions(ctx context.Context, projectID, workspaceID string, limit int) ([]*models.ChatSession, error) {
	q := `SELECT ` + chatSessionColumns + ` FROM chat_sessions WHERE project_id = ?`
	args := []any{projectID}
	if workspaceID != "" {
		q += ` AND ? = ANY(participants)`
		args = append(args, workspaceID)
	}
	q += ` ORDER BY updated_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := d.db.QueryContext(ctx, rebind(q), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list chat sessions: %w", err)
	}
	defer rows.Close()

	var out []*models.ChatSession
	for rows.Next() {
		s, err := scanChatSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan chat session: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// PendingChat returns, per session the workspace participates in, the latest
// message when it was sent by someone else. These are conversations awaiting
// the workspace's attention.
func (d *Database) PendingChat(ctx context.Context, projectID, workspaceID string) ([]*models.ChatMessage, error) {
	rows, err := d.db.QueryContext(ctx, rebind(
		`SELECT DISTINCT ON (m.session_id) `+prefixColumns(chatMessageColumns, "m")+`
		 FROM chat_messages m
		 JOIN chat_sessions s ON s.id = m.session_id
		 WHERE s.project_id = ? AND ? = ANY(s.participants)
		 ORDER BY m.session_id, m.created_at DESC, m.id DESC`),
		projectID, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending chat: %w", err)
	}
	defer rows.Close()

	var out []*models.ChatMessage
	for rows.Next() {
		m, err := scanChatMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan chat message: %w", err)
		}
		if m.SenderID != workspaceID {
			out = append(out, m)
		}
	}
	return out, rows.Err()
}

// prefixColumns qualifies a comma-separated column list with a table alias.
func prefixColumns(columns, alias string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}
