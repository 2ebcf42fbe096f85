package ephemeral

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/redis/go-redis/v9"
)

// Chat-wait deadlines. A send-and-wait blocks until a peer message, a peer
// leave, or the deadline; extend-wait pushes the deadline up to the cap.
const (
	DefaultWait      = 60 * time.Second
	ConversationWait = 300 * time.Second
	MaxWait          = 600 * time.Second
)

func waitSignalKey(sessionID, waiterID string) string {
	return "chatwait:" + url.PathEscape(sessionID) + ":" + url.PathEscape(waiterID)
}

func waitersKey(sessionID string) string {
	return "chatwaiters:" + url.PathEscape(sessionID)
}

func inboxWakeChannel(workspaceID string) string {
	return "inboxwake:" + url.PathEscape(workspaceID)
}

// WaitResult is what released a chat wait.
type WaitResult struct {
	Signal   string // "reply", "leave", or "" on deadline
	Deadline bool
}

// BeginWait marks the waiter visible to peers so senders can compute the
// delivered flag. The marker outlives the deadline slightly; EndWait clears
// it eagerly.
func (s *Store) BeginWait(ctx context.Context, sessionID, waiterID string, deadline time.Duration) error {
	pipe := s.client.Pipeline()
	pipe.SAdd(ctx, waitersKey(sessionID), waiterID)
	pipe.Expire(ctx, waitersKey(sessionID), deadline+10*time.Second)
	pipe.Del(ctx, waitSignalKey(sessionID, waiterID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to begin wait: %w", err)
	}
	return nil
}

// EndWait removes the waiter marker and any unconsumed signal.
func (s *Store) EndWait(ctx context.Context, sessionID, waiterID string) {
	pipe := s.client.Pipeline()
	pipe.SRem(ctx, waitersKey(sessionID), waiterID)
	pipe.Del(ctx, waitSignalKey(sessionID, waiterID))
	pipe.Exec(ctx)
}

// AwaitSignal blocks until a signal arrives for the waiter or the deadline
// passes. Client disconnect cancels through ctx.
func (s *Store) AwaitSignal(ctx context.Context, sessionID, waiterID string, deadline time.Duration) (WaitResult, error) {
	if deadline <= 0 {
		return WaitResult{Deadline: true}, nil
	}
	if deadline > MaxWait {
		deadline = MaxWait
	}
	res, err := s.client.BLPop(ctx, deadline, waitSignalKey(sessionID, waiterID)).Result()
	if err == redis.Nil {
		return WaitResult{Deadline: true}, nil
	}
	if err != nil {
		if ctx.Err() != nil {
			return WaitResult{}, ctx.Err()
		}
		return WaitResult{}, fmt.Errorf("failed to await signal: %w", err)
	}
	if len(res) == 2 {
		return WaitResult{Signal: res[1]}, nil
	}
	return WaitResult{Deadline: true}, nil
}

// SignalWaiters releases every waiter in the session except the sender.
// signal is "reply" for an ordinary message, "leave" for send-and-leave.
func (s *Store) SignalWaiters(ctx context.Context, sessionID, senderID, signal string) (int, error) {
	waiters, err := s.client.SMembers(ctx, waitersKey(sessionID)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to list waiters: %w", err)
	}
	released := 0
	for _, w := range waiters {
		if w == senderID {
			continue
		}
		if err := s.client.LPush(ctx, waitSignalKey(sessionID, w), signal).Err(); err != nil {
			return released, fmt.Errorf("failed to signal waiter: %w", err)
		}
		// Signal keys self-expire in case the waiter vanished.
		s.client.Expire(ctx, waitSignalKey(sessionID, w), MaxWait)
		released++
	}
	return released, nil
}

// ActiveWaiters returns how many session participants other than senderID are
// currently blocked in a wait. Nonzero means a sent message was observed.
func (s *Store) ActiveWaiters(ctx context.Context, sessionID, senderID string) (int, error) {
	waiters, err := s.client.SMembers(ctx, waitersKey(sessionID)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to list waiters: %w", err)
	}
	n := 0
	for _, w := range waiters {
		if w != senderID {
			n++
		}
	}
	return n, nil
}

// WakeInbox nudges a recipient's inbox channel after a mail write.
func (s *Store) WakeInbox(ctx context.Context, workspaceID string) error {
	return s.client.Publish(ctx, inboxWakeChannel(workspaceID), "new").Err()
}
