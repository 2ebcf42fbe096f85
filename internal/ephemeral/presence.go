package ephemeral

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/redis/go-redis/v9"
)

// Presence states derived from how recently a workspace was seen.
const (
	PresenceActive  = "active"
	PresenceIdle    = "idle"
	PresenceOffline = "offline"
)

// PresenceRecord is the cached view of a workspace's liveness.
type PresenceRecord struct {
	WorkspaceID string    `json:"workspace_id"`
	ProjectID   string    `json:"project_id"`
	Alias       string    `json:"alias"`
	LastSeen    time.Time `json:"last_seen"`
}

func presenceKey(workspaceID string) string {
	return "presence:" + url.PathEscape(workspaceID)
}

func projectIndexKey(projectID string) string {
	return "idx:project:" + url.PathEscape(projectID)
}

// TouchPresence refreshes a workspace's presence record and its project
// index. The index lives twice as long as the record so that idle workspaces
// still appear in listings; stale members are pruned lazily on read.
func (s *Store) TouchPresence(ctx context.Context, rec PresenceRecord, ttl time.Duration) error {
	if rec.LastSeen.IsZero() {
		rec.LastSeen = time.Now().UTC()
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode presence: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, presenceKey(rec.WorkspaceID), payload, 2*ttl)
	pipe.SAdd(ctx, projectIndexKey(rec.ProjectID), rec.WorkspaceID)
	pipe.Expire(ctx, projectIndexKey(rec.ProjectID), 2*ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to touch presence: %w", err)
	}
	return nil
}

// ClearPresence drops the record, on workspace delete.
func (s *Store) ClearPresence(ctx context.Context, projectID, workspaceID string) error {
	pipe := s.client.Pipeline()
	pipe.Del(ctx, presenceKey(workspaceID))
	pipe.SRem(ctx, projectIndexKey(projectID), workspaceID)
	_, err := pipe.Exec(ctx)
	return err
}

// GetPresence returns the record for one workspace, nil when absent.
func (s *Store) GetPresence(ctx context.Context, workspaceID string) (*PresenceRecord, error) {
	raw, err := s.client.Get(ctx, presenceKey(workspaceID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get presence: %w", err)
	}
	var rec PresenceRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode presence: %w", err)
	}
	return &rec, nil
}

// ProjectPresence returns the live records for a project, pruning index
// members whose presence keys have expired.
func (s *Store) ProjectPresence(ctx context.Context, projectID string) (map[string]*PresenceRecord, error) {
	members, err := s.client.SMembers(ctx, projectIndexKey(projectID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read presence index: %w", err)
	}
	if len(members) == 0 {
		return map[string]*PresenceRecord{}, nil
	}

	pipe := s.client.Pipeline()
	gets := make([]*redis.StringCmd, len(members))
	for i, m := range members {
		gets[i] = pipe.Get(ctx, presenceKey(m))
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("failed to read presence records: %w", err)
	}

	out := map[string]*PresenceRecord{}
	var stale []any
	for i, cmd := range gets {
		raw, err := cmd.Bytes()
		if err == redis.Nil {
			stale = append(stale, members[i])
			continue
		}
		if err != nil {
			continue
		}
		var rec PresenceRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			continue
		}
		out[members[i]] = &rec
	}
	if len(stale) > 0 {
		s.client.SRem(ctx, projectIndexKey(projectID), stale...)
	}
	return out, nil
}

// PresenceState classifies a last-seen time: active within ttl, idle within
// twice ttl, offline beyond.
func PresenceState(lastSeen time.Time, ttl time.Duration, now time.Time) string {
	if lastSeen.IsZero() {
		return PresenceOffline
	}
	age := now.Sub(lastSeen)
	switch {
	case age <= ttl:
		return PresenceActive
	case age <= 2*ttl:
		return PresenceIdle
	default:
		return PresenceOffline
	}
}
