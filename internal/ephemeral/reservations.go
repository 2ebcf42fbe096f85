package ephemeral

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/beadhub/beadhub/internal/models"
)

// DefaultReservationTTL is how long a file reservation lives without renewal.
const DefaultReservationTTL = 300 * time.Second

func reservationHashKey(projectID string) string {
	return "reservations:" + url.PathEscape(projectID)
}

// Reserve acquires or renews an advisory file lock. A reservation held by
// another workspace is returned alongside ok=false; the caller decides
// whether that is a warning or an error. Reacquiring one's own path renews
// the expiry.
func (s *Store) Reserve(ctx context.Context, r models.Reservation, ttl time.Duration) (ok bool, holder *models.Reservation, err error) {
	if ttl <= 0 {
		ttl = DefaultReservationTTL
	}
	now := time.Now().UTC()

	existing, err := s.getReservation(ctx, r.ProjectID, r.Path)
	if err != nil {
		return false, nil, err
	}
	if existing != nil && existing.WorkspaceID != r.WorkspaceID && now.Before(existing.ExpiresAt) {
		return false, existing, nil
	}

	r.AcquiredAt = now
	if existing != nil && existing.WorkspaceID == r.WorkspaceID {
		r.AcquiredAt = existing.AcquiredAt
	}
	r.ExpiresAt = now.Add(ttl)

	payload, err := json.Marshal(r)
	if err != nil {
		return false, nil, fmt.Errorf("failed to encode reservation: %w", err)
	}
	if err := s.client.HSet(ctx, reservationHashKey(r.ProjectID), r.Path, payload).Err(); err != nil {
		return false, nil, fmt.Errorf("failed to store reservation: %w", err)
	}
	return true, &r, nil
}

// Release drops the reservation when held by workspaceID. Releasing a path
// not held is a no-op.
func (s *Store) Release(ctx context.Context, projectID, path, workspaceID string) (bool, error) {
	existing, err := s.getReservation(ctx, projectID, path)
	if err != nil {
		return false, err
	}
	if existing == nil || existing.WorkspaceID != workspaceID {
		return false, nil
	}
	if err := s.client.HDel(ctx, reservationHashKey(projectID), path).Err(); err != nil {
		return false, fmt.Errorf("failed to release reservation: %w", err)
	}
	return true, nil
}

// Holder returns the unexpired reservation on a path, nil when free.
func (s *Store) Holder(ctx context.Context, projectID, path string) (*models.Reservation, error) {
	r, err := s.getReservation(ctx, projectID, path)
	if err != nil {
		return nil, err
	}
	if r == nil || time.Now().After(r.ExpiresAt) {
		return nil, nil
	}
	return r, nil
}

func (s *Store) getReservation(ctx context.Context, projectID, path string) (*models.Reservation, error) {
	raw, err := s.client.HGet(ctx, reservationHashKey(projectID), path).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read reservation: %w", err)
	}
	var r models.Reservation
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("failed to decode reservation: %w", err)
	}
	return &r, nil
}

// ListReservations returns the project's live reservations, lazily purging
// expired entries.
func (s *Store) ListReservations(ctx context.Context, projectID string) ([]*models.Reservation, error) {
	all, err := s.client.HGetAll(ctx, reservationHashKey(projectID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list reservations: %w", err)
	}
	now := time.Now()
	var out []*models.Reservation
	var expired []string
	for path, raw := range all {
		var r models.Reservation
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			expired = append(expired, path)
			continue
		}
		if now.After(r.ExpiresAt) {
			expired = append(expired, path)
			continue
		}
		out = append(out, &r)
	}
	if len(expired) > 0 {
		s.client.HDel(ctx, reservationHashKey(projectID), expired...)
	}
	return out, nil
}
