package ephemeral

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPresenceState(t *testing.T) {
	ttl := 30 * time.Minute
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		lastSeen time.Time
		want     string
	}{
		{"just seen", now, PresenceActive},
		{"within ttl", now.Add(-ttl + time.Second), PresenceActive},
		{"exactly ttl", now.Add(-ttl), PresenceActive},
		{"within twice ttl", now.Add(-ttl - time.Minute), PresenceIdle},
		{"exactly twice ttl", now.Add(-2 * ttl), PresenceIdle},
		{"beyond twice ttl", now.Add(-2*ttl - time.Second), PresenceOffline},
		{"never seen", time.Time{}, PresenceOffline},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PresenceState(tt.lastSeen, ttl, now))
		})
	}
}
