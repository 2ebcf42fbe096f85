package notify

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beadhub/beadhub/internal/events"
	"github.com/beadhub/beadhub/internal/models"
)

func TestRender_StatusChange(t *testing.T) {
	payload, err := json.Marshal(statusChangePayload{
		BeadID:      "bd-42",
		Title:       "Fix the flaky test",
		OldStatus:   "open",
		NewStatus:   "in_progress",
		ChangedBy:   "alice",
		Repo:        "github.com/acme/api",
		Fingerprint: "abc123",
	})
	require.NoError(t, err)

	subject, body, err := render(&models.OutboxEntry{
		EventType: events.TypeBeadStatusChanged,
		Payload:   payload,
	})
	require.NoError(t, err)

	assert.Equal(t, "bd-42: open -> in_progress", subject)
	assert.Contains(t, body, "Fix the flaky test")
	assert.Contains(t, body, "alice")
	assert.Contains(t, body, "repo: github.com/acme/api")
	assert.Contains(t, body, "fingerprint: abc123")
}

func TestRender_StatusChangeBadPayload(t *testing.T) {
	_, _, err := render(&models.OutboxEntry{
		EventType: events.TypeBeadStatusChanged,
		Payload:   json.RawMessage("not json"),
	})
	assert.Error(t, err)
}

func TestRender_GenericFallback(t *testing.T) {
	subject, body, err := render(&models.OutboxEntry{
		EventType:   "escalation.created",
		Payload:     json.RawMessage(`{"escalation_id":"e-1"}`),
		Fingerprint: "fp-9",
	})
	require.NoError(t, err)

	assert.Equal(t, "Notification: escalation.created", subject)
	assert.Contains(t, body, "e-1")
	assert.Contains(t, body, "fingerprint: fp-9")
}

func TestRetryDelay_ExponentialSchedule(t *testing.T) {
	d := &Dispatcher{
		backoffBase: 2 * time.Second,
		backoffCap:  5 * time.Minute,
	}

	assert.Equal(t, 2*time.Second, d.retryDelay(1))
	assert.Equal(t, 4*time.Second, d.retryDelay(2))
	assert.Equal(t, 8*time.Second, d.retryDelay(3))
	assert.Equal(t, 16*time.Second, d.retryDelay(4))
	assert.Equal(t, 32*time.Second, d.retryDelay(5))
}

func TestRetryDelay_Capped(t *testing.T) {
	d := &Dispatcher{
		backoffBase: 2 * time.Second,
		backoffCap:  time.Minute,
	}
	assert.Equal(t, time.Minute, d.retryDelay(10))
}
