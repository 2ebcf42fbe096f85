package api

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beadhub/beadhub/internal/events"
)

func TestStreamFilter_DeliversPublishedEvents(t *testing.T) {
	hub := events.NewHub()
	r := httptest.NewRequest("GET", "/v1/status/stream", nil)

	sub := hub.Subscribe("s1", streamFilter(r, "p1"))
	defer hub.Unsubscribe("s1")

	// Shaped exactly as the claim handler publishes it.
	hub.Dispatch(&events.Event{
		Type:        events.TypeBeadClaimed,
		ProjectID:   "p1",
		WorkspaceID: "ws-1",
		Data:        map[string]any{"bead_id": "bd-7"},
	})
	hub.Dispatch(&events.Event{
		Type:      events.TypeBeadClaimed,
		ProjectID: "p2",
	})

	require.Len(t, sub.C, 1)
	got := <-sub.C
	assert.Equal(t, "p1", got.ProjectID)
	assert.Equal(t, events.TypeBeadClaimed, got.Type)
}

func TestStreamFilter_QueryParameters(t *testing.T) {
	r := httptest.NewRequest("GET",
		"/v1/status/stream?repo=github.com/acme/api&human_name=Dana&event_types=bead.claimed,%20sync.completed", nil)
	f := streamFilter(r, "p1")

	assert.Equal(t, "p1", f.ProjectID)
	assert.Equal(t, "github.com/acme/api", f.Repo)
	assert.Equal(t, "Dana", f.HumanName)
	assert.Equal(t, map[string]bool{"bead.claimed": true, "sync.completed": true}, f.EventTypes)

	assert.True(t, f.Match(&events.Event{
		Type:      events.TypeBeadClaimed,
		ProjectID: "p1",
		Repo:      "github.com/acme/api",
		HumanName: "Dana",
	}))
	assert.False(t, f.Match(&events.Event{
		Type:      events.TypeBeadClaimed,
		ProjectID: "p2",
		Repo:      "github.com/acme/api",
		HumanName: "Dana",
	}))
}

func TestChatObserved_ScopedToProject(t *testing.T) {
	hub := events.NewHub()
	s := &Server{hub: hub}

	assert.False(t, s.chatObserved("p1"))

	r := httptest.NewRequest("GET", "/v1/status/stream", nil)
	hub.Subscribe("s1", streamFilter(r, "p1"))
	defer hub.Unsubscribe("s1")

	assert.True(t, s.chatObserved("p1"))
	assert.False(t, s.chatObserved("p2"))
}
