package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFingerprint(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	fp := Fingerprint("bd-1", "open", "in_progress", ts)

	assert.Len(t, fp, 32)
	assert.Equal(t, fp, Fingerprint("bd-1", "open", "in_progress", ts))
	assert.NotEqual(t, fp, Fingerprint("bd-2", "open", "in_progress", ts))
	assert.NotEqual(t, fp, Fingerprint("bd-1", "open", "closed", ts))
	assert.NotEqual(t, fp, Fingerprint("bd-1", "open", "in_progress", ts.Add(time.Microsecond)))
}

func TestFilterMatch(t *testing.T) {
	ev := &Event{
		Type:      TypeBeadClaimed,
		ProjectID: "p1",
		Repo:      "github.com/acme/api",
		HumanName: "Dana",
	}

	assert.True(t, Filter{}.Match(ev))
	assert.True(t, Filter{ProjectID: "p1"}.Match(ev))
	assert.False(t, Filter{ProjectID: "p2"}.Match(ev))
	assert.True(t, Filter{Repo: "github.com/acme/api"}.Match(ev))
	assert.False(t, Filter{Repo: "github.com/acme/web"}.Match(ev))
	assert.True(t, Filter{HumanName: "Dana"}.Match(ev))
	assert.False(t, Filter{HumanName: "Lee"}.Match(ev))
	assert.True(t, Filter{EventTypes: map[string]bool{TypeBeadClaimed: true}}.Match(ev))
	assert.False(t, Filter{EventTypes: map[string]bool{TypeBeadUnclaimed: true}}.Match(ev))
}

func TestHubDispatchAndFilter(t *testing.T) {
	hub := NewHub()
	all := hub.Subscribe("all", Filter{})
	claims := hub.Subscribe("claims", Filter{EventTypes: map[string]bool{TypeBeadClaimed: true}})
	defer hub.Unsubscribe("all")
	defer hub.Unsubscribe("claims")

	assert.Equal(t, 2, hub.SubscriberCount())

	hub.Dispatch(&Event{Type: TypeBeadClaimed, ProjectID: "p"})
	hub.Dispatch(&Event{Type: TypeSyncCompleted, ProjectID: "p"})

	require.Len(t, all.C, 2)
	require.Len(t, claims.C, 1)

	first := <-all.C
	second := <-all.C
	assert.Equal(t, uint64(1), first.Seq)
	assert.Equal(t, uint64(2), second.Seq)

	got := <-claims.C
	assert.Equal(t, TypeBeadClaimed, got.Type)
}

func TestHubProjectScopedDelivery(t *testing.T) {
	hub := NewHub()
	p1 := hub.Subscribe("p1", Filter{ProjectID: "p1"})
	p2 := hub.Subscribe("p2", Filter{ProjectID: "p2"})
	defer hub.Unsubscribe("p1")
	defer hub.Unsubscribe("p2")

	// Events carry only the project id, the way handlers publish them.
	hub.Dispatch(&Event{Type: TypeBeadClaimed, ProjectID: "p1", WorkspaceID: "ws-1"})

	require.Len(t, p1.C, 1)
	assert.Len(t, p2.C, 0)

	got := <-p1.C
	assert.Equal(t, "p1", got.ProjectID)
}

func TestHubSubscriberCountFor(t *testing.T) {
	hub := NewHub()
	hub.Subscribe("a", Filter{ProjectID: "p1"})
	hub.Subscribe("b", Filter{ProjectID: "p2"})
	hub.Subscribe("c", Filter{})
	defer hub.Unsubscribe("a")
	defer hub.Unsubscribe("b")
	defer hub.Unsubscribe("c")

	assert.Equal(t, 2, hub.SubscriberCountFor("p1"))
	assert.Equal(t, 2, hub.SubscriberCountFor("p2"))
	assert.Equal(t, 1, hub.SubscriberCountFor("p3"))
}

func TestHubDropsWhenSubscriberIsFull(t *testing.T) {
	hub := NewHub()
	sub := hub.Subscribe("slow", Filter{})
	defer hub.Unsubscribe("slow")

	for i := 0; i < subscriberBuffer+5; i++ {
		hub.Dispatch(&Event{Type: TypeSyncCompleted, ProjectID: "p"})
	}

	assert.Equal(t, subscriberBuffer, len(sub.C))
	assert.Equal(t, uint64(5), sub.Dropped())
}

func TestHubUnsubscribeClosesChannel(t *testing.T) {
	hub := NewHub()
	sub := hub.Subscribe("x", Filter{})
	hub.Unsubscribe("x")

	_, ok := <-sub.C
	assert.False(t, ok)
	assert.Equal(t, 0, hub.SubscriberCount())
}
