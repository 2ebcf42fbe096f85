package api

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/beadhub/beadhub/internal/ephemeral"
)

func intp(n int) *int { return &n }

func TestChatDeadline(t *testing.T) {
	tests := []struct {
		name         string
		wait         *int
		conversation bool
		want         time.Duration
	}{
		{"default send", nil, false, ephemeral.DefaultWait},
		{"conversation opener", nil, true, ephemeral.ConversationWait},
		{"explicit seconds", intp(90), false, 90 * time.Second},
		{"explicit wins over conversation", intp(10), true, 10 * time.Second},
		{"zero means no wait", intp(0), true, 0},
		{"negative clamps to zero", intp(-5), false, 0},
		{"clamped to cap", intp(3600), false, ephemeral.MaxWait},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, chatDeadline(tt.wait, tt.conversation))
		})
	}
}

func TestWaitOutcome(t *testing.T) {
	assert.Equal(t, "timeout", waitOutcome(nil))
	assert.Equal(t, "timeout", waitOutcome(&ephemeral.WaitResult{Deadline: true}))
	assert.Equal(t, "peer_left", waitOutcome(&ephemeral.WaitResult{Signal: "leave"}))
	assert.Equal(t, "reply", waitOutcome(&ephemeral.WaitResult{Signal: "message"}))
}
