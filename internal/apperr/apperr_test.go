package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		kind Kind
		want int
	}{
		{Validation, http.StatusBadRequest},
		{Unauthenticated, http.StatusUnauthorized},
		{Forbidden, http.StatusForbidden},
		{NotFound, http.StatusNotFound},
		{Conflict, http.StatusConflict},
		{PreconditionFailed, http.StatusPreconditionFailed},
		{RateLimited, http.StatusTooManyRequests},
		{Unavailable, http.StatusServiceUnavailable},
		{Gone, http.StatusGone},
		{Internal, http.StatusInternalServerError},
		{Kind("mystery"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, HTTPStatus(tt.kind), "kind %s", tt.kind)
	}
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, NotFound, KindOf(New(NotFound, "workspace %s", "ws-1")))
	assert.Equal(t, Internal, KindOf(errors.New("plain")))

	// Kind survives fmt wrapping.
	wrapped := fmt.Errorf("query: %w", New(Conflict, "already claimed"))
	assert.Equal(t, Conflict, KindOf(wrapped))
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(Unavailable, cause, "redis unreachable")

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "redis unreachable")
	assert.Contains(t, err.Error(), "connection refused")
}

func TestWithFields(t *testing.T) {
	base := New(Conflict, "path reserved")
	withHolder := base.WithFields(map[string]any{"holder": "ws-2"})

	require.NotSame(t, base, withHolder)
	assert.Nil(t, base.Fields)
	assert.Equal(t, "ws-2", withHolder.Fields["holder"])
	assert.Equal(t, base.Detail, withHolder.Detail)
	assert.Equal(t, base.Kind, withHolder.Kind)
}
