package api

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorRoundTrip(t *testing.T) {
	at := time.Date(2026, 2, 14, 8, 30, 0, 123456000, time.UTC)
	token := encodeCursor(at, "ws-42")

	r := httptest.NewRequest("GET", "/v1/workspaces?cursor="+token, nil)
	cur, err := decodeCursor(r)
	require.NoError(t, err)
	require.NotNil(t, cur)
	assert.True(t, at.Equal(cur.SortKey))
	assert.Equal(t, "ws-42", cur.ID)
}

func TestDecodeCursor_Absent(t *testing.T) {
	r := httptest.NewRequest("GET", "/v1/workspaces", nil)
	cur, err := decodeCursor(r)
	require.NoError(t, err)
	assert.Nil(t, cur)
}

func TestDecodeCursor_Invalid(t *testing.T) {
	for _, raw := range []string{"!!!", "bm9wZQ", "bm8tcGlwZQ=="} {
		r := httptest.NewRequest("GET", "/v1/workspaces?cursor="+raw, nil)
		_, err := decodeCursor(r)
		assert.Error(t, err, "cursor %q", raw)
	}
}

func TestParseLimit(t *testing.T) {
	r := httptest.NewRequest("GET", "/v1/claims", nil)
	n, err := parseLimit(r)
	require.NoError(t, err)
	assert.Equal(t, defaultLimit, n)

	r = httptest.NewRequest("GET", "/v1/claims?limit=10", nil)
	n, err = parseLimit(r)
	require.NoError(t, err)
	assert.Equal(t, 10, n)

	r = httptest.NewRequest("GET", "/v1/claims?limit=99999", nil)
	n, err = parseLimit(r)
	require.NoError(t, err)
	assert.Equal(t, maxLimit, n)

	for _, raw := range []string{"0", "-1", "abc"} {
		r = httptest.NewRequest("GET", "/v1/claims?limit="+raw, nil)
		_, err = parseLimit(r)
		assert.Error(t, err, "limit %q", raw)
	}
}

type pagedRow struct {
	At time.Time
	ID string
}

func TestPaginate(t *testing.T) {
	base := time.Date(2026, 2, 14, 8, 0, 0, 0, time.UTC)
	rows := []pagedRow{
		{base.Add(3 * time.Minute), "c"},
		{base.Add(2 * time.Minute), "b"},
		{base.Add(1 * time.Minute), "a"},
	}
	cursorOf := func(r pagedRow) (time.Time, string) { return r.At, r.ID }

	// Over-fetched: three rows for limit 2 means another page exists.
	p := paginate(rows, 2, cursorOf)
	assert.Len(t, p.Items, 2)
	assert.True(t, p.HasMore)
	assert.Equal(t, encodeCursor(rows[1].At, "b"), p.NextCursor)

	// Exact fit: no continuation.
	p = paginate(rows[:2], 2, cursorOf)
	assert.Len(t, p.Items, 2)
	assert.False(t, p.HasMore)
	assert.Empty(t, p.NextCursor)

	// Empty input still serialises as a list.
	p = paginate(nil, 2, cursorOf)
	assert.NotNil(t, p.Items)
	assert.Empty(t, p.Items)
}
