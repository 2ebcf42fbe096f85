package syncer

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beadhub/beadhub/internal/apperr"
)

func TestParseJSONL_Basic(t *testing.T) {
	payload := strings.Join([]string{
		`{"id": "bd-1", "title": "First", "status": "open", "priority": 2}`,
		``,
		`{"id": "bd-2", "title": "Second", "status": "closed", "labels": ["infra"]}`,
	}, "\n")

	issues, err := ParseJSONL(payload)
	require.NoError(t, err)
	require.Len(t, issues, 2)

	assert.Equal(t, "bd-1", issues[0].BeadID)
	assert.Equal(t, "First", issues[0].Title)
	assert.Equal(t, 2, issues[0].Priority)
	assert.Equal(t, []string{"infra"}, issues[1].Labels)
}

func TestParseJSONL_NormalizesAndTruncatesTimestamps(t *testing.T) {
	payload := `{"id": "  bd-1 ", "title": " padded ", "status": "open", "updated_at": "2026-01-02T03:04:05.123456789Z"}`

	issues, err := ParseJSONL(payload)
	require.NoError(t, err)
	require.Len(t, issues, 1)

	assert.Equal(t, "bd-1", issues[0].BeadID)
	assert.Equal(t, "padded", issues[0].Title)
	want := time.Date(2026, 1, 2, 3, 4, 5, 123456000, time.UTC)
	assert.Equal(t, want, issues[0].UpdatedAt)
}

func TestParseJSONL_MalformedLineNamesTheLine(t *testing.T) {
	payload := "{\"id\": \"bd-1\", \"title\": \"ok\", \"status\": \"open\"}\nnot json"

	_, err := ParseJSONL(payload)
	require.Error(t, err)
	assert.Equal(t, apperr.Validation, apperr.KindOf(err))
	assert.Contains(t, err.Error(), "line 2")
}

func TestParseJSONL_RecordLimit(t *testing.T) {
	var sb strings.Builder
	for i := 0; i <= MaxJSONLRecords; i++ {
		fmt.Fprintf(&sb, `{"id": "bd-%d", "title": "t", "status": "open"}`+"\n", i)
	}
	_, err := ParseJSONL(sb.String())
	require.Error(t, err)
	assert.Equal(t, apperr.Validation, apperr.KindOf(err))
}

func TestParseJSONL_DepthLimit(t *testing.T) {
	deep := strings.Repeat(`{"a":`, MaxJSONDepth+2) + `1` + strings.Repeat(`}`, MaxJSONDepth+2)
	payload := fmt.Sprintf(`{"id": "bd-1", "title": "t", "status": "open", "parent": %s}`, deep)

	_, err := ParseJSONL(payload)
	require.Error(t, err)
	assert.Equal(t, apperr.Validation, apperr.KindOf(err))
}

func TestParseRef_Forms(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
		repo string
	}{
		{name: "bare string", raw: `"bd-9"`, want: "bd-9"},
		{name: "one-element tuple", raw: `["bd-9"]`, want: "bd-9"},
		{name: "three-element tuple", raw: `["github.com/acme/api", "main", "bd-9"]`, want: "bd-9", repo: "github.com/acme/api"},
		{name: "object form", raw: `{"repo": "github.com/acme/api", "bead_id": "bd-9"}`, want: "bd-9", repo: "github.com/acme/api"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref, err := parseRef([]byte(tt.raw))
			require.NoError(t, err)
			require.NotNil(t, ref)
			assert.Equal(t, tt.want, ref.BeadID)
			assert.Equal(t, tt.repo, ref.Repo)
		})
	}
}

func TestParseRef_NullAndEmpty(t *testing.T) {
	ref, err := parseRef(nil)
	require.NoError(t, err)
	assert.Nil(t, ref)

	ref, err = parseRef([]byte("null"))
	require.NoError(t, err)
	assert.Nil(t, ref)

	ref, err = parseRef([]byte(`""`))
	require.NoError(t, err)
	assert.Nil(t, ref)
}

func TestParseRef_BadTuple(t *testing.T) {
	_, err := parseRef([]byte(`["repo", "bd-9"]`))
	assert.Error(t, err)
}

func TestParseRefList(t *testing.T) {
	refs, err := parseRefList([]byte(`["bd-1", ["r", "b", "bd-2"]]`))
	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.Equal(t, "bd-1", refs[0].BeadID)
	assert.Equal(t, "bd-2", refs[1].BeadID)
	assert.Equal(t, "r", refs[1].Repo)
}

func TestJSONDepth(t *testing.T) {
	assert.Equal(t, 1, jsonDepth(`{"a": 1}`))
	assert.Equal(t, 3, jsonDepth(`{"a": [{"b": 1}]}`))
	// Brackets inside strings do not nest.
	assert.Equal(t, 1, jsonDepth(`{"a": "{[{["}`))
	assert.Equal(t, 1, jsonDepth(`{"a": "esc\"{"}`))
}

func TestClaimFromCommandLine(t *testing.T) {
	tests := []struct {
		cmd     string
		want    string
		claimed bool
	}{
		{"bd claim bd-12", "bd-12", true},
		{"bd update bd-12 --status=in_progress", "bd-12", true},
		{"bd update bd-12 --status=closed", "", false},
		{"bd update bd-12 --status in_progress", "bd-12", true},
		{"bd update bd-12 --status done", "", false},
		{"bd update bd-12 --status", "", false},
		{"bd list", "", false},
		{"git commit -m x", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.cmd, func(t *testing.T) {
			id, claimed := claimFromCommandLine(tt.cmd)
			assert.Equal(t, tt.claimed, claimed)
			if tt.claimed {
				assert.Equal(t, tt.want, id)
			}
		})
	}
}
