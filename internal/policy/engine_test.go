package policy

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beadhub/beadhub/internal/models"
)

func TestNewEngine_EmbeddedBundle(t *testing.T) {
	e, err := NewEngine(nil, "")
	require.NoError(t, err)

	defaults := e.Defaults()
	assert.NotEmpty(t, defaults.Invariants)
	assert.NotEmpty(t, defaults.Roles)
}

func TestDefaults_ReturnsIndependentCopy(t *testing.T) {
	e, err := NewEngine(nil, "")
	require.NoError(t, err)

	a := e.Defaults()
	a.Invariants[0].Title = "mutated"
	a.Roles["intruder"] = models.PolicyRole{Title: "intruder"}

	b := e.Defaults()
	assert.NotEqual(t, "mutated", b.Invariants[0].Title)
	assert.NotContains(t, b.Roles, "intruder")
}

func TestReload_AssetDir(t *testing.T) {
	dir := t.TempDir()
	bundle := models.PolicyBundle{
		Invariants: []models.PolicyInvariant{{ID: "inv-1", Title: "Coordinate first", Body: "Check claims before editing."}},
		Roles:      map[string]models.PolicyRole{"reviewer": {Title: "Reviewer", Playbook: "Review."}},
	}
	data, err := json.Marshal(bundle)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bundle.json"), data, 0o644))

	e, err := NewEngine(nil, dir)
	require.NoError(t, err)

	defaults := e.Defaults()
	require.Len(t, defaults.Invariants, 1)
	assert.Equal(t, "inv-1", defaults.Invariants[0].ID)
	assert.Contains(t, defaults.Roles, "reviewer")
}

func TestReload_MissingAssetDirFails(t *testing.T) {
	_, err := NewEngine(nil, filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestCopyBundle_CopiesAdapters(t *testing.T) {
	src := models.PolicyBundle{
		Invariants: []models.PolicyInvariant{{ID: "inv-1"}},
		Roles:      map[string]models.PolicyRole{"lead": {Title: "Lead"}},
		Adapters:   map[string]json.RawMessage{"slack": json.RawMessage(`{"channel":"#dev"}`)},
	}
	dst := copyBundle(src)

	dst.Adapters["slack"][2] = 'X'
	assert.Equal(t, json.RawMessage(`{"channel":"#dev"}`), src.Adapters["slack"])
}
