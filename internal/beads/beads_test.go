package beads

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beadhub/beadhub/internal/models"
)

func issue(id, status string, blockedBy ...string) *models.Issue {
	i := &models.Issue{BeadID: id, Title: id, Status: status}
	for _, b := range blockedBy {
		i.BlockedBy = append(i.BlockedBy, models.BeadRef{BeadID: b})
	}
	return i
}

func readyIDs(issues []*models.Issue) []string {
	var out []string
	for _, i := range Ready(issues) {
		out = append(out, i.BeadID)
	}
	return out
}

func TestNormalizeString(t *testing.T) {
	assert.Equal(t, "hello", NormalizeString("  hello\n"))
	// Combining e + acute collapses to the precomposed form.
	assert.Equal(t, "café", NormalizeString("café"))
	assert.Equal(t, "", NormalizeString("   "))
}

func TestValidate(t *testing.T) {
	require.NoError(t, Validate(issue("bd-1", "open")))

	assert.Error(t, Validate(issue("", "open")))
	assert.Error(t, Validate(issue("bd-1", "")))

	long := make([]byte, MaxBeadIDLen+1)
	for i := range long {
		long[i] = 'a'
	}
	assert.Error(t, Validate(issue(string(long), "open")))

	bad := issue("bd-1", "open")
	bad.Parent = &models.BeadRef{}
	assert.Error(t, Validate(bad))

	bad = issue("bd-1", "open")
	bad.BlockedBy = []models.BeadRef{{Repo: "other"}}
	assert.Error(t, Validate(bad))
}

func TestReady_NoBlockers(t *testing.T) {
	got := readyIDs([]*models.Issue{
		issue("bd-1", "open"),
		issue("bd-2", "closed"),
		issue("bd-3", "in_progress"),
	})
	assert.Equal(t, []string{"bd-1"}, got)
}

func TestReady_OpenBlockerBlocks(t *testing.T) {
	got := readyIDs([]*models.Issue{
		issue("bd-1", "open", "bd-2"),
		issue("bd-2", "open"),
	})
	assert.Equal(t, []string{"bd-2"}, got)
}

func TestReady_ClosedBlockerDoesNotBlock(t *testing.T) {
	got := readyIDs([]*models.Issue{
		issue("bd-1", "open", "bd-2"),
		issue("bd-2", "closed"),
	})
	assert.Equal(t, []string{"bd-1"}, got)
}

func TestReady_TransitiveBlocker(t *testing.T) {
	// bd-1 <- bd-2 <- bd-3(open): bd-1 blocked through bd-2 even though bd-2
	// itself is closed.
	got := readyIDs([]*models.Issue{
		issue("bd-1", "open", "bd-2"),
		issue("bd-2", "closed", "bd-3"),
		issue("bd-3", "open"),
	})
	assert.NotContains(t, got, "bd-1")
	assert.Contains(t, got, "bd-3")
}

func TestReady_UnknownBlockerDoesNotBlock(t *testing.T) {
	got := readyIDs([]*models.Issue{
		issue("bd-1", "open", "other-repo-bead"),
	})
	assert.Equal(t, []string{"bd-1"}, got)
}

func TestReady_CycleIsNotReady(t *testing.T) {
	got := readyIDs([]*models.Issue{
		issue("bd-1", "open", "bd-2"),
		issue("bd-2", "open", "bd-1"),
		issue("bd-3", "open"),
	})
	assert.Equal(t, []string{"bd-3"}, got)
}

func TestReady_SelfCycle(t *testing.T) {
	got := readyIDs([]*models.Issue{
		issue("bd-1", "open", "bd-1"),
	})
	assert.Empty(t, got)
}

func TestReady_UnknownStatusDoesNotBlock(t *testing.T) {
	got := readyIDs([]*models.Issue{
		issue("bd-1", "open", "bd-2"),
		issue("bd-2", "wontfix"),
	})
	assert.Equal(t, []string{"bd-1"}, got)
}
