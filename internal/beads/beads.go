// Package beads holds the issue-domain logic: field normalisation, record
// validation, and the ready computation over the blocker graph.
package beads

import (
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/beadhub/beadhub/internal/apperr"
	"github.com/beadhub/beadhub/internal/models"
)

// MaxBeadIDLen bounds client-assigned bead ids.
const MaxBeadIDLen = 64

// Statuses that keep a blocked bead from being ready.
const (
	StatusOpen       = "open"
	StatusInProgress = "in_progress"
	StatusClosed     = "closed"
)

// NormalizeString NFC-normalises and trims a client string field.
func NormalizeString(s string) string {
	return strings.TrimSpace(norm.NFC.String(s))
}

// Validate checks an issue record after parsing. Blocker and parent tuples
// must carry a bead id; malformed tuples reject the whole record.
func Validate(issue *models.Issue) error {
	if issue.BeadID == "" {
		return apperr.New(apperr.Validation, "issue is missing a bead id")
	}
	if len(issue.BeadID) > MaxBeadIDLen {
		return apperr.New(apperr.Validation, "bead id %q exceeds %d characters", issue.BeadID, MaxBeadIDLen)
	}
	if issue.Status == "" {
		return apperr.New(apperr.Validation, "bead %s is missing a status", issue.BeadID)
	}
	if issue.Parent != nil && issue.Parent.BeadID == "" {
		return apperr.New(apperr.Validation, "bead %s has a malformed parent tuple", issue.BeadID)
	}
	for _, ref := range issue.BlockedBy {
		if ref.BeadID == "" {
			return apperr.New(apperr.Validation, "bead %s has a malformed blocked_by tuple", issue.BeadID)
		}
	}
	return nil
}

// blocking reports whether a status keeps dependents waiting. Unknown
// client-defined statuses do not block.
func blocking(status string) bool {
	return status == StatusOpen || status == StatusInProgress
}

// Ready returns the open issues whose transitive blocker closure contains no
// open or in-progress bead. Any cycle through a bead makes it not ready.
// Blockers referencing other repos resolve only within the mirrored set;
// unknown references do not block.
func Ready(issues []*models.Issue) []*models.Issue {
	byID := make(map[string]*models.Issue, len(issues))
	for _, i := range issues {
		byID[i.BeadID] = i
	}

	const (
		unvisited = iota
		visiting
		ready
		notReady
	)
	state := make(map[string]int, len(issues))

	var visit func(id string) int
	visit = func(id string) int {
		issue, ok := byID[id]
		if !ok {
			return ready
		}
		switch state[id] {
		case visiting:
			// Cycle: everything on it is treated as not ready.
			return notReady
		case ready, notReady:
			return state[id]
		}
		state[id] = visiting
		result := ready
		for _, ref := range issue.BlockedBy {
			blocker, ok := byID[ref.BeadID]
			if !ok {
				continue
			}
			if blocking(blocker.Status) || visit(ref.BeadID) == notReady {
				result = notReady
			}
		}
		state[id] = result
		return result
	}

	var out []*models.Issue
	for _, i := range issues {
		if i.Status != StatusOpen {
			continue
		}
		if visit(i.BeadID) == ready {
			out = append(out, i)
		}
	}
	return out
}
