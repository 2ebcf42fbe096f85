package api

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateAlias(t *testing.T) {
	for _, alias := range []string{"alice", "bob-2", "a", "z9", "agent-one-two"} {
		assert.NoError(t, validateAlias(alias), "alias %q", alias)
	}
	for _, alias := range []string{"", "Alice", "9bob", "-dash", "has space", "véra",
		strings.Repeat("a", 41)} {
		assert.Error(t, validateAlias(alias), "alias %q", alias)
	}
}

func TestValidateSlug(t *testing.T) {
	for _, slug := range []string{"acme", "acme-2", "9lives", "a"} {
		assert.NoError(t, validateSlug(slug), "slug %q", slug)
	}
	for _, slug := range []string{"", "Acme", "-acme", "acme_app", strings.Repeat("a", 65)} {
		assert.Error(t, validateSlug(slug), "slug %q", slug)
	}
}

func TestValidateBeadID(t *testing.T) {
	assert.NoError(t, validateBeadID("bd-1"))
	assert.Error(t, validateBeadID(""))
	assert.Error(t, validateBeadID(strings.Repeat("x", maxBeadIDLen+1)))
}

func TestValidateRole(t *testing.T) {
	assert.NoError(t, validateRole("reviewer"))
	assert.Error(t, validateRole(strings.Repeat("r", maxRoleLen+1)))
}

func TestAliasSuggestions(t *testing.T) {
	// No prefix yields the classic roster in stable order.
	got := aliasSuggestions("")
	assert.Equal(t, classicNames, got)

	// Prefix filters the roster and appends numbered fallbacks.
	got = aliasSuggestions("al")
	assert.Contains(t, got, "alice")
	assert.Contains(t, got, "al-2")
	assert.NotContains(t, got, "bob")

	// Unmatched prefixes still produce fallbacks.
	got = aliasSuggestions("zz")
	assert.Equal(t, "zz-2", got[0])
}
