package api

import (
	"regexp"

	"github.com/beadhub/beadhub/internal/apperr"
)

// Field bounds enforced at the boundary.
const (
	maxRoleLen    = 50
	maxSubjectLen = 200
	maxBodyBytes  = 64 * 1024
	maxBeadIDLen  = 64
)

var (
	aliasRe = regexp.MustCompile(`^[a-z][a-z0-9-]{0,39}$`)
	slugRe  = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{0,63}$`)
)

func validateAlias(alias string) error {
	if !aliasRe.MatchString(alias) {
		return apperr.New(apperr.Validation,
			"alias must match ^[a-z][a-z0-9-]{0,39}$").
			WithFields(map[string]any{"alias": alias})
	}
	return nil
}

func validateSlug(slug string) error {
	if !slugRe.MatchString(slug) {
		return apperr.New(apperr.Validation, "invalid project slug %q", slug)
	}
	return nil
}

func validateRole(role string) error {
	if len(role) > maxRoleLen {
		return apperr.New(apperr.Validation, "role exceeds %d characters", maxRoleLen)
	}
	return nil
}

func validateBeadID(beadID string) error {
	if beadID == "" {
		return apperr.New(apperr.Validation, "bead_id is required")
	}
	if len(beadID) > maxBeadIDLen {
		return apperr.New(apperr.Validation, "bead_id exceeds %d characters", maxBeadIDLen)
	}
	return nil
}
