package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/beadhub/beadhub/internal/apperr"
)

// Signed-proxy header names. A trusted gateway terminates public auth and
// injects these; the signature makes the mirror headers trustworthy.
const (
	HeaderProxyAuth = "X-BH-Auth"
	HeaderProjectID = "X-Project-ID"
	HeaderUserID    = "X-User-ID"
	HeaderAPIKeyID  = "X-API-Key"
	HeaderActorID   = "X-Aweb-Actor-ID"
)

const proxyVersion = "v2"

// signProxyPayload computes the hex HMAC-SHA256 of the unsigned header body.
func signProxyPayload(payload, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// BuildProxyHeader assembles a signed X-BH-Auth value. Used by the test
// suite and by operators wiring a gateway.
func BuildProxyHeader(projectID, principalType, principalID, actorID, secret string) string {
	payload := strings.Join([]string{proxyVersion, projectID, principalType, principalID, actorID}, ":")
	return payload + ":" + signProxyPayload(payload, secret)
}

// ResolveProxy verifies and parses a signed proxy header. The mirror headers
// are informational; this value is authoritative.
func (r *Resolver) ResolveProxy(header string) (*Identity, error) {
	if r.proxySecret == "" {
		return nil, apperr.New(apperr.Unauthenticated, "proxy auth is not enabled")
	}
	parts := strings.Split(header, ":")
	if len(parts) != 6 || parts[0] != proxyVersion {
		return nil, apperr.New(apperr.Unauthenticated, "malformed proxy auth header")
	}
	payload := strings.Join(parts[:5], ":")
	want := signProxyPayload(payload, r.proxySecret)
	if !hmac.Equal([]byte(want), []byte(parts[5])) {
		return nil, apperr.New(apperr.Unauthenticated, "invalid proxy auth signature")
	}

	ptype := parts[2]
	switch ptype {
	case PrincipalUser, PrincipalAPIKey, PrincipalPublic:
	default:
		return nil, apperr.New(apperr.Unauthenticated, "unknown principal type %q", ptype)
	}
	return &Identity{
		ProjectID:     parts[1],
		PrincipalType: ptype,
		PrincipalID:   parts[3],
		ActorID:       parts[4],
		Proxied:       true,
	}, nil
}
