// Package auth resolves request identity. Two modes exist: signed-proxy
// headers from a trusted gateway, and bearer API keys minted at workspace
// registration. Every resolved identity is scoped to exactly one project.
package auth

import (
	"context"
	"strings"

	"github.com/beadhub/beadhub/internal/apperr"
	"github.com/beadhub/beadhub/internal/database"
)

// Principal types carried by the signed-proxy header.
const (
	PrincipalUser   = "u"
	PrincipalAPIKey = "k"
	PrincipalPublic = "p"
)

// Identity is the resolved caller.
type Identity struct {
	ProjectID     string
	PrincipalType string
	PrincipalID   string
	// AgentID is the workspace the credential is bound to. Empty for
	// project-scoped keys and non-key principals.
	AgentID string
	// ActorID is who acted through the principal (proxy mode).
	ActorID string
	// Proxied is true when the identity came from the signed header.
	Proxied bool
}

// PublicReader reports whether the caller is the anonymous public principal.
func (id *Identity) PublicReader() bool {
	return id.PrincipalType == PrincipalPublic
}

// BindActor enforces that a bearer-mode caller writes only as itself. A body
// naming another workspace is forbidden unless the key is project-scoped,
// which internal proxy traffic uses.
func (id *Identity) BindActor(workspaceID string) error {
	if id.PublicReader() {
		return apperr.New(apperr.Forbidden, "public readers cannot write")
	}
	if id.Proxied || id.AgentID == "" {
		return nil
	}
	if workspaceID != "" && workspaceID != id.AgentID {
		return apperr.New(apperr.Forbidden,
			"credential is bound to another workspace")
	}
	return nil
}

// Resolver turns request credentials into an Identity.
type Resolver struct {
	db          *database.Database
	proxySecret string
}

// NewResolver builds a resolver. proxySecret empty disables proxy mode.
func NewResolver(db *database.Database, proxySecret string) *Resolver {
	return &Resolver{db: db, proxySecret: proxySecret}
}

// ProxyEnabled reports whether signed-proxy headers are honoured.
func (r *Resolver) ProxyEnabled() bool { return r.proxySecret != "" }

// ResolveBearer authenticates an Authorization header value.
func (r *Resolver) ResolveBearer(ctx context.Context, authorization string) (*Identity, error) {
	const prefix = "Bearer "
	if !strings.HasPrefix(authorization, prefix) {
		return nil, apperr.New(apperr.Unauthenticated, "missing bearer credentials")
	}
	token := strings.TrimSpace(authorization[len(prefix):])
	if !strings.HasPrefix(token, KeyPrefix) {
		return nil, apperr.New(apperr.Unauthenticated, "invalid API key")
	}

	rec, err := r.db.LookupKeyHash(ctx, HashKey(token))
	if err != nil {
		return nil, err
	}
	id := &Identity{
		ProjectID:     rec.ProjectID,
		PrincipalType: PrincipalAPIKey,
		PrincipalID:   rec.KeyID,
	}
	if rec.AgentID != nil {
		id.AgentID = *rec.AgentID
		id.ActorID = *rec.AgentID
	}
	return id, nil
}
