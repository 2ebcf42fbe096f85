package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beadhub/beadhub/internal/apperr"
)

func TestMintKey(t *testing.T) {
	key, err := MintKey()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(key, KeyPrefix))
	assert.Len(t, key, len(KeyPrefix)+keyEntropyChars)
	for _, ch := range key[len(KeyPrefix):] {
		assert.Contains(t, base62, string(ch))
	}

	other, err := MintKey()
	require.NoError(t, err)
	assert.NotEqual(t, key, other)
}

func TestHashKey(t *testing.T) {
	h := HashKey("aw_sk_example")
	assert.Len(t, h, 64)
	assert.Equal(t, h, HashKey("aw_sk_example"))
	assert.NotEqual(t, h, HashKey("aw_sk_other"))
}

func TestProxyHeaderRoundTrip(t *testing.T) {
	r := NewResolver(nil, "secret")
	header := BuildProxyHeader("proj-1", PrincipalUser, "user-9", "actor-9", "secret")

	id, err := r.ResolveProxy(header)
	require.NoError(t, err)
	assert.Equal(t, "proj-1", id.ProjectID)
	assert.Equal(t, PrincipalUser, id.PrincipalType)
	assert.Equal(t, "user-9", id.PrincipalID)
	assert.Equal(t, "actor-9", id.ActorID)
	assert.True(t, id.Proxied)
}

func TestResolveProxy_BadSignature(t *testing.T) {
	r := NewResolver(nil, "secret")
	header := BuildProxyHeader("proj-1", PrincipalUser, "user-9", "actor-9", "wrong-secret")

	_, err := r.ResolveProxy(header)
	require.Error(t, err)
	assert.Equal(t, apperr.Unauthenticated, apperr.KindOf(err))
}

func TestResolveProxy_Malformed(t *testing.T) {
	r := NewResolver(nil, "secret")
	for _, header := range []string{
		"",
		"v2:proj:u:user",
		"v1:proj:u:user:actor:deadbeef",
		"v2:proj:x:user:actor:deadbeef",
	} {
		_, err := r.ResolveProxy(header)
		assert.Error(t, err, "header %q", header)
	}
}

func TestResolveProxy_DisabledWithoutSecret(t *testing.T) {
	r := NewResolver(nil, "")
	assert.False(t, r.ProxyEnabled())

	header := BuildProxyHeader("proj-1", PrincipalUser, "user-9", "actor-9", "anything")
	_, err := r.ResolveProxy(header)
	assert.Error(t, err)
}

func TestResolveProxy_PublicPrincipal(t *testing.T) {
	r := NewResolver(nil, "secret")
	header := BuildProxyHeader("proj-1", PrincipalPublic, "", "", "secret")

	id, err := r.ResolveProxy(header)
	require.NoError(t, err)
	assert.True(t, id.PublicReader())
}

func TestBindActor(t *testing.T) {
	bound := &Identity{PrincipalType: PrincipalAPIKey, AgentID: "ws-1"}
	assert.NoError(t, bound.BindActor("ws-1"))
	assert.NoError(t, bound.BindActor(""))
	assert.Error(t, bound.BindActor("ws-2"))

	projectScoped := &Identity{PrincipalType: PrincipalAPIKey}
	assert.NoError(t, projectScoped.BindActor("ws-2"))

	proxied := &Identity{PrincipalType: PrincipalUser, AgentID: "ws-1", Proxied: true}
	assert.NoError(t, proxied.BindActor("ws-2"))

	public := &Identity{PrincipalType: PrincipalPublic}
	assert.Error(t, public.BindActor("ws-1"))
}

func TestResolveBearer_RejectsMalformed(t *testing.T) {
	r := NewResolver(nil, "")

	_, err := r.ResolveBearer(nil, "")
	assert.Equal(t, apperr.Unauthenticated, apperr.KindOf(err))

	_, err = r.ResolveBearer(nil, "Basic abc")
	assert.Equal(t, apperr.Unauthenticated, apperr.KindOf(err))

	_, err = r.ResolveBearer(nil, "Bearer not-a-beadhub-key")
	assert.Equal(t, apperr.Unauthenticated, apperr.KindOf(err))
}
