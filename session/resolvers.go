package session

import (
	"context"

	"github.com/nimbusadmin/console-sdk/identity"
	"github.com/nimbusadmin/console-sdk/token"
)

// sessionResolver is one strategy in the ordered fallback chain tried at
// initialization. It reports whether it activated a session.
type sessionResolver func(ctx context.Context) bool

// resolveLocalSession activates a local session when a credential pair is
// stored. An expired access token still qualifies as long as the pair
// exists: the refresh path revalidates it on first use.
func (m *Manager) resolveLocalSession(_ context.Context) bool {
	pair := m.store.Tokens()
	if pair == nil {
		return false
	}
	m.setIdentity(identity.FromClaims(token.DecodePayload(pair.AccessToken), m.clientID), ProviderLocal)
	return true
}

// resolveOidcSession activates an OIDC session when the provider wrapper
// still holds a user.
func (m *Manager) resolveOidcSession(ctx context.Context) bool {
	if m.oidc == nil {
		return false
	}
	user, err := m.oidc.User(ctx)
	if err != nil || user == nil {
		return false
	}
	m.setIdentity(identity.FromClaims(user.Claims, m.clientID), ProviderOidc)
	return true
}
