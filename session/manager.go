// Package session resolves "what bearer token, if any, should decorate
// outgoing requests". It juggles two independent credential sources, the
// console's self-issued JWT pair and an external OIDC provider session,
// with transparent refresh and graceful fallback. At most one source is
// active at any instant.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/nimbusadmin/console-sdk/identity"
	"github.com/nimbusadmin/console-sdk/localauth"
	"github.com/nimbusadmin/console-sdk/oidcsession"
	"github.com/nimbusadmin/console-sdk/token"
	"github.com/nimbusadmin/console-sdk/tokenstore"
)

// Provider identifies which credential source is currently active. It is
// derived, never stored: switching sources fully tears down the other one
// first.
type Provider string

const (
	ProviderNone  Provider = ""
	ProviderLocal Provider = "local"
	ProviderOidc  Provider = "oidc"
)

// defaultExpiryBuffer is how long before the stored expiry a local access
// token is treated as expiring.
const defaultExpiryBuffer = 60 * time.Second

// LocalAuthAPI is the local-auth collaborator surface the manager consumes.
// *localauth.Client satisfies it.
type LocalAuthAPI interface {
	Login(ctx context.Context, email, password string) (*localauth.TokenResponse, error)
	Refresh(ctx context.Context, refreshToken string) (*localauth.RefreshResponse, error)
	Logout(ctx context.Context, refreshToken, bearer string) error
	Register(ctx context.Context, req localauth.RegisterRequest) (*localauth.RegisterResponse, error)
}

// OidcSource is the OIDC collaborator surface the manager consumes.
// *oidcsession.Session satisfies it. The manager treats it as opaque.
type OidcSource interface {
	User(ctx context.Context) (*oidcsession.User, error)
	HandleCallback(ctx context.Context, code string) (*oidcsession.User, error)
	SigninRedirectURL(state string) string
	SignoutRedirectURL() string
	Clear()
}

// Manager is the session/token manager. Construct one per process and pass
// it by reference to every consumer that needs the current session.
type Manager struct {
	store *tokenstore.Store
	api   LocalAuthAPI
	oidc  OidcSource // nil when no provider is configured

	clientID string
	buffer   time.Duration
	nowTime  func() time.Time
	log      zerolog.Logger

	lock      sync.Mutex
	provider  Provider
	identity  *identity.Identity
	resolvers []sessionResolver
}

// ManagerOption modifies a Manager instance.
type ManagerOption func(*Manager)

// WithNowTime sets the now time function (primarily for testing).
func WithNowTime(nowFunc func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowTime = nowFunc
	}
}

// WithExpiryBuffer sets how long before expiry a token counts as expiring.
func WithExpiryBuffer(buffer time.Duration) ManagerOption {
	return func(m *Manager) {
		m.buffer = buffer
	}
}

// WithClientID sets the OAuth client whose resource_access entry supplies
// the identity's client roles.
func WithClientID(clientID string) ManagerOption {
	return func(m *Manager) {
		m.clientID = clientID
	}
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) ManagerOption {
	return func(m *Manager) {
		m.log = logger
	}
}

// NewManager initializes a Manager with its required dependencies. oidc may
// be nil when no external provider is configured.
func NewManager(store *tokenstore.Store, api LocalAuthAPI, oidc OidcSource, options ...ManagerOption) (*Manager, error) {
	if store == nil {
		return nil, errors.New("[NewManager] token store is required")
	}
	if api == nil {
		return nil, errors.New("[NewManager] local auth API is required")
	}

	manager := &Manager{
		store:    store,
		api:      api,
		oidc:     oidc,
		clientID: "console",
		buffer:   defaultExpiryBuffer,
		nowTime:  time.Now,
		log:      log.Logger,
	}
	for _, opt := range options {
		opt(manager)
	}

	// Ordered fallback chain: local candidacy is checked before OIDC.
	manager.resolvers = []sessionResolver{
		manager.resolveLocalSession,
		manager.resolveOidcSession,
	}
	return manager, nil
}

// Initialize restores whichever session survives process start: the local
// credential pair first, then the OIDC session, defaulting to
// unauthenticated when neither resolves.
func (m *Manager) Initialize(ctx context.Context) {
	for _, resolve := range m.resolvers {
		if resolve(ctx) {
			return
		}
	}
	m.setUnauthenticated()
}

// ResolveAuthorizationToken returns the bearer token that should decorate
// outgoing requests, or "" when unauthenticated. The local pair wins when
// present and not expiring within the buffer; otherwise a non-expired OIDC
// token; otherwise "". It never triggers a refresh and never fails.
func (m *Manager) ResolveAuthorizationToken(ctx context.Context) string {
	if pair := m.store.Tokens(); pair != nil && !pair.Expired(m.buffer, m.nowTime()) {
		return pair.AccessToken
	}
	if m.oidc != nil {
		if user, err := m.oidc.User(ctx); err == nil && user != nil && !user.Expired(m.nowTime()) {
			return user.AccessToken
		}
	}
	return ""
}

// AccessToken returns a currently-valid bearer token, refreshing the local
// pair when it is expiring and a refresh token is present. At most one
// refresh attempt is made per call. A failed refresh fully de-authenticates
// and yields "" rather than an error: this is called from request-decoration
// code that cannot sensibly handle exceptions.
func (m *Manager) AccessToken(ctx context.Context) string {
	pair := m.store.Tokens()
	if pair != nil {
		if !pair.Expired(m.buffer, m.nowTime()) {
			return pair.AccessToken
		}
		if pair.RefreshToken != "" {
			return m.refreshLocalToken(ctx, pair)
		}
		// Expired with nothing to refresh with: fall through to OIDC.
	}

	if m.oidc != nil {
		user, err := m.oidc.User(ctx)
		if err != nil {
			// The OIDC wrapper already cleared itself on a failed renew.
			m.log.Warn().Err(err).Msg("session: OIDC session unavailable")
			if m.ActiveProvider() == ProviderOidc {
				m.setUnauthenticated()
			}
			return ""
		}
		if user != nil && !user.Expired(m.nowTime()) {
			return user.AccessToken
		}
	}
	return ""
}

// refreshLocalToken performs the single refresh attempt. The result is only
// applied if the stored pair's refresh token is unchanged: the user may have
// logged out (or switched providers) while the call was in flight, and a
// stale completion must not resurrect the session.
func (m *Manager) refreshLocalToken(ctx context.Context, pair *tokenstore.Pair) string {
	refreshed, err := m.api.Refresh(ctx, pair.RefreshToken)
	if err != nil {
		m.log.Warn().Err(err).Msg("session: token refresh failed, de-authenticating")
		m.store.Clear()
		m.setUnauthenticated()
		return ""
	}

	current := m.store.Tokens()
	if current == nil || current.RefreshToken != pair.RefreshToken {
		return ""
	}

	m.store.UpdateAccessToken(refreshed.AccessToken, refreshed.ExpiresIn)
	m.setIdentity(identity.FromClaims(token.DecodePayload(refreshed.AccessToken), m.clientID), ProviderLocal)
	return refreshed.AccessToken
}

// LoginLocal authenticates against the local-auth endpoint and activates a
// local session. Rejected credentials surface to the caller with the
// server's message verbatim and leave any live OIDC session untouched; the
// other source is only torn down once the credentials are accepted.
func (m *Manager) LoginLocal(ctx context.Context, email, password string) error {
	tokenResponse, err := m.api.Login(ctx, email, password)
	if err != nil {
		return err
	}

	if m.oidc != nil {
		m.oidc.Clear()
	}
	m.store.StoreTokens(tokenResponse.AccessToken, tokenResponse.RefreshToken, tokenResponse.ExpiresIn)
	m.setIdentity(identity.FromClaims(token.DecodePayload(tokenResponse.AccessToken), m.clientID), ProviderLocal)
	return nil
}

// LoginOidc starts the provider's redirect-based sign-in flow and returns
// the URL the caller must navigate to. No token is available until the
// redirect completes at CompleteOidcLogin, which also performs the switch:
// an abandoned redirect leaves the current session intact.
func (m *Manager) LoginOidc(state string) (string, error) {
	if m.oidc == nil {
		return "", OidcUnavailableErr
	}
	return m.oidc.SigninRedirectURL(state), nil
}

// CompleteOidcLogin finishes the redirect flow with the authorization code
// from the provider and activates the OIDC session.
func (m *Manager) CompleteOidcLogin(ctx context.Context, code string) error {
	if m.oidc == nil {
		return OidcUnavailableErr
	}
	user, err := m.oidc.HandleCallback(ctx, code)
	if err != nil {
		return errors.Wrap(err, "[Manager.CompleteOidcLogin] callback")
	}
	m.store.Clear()
	m.setIdentity(identity.FromClaims(user.Claims, m.clientID), ProviderOidc)
	return nil
}

// Logout ends the active session. For an OIDC session it returns the
// provider's sign-out redirect URL for the caller to navigate to; for a
// local session it best-effort revokes the refresh token (failures are
// logged, never surfaced — logout always succeeds locally) and returns "".
func (m *Manager) Logout(ctx context.Context) string {
	if m.ActiveProvider() == ProviderOidc && m.oidc != nil {
		signoutURL := m.oidc.SignoutRedirectURL()
		m.oidc.Clear()
		m.setUnauthenticated()
		return signoutURL
	}

	if pair := m.store.Tokens(); pair != nil && pair.RefreshToken != "" {
		if err := m.api.Logout(ctx, pair.RefreshToken, pair.AccessToken); err != nil {
			m.log.Warn().Err(err).Msg("session: remote revoke failed during logout")
		}
	}
	m.store.Clear()
	m.setUnauthenticated()
	return ""
}

// Register passes a registration request through to the local-auth
// endpoint. Failures surface to the caller so the UI can show a message.
func (m *Manager) Register(ctx context.Context, req localauth.RegisterRequest) (*localauth.RegisterResponse, error) {
	return m.api.Register(ctx, req)
}

// Identity returns the parsed identity of the active session, or nil.
func (m *Manager) Identity() *identity.Identity {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.identity
}

// ActiveProvider returns which credential source is currently active.
func (m *Manager) ActiveProvider() Provider {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.provider
}

func (m *Manager) setIdentity(id *identity.Identity, provider Provider) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.identity = id
	m.provider = provider
}

func (m *Manager) setUnauthenticated() {
	m.setIdentity(nil, ProviderNone)
}
