// Package oidcsession wraps the external OIDC provider behind the small
// surface the session manager needs: current-user lookup with silent
// renewal, sign-in/sign-out redirect URLs, the callback exchange, and
// lifecycle event subscriptions.
package oidcsession

import (
	"context"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

// User is the slice of the provider session the console reads: the bearer
// access token, its expiry, and the ID-token claims the identity projection
// is derived from.
type User struct {
	AccessToken string
	Expiry      time.Time
	Claims      map[string]any
}

// Expired reports whether the access token's expiry has passed.
func (u *User) Expired(now time.Time) bool {
	return !u.Expiry.After(now)
}

// Config holds the provider settings.
type Config struct {
	IssuerURL    string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string // defaults to openid, profile, email, offline_access
}

// Session is the OIDC session wrapper. One instance serves the process.
type Session struct {
	clientID string
	oauth    *oauth2.Config
	verifier *oidc.IDTokenVerifier

	endSessionEndpoint string
	postLogoutRedirect string

	lock    sync.Mutex
	current *oauth2.Token
	claims  map[string]any

	onUserLoaded         []func(*User)
	onUserUnloaded       []func()
	onSilentRenewError   []func(error)
	onAccessTokenExpired []func()

	nowTime func() time.Time
	log     zerolog.Logger
}

// Option modifies a Session instance.
type Option func(*Session)

// WithNowTime sets the now time function (primarily for testing).
func WithNowTime(nowFunc func() time.Time) Option {
	return func(s *Session) {
		s.nowTime = nowFunc
	}
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Session) {
		s.log = logger
	}
}

// WithPostLogoutRedirect sets the URL the provider sends the user back to
// after a sign-out redirect.
func WithPostLogoutRedirect(url string) Option {
	return func(s *Session) {
		s.postLogoutRedirect = url
	}
}

// New discovers the provider and builds a Session.
func New(ctx context.Context, cfg Config, options ...Option) (*Session, error) {
	provider, err := oidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, errors.Wrap(err, "[oidcsession.New] provider discovery")
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{oidc.ScopeOpenID, "profile", "email", oidc.ScopeOfflineAccess}
	}

	var discovered struct {
		EndSessionEndpoint string `json:"end_session_endpoint"`
	}
	if err := provider.Claims(&discovered); err != nil {
		return nil, errors.Wrap(err, "[oidcsession.New] provider metadata")
	}

	session := &Session{
		clientID: cfg.ClientID,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     provider.Endpoint(),
			RedirectURL:  cfg.RedirectURL,
			Scopes:       scopes,
		},
		verifier:           provider.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
		endSessionEndpoint: discovered.EndSessionEndpoint,
		nowTime:            time.Now,
		log:                log.Logger,
	}
	for _, opt := range options {
		opt(session)
	}
	return session, nil
}

// SigninRedirectURL returns the provider's authorization URL. Control leaves
// the application when the caller navigates there; the flow resumes at
// HandleCallback.
func (s *Session) SigninRedirectURL(state string) string {
	return s.oauth.AuthCodeURL(state)
}

// HandleCallback exchanges the authorization code from the provider's
// redirect, verifies the ID token, and activates the session.
func (s *Session) HandleCallback(ctx context.Context, code string) (*User, error) {
	oauthToken, err := s.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, errors.Wrap(err, "[Session.HandleCallback] code exchange")
	}

	rawIDToken, ok := oauthToken.Extra("id_token").(string)
	if !ok {
		return nil, errors.New("[Session.HandleCallback] no id_token in token response")
	}
	idToken, err := s.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, errors.Wrap(err, "[Session.HandleCallback] id token verification")
	}

	claims := map[string]any{}
	if err := idToken.Claims(&claims); err != nil {
		return nil, errors.Wrap(err, "[Session.HandleCallback] claims extraction")
	}

	s.lock.Lock()
	s.current = oauthToken
	s.claims = claims
	user := s.userLocked()
	s.lock.Unlock()

	s.fireUserLoaded(user)
	return user, nil
}

// User returns the current user, silently renewing an expired access token
// through the provider's token endpoint. It returns (nil, nil) when no
// session exists. A failed renewal clears the session, fires the
// silent-renew-error and user-unloaded events, and returns the error.
func (s *Session) User(ctx context.Context) (*User, error) {
	s.lock.Lock()
	if s.current == nil {
		s.lock.Unlock()
		return nil, nil
	}

	if s.current.Expiry.After(s.nowTime()) {
		user := s.userLocked()
		s.lock.Unlock()
		return user, nil
	}

	// Access token expired: attempt a silent renew via the refresh token.
	stale := s.current
	s.lock.Unlock()
	s.fireAccessTokenExpired()

	renewed, err := s.oauth.TokenSource(ctx, stale).Token()
	if err != nil {
		s.log.Warn().Err(err).Msg("oidcsession: silent renew failed")
		s.fireSilentRenewError(err)
		s.Clear()
		return nil, errors.Wrap(err, "[Session.User] silent renew")
	}

	s.lock.Lock()
	// Another caller may have cleared or replaced the session while the
	// renew was in flight; only apply the result if it is still current.
	if s.current != stale {
		user := s.userLocked()
		s.lock.Unlock()
		return user, nil
	}
	s.current = renewed
	user := s.userLocked()
	s.lock.Unlock()

	s.fireUserLoaded(user)
	return user, nil
}

// SignoutRedirectURL returns the provider's end-session URL, or "" when the
// provider does not advertise one.
func (s *Session) SignoutRedirectURL() string {
	if s.endSessionEndpoint == "" {
		return ""
	}
	url := s.endSessionEndpoint + "?client_id=" + s.clientID
	if s.postLogoutRedirect != "" {
		url += "&post_logout_redirect_uri=" + s.postLogoutRedirect
	}
	return url
}

// Clear drops the session and fires the user-unloaded event. Idempotent.
func (s *Session) Clear() {
	s.lock.Lock()
	cleared := s.current != nil
	s.current = nil
	s.claims = nil
	s.lock.Unlock()

	if cleared {
		s.fireUserUnloaded()
	}
}

func (s *Session) userLocked() *User {
	if s.current == nil {
		return nil
	}
	return &User{
		AccessToken: s.current.AccessToken,
		Expiry:      s.current.Expiry,
		Claims:      s.claims,
	}
}
