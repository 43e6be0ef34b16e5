package tokenstore

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

// Store wraps a Repo with the credential-pair lifecycle operations the
// session manager needs. Every storage failure is caught here, logged, and
// treated as "no durable effect": reads degrade to a nil pair and writes
// become no-ops, so callers never see a storage error.
type Store struct {
	repo Repo
	log  zerolog.Logger
}

// StoreOption modifies a Store instance.
type StoreOption func(*Store)

// WithLogger sets the logger used for swallowed storage failures.
func WithLogger(logger zerolog.Logger) StoreOption {
	return func(s *Store) {
		s.log = logger
	}
}

// NewStore creates a Store over the given repo.
func NewStore(repo Repo, options ...StoreOption) *Store {
	store := &Store{
		repo: repo,
		log:  log.Logger,
	}
	for _, opt := range options {
		opt(store)
	}
	return store
}

// StoreTokens replaces the credential pair with a freshly issued one.
// expiresIn is the server-reported access token lifetime in seconds.
func (s *Store) StoreTokens(accessToken, refreshToken string, expiresIn int64) {
	pair := &Pair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    NowTimeFunc().Add(time.Duration(expiresIn) * time.Second),
	}
	if err := s.repo.Save(pair); err != nil {
		s.log.Error().Err(err).Msg("tokenstore: failed to save credential pair")
	}
}

// UpdateAccessToken replaces the access token and expiry after a refresh,
// preserving the refresh token unchanged. A missing stored pair makes this
// a no-op.
func (s *Store) UpdateAccessToken(accessToken string, expiresIn int64) {
	pair := s.Tokens()
	if pair == nil {
		return
	}
	pair.AccessToken = accessToken
	pair.ExpiresAt = NowTimeFunc().Add(time.Duration(expiresIn) * time.Second)
	if err := s.repo.Save(pair); err != nil {
		s.log.Error().Err(err).Msg("tokenstore: failed to update access token")
	}
}

// Tokens returns the stored pair, or nil when nothing is stored or the
// read failed.
func (s *Store) Tokens() *Pair {
	pair, err := s.repo.Get()
	if err != nil {
		s.log.Error().Err(err).Msg("tokenstore: failed to read credential pair")
		return nil
	}
	return pair
}

// Clear erases the credential pair. Idempotent; failures are logged and
// swallowed so logout always succeeds locally.
func (s *Store) Clear() {
	if err := s.repo.Clear(); err != nil {
		s.log.Error().Err(err).Msg("tokenstore: failed to clear credential pair")
	}
}
