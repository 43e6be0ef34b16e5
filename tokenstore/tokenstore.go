package tokenstore

import (
	"time"
)

// Pair is the local-auth credential pair: the access/refresh tokens issued by
// the console's own auth endpoint, plus the absolute expiry of the access
// token. A process holds at most one active pair at a time.
type Pair struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// Expired reports whether the access token is expired or will expire within
// the given buffer. The boundary is inclusive: a pair expiring exactly at
// now (with a zero buffer) counts as expired.
func (p *Pair) Expired(buffer time.Duration, now time.Time) bool {
	return !p.ExpiresAt.Add(-buffer).After(now)
}

// Repo persists the credential pair under a single session-scoped key.
// Implementations must not outlive the session: the pair is a bearer
// credential and durable storage would widen its exposure window.
type Repo interface {
	Save(pair *Pair) error
	Get() (*Pair, error) // (nil, nil) when nothing is stored
	Clear() error
}
