package config

import "time"

type SessionConfig interface {
	GetExpiryBuffer() time.Duration
	GetRequestTimeout() time.Duration
	GetConsoleClientID() string
}

type Session struct{}

var _ SessionConfig = Session{}

// GetExpiryBuffer is how long before its stored expiry an access token is
// treated as expiring and refreshed.
func (Session) GetExpiryBuffer() time.Duration {
	return 60 * time.Second
}

func (Session) GetRequestTimeout() time.Duration {
	return 15 * time.Second
}

// GetConsoleClientID selects which resource_access entry supplies client
// roles when projecting an identity from token claims.
func (Session) GetConsoleClientID() string {
	return GetEnv("CONSOLE_CLIENT_ID", "console")
}
