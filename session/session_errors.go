package session

import "errors"

var (
	OidcUnavailableErr = errors.New("no OIDC provider configured")
)
