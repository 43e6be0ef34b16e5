// Package token decodes bearer tokens on the client side. The console never
// verifies signatures locally (that is the server's job); it only extracts
// the payload claims of tokens it already holds.
package token

import (
	jwtlib "github.com/golang-jwt/jwt/v5"
)

// DecodePayload decodes the payload segment of a three-part dot-delimited
// JWT without verifying its signature. It returns nil when the token is
// malformed in any way: wrong segment count, invalid base64url, or invalid
// JSON. Callers treat nil as "could not derive identity"; nothing is thrown.
func DecodePayload(rawToken string) map[string]any {
	parsed, _, err := jwtlib.NewParser().ParseUnverified(rawToken, jwtlib.MapClaims{})
	if err != nil {
		return nil
	}
	claims, ok := parsed.Claims.(jwtlib.MapClaims)
	if !ok {
		return nil
	}
	return claims
}
