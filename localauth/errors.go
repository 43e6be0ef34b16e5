package localauth

import "fmt"

// AuthenticationError indicates the login endpoint rejected the supplied
// credentials. Message carries the server's own error text verbatim so the
// UI can show it inline.
type AuthenticationError struct {
	Message    string
	StatusCode int
}

func (e *AuthenticationError) Error() string {
	return e.Message
}

// RefreshError indicates the refresh endpoint rejected the refresh token.
// The session manager never surfaces this to callers; it de-authenticates
// instead.
type RefreshError struct {
	Message    string
	StatusCode int
}

func (e *RefreshError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("localauth: refresh rejected: %s (status %d)", e.Message, e.StatusCode)
	}
	return fmt.Sprintf("localauth: refresh rejected: %s", e.Message)
}

// RegistrationError indicates the register endpoint rejected the request.
// Like login failures it carries the server message verbatim.
type RegistrationError struct {
	Message    string
	StatusCode int
}

func (e *RegistrationError) Error() string {
	return e.Message
}
