package session

import (
	"errors"
	"net/http"
)

var (
	ErrInvalidCredentials = errors.New("session: invalid credentials")
	ErrMissingCredentials = errors.New("session: username and password are required")
	ErrNotAuthenticated   = errors.New("session: not authenticated")
	ErrSuperseded         = errors.New("session: superseded by a newer session change")
)

// Messages used when the server does not provide one.
const (
	msgLoginFailed        = "Login failed. Please check your username and password."
	msgNetworkUnavailable = "Unable to reach the store. Please check your connection and try again."
	msgMissingCredentials = "Please enter both username and password."
)

// AuthError is returned by Login. Message is suitable for display.
type AuthError struct {
	Message    string
	StatusCode int
	Err        error
}

func (e *AuthError) Error() string {
	return e.Message
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// IsAuthError reports whether err carries an *AuthError.
func IsAuthError(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

func isAuthStatus(code int) bool {
	return code == http.StatusUnauthorized || code == http.StatusForbidden
}
