package session

import "errors"

var (
	ErrAlreadyBooted = errors.New("session already booted")
	// ErrMissingToken is returned when user details carry no access_token.
	ErrMissingToken     = errors.New("user details carry no access token")
	ErrNotAuthenticated = errors.New("session is not authenticated")
	// ErrTokenNotCleared is returned by Logout when the persisted token could
	// not be deleted. The in-memory session is logged out regardless.
	ErrTokenNotCleared = errors.New("persisted token not cleared")
)
