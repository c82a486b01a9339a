package app

import "errors"

var (
	// ErrBusy is returned when the same form is submitted again before the
	// previous submission finished.
	ErrBusy = errors.New("a submission is already in progress")
	// ErrNoRefreshToken is returned by Refresh when no refresh token is stored.
	ErrNoRefreshToken = errors.New("no refresh token stored")
)
