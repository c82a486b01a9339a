package securestore

import (
	"errors"

	"github.com/jmcleod/kycagent/storage"
)

var (
	// ErrNotFound is returned by Get and Delete for a key that holds no value.
	ErrNotFound = storage.ErrNotFound
	// ErrWrongSecret indicates the store exists but the secret does not unlock it.
	ErrWrongSecret = errors.New("secure store secret does not match")
	// ErrEmptySecret is returned by Open when no secret is supplied.
	ErrEmptySecret = errors.New("secure store secret must not be empty")
	// ErrEmptyKey is returned when a value is addressed by an empty key.
	ErrEmptyKey = errors.New("secure store key must not be empty")
)
