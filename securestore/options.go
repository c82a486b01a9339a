package securestore

import (
	"log/slog"

	"github.com/jmcleod/kycagent/internal/util"
)

// Option configures a Store.
type Option func(*options)

type options struct {
	namespace string
	kdfParams util.Argon2idParams
	logger    *slog.Logger
}

// WithNamespace isolates the store inside a shared repository.
// Default: "__secure".
func WithNamespace(ns string) Option {
	return func(o *options) {
		o.namespace = ns
	}
}

// WithKDFParams sets the Argon2id parameters used when the store is first
// created. Existing stores keep the parameters they were created with.
func WithKDFParams(p util.Argon2idParams) Option {
	return func(o *options) {
		o.kdfParams = p
	}
}

// WithLogger sets the logger for store lifecycle events.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}
