// Package session holds the client's authentication state and keeps the
// persisted session token in step with it.
//
// A Session starts Uninitialized. Boot moves it to Loading and then, from
// the token found in the store, to Authenticated or Unauthenticated. The
// stored token is trusted without asking the server; a rejected token is
// detected on the next authenticated call and handled with Expire.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"

	"github.com/jmcleod/kycagent/securestore"
)

// TokenKey is the store key holding the session token.
const TokenKey = "session_token"

// State is the lifecycle state of a Session.
type State int

const (
	Uninitialized State = iota
	Loading
	Authenticated
	Unauthenticated
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Loading:
		return "loading"
	case Authenticated:
		return "authenticated"
	case Unauthenticated:
		return "unauthenticated"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Details is the identity payload returned by the server. Only access_token
// is interpreted.
type Details map[string]any

// AccessToken returns the access_token field if it is a non-empty string.
func (d Details) AccessToken() string {
	t, _ := d["access_token"].(string)
	return t
}

// TokenStore persists the session token.
type TokenStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Snapshot is a copy of the session state at one point in time.
type Snapshot struct {
	State       State
	LoggedIn    bool
	UserDetails Details
}

// Ready reports whether the session has finished booting.
func (s Snapshot) Ready() bool {
	return s.State == Authenticated || s.State == Unauthenticated
}

// Session is the authentication state of one application instance. It is
// safe for concurrent use; listeners are called outside the lock.
type Session struct {
	mu        sync.Mutex
	store     TokenStore
	logger    *slog.Logger
	state     State
	details   Details
	listeners map[int]func(Snapshot)
	nextID    int
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		s.logger = l
	}
}

// New returns an Uninitialized session backed by store.
func New(store TokenStore, opts ...Option) *Session {
	s := &Session{
		store:     store,
		logger:    slog.Default(),
		details:   Details{},
		listeners: make(map[int]func(Snapshot)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Boot reads the persisted token once. A non-empty token yields
// Authenticated with details {access_token: token}; anything else, read
// failures included, yields Unauthenticated.
func (s *Session) Boot(ctx context.Context) error {
	s.mu.Lock()
	if s.state != Uninitialized {
		s.mu.Unlock()
		return ErrAlreadyBooted
	}
	s.state = Loading
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.notify(snap)

	token, err := s.store.Get(ctx, TokenKey)
	if err != nil && !errors.Is(err, securestore.ErrNotFound) {
		s.logger.Warn("reading session token failed", slog.String("error", err.Error()))
		token = ""
	}

	s.mu.Lock()
	if s.state != Loading {
		// Login or Logout completed while the store was being read.
		s.mu.Unlock()
		return nil
	}
	if token != "" {
		s.state = Authenticated
		s.details = Details{"access_token": token}
	} else {
		s.state = Unauthenticated
		s.details = Details{}
	}
	snap = s.snapshotLocked()
	s.mu.Unlock()

	s.logger.Debug("session booted", slog.String("state", snap.State.String()))
	s.notify(snap)
	return nil
}

// Login persists details' access token and marks the session
// Authenticated. Nothing changes if the token is missing or cannot be
// stored.
func (s *Session) Login(ctx context.Context, details Details) error {
	token := details.AccessToken()
	if token == "" {
		return ErrMissingToken
	}

	s.mu.Lock()
	if err := s.store.Set(ctx, TokenKey, token); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("persisting session token: %w", err)
	}
	s.state = Authenticated
	s.details = maps.Clone(details)
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.logger.Info("session authenticated")
	s.notify(snap)
	return nil
}

// UpdateUserDetails replaces the details of an authenticated session. A
// changed access token is persisted first.
func (s *Session) UpdateUserDetails(ctx context.Context, details Details) error {
	token := details.AccessToken()
	if token == "" {
		return ErrMissingToken
	}

	s.mu.Lock()
	if s.state != Authenticated {
		s.mu.Unlock()
		return ErrNotAuthenticated
	}
	if token != s.details.AccessToken() {
		if err := s.store.Set(ctx, TokenKey, token); err != nil {
			s.mu.Unlock()
			return fmt.Errorf("persisting session token: %w", err)
		}
	}
	s.details = maps.Clone(details)
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snap)
	return nil
}

// Logout clears the session and deletes the persisted token. The session is
// Unauthenticated afterwards even if the delete fails; that failure is
// returned wrapped in ErrTokenNotCleared. A token that is already absent is
// not an error.
func (s *Session) Logout(ctx context.Context) error {
	return s.end(ctx, "logout")
}

// Expire ends a session whose token the server has refused.
func (s *Session) Expire(ctx context.Context, reason string) error {
	return s.end(ctx, reason)
}

func (s *Session) end(ctx context.Context, reason string) error {
	s.mu.Lock()
	s.state = Unauthenticated
	s.details = Details{}
	err := s.store.Delete(ctx, TokenKey)
	snap := s.snapshotLocked()
	s.mu.Unlock()

	if err != nil && !errors.Is(err, securestore.ErrNotFound) {
		s.logger.Error("deleting session token failed", slog.String("reason", reason), slog.String("error", err.Error()))
		err = fmt.Errorf("%w: %w", ErrTokenNotCleared, err)
	} else {
		err = nil
	}
	s.logger.Info("session ended", slog.String("reason", reason))
	s.notify(snap)
	return err
}

// Subscribe registers fn to receive a Snapshot after every transition. The
// returned func removes it.
func (s *Session) Subscribe(fn func(Snapshot)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) State() State {
	return s.Snapshot().State
}

// LoggedIn reports whether the session is Authenticated.
func (s *Session) LoggedIn() bool {
	return s.Snapshot().LoggedIn
}

// AccessToken returns the current access token, or "".
func (s *Session) AccessToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.details.AccessToken()
}

// Ready reports whether Boot has completed.
func (s *Session) Ready() bool {
	return s.Snapshot().Ready()
}

func (s *Session) snapshotLocked() Snapshot {
	return Snapshot{
		State:       s.state,
		LoggedIn:    s.state == Authenticated,
		UserDetails: maps.Clone(s.details),
	}
}

func (s *Session) notify(snap Snapshot) {
	s.mu.Lock()
	fns := make([]func(Snapshot), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(snap)
	}
}
