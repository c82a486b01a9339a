// Package navigation keeps the current screen and history, and runs the
// auth gate on every route or session change.
package navigation

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/jmcleod/kycagent/authgate"
	"github.com/jmcleod/kycagent/session"
)

var ErrUnknownRoute = errors.New("unknown route")

// Route is one screen and the group it belongs to.
type Route struct {
	Path  string
	Group string
	Title string
}

const (
	// GroupRoot holds screens outside any group, such as the index.
	GroupRoot = ""
	GroupAuth = "(auth)"
	GroupTabs = "(tabs)"
)

// DefaultRoutes is the application's screen layout.
func DefaultRoutes() []Route {
	return []Route{
		{Path: "/", Group: GroupRoot, Title: "Index"},
		{Path: "/login", Group: GroupAuth, Title: "Login"},
		{Path: "/sign-in", Group: GroupAuth, Title: "Sign In"},
		{Path: "/register", Group: GroupAuth, Title: "Register"},
		{Path: "/home", Group: GroupTabs, Title: "Home"},
		{Path: "/home/createkyc", Group: GroupTabs, Title: "Create KYC"},
		{Path: "/faqs", Group: GroupTabs, Title: "FAQs"},
	}
}

// SessionView is the part of a session the router observes.
type SessionView interface {
	Snapshot() session.Snapshot
	Subscribe(fn func(session.Snapshot)) func()
}

// Redirect describes a navigation performed by the gate.
type Redirect struct {
	From   string
	To     string
	Action authgate.Action
}

// Router is safe for concurrent use. Observers are called outside the lock.
type Router struct {
	mu        sync.Mutex
	routes    map[string]Route
	rules     authgate.Rules
	sess      SessionView
	history   []string
	mounted   bool
	observers []func(Redirect)
	unsub     func()
	logger    *slog.Logger
}

// Option configures a Router.
type Option func(*Router)

// WithRoutes replaces DefaultRoutes.
func WithRoutes(routes []Route) Option {
	return func(r *Router) {
		r.routes = indexRoutes(routes)
	}
}

// WithRules replaces authgate.DefaultRules.
func WithRules(rules authgate.Rules) Option {
	return func(r *Router) {
		r.rules = rules
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Router) {
		r.logger = l
	}
}

func indexRoutes(routes []Route) map[string]Route {
	m := make(map[string]Route, len(routes))
	for _, rt := range routes {
		m[rt.Path] = rt
	}
	return m
}

// New returns an unmounted Router at "/" that follows sess.
func New(sess SessionView, opts ...Option) *Router {
	r := &Router{
		routes:  indexRoutes(DefaultRoutes()),
		rules:   authgate.DefaultRules,
		sess:    sess,
		history: []string{"/"},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	// Notifications can arrive out of order; evaluate the latest state.
	r.unsub = sess.Subscribe(func(session.Snapshot) {
		r.evaluate(r.sess.Snapshot())
	})
	return r
}

// Close stops following the session.
func (r *Router) Close() {
	r.unsub()
}

// Mount marks the navigation tree ready. Until then the gate does nothing.
func (r *Router) Mount() {
	r.mu.Lock()
	r.mounted = true
	r.mu.Unlock()
	r.evaluate(r.sess.Snapshot())
}

// OnRedirect registers fn to be told about every gate redirect.
func (r *Router) OnRedirect(fn func(Redirect)) {
	r.mu.Lock()
	r.observers = append(r.observers, fn)
	r.mu.Unlock()
}

// Push navigates to path, keeping the current screen in history.
func (r *Router) Push(path string) error {
	return r.navigate(path, false)
}

// Replace navigates to path in place of the current screen.
func (r *Router) Replace(path string) error {
	return r.navigate(path, true)
}

// Back returns to the previous screen. It reports false at the root.
func (r *Router) Back() bool {
	r.mu.Lock()
	if len(r.history) < 2 {
		r.mu.Unlock()
		return false
	}
	r.history = r.history[:len(r.history)-1]
	r.mu.Unlock()
	r.evaluate(r.sess.Snapshot())
	return true
}

// Current returns the current path.
func (r *Router) Current() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.history[len(r.history)-1]
}

// Segment returns the group of the current route.
func (r *Router) Segment() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.routes[r.history[len(r.history)-1]].Group
}

// History returns a copy of the navigation stack, oldest first.
func (r *Router) History() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.history...)
}

func clean(path string) string {
	if path != "/" {
		path = strings.TrimRight(path, "/")
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return path
}

func (r *Router) navigate(path string, replace bool) error {
	path = clean(path)
	r.mu.Lock()
	if _, ok := r.routes[path]; !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownRoute, path)
	}
	r.setLocked(path, replace)
	r.mu.Unlock()
	r.evaluate(r.sess.Snapshot())
	return nil
}

func (r *Router) setLocked(path string, replace bool) {
	if replace {
		r.history[len(r.history)-1] = path
		return
	}
	r.history = append(r.history, path)
}

// evaluate applies at most one gate redirect for the current route.
func (r *Router) evaluate(snap session.Snapshot) {
	r.mu.Lock()
	from := r.history[len(r.history)-1]
	segment := r.routes[from].Group
	action := r.rules.Decide(snap.LoggedIn, segment, r.mounted && snap.Ready())
	to := r.rules.Target(action)
	if action == authgate.NoAction || to == from {
		r.mu.Unlock()
		return
	}
	r.setLocked(to, true)
	observers := slices.Clone(r.observers)
	r.mu.Unlock()

	r.logger.Debug("auth gate redirect",
		slog.String("from", from),
		slog.String("to", to),
		slog.String("action", action.String()))
	red := Redirect{From: from, To: to, Action: action}
	for _, fn := range observers {
		fn(red)
	}
}
