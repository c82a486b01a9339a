// Package authgate decides whether a navigation must be redirected based on
// the authentication state. It has no side effects.
package authgate

// Action is the outcome of one evaluation.
type Action int

const (
	NoAction Action = iota
	RedirectSignIn
	RedirectHome
)

func (a Action) String() string {
	switch a {
	case RedirectSignIn:
		return "redirect-sign-in"
	case RedirectHome:
		return "redirect-home"
	default:
		return "none"
	}
}

// Rules names the auth-only route group and the redirect targets.
type Rules struct {
	// AuthGroup is the top-level segment of screens for signed-out users.
	AuthGroup string
	SignIn    string
	Home      string
}

// DefaultRules matches the application's route layout.
var DefaultRules = Rules{
	AuthGroup: "(auth)",
	SignIn:    "/login",
	Home:      "/home",
}

// Decide evaluates the gate with DefaultRules.
func Decide(loggedIn bool, segment string, ready bool) Action {
	return DefaultRules.Decide(loggedIn, segment, ready)
}

// Decide returns at most one redirect. Nothing happens until ready.
func (r Rules) Decide(loggedIn bool, segment string, ready bool) Action {
	inAuthGroup := segment == r.AuthGroup
	switch {
	case !ready:
		return NoAction
	case !loggedIn && !inAuthGroup:
		return RedirectSignIn
	case loggedIn && inAuthGroup:
		return RedirectHome
	default:
		return NoAction
	}
}

// Target returns the path a redirect leads to, or "" for NoAction.
func (r Rules) Target(a Action) string {
	switch a {
	case RedirectSignIn:
		return r.SignIn
	case RedirectHome:
		return r.Home
	default:
		return ""
	}
}
