package api

import (
	"errors"
	"fmt"
)

var (
	// ErrConnectivity matches failures where the server could not be reached
	// (DNS, refused connection, timeout).
	ErrConnectivity = errors.New("server not reachable")
	// ErrRejected matches responses that did not carry the expected success
	// shape, malformed bodies included.
	ErrRejected = errors.New("request rejected")
	// ErrPrecondition matches client-side validation failures raised before
	// any network call.
	ErrPrecondition = errors.New("precondition failed")
	// ErrUnsupportedMethod is returned for methods other than GET, POST and PUT.
	ErrUnsupportedMethod = errors.New("unsupported HTTP method")
	// ErrTokenRejected is returned when the server refuses the session token
	// sent in the accessToken header.
	ErrTokenRejected = errors.New("session token rejected")
)

// ConnectionMessage is shown for every connectivity failure.
const ConnectionMessage = "Server not reachable. Please check your connection."

// FailureKind classifies a failed user action.
type FailureKind int

const (
	KindConnectivity FailureKind = iota + 1
	KindRejected
	KindPrecondition
)

func (k FailureKind) String() string {
	switch k {
	case KindConnectivity:
		return "connectivity"
	case KindRejected:
		return "rejected"
	case KindPrecondition:
		return "precondition"
	default:
		return fmt.Sprintf("FailureKind(%d)", int(k))
	}
}

func (k FailureKind) sentinel() error {
	switch k {
	case KindConnectivity:
		return ErrConnectivity
	case KindRejected:
		return ErrRejected
	default:
		return ErrPrecondition
	}
}

// Failure is a terminal failure of one user action. Message is the text to
// present to the user; Err, when set, is the underlying cause.
type Failure struct {
	Kind    FailureKind
	Message string
	Err     error
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%s: %s: %v", f.Kind, f.Message, f.Err)
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

// Unwrap exposes both the kind sentinel and the cause to errors.Is.
func (f *Failure) Unwrap() []error {
	if f.Err != nil {
		return []error{f.Kind.sentinel(), f.Err}
	}
	return []error{f.Kind.sentinel()}
}

// Precondition returns a local validation failure.
func Precondition(format string, args ...any) *Failure {
	return &Failure{Kind: KindPrecondition, Message: fmt.Sprintf(format, args...)}
}

// Rejected returns a rejection carrying msg.
func Rejected(msg string) *Failure {
	return &Failure{Kind: KindRejected, Message: msg}
}

// Connectivity returns a connectivity failure caused by err.
func Connectivity(err error) *Failure {
	return &Failure{Kind: KindConnectivity, Message: ConnectionMessage, Err: err}
}

// UserMessage returns the text to present for err: the Failure message when
// err is a Failure, otherwise err's own text.
func UserMessage(err error) string {
	var f *Failure
	if errors.As(err, &f) {
		return f.Message
	}
	return err.Error()
}
