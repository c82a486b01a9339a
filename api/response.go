package api

import (
	"encoding/json"
	"net/http"
	"slices"
)

// Token rejection markers recognised in the body's error or code field.
var tokenRejectionCodes = []string{"invalid_token", "token_expired", "expired_token"}

// Response is a decoded API response. Callers classify it by body shape;
// StatusCode is kept only for token-rejection detection and diagnostics.
type Response struct {
	StatusCode int
	Body       map[string]any
	Raw        []byte
	// Malformed is set when the body was not a JSON object.
	Malformed bool
}

// connectionErrorResponse is the shape produced for transport failures. It is
// the same shape a gateway in front of the backend returns when it cannot
// reach it, so both are classified identically.
func connectionErrorResponse(err error) *Response {
	return &Response{Body: map[string]any{
		"error":           err.Error(),
		"connectionError": true,
	}}
}

// AccessToken returns the body's access_token when it is a non-empty string.
func (r *Response) AccessToken() string {
	return r.String("access_token")
}

// ConnectionError reports whether the body carries a truthy connectionError.
func (r *Response) ConnectionError() bool {
	return Truthy(r.Body["connectionError"])
}

// Status reports whether the body carries a truthy status.
func (r *Response) Status() bool {
	return Truthy(r.Body["status"])
}

// Message returns the server-supplied message, falling back to description.
func (r *Response) Message() string {
	if m := r.String("message"); m != "" {
		return m
	}
	return r.String("description")
}

// String returns Body[key] if it is a string.
func (r *Response) String(key string) string {
	s, _ := r.Body[key].(string)
	return s
}

// Decode unmarshals the raw body into v.
func (r *Response) Decode(v any) error {
	return json.Unmarshal(r.Raw, v)
}

// TokenRejected reports whether the server refused the session token.
func (r *Response) TokenRejected() bool {
	if r.StatusCode == http.StatusUnauthorized || r.StatusCode == http.StatusForbidden {
		return true
	}
	return slices.Contains(tokenRejectionCodes, r.String("error")) ||
		slices.Contains(tokenRejectionCodes, r.String("code"))
}

// Failure maps a response that lacks the caller's success shape onto the
// failure taxonomy. fallback is used when the server sent no message.
func (r *Response) Failure(fallback string) *Failure {
	if r.ConnectionError() {
		return &Failure{Kind: KindConnectivity, Message: ConnectionMessage}
	}
	msg := r.Message()
	if msg == "" {
		msg = fallback
	}
	return Rejected(msg)
}

// Truthy follows the loose truthiness the backend relies on: false, 0, ""
// and null are false, everything else is true.
func Truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case float64:
		return t != 0
	default:
		return true
	}
}
