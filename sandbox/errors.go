package sandbox

import (
	"encoding/json"
	"errors"
	"net/http"
)

var (
	ErrUserExists = errors.New("user already exists")
	// ErrInvalidToken is returned for access tokens that are malformed,
	// wrongly signed or expired.
	ErrInvalidToken = errors.New("invalid access token")
)

// ErrorResponse is the body of every failed sandbox call. Message carries
// the user-facing text; Error is a machine-readable code.
type ErrorResponse struct {
	Status  bool   `json:"status"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, ErrorResponse{Error: code, Message: msg})
}

// decodeBody reads a JSON body regardless of the declared content type; the
// client labels its JSON as text/html.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(v)
}
