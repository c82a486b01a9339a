package sandbox

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/golang-jwt/jwt/v5"

	"github.com/jmcleod/kycagent/api"
	"github.com/jmcleod/kycagent/internal/uuid"
)

const issuer = "kycagent-sandbox"

type ctxKey int

const usernameKey ctxKey = 0

// issueAccessToken returns a signed HS256 token for username.
func (s *Server) issueAccessToken(username string) (string, error) {
	now := s.now()
	claims := jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   username,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
		ID:        uuid.New(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signingKey)
	if err != nil {
		return "", fmt.Errorf("signing access token: %w", err)
	}
	return signed, nil
}

// parseAccessToken validates raw and returns its subject.
func (s *Server) parseAccessToken(raw string) (string, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		return s.signingKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	return claims.Subject, nil
}

// requireToken rejects requests whose accessToken header does not carry a
// valid token for a known user.
func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username, err := s.parseAccessToken(r.Header.Get(api.HeaderAccessToken))
		if err == nil {
			s.mu.Lock()
			_, known := s.users[username]
			s.mu.Unlock()
			if !known {
				err = ErrInvalidToken
			}
		}
		if err != nil {
			s.logger.Debug("access token rejected", slog.String("path", r.URL.Path), slog.String("error", err.Error()))
			writeError(w, http.StatusUnauthorized, "invalid_token", "Session expired. Please sign in again.")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), usernameKey, username)))
	})
}

func usernameFrom(r *http.Request) string {
	u, _ := r.Context().Value(usernameKey).(string)
	return u
}
