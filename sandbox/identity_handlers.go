package sandbox

import (
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/jmcleod/kycagent/faq"
	"github.com/jmcleod/kycagent/internal/util"
)

// TokenResponse is returned by a successful credential or refresh exchange.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	UserType     string `json:"user_type"`
}

// StatusResponse is the body of calls that only report success.
type StatusResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message,omitempty"`
	// ResetToken is echoed so a developer can finish a reset without mail.
	ResetToken string `json:"reset_token,omitempty"`
}

func (s *Server) tokensFor(u *user) (*TokenResponse, error) {
	access, err := s.issueAccessToken(u.Username)
	if err != nil {
		return nil, err
	}
	refresh, err := util.RandomToken(32)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.refresh[refresh] = u.Username
	s.mu.Unlock()
	return &TokenResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int(s.tokenTTL.Seconds()),
		Name:         u.Name,
		Email:        u.Email,
		UserType:     u.UserType,
	}, nil
}

// lookup returns a copy of the named user, or nil.
func (s *Server) lookup(username string) *user {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[username]
	if !ok {
		return nil
	}
	cp := *u
	return &cp
}

// GetTokens exchanges a username and password for tokens.
func (s *Server) GetTokens(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
		DB       string `json:"db"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body.")
		return
	}
	if blocked, retry := s.loginLimiter.check(req.Username); blocked {
		writeRateLimited(w, retry)
		return
	}

	u := s.lookup(req.Username)
	if u == nil || bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(req.Password)) != nil {
		s.loginLimiter.recordFailure(req.Username)
		s.logger.Info("sandbox sign-in failed", slog.String("username", req.Username))
		writeJSON(w, http.StatusUnauthorized, map[string]string{
			"error":       "invalid_grant",
			"description": "Wrong login/password",
		})
		return
	}
	s.loginLimiter.recordSuccess(req.Username)

	resp, err := s.tokensFor(u)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	s.logger.Info("sandbox sign-in", slog.String("username", u.Username), slog.String("db", req.DB))
	writeJSON(w, http.StatusOK, resp)
}

// RefreshToken rotates a refresh token.
func (s *Server) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body.")
		return
	}
	s.mu.Lock()
	username, ok := s.refresh[req.RefreshToken]
	delete(s.refresh, req.RefreshToken)
	s.mu.Unlock()
	u := s.lookup(username)
	if !ok || u == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error":       "invalid_grant",
			"description": "Refresh token is invalid or expired.",
		})
		return
	}
	resp, err := s.tokensFor(u)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// TriggerPasswordReset issues a reset token for a known email.
func (s *Server) TriggerPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := decodeBody(w, r, &req); err != nil || req.Email == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "Email is required.")
		return
	}
	if s.lookup(req.Email) == nil {
		writeError(w, http.StatusOK, "unknown_user", "No account is registered with this email.")
		return
	}
	token, err := util.RandomToken(16)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	s.mu.Lock()
	s.resets[token] = req.Email
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, StatusResponse{Status: true, Message: "Password reset token sent.", ResetToken: token})
}

// CheckResetToken reports whether a reset token is outstanding.
func (s *Server) CheckResetToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	_ = decodeBody(w, r, &req)
	s.mu.Lock()
	_, ok := s.resets[req.Token]
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusOK, "invalid_reset_token", "Reset token is invalid or has expired.")
		return
	}
	writeJSON(w, http.StatusOK, StatusResponse{Status: true, Message: "Reset token is valid."})
}

// ChangePassword completes a reset.
func (s *Server) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token           string `json:"token"`
		Password        string `json:"password"`
		ConfirmPassword string `json:"confirm_password"`
	}
	if err := decodeBody(w, r, &req); err != nil || req.Password == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "Password is required.")
		return
	}
	if req.Password != req.ConfirmPassword {
		writeError(w, http.StatusOK, "password_mismatch", "Passwords do not match.")
		return
	}
	s.mu.Lock()
	username, ok := s.resets[req.Token]
	delete(s.resets, req.Token)
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusOK, "invalid_reset_token", "Reset token is invalid or has expired.")
		return
	}
	if err := s.setPassword(username, req.Password); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, StatusResponse{Status: true, Message: "Password changed."})
}

// ChangeUserPassword changes the password of the token's owner.
func (s *Server) ChangeUserPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OldPassword string `json:"old_password"`
		NewPassword string `json:"new_password"`
	}
	if err := decodeBody(w, r, &req); err != nil || req.NewPassword == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "New password is required.")
		return
	}
	u := s.lookup(usernameFrom(r))
	if bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(req.OldPassword)) != nil {
		writeError(w, http.StatusOK, "wrong_password", "Current password is incorrect.")
		return
	}
	if err := s.setPassword(u.Username, req.NewPassword); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, StatusResponse{Status: true, Message: "Password changed."})
}

func (s *Server) setPassword(username, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if u := s.users[username]; u != nil {
		u.PasswordHash = hash
	}
	return nil
}

// Signup registers a user keyed by email.
func (s *Server) Signup(w http.ResponseWriter, r *http.Request) {
	var req map[string]any
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body.")
		return
	}
	str := func(k string) string {
		v, _ := req[k].(string)
		return strings.TrimSpace(v)
	}
	email, password := str("email"), str("password")
	if email == "" || password == "" || str("name") == "" {
		writeError(w, http.StatusOK, "invalid_request", "Please fill in all required fields.")
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	delete(req, "password")
	delete(req, "confirm_password")

	s.mu.Lock()
	if _, exists := s.users[email]; exists {
		s.mu.Unlock()
		writeError(w, http.StatusOK, "user_exists", "Email already registered.")
		return
	}
	s.users[email] = &user{
		Username:     email,
		Name:         str("name"),
		Email:        email,
		UserType:     str("user_type"),
		PasswordHash: hash,
		Profile:      req,
	}
	s.mu.Unlock()

	s.logger.Info("sandbox signup", slog.String("email", email), slog.String("user_type", str("user_type")))
	writeJSON(w, http.StatusOK, StatusResponse{Status: true, Message: "Registration successful. Please sign in."})
}

// FAQs returns the built-in FAQ list.
func (s *Server) FAQs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": true, "faqs": faq.Builtin()})
}
