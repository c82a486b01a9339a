// Package identity is the client of the remote identity API: credential
// exchange, token refresh, sign-up and the password flows.
package identity

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/jmcleod/kycagent/api"
)

const (
	EndpointGetTokens      = "/api/auth/get_tokens"
	EndpointRefreshToken   = "/api/auth/refresh_token"
	EndpointTriggerReset   = "/api/trigger_password_reset"
	EndpointCheckReset     = "/api/check_reset_token"
	EndpointSetPassword    = "/api/change_password"
	EndpointChangePassword = "/api/change_user_password"
	EndpointSignup         = "/api/signup"

	DefaultDatabase = "kyc_db"
)

// Fallback messages used when a rejection carries no server message.
const (
	MsgInvalidCredentials = "Invalid email or password."
	MsgRefreshFailed      = "Session could not be refreshed."
	MsgResetFailed        = "Password reset could not be requested."
	MsgInvalidResetToken  = "Reset token is invalid or has expired."
	MsgPasswordNotChanged = "Password could not be changed."
	MsgSignupFailed       = "Registration failed."
)

// Credentials are the username and password submitted at sign-in.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Service calls the identity endpoints through an api.Client.
type Service struct {
	client   *api.Client
	database string
	logger   *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithDatabase sets the db value sent with credential exchanges.
func WithDatabase(db string) Option {
	return func(s *Service) {
		s.database = db
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		s.logger = l
	}
}

// New returns a Service using client.
func New(client *api.Client, opts ...Option) *Service {
	s := &Service{
		client:   client,
		database: DefaultDatabase,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Authenticate exchanges creds for a token. The returned details are the
// full response body and always carry a non-empty access_token.
func (s *Service) Authenticate(ctx context.Context, creds Credentials) (map[string]any, error) {
	if creds.Username == "" || creds.Password == "" {
		return nil, api.Precondition("Please enter your email and password.")
	}
	resp, err := s.client.Do(ctx, api.Request{
		Method:   http.MethodPost,
		Endpoint: EndpointGetTokens,
		Payload: map[string]string{
			"username": creds.Username,
			"password": creds.Password,
			"db":       s.database,
		},
	})
	if err != nil {
		return nil, err
	}
	if resp.AccessToken() == "" {
		s.logger.Info("authentication rejected", slog.Bool("connection_error", resp.ConnectionError()))
		return nil, resp.Failure(MsgInvalidCredentials)
	}
	return resp.Body, nil
}

// RefreshToken exchanges a refresh token for fresh session details.
func (s *Service) RefreshToken(ctx context.Context, refreshToken string) (map[string]any, error) {
	if refreshToken == "" {
		return nil, api.Precondition("No refresh token is available.")
	}
	resp, err := s.client.Do(ctx, api.Request{
		Method:   http.MethodPost,
		Endpoint: EndpointRefreshToken,
		Payload:  map[string]string{"refresh_token": refreshToken},
	})
	if err != nil {
		return nil, err
	}
	if resp.AccessToken() == "" {
		return nil, resp.Failure(MsgRefreshFailed)
	}
	return resp.Body, nil
}

// TriggerPasswordReset asks the server to send a reset token to email.
func (s *Service) TriggerPasswordReset(ctx context.Context, email string) (string, error) {
	if email == "" {
		return "", api.Precondition("Please enter your email.")
	}
	return s.post(ctx, EndpointTriggerReset, "", map[string]string{"email": email}, MsgResetFailed)
}

// CheckResetToken validates a reset token before a new password is set.
func (s *Service) CheckResetToken(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", api.Precondition("Please enter the reset token.")
	}
	return s.post(ctx, EndpointCheckReset, "", map[string]string{"token": token}, MsgInvalidResetToken)
}

// SetNewPassword completes a reset using a valid reset token.
func (s *Service) SetNewPassword(ctx context.Context, token, password, confirm string) (string, error) {
	if token == "" || password == "" {
		return "", api.Precondition("Please fill in all required fields.")
	}
	if password != confirm {
		return "", api.Precondition("Passwords do not match.")
	}
	return s.post(ctx, EndpointSetPassword, "", map[string]string{
		"token":            token,
		"password":         password,
		"confirm_password": confirm,
	}, MsgPasswordNotChanged)
}

// ChangeUserPassword changes the password of the signed-in user.
func (s *Service) ChangeUserPassword(ctx context.Context, accessToken, oldPassword, newPassword string) (string, error) {
	if oldPassword == "" || newPassword == "" {
		return "", api.Precondition("Please fill in all required fields.")
	}
	return s.post(ctx, EndpointChangePassword, accessToken, map[string]string{
		"old_password": oldPassword,
		"new_password": newPassword,
	}, MsgPasswordNotChanged)
}

// Signup submits a registration payload.
func (s *Service) Signup(ctx context.Context, payload map[string]any) (string, error) {
	return s.post(ctx, EndpointSignup, "", payload, MsgSignupFailed)
}

// post sends payload and treats a truthy status as success, returning the
// server's message. A token-rejecting response is returned as ErrTokenRejected.
func (s *Service) post(ctx context.Context, endpoint, accessToken string, payload any, fallback string) (string, error) {
	req := api.Request{Method: http.MethodPost, Endpoint: endpoint, Payload: payload}
	if accessToken != "" {
		req.Header = map[string]string{api.HeaderAccessToken: accessToken}
	}
	resp, err := s.client.Do(ctx, req)
	if err != nil {
		return "", err
	}
	if accessToken != "" && resp.TokenRejected() {
		return "", api.ErrTokenRejected
	}
	if !resp.Status() {
		s.logger.Info("identity request rejected", slog.String("endpoint", endpoint))
		return "", resp.Failure(fallback)
	}
	return resp.Message(), nil
}
