// Package sandbox is an in-process implementation of the remote identity,
// KYC, FAQ and image-host APIs. It backs local development and the
// end-to-end tests.
package sandbox

import (
	_ "embed"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-openapi/runtime/middleware"
	"golang.org/x/crypto/bcrypt"

	"github.com/jmcleod/kycagent/internal/util"
)

//go:embed openapi.yaml
var openapiSpec []byte

const (
	DefaultTokenTTL  = 15 * time.Minute
	DefaultUploadKey = "sandbox"
)

type user struct {
	Username     string
	Name         string
	Email        string
	UserType     string
	PasswordHash []byte
	Profile      map[string]any
}

// Server holds the sandbox state. All methods are safe for concurrent use.
type Server struct {
	mu           sync.Mutex
	users        map[string]*user
	refresh      map[string]string // refresh token -> username
	resets       map[string]string // reset token -> username
	applications map[string][]map[string]any
	images       map[string][]byte
	uploads      int
	failAfter    int
	kycCreates   int
	signingKey   []byte
	tokenTTL     time.Duration
	uploadKey    string
	bcryptCost   int
	now          func() time.Time
	logger       *slog.Logger
	loginLimiter *loginRateLimiter
}

// Option configures a Server.
type Option func(*Server)

// WithTokenTTL sets the lifetime of issued access tokens.
func WithTokenTTL(d time.Duration) Option {
	return func(s *Server) {
		s.tokenTTL = d
	}
}

// WithUploadKey sets the API key the upload endpoint accepts.
func WithUploadKey(k string) Option {
	return func(s *Server) {
		s.uploadKey = k
	}
}

// WithClock overrides the clock used for token issue and expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		s.now = now
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// WithBcryptCost sets the password hashing cost. Tests use bcrypt.MinCost.
func WithBcryptCost(cost int) Option {
	return func(s *Server) {
		s.bcryptCost = cost
	}
}

// New returns an empty sandbox with a random token signing key.
func New(opts ...Option) (*Server, error) {
	key, err := util.RandomBytes(32)
	if err != nil {
		return nil, fmt.Errorf("generating signing key: %w", err)
	}
	s := &Server{
		users:        make(map[string]*user),
		refresh:      make(map[string]string),
		resets:       make(map[string]string),
		applications: make(map[string][]map[string]any),
		images:       make(map[string][]byte),
		signingKey:   key,
		tokenTTL:     DefaultTokenTTL,
		uploadKey:    DefaultUploadKey,
		bcryptCost:   bcrypt.DefaultCost,
		now:          time.Now,
		logger:       slog.Default(),
		loginLimiter: newLoginRateLimiter(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.loginLimiter.now = s.now
	return s, nil
}

// AddUser registers an account that can sign in with username and password.
func (s *Server) AddUser(username, password, name string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[username]; ok {
		return ErrUserExists
	}
	s.users[username] = &user{
		Username:     username,
		Name:         name,
		Email:        username,
		UserType:     "existing",
		PasswordHash: hash,
	}
	return nil
}

// FailUploadsAfter makes every upload after the first n fail. A negative n
// disables failure injection.
func (s *Server) FailUploadsAfter(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failAfter = n + 1
	if n < 0 {
		s.failAfter = 0
	}
	s.uploads = 0
}

// Uploads returns the number of upload attempts seen.
func (s *Server) Uploads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.uploads
}

// KYCCreates returns the number of create requests that reached the KYC
// handler with a valid token.
func (s *Server) KYCCreates() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.kycCreates
}

// Router returns a chi.Router with every sandbox route mounted.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)

	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		w.Write(openapiSpec)
	})
	r.Handle("/docs*", middleware.SwaggerUI(middleware.SwaggerUIOpts{
		SpecURL: "/openapi.yaml",
		Path:    "docs",
	}, nil))
	r.Handle("/redoc*", middleware.Redoc(middleware.RedocOpts{
		SpecURL: "/openapi.yaml",
		Path:    "redoc",
	}, nil))

	r.Post("/api/auth/get_tokens", s.GetTokens)
	r.Post("/api/auth/refresh_token", s.RefreshToken)
	r.Post("/api/trigger_password_reset", s.TriggerPasswordReset)
	r.Post("/api/check_reset_token", s.CheckResetToken)
	r.Post("/api/change_password", s.ChangePassword)
	r.With(s.requireToken).Post("/api/change_user_password", s.ChangeUserPassword)
	r.Post("/api/signup", s.Signup)
	r.Get("/api/faq/get", s.FAQs)

	r.With(s.requireToken).Post("/api/kyc/create", s.CreateKYC)
	r.With(s.requireToken).Get("/api/kyc/get", s.ListKYC)

	r.Post("/1/upload", s.Upload)
	r.Get("/images/{imageID}", s.Image)

	return r
}
