// Package app is the application root. It owns the session and the router
// and runs every user-facing flow against them.
package app

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/jmcleod/kycagent/api"
	"github.com/jmcleod/kycagent/authgate"
	"github.com/jmcleod/kycagent/faq"
	"github.com/jmcleod/kycagent/identity"
	"github.com/jmcleod/kycagent/imagehost"
	"github.com/jmcleod/kycagent/kyc"
	"github.com/jmcleod/kycagent/navigation"
	"github.com/jmcleod/kycagent/registration"
	"github.com/jmcleod/kycagent/securestore"
	"github.com/jmcleod/kycagent/session"
)

// RefreshTokenKey is the store key of the refresh token.
const RefreshTokenKey = "refresh_token"

// Store is the persistent secure storage the application needs.
type Store interface {
	session.TokenStore
	DeviceID(ctx context.Context) (string, error)
}

// App wires the session, navigation and remote services together.
type App struct {
	Session  *session.Session
	Router   *navigation.Router
	Identity *identity.Service
	KYC      *kyc.Service

	client   *api.Client
	store    Store
	register *registration.Flow
	rules    authgate.Rules
	logger   *slog.Logger

	loginBusy    atomic.Bool
	kycBusy      atomic.Bool
	registerBusy atomic.Bool
}

type options struct {
	database string
	rules    authgate.Rules
	logger   *slog.Logger
}

// Option configures an App.
type Option func(*options)

// WithDatabase sets the backend database sent with sign-in.
func WithDatabase(db string) Option {
	return func(o *options) {
		o.database = db
	}
}

// WithRules overrides the auth gate rules.
func WithRules(rules authgate.Rules) Option {
	return func(o *options) {
		o.rules = rules
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// New builds an App. Nothing is read from store until Start.
func New(client *api.Client, uploader imagehost.Uploader, store Store, opts ...Option) *App {
	o := options{
		database: identity.DefaultDatabase,
		rules:    authgate.DefaultRules,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	ids := identity.New(client, identity.WithDatabase(o.database), identity.WithLogger(o.logger))
	sess := session.New(store, session.WithLogger(o.logger))
	return &App{
		Session:  sess,
		Router:   navigation.New(sess, navigation.WithRules(o.rules), navigation.WithLogger(o.logger)),
		Identity: ids,
		KYC:      kyc.New(client, uploader, kyc.WithLogger(o.logger)),
		client:   client,
		store:    store,
		register: registration.NewFlow(ids, uploader, store, o.logger),
		rules:    o.rules,
		logger:   o.logger,
	}
}

// Start mounts the navigation tree and boots the session. The gate runs as
// soon as the persisted token has been read.
func (a *App) Start(ctx context.Context) error {
	a.Router.Mount()
	return a.Session.Boot(ctx)
}

// Close detaches the router from the session.
func (a *App) Close() {
	a.Router.Close()
}

// SubmitLogin signs in with creds. On success the session is authenticated
// and the router is on the home screen. Failures leave the session as it
// was.
func (a *App) SubmitLogin(ctx context.Context, creds identity.Credentials) error {
	if !a.loginBusy.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer a.loginBusy.Store(false)

	details, err := a.Identity.Authenticate(ctx, creds)
	if err != nil {
		return err
	}
	if err := a.Session.Login(ctx, session.Details(details)); err != nil {
		return err
	}
	a.saveRefreshToken(ctx, details)
	if a.Router.Current() != a.rules.Home {
		return a.Router.Replace(a.rules.Home)
	}
	return nil
}

// Logout ends the session. The gate then moves the router to sign-in.
func (a *App) Logout(ctx context.Context) error {
	err := a.Session.Logout(ctx)
	a.dropRefreshToken(ctx)
	return err
}

// Refresh exchanges the stored refresh token for a new token pair.
func (a *App) Refresh(ctx context.Context) error {
	rt, err := a.store.Get(ctx, RefreshTokenKey)
	if errors.Is(err, securestore.ErrNotFound) || (err == nil && rt == "") {
		return ErrNoRefreshToken
	}
	if err != nil {
		return err
	}
	details, err := a.Identity.RefreshToken(ctx, rt)
	if err != nil {
		return err
	}
	if err := a.Session.UpdateUserDetails(ctx, session.Details(details)); err != nil {
		return err
	}
	a.saveRefreshToken(ctx, details)
	return nil
}

// SubmitKYC uploads the application's documents and creates it. A refused
// session token ends the session.
func (a *App) SubmitKYC(ctx context.Context, application kyc.Application) (string, error) {
	if !a.kycBusy.CompareAndSwap(false, true) {
		return "", ErrBusy
	}
	defer a.kycBusy.Store(false)

	token := a.Session.AccessToken()
	if token == "" {
		return "", session.ErrNotAuthenticated
	}
	msg, err := a.KYC.Submit(ctx, token, application)
	if err != nil {
		a.expireOn(ctx, err)
		return "", err
	}
	return msg, nil
}

// ListKYC returns the agent's applications.
func (a *App) ListKYC(ctx context.Context) ([]kyc.Record, error) {
	token := a.Session.AccessToken()
	if token == "" {
		return nil, session.ErrNotAuthenticated
	}
	recs, err := a.KYC.List(ctx, token)
	if err != nil {
		a.expireOn(ctx, err)
		return nil, err
	}
	return recs, nil
}

// Register signs a new user up and sends the router to the login screen.
func (a *App) Register(ctx context.Context, r registration.Registration) (string, error) {
	if !a.registerBusy.CompareAndSwap(false, true) {
		return "", ErrBusy
	}
	defer a.registerBusy.Store(false)

	msg, err := a.register.Register(ctx, r)
	if err != nil {
		return "", err
	}
	if err := a.Router.Replace(a.rules.SignIn); err != nil {
		a.logger.Warn("navigating after registration", slog.String("error", err.Error()))
	}
	return msg, nil
}

func (a *App) TriggerPasswordReset(ctx context.Context, email string) (string, error) {
	return a.Identity.TriggerPasswordReset(ctx, email)
}

func (a *App) CheckResetToken(ctx context.Context, token string) (string, error) {
	return a.Identity.CheckResetToken(ctx, token)
}

func (a *App) SetNewPassword(ctx context.Context, token, password, confirm string) (string, error) {
	return a.Identity.SetNewPassword(ctx, token, password, confirm)
}

// ChangePassword changes the signed-in user's password.
func (a *App) ChangePassword(ctx context.Context, oldPassword, newPassword string) (string, error) {
	token := a.Session.AccessToken()
	if token == "" {
		return "", session.ErrNotAuthenticated
	}
	msg, err := a.Identity.ChangeUserPassword(ctx, token, oldPassword, newPassword)
	if err != nil {
		a.expireOn(ctx, err)
		return "", err
	}
	return msg, nil
}

// FAQs returns the server's FAQ list, or the built-in one. The bool reports
// whether the server answered.
func (a *App) FAQs(ctx context.Context) ([]faq.Entry, bool) {
	return faq.Fetch(ctx, a.client, a.logger)
}

func (a *App) expireOn(ctx context.Context, err error) {
	if !errors.Is(err, api.ErrTokenRejected) {
		return
	}
	if xerr := a.Session.Expire(ctx, "token rejected"); xerr != nil {
		a.logger.Error("expiring session", slog.String("error", xerr.Error()))
	}
	a.dropRefreshToken(ctx)
}

func (a *App) saveRefreshToken(ctx context.Context, details map[string]any) {
	rt, _ := details[RefreshTokenKey].(string)
	if rt == "" {
		return
	}
	if err := a.store.Set(ctx, RefreshTokenKey, rt); err != nil {
		a.logger.Warn("persisting refresh token", slog.String("error", err.Error()))
	}
}

func (a *App) dropRefreshToken(ctx context.Context) {
	err := a.store.Delete(ctx, RefreshTokenKey)
	if err != nil && !errors.Is(err, securestore.ErrNotFound) {
		a.logger.Warn("deleting refresh token", slog.String("error", err.Error()))
	}
}
