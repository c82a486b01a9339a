package app_test

import (
	"context"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/jmcleod/kycagent/api"
	"github.com/jmcleod/kycagent/app"
	"github.com/jmcleod/kycagent/identity"
	"github.com/jmcleod/kycagent/imagehost"
	"github.com/jmcleod/kycagent/internal/util"
	"github.com/jmcleod/kycagent/kyc"
	"github.com/jmcleod/kycagent/registration"
	"github.com/jmcleod/kycagent/sandbox"
	"github.com/jmcleod/kycagent/securestore"
	"github.com/jmcleod/kycagent/session"
	"github.com/jmcleod/kycagent/storage/memory"
)

// countingStore records writes to the secure store.
type countingStore struct {
	*securestore.Store
	sets atomic.Int32
}

func (c *countingStore) Set(ctx context.Context, key, value string) error {
	c.sets.Add(1)
	return c.Store.Set(ctx, key, value)
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type env struct {
	sb     *sandbox.Server
	url    string
	repo   *memory.Repository
	store  *countingStore
	clock  *clock
	client *api.Client
}

func testKDF() util.Argon2idParams {
	p := util.DefaultArgon2idParams()
	p.MemoryKiB = 1024
	p.Time = 1
	return p
}

func newEnv(t *testing.T) *env {
	t.Helper()
	c := &clock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	sb, err := sandbox.New(sandbox.WithBcryptCost(bcrypt.MinCost), sandbox.WithClock(c.now), sandbox.WithTokenTTL(time.Minute))
	require.NoError(t, err)
	require.NoError(t, sb.AddUser("a@b.com", "x", "A"))
	srv := httptest.NewServer(sb.Router())
	t.Cleanup(srv.Close)

	repo := memory.NewRepository()
	st, err := securestore.Open(repo, "device-secret", securestore.WithKDFParams(testKDF()))
	require.NoError(t, err)
	return &env{
		sb:     sb,
		url:    srv.URL,
		repo:   repo,
		store:  &countingStore{Store: st},
		clock:  c,
		client: api.New(srv.URL, "12345"),
	}
}

func (e *env) uploader() imagehost.Uploader {
	return imagehost.NewImgBB(sandbox.DefaultUploadKey, imagehost.WithEndpoint(e.url+"/1/upload"))
}

func (e *env) start(t *testing.T, up imagehost.Uploader) *app.App {
	t.Helper()
	if up == nil {
		up = e.uploader()
	}
	a := app.New(e.client, up, e.store)
	t.Cleanup(a.Close)
	require.NoError(t, a.Start(t.Context()))
	return a
}

func signIn(t *testing.T, a *app.App) {
	t.Helper()
	require.NoError(t, a.SubmitLogin(t.Context(), identity.Credentials{Username: "a@b.com", Password: "x"}))
}

func application() kyc.Application {
	return kyc.Application{
		Name: "Jane Doe", Login: "jdoe", Phone: "0123456789", IDType: "passport", IDNumber: "P123",
		CurrentAddress: "1 Main St", PermanentAddress: "1 Main St",
		Documents: kyc.Documents{IDDocument: []byte("id"), ProofOfAddress: []byte("poa"), Selfie: []byte("selfie")},
	}
}

func TestStartWithoutToken(t *testing.T) {
	e := newEnv(t)
	a := e.start(t, nil)

	assert.Equal(t, session.Unauthenticated, a.Session.State())
	assert.Equal(t, "/login", a.Router.Current())
}

func TestSubmitLoginSuccess(t *testing.T) {
	e := newEnv(t)
	a := e.start(t, nil)
	signIn(t, a)

	snap := a.Session.Snapshot()
	assert.True(t, snap.LoggedIn)
	assert.Equal(t, "A", snap.UserDetails["name"])
	assert.Equal(t, "/home", a.Router.Current())

	stored, err := e.store.Get(t.Context(), session.TokenKey)
	require.NoError(t, err)
	assert.Equal(t, a.Session.AccessToken(), stored)

	rt, err := e.store.Get(t.Context(), app.RefreshTokenKey)
	require.NoError(t, err)
	assert.NotEmpty(t, rt)
}

func TestSubmitLoginUnreachable(t *testing.T) {
	e := newEnv(t)
	dead := httptest.NewServer(nil)
	dead.Close()
	e.client = api.New(dead.URL, "12345")
	a := e.start(t, nil)

	err := a.SubmitLogin(t.Context(), identity.Credentials{Username: "a@b.com", Password: "x"})
	require.ErrorIs(t, err, api.ErrConnectivity)
	assert.Equal(t, api.ConnectionMessage, api.UserMessage(err))
	assert.Equal(t, session.Unauthenticated, a.Session.State())
	assert.Zero(t, e.store.sets.Load(), "no store write")
	assert.Equal(t, "/login", a.Router.Current())
}

func TestSubmitLoginRejected(t *testing.T) {
	e := newEnv(t)
	a := e.start(t, nil)

	err := a.SubmitLogin(t.Context(), identity.Credentials{Username: "a@b.com", Password: "nope"})
	require.ErrorIs(t, err, api.ErrRejected)
	assert.Equal(t, "Wrong login/password", api.UserMessage(err))
	assert.False(t, a.Session.LoggedIn())

	err = a.SubmitLogin(t.Context(), identity.Credentials{Username: "a@b.com"})
	assert.ErrorIs(t, err, api.ErrPrecondition)
}

func TestRestartKeepsSession(t *testing.T) {
	e := newEnv(t)
	signIn(t, e.start(t, nil))

	again := e.start(t, nil)
	assert.True(t, again.Session.LoggedIn())
	// The index is outside the auth group, so a restored session stays there.
	assert.Equal(t, "/", again.Router.Current())
	require.NoError(t, again.Router.Push("/login"))
	assert.Equal(t, "/home", again.Router.Current())
}

func TestLogout(t *testing.T) {
	e := newEnv(t)
	a := e.start(t, nil)
	signIn(t, a)

	require.NoError(t, a.Logout(t.Context()))
	assert.Equal(t, "/login", a.Router.Current())
	_, err := e.store.Get(t.Context(), session.TokenKey)
	assert.ErrorIs(t, err, securestore.ErrNotFound)
	_, err = e.store.Get(t.Context(), app.RefreshTokenKey)
	assert.ErrorIs(t, err, securestore.ErrNotFound)

	assert.NoError(t, a.Logout(t.Context()), "logout is idempotent")
}

func TestSubmitKYC(t *testing.T) {
	e := newEnv(t)
	a := e.start(t, nil)
	signIn(t, a)

	msg, err := a.SubmitKYC(t.Context(), application())
	require.NoError(t, err)
	assert.Equal(t, kyc.MsgCreated, msg)

	recs, err := a.ListKYC(t.Context())
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "jdoe", recs[0]["login"])
}

func TestSubmitKYCUploadFailureSkipsCreate(t *testing.T) {
	e := newEnv(t)
	a := e.start(t, nil)
	signIn(t, a)

	e.sb.FailUploadsAfter(1)
	_, err := a.SubmitKYC(t.Context(), application())
	require.ErrorIs(t, err, kyc.ErrUpload)
	assert.Equal(t, kyc.MsgUploadFailed, api.UserMessage(err))
	assert.Equal(t, 2, e.sb.Uploads())
	assert.Zero(t, e.sb.KYCCreates())
	assert.True(t, a.Session.LoggedIn())
}

func TestExpiredTokenEndsSession(t *testing.T) {
	e := newEnv(t)
	a := e.start(t, nil)
	signIn(t, a)

	e.clock.advance(2 * time.Minute)
	_, err := a.ListKYC(t.Context())
	require.ErrorIs(t, err, api.ErrTokenRejected)
	assert.False(t, a.Session.LoggedIn())
	assert.Equal(t, "/login", a.Router.Current())

	_, err = a.ListKYC(t.Context())
	assert.ErrorIs(t, err, session.ErrNotAuthenticated)
}

func TestRefresh(t *testing.T) {
	e := newEnv(t)
	a := e.start(t, nil)

	assert.ErrorIs(t, a.Refresh(t.Context()), app.ErrNoRefreshToken)

	signIn(t, a)
	before := a.Session.AccessToken()
	e.clock.advance(time.Second)
	require.NoError(t, a.Refresh(t.Context()))
	assert.NotEqual(t, before, a.Session.AccessToken())

	stored, err := e.store.Get(t.Context(), session.TokenKey)
	require.NoError(t, err)
	assert.Equal(t, a.Session.AccessToken(), stored)
	assert.NoError(t, a.Refresh(t.Context()), "the rotated refresh token was stored")
}

// blockingUploader holds the first upload until release is closed.
type blockingUploader struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingUploader) Upload(ctx context.Context, _ []byte) (string, error) {
	b.once.Do(func() { close(b.started) })
	select {
	case <-b.release:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	return "https://img.example/x.png", nil
}

func TestSubmitKYCBusy(t *testing.T) {
	e := newEnv(t)
	up := &blockingUploader{started: make(chan struct{}), release: make(chan struct{})}
	a := e.start(t, up)
	signIn(t, a)

	done := make(chan error, 1)
	go func() {
		_, err := a.SubmitKYC(context.Background(), application())
		done <- err
	}()
	<-up.started

	_, err := a.SubmitKYC(t.Context(), application())
	assert.ErrorIs(t, err, app.ErrBusy)

	close(up.release)
	assert.NoError(t, <-done)
	assert.Equal(t, 1, e.sb.KYCCreates())
}

func TestRegister(t *testing.T) {
	e := newEnv(t)
	a := e.start(t, nil)
	require.NoError(t, a.Router.Push("/register"))

	msg, err := a.Register(t.Context(), registration.Registration{
		Name: "Sam", Email: "sam@example.com", Phone: "+1 555 123 4567",
		Password: "pw", ConfirmPassword: "pw", UserType: registration.Existing,
		CustomerID: "C-1", Selfie: []byte("me"),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, msg)
	assert.Equal(t, "/login", a.Router.Current())

	require.NoError(t, a.SubmitLogin(t.Context(), identity.Credentials{Username: "sam@example.com", Password: "pw"}))
}

func TestChangePassword(t *testing.T) {
	e := newEnv(t)
	a := e.start(t, nil)

	_, err := a.ChangePassword(t.Context(), "x", "y")
	assert.ErrorIs(t, err, session.ErrNotAuthenticated)

	signIn(t, a)
	_, err = a.ChangePassword(t.Context(), "x", "y")
	require.NoError(t, err)
	require.NoError(t, a.Logout(t.Context()))
	require.NoError(t, a.SubmitLogin(t.Context(), identity.Credentials{Username: "a@b.com", Password: "y"}))
}

func TestFAQs(t *testing.T) {
	e := newEnv(t)
	a := e.start(t, nil)
	entries, remote := a.FAQs(t.Context())
	assert.True(t, remote)
	assert.Len(t, entries, 6)
}
