package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avasek/storefront/internal/session"
	"github.com/avasek/storefront/internal/store"
	"github.com/avasek/storefront/internal/telemetry"
	"github.com/avasek/storefront/internal/web"
)

const testSecret = "integration-secret"

type testApp struct {
	*App
	users   *store.MemoryUsers
	handler http.Handler
	cookies []*http.Cookie
	t       *testing.T
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	users := store.NewMemoryUsers()
	sessions := store.NewMemorySessions(time.Hour)
	fallback := web.NewFallback(logger)
	manager := session.NewManager(sessions, "sf_session", false, logger)
	manager.OnStoreError = fallback.ServeError

	app := &App{
		Users:    users,
		Sessions: manager,
		Identity: web.NewIdentity(users, fallback),
		Guard:    web.NewCSRFGuard(testSecret),
		Gate:     web.NewUploadGate("image", t.TempDir(), false, fallback),
		Fallback: fallback,
		Metrics:  telemetry.NewMetrics(),
		Logger:   logger,
		Health:   PingFunc(func(ctx context.Context) error { return nil }),
	}
	return &testApp{App: app, users: users, handler: app.Handler(), t: t}
}

// do performs a request carrying the client's cookie jar, recording
// any Set-Cookie responses like a browser would.
func (a *testApp) do(method, target string, form url.Values) *httptest.ResponseRecorder {
	a.t.Helper()

	var r *http.Request
	if form != nil {
		r = httptest.NewRequest(method, target, strings.NewReader(form.Encode()))
		r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		r = httptest.NewRequest(method, target, nil)
	}
	for _, c := range a.cookies {
		r.AddCookie(c)
	}

	w := httptest.NewRecorder()
	a.handler.ServeHTTP(w, r)

	if cs := w.Result().Cookies(); len(cs) > 0 {
		a.cookies = cs
	}
	return w
}

// csrfToken fetches the form token the way a rendered page would.
func (a *testApp) csrfToken() string {
	a.t.Helper()
	w := a.do(http.MethodGet, "/me", nil)
	require.Equal(a.t, http.StatusOK, w.Code)

	var resp struct {
		CSRFToken string `json:"csrfToken"`
	}
	require.NoError(a.t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(a.t, resp.CSRFToken)
	return resp.CSRFToken
}

func TestSignupSetsPendingFlag(t *testing.T) {
	app := newTestApp(t)
	token := app.csrfToken()

	w := app.do(http.MethodPost, "/signup", url.Values{
		"email":    {"reader@shop.test"},
		"password": {"correct horse"},
		web.CSRFField:  {token},
	})
	require.Equal(t, http.StatusCreated, w.Code)

	u, err := app.users.FindByEmail(context.Background(), "reader@shop.test")
	require.NoError(t, err)
	assert.True(t, u.Pending, "signup must flag the user for notification")
	assert.NotEmpty(t, u.PasswordHash)
}

func TestSignupWithoutTokenIsRejectedBeforeSideEffects(t *testing.T) {
	app := newTestApp(t)
	app.csrfToken() // establish a session

	w := app.do(http.MethodPost, "/signup", url.Values{
		"email":    {"reader@shop.test"},
		"password": {"correct horse"},
	})
	assert.Equal(t, http.StatusForbidden, w.Code)

	_, err := app.users.FindByEmail(context.Background(), "reader@shop.test")
	assert.ErrorIs(t, err, store.ErrNotFound, "no user may be created on a rejected request")
}

func TestLoginFlow(t *testing.T) {
	app := newTestApp(t)
	token := app.csrfToken()

	w := app.do(http.MethodPost, "/signup", url.Values{
		"email":    {"reader@shop.test"},
		"password": {"correct horse"},
		web.CSRFField:  {token},
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = app.do(http.MethodPost, "/login", url.Values{
		"email":    {"reader@shop.test"},
		"password": {"correct horse"},
		web.CSRFField:  {token},
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = app.do(http.MethodGet, "/me", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Authenticated bool     `json:"authenticated"`
		Email         string   `json:"email"`
		Flashes       []string `json:"flashes"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Authenticated)
	assert.Equal(t, "reader@shop.test", resp.Email)
	assert.NotEmpty(t, resp.Flashes, "login leaves a flash for the next render")

	// Flashes are one-shot.
	w = app.do(http.MethodGet, "/me", nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Empty(t, resp.Flashes)
}

func TestLoginWrongPassword(t *testing.T) {
	app := newTestApp(t)
	token := app.csrfToken()

	app.do(http.MethodPost, "/signup", url.Values{
		"email":    {"reader@shop.test"},
		"password": {"correct horse"},
		web.CSRFField:  {token},
	})

	w := app.do(http.MethodPost, "/login", url.Values{
		"email":    {"reader@shop.test"},
		"password": {"wrong"},
		web.CSRFField:  {token},
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLogoutDestroysSession(t *testing.T) {
	app := newTestApp(t)
	token := app.csrfToken()

	app.do(http.MethodPost, "/signup", url.Values{
		"email":    {"reader@shop.test"},
		"password": {"correct horse"},
		web.CSRFField:  {token},
	})
	app.do(http.MethodPost, "/login", url.Values{
		"email":    {"reader@shop.test"},
		"password": {"correct horse"},
		web.CSRFField:  {token},
	})

	w := app.do(http.MethodPost, "/logout", url.Values{web.CSRFField: {token}})
	require.Equal(t, http.StatusOK, w.Code)

	// The old cookie now names a destroyed session: a fresh one is minted
	// and the request is anonymous.
	w = app.do(http.MethodGet, "/me", nil)
	var resp struct {
		Authenticated bool `json:"authenticated"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Authenticated)
}

func TestAddProductRequiresLogin(t *testing.T) {
	app := newTestApp(t)
	token := app.csrfToken()

	w := app.do(http.MethodPost, "/admin/add-product", url.Values{
		"title":   {"A book"},
		web.CSRFField: {token},
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestUnmatchedRouteHitsFallback(t *testing.T) {
	app := newTestApp(t)
	w := app.do(http.MethodGet, "/no/such/route", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHealth(t *testing.T) {
	app := newTestApp(t)
	w := app.do(http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestEnsureSeedUser(t *testing.T) {
	users := store.NewMemoryUsers()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	require.NoError(t, EnsureSeedUser(context.Background(), users, logger))
	n, err := users.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	// Idempotent: a populated store is left alone.
	require.NoError(t, EnsureSeedUser(context.Background(), users, logger))
	n, _ = users.Count(context.Background())
	assert.Equal(t, int64(1), n)
}
