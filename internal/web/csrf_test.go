package web

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/avasek/storefront/internal/session"
	"github.com/avasek/storefront/internal/store"
)

const testSecret = "test-secret"

func sessionRequest(method, target, body string) *http.Request {
	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(method, target, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		r = httptest.NewRequest(method, target, nil)
	}
	sess := session.Restored("sess-1", store.SessionData{})
	return r.WithContext(session.NewContext(r.Context(), sess))
}

func TestCSRFTokenDerivation(t *testing.T) {
	t1 := CSRFToken(testSecret, "sess-1")
	t2 := CSRFToken(testSecret, "sess-1")
	if t1 != t2 {
		t.Errorf("expected a stable token per session, got %q and %q", t1, t2)
	}
	if CSRFToken(testSecret, "sess-2") == t1 {
		t.Errorf("expected different sessions to yield different tokens")
	}
	if CSRFToken("other-secret", "sess-1") == t1 {
		t.Errorf("expected different secrets to yield different tokens")
	}
}

func TestCSRFGuard(t *testing.T) {
	token := CSRFToken(testSecret, "sess-1")

	cases := []struct {
		title      string
		method     string
		header     string
		form       string
		expStatus  int
		expHandler bool
	}{
		{title: "get-exempt", method: http.MethodGet, expStatus: http.StatusOK, expHandler: true},
		{title: "head-exempt", method: http.MethodHead, expStatus: http.StatusOK, expHandler: true},
		{title: "options-exempt", method: http.MethodOptions, expStatus: http.StatusOK, expHandler: true},
		{title: "post-missing-token", method: http.MethodPost, expStatus: http.StatusForbidden},
		{title: "post-wrong-token", method: http.MethodPost, header: "wrong", expStatus: http.StatusForbidden},
		{title: "post-header-token", method: http.MethodPost, header: token, expStatus: http.StatusOK, expHandler: true},
		{
			title:      "post-form-token",
			method:     http.MethodPost,
			form:       url.Values{CSRFField: {token}}.Encode(),
			expStatus:  http.StatusOK,
			expHandler: true,
		},
	}

	for _, c := range cases {
		guard := NewCSRFGuard(testSecret)

		handlerRan := false
		h := guard.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			handlerRan = true
			if got := CSRFTokenFromContext(r.Context()); got != token {
				t.Errorf("[%s] expected token %q in context, got: %q", c.title, token, got)
			}
		}))

		r := sessionRequest(c.method, "/x", c.form)
		if c.header != "" {
			r.Header.Set(CSRFHeader, c.header)
		}
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)

		if w.Code != c.expStatus {
			t.Errorf("[%s] expected status %d, got: %d", c.title, c.expStatus, w.Code)
		}
		if handlerRan != c.expHandler {
			t.Errorf("[%s] expected handler ran=%v, got: %v", c.title, c.expHandler, handlerRan)
		}
	}
}

func TestCSRFGuardNoSession(t *testing.T) {
	guard := NewCSRFGuard(testSecret)
	h := guard.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler must not run without a session")
	}))

	r := httptest.NewRequest(http.MethodPost, "/x", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	if w.Code != http.StatusForbidden {
		t.Errorf("expected 403, got: %d", w.Code)
	}
}
