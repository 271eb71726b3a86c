package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/mail"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/avasek/storefront/internal/session"
	"github.com/avasek/storefront/internal/store"
	"github.com/avasek/storefront/internal/web"
)

var (
	ErrInvalidEmail  = errors.New("invalid email")
	ErrShortPassword = errors.New("password must be at least 8 characters")
)

const minPasswordLen = 8

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]any{"error": msg})
}

func validateEmail(email string) error {
	if email == "" {
		return ErrInvalidEmail
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return ErrInvalidEmail
	}
	return nil
}

// handleSignup creates a user and sets the pending-notification flag the
// dispatcher later consumes.
func (a *App) handleSignup(w http.ResponseWriter, r *http.Request) {
	email := strings.TrimSpace(r.FormValue("email"))
	password := r.FormValue("password")

	if err := validateEmail(email); err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(password) < minPasswordLen {
		writeErr(w, http.StatusBadRequest, ErrShortPassword.Error())
		return
	}

	if _, err := a.Users.FindByEmail(r.Context(), email); err == nil {
		writeErr(w, http.StatusConflict, "email already registered")
		return
	} else if !errors.Is(err, store.ErrNotFound) {
		a.Fallback.ServeError(w, r, err)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		a.Fallback.ServeError(w, r, err)
		return
	}

	u := &store.User{
		Email:        email,
		PasswordHash: string(hash),
		Pending:      true,
	}
	if err := a.Users.Insert(r.Context(), u); err != nil {
		a.Fallback.ServeError(w, r, err)
		return
	}

	if sess, ok := session.FromContext(r.Context()); ok {
		sess.AddFlash("Signup successful, welcome!")
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": u.ID.Hex()})
}

func (a *App) handleLogin(w http.ResponseWriter, r *http.Request) {
	email := strings.TrimSpace(r.FormValue("email"))
	password := r.FormValue("password")

	u, err := a.Users.FindByEmail(r.Context(), email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeErr(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		a.Fallback.ServeError(w, r, err)
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		writeErr(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	sess, ok := session.FromContext(r.Context())
	if !ok {
		a.Fallback.ServeError(w, r, errors.New("no session on login request"))
		return
	}
	sess.SetUserID(u.ID)
	sess.SetLoggedIn(true)
	sess.AddFlash("Logged in.")

	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (a *App) handleLogout(w http.ResponseWriter, r *http.Request) {
	if sess, ok := session.FromContext(r.Context()); ok {
		sess.Destroy()
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// handleMe reports the request's resolved identity, drains flash messages
// and exposes the form token.
func (a *App) handleMe(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"authenticated": false,
		"csrfToken":     web.CSRFTokenFromContext(r.Context()),
	}
	if u, ok := web.UserFromContext(r.Context()); ok {
		resp["authenticated"] = true
		resp["email"] = u.Email
	}
	if sess, ok := session.FromContext(r.Context()); ok {
		if flashes := sess.Flashes(); len(flashes) > 0 {
			resp["flashes"] = flashes
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleAddProduct is the file-bearing route. Catalog persistence is out of
// scope; the handler reports what the upload gate let through. A disallowed
// file was silently dropped by the gate, so "no file supplied" here covers
// both the missing and the rejected case.
func (a *App) handleAddProduct(w http.ResponseWriter, r *http.Request) {
	if _, ok := web.UserFromContext(r.Context()); !ok {
		writeErr(w, http.StatusUnauthorized, "login required")
		return
	}

	up, ok := web.UploadFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{
			"title": r.FormValue("title"),
			"image": nil,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"title": r.FormValue("title"),
		"image": map[string]any{
			"name": up.AssignedName,
			"type": up.ContentType,
			"size": up.Size,
		},
	})
}

func (a *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	if a.Health != nil {
		if err := a.Health.Ping(r.Context()); err != nil {
			a.Logger.Error("health ping failed", "error", err)
			writeErr(w, http.StatusServiceUnavailable, "store unavailable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}
