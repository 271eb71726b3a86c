// Package web implements the storefront request pipeline: identity
// resolution, CSRF protection, the upload gate and the terminal fallback
// handlers, composed as net/http middleware.
package web

import (
	"context"

	"github.com/avasek/storefront/internal/store"
)

type ctxKey string

const (
	userContextKey      ctxKey = "storefront.user"
	csrfContextKey      ctxKey = "storefront.csrf"
	uploadContextKey    ctxKey = "storefront.upload"
	requestIDContextKey ctxKey = "storefront.request_id"
)

func withUser(ctx context.Context, u *store.User) context.Context {
	return context.WithValue(ctx, userContextKey, u)
}

// UserFromContext returns the authenticated user of the request, if any.
func UserFromContext(ctx context.Context) (*store.User, bool) {
	u, ok := ctx.Value(userContextKey).(*store.User)
	return u, ok
}

func withCSRFToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, csrfContextKey, token)
}

// CSRFTokenFromContext returns the token handlers embed into forms.
func CSRFTokenFromContext(ctx context.Context) string {
	t, _ := ctx.Value(csrfContextKey).(string)
	return t
}

func withRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDContextKey, id)
}

// RequestIDFromContext returns the id assigned to the request.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDContextKey).(string)
	return id
}

func withUpload(ctx context.Context, d *Upload) context.Context {
	return context.WithValue(ctx, uploadContextKey, d)
}

// UploadFromContext returns the accepted upload of the request, if any.
// Note that a dropped (disallowed) upload is indistinguishable from no
// upload at all.
func UploadFromContext(ctx context.Context) (*Upload, bool) {
	d, ok := ctx.Value(uploadContextKey).(*Upload)
	return d, ok
}
