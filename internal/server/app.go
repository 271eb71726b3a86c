// Package server wires the request pipeline around the storefront's route
// handlers. The catalog itself is data-entry plumbing; the handlers here
// exist to drive the session, identity, CSRF and upload stages.
package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/avasek/storefront/internal/session"
	"github.com/avasek/storefront/internal/store"
	"github.com/avasek/storefront/internal/telemetry"
	"github.com/avasek/storefront/internal/web"
)

// Pinger reports store connectivity for the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// App holds the constructed pipeline stages and dependencies of the HTTP
// surface. Everything is injected; nothing is reached as an ambient global.
type App struct {
	Users    store.Users
	Sessions *session.Manager
	Identity *web.Identity
	Guard    *web.CSRFGuard
	Gate     *web.UploadGate
	Fallback *web.Fallback
	Metrics  *telemetry.Metrics
	Logger   *slog.Logger
	Health   Pinger
}

// Handler returns the complete HTTP handler: the middleware pipeline wrapped
// around the route table, terminated by the fallback pair.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	a.routes(mux)

	return web.Chain(mux,
		web.RequestID(),
		web.AccessLog(a.Logger, a.Metrics),
		web.Recover(a.Fallback),
		a.Sessions.Middleware,
		a.Identity.Middleware,
		a.Guard.Middleware,
	)
}
