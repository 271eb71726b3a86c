package server

import "net/http"

func (a *App) routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /signup", a.handleSignup)
	mux.HandleFunc("POST /login", a.handleLogin)
	mux.HandleFunc("POST /logout", a.handleLogout)
	mux.HandleFunc("GET /me", a.handleMe)

	// The upload gate applies to the one file-bearing route.
	mux.Handle("POST /admin/add-product", a.Gate.Middleware(http.HandlerFunc(a.handleAddProduct)))

	mux.HandleFunc("GET /healthz", a.handleHealth)
	mux.Handle("GET /metrics", a.Metrics.Handler())

	// Everything unmatched lands on the terminal not-found handler.
	mux.HandleFunc("/", a.Fallback.NotFound)
}
