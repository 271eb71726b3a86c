package web

import (
	"log/slog"
	"net/http"
)

// Fallback is the terminal handler pair of the pipeline: a not-found handler
// for unmatched routes and an error responder for failures propagated out of
// earlier stages. Both produce uniform responses that carry no internals.
type Fallback struct {
	logger *slog.Logger
}

// NewFallback creates a Fallback.
func NewFallback(logger *slog.Logger) *Fallback {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fallback{logger: logger}
}

// NotFound serves the uniform response for unmatched routes.
func (f *Fallback) NotFound(w http.ResponseWriter, r *http.Request) {
	http.Error(w, "page not found", http.StatusNotFound)
}

// ServeError logs err and serves the uniform generic failure response.
// The error itself is never exposed to the client.
func (f *Fallback) ServeError(w http.ResponseWriter, r *http.Request, err error) {
	f.logger.Error("request failed",
		"method", r.Method,
		"path", r.URL.Path,
		"error", err,
	)
	http.Error(w, "internal server error", http.StatusInternalServerError)
}
