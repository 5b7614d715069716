// Package api is the HTTP adapter over the credential lifecycle engine.
// It translates requests into the four logical operations (begin,
// complete-verification, fetch-key, check-key) and owns nothing else: all
// lifecycle rules live in the gate package.
package api

import (
	_ "embed"
	"log/slog"
	"net/http"
	"net/netip"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-openapi/runtime/middleware"

	"github.com/linkgate/linkgate/gate"
	"github.com/linkgate/linkgate/shortener"
)

// API holds the dependencies needed by the REST handlers.
type API struct {
	svc            *gate.Service
	shortener      shortener.Client
	baseURL        string
	trustedProxies []netip.Prefix
	audit          *auditLogger
}

//go:embed openapi.yaml
var openapiSpec []byte

// Option configures the API instance.
type Option func(*API)

// WithLogger sets the structured logger for audit events. If not set, a
// default JSON logger writing to stderr is used.
func WithLogger(logger *slog.Logger) Option {
	return func(a *API) {
		a.audit = newAuditLogger(logger)
	}
}

// WithShortener sets the link-shortening provider used to gate the
// verification redirect. Without one, begin responds with the direct
// verify URL.
func WithShortener(c shortener.Client) Option {
	return func(a *API) {
		a.shortener = c
	}
}

// WithBaseURL sets the external base URL used to build verify links.
// Without one, the URL is derived from each request's Host.
func WithBaseURL(u string) Option {
	return func(a *API) {
		a.baseURL = u
	}
}

// WithTrustedProxies sets the CIDR ranges whose forwarded-for headers are
// honored when extracting client addresses. Empty means headers are
// never trusted.
func WithTrustedProxies(prefixes []netip.Prefix) Option {
	return func(a *API) {
		a.trustedProxies = prefixes
	}
}

// New creates a new API instance over the given service.
func New(svc *gate.Service, opts ...Option) *API {
	a := &API{svc: svc}
	for _, opt := range opts {
		opt(a)
	}
	if a.audit == nil {
		a.audit = newAuditLogger(slog.New(slog.NewJSONHandler(os.Stderr, nil)))
	}
	return a
}

// Router returns a chi.Router with all API routes mounted.
func (a *API) Router() chi.Router {
	r := chi.NewRouter()

	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		w.Write(openapiSpec)
	})

	r.Handle("/docs*", middleware.SwaggerUI(middleware.SwaggerUIOpts{
		SpecURL: "/api/v1/openapi.yaml",
		Path:    "api/v1/docs",
	}, nil))

	r.Handle("/redoc*", middleware.Redoc(middleware.RedocOpts{
		SpecURL: "/api/v1/openapi.yaml",
		Path:    "api/v1/redoc",
	}, nil))

	r.Post("/sessions", a.BeginSession)
	r.Get("/verify", a.Verify)
	r.Get("/sessions/{token}/key", a.FetchKey)
	r.Get("/keys/{key}", a.CheckKey)

	return r
}
