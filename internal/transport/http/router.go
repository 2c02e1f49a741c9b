// Package http composes the public HTTP surface: feature handlers, the
// middleware chain, health probes, and the Prometheus scrape endpoint.
package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	audithandler "manifestgate/internal/audit/handler"
	governancehandler "manifestgate/internal/governance/handler"
	"manifestgate/internal/platform/middleware"
	registryhandler "manifestgate/internal/registry/handler"
	sandboxhandler "manifestgate/internal/sandbox/handler"
	scanhandler "manifestgate/internal/scan/handler"
	"manifestgate/pkg/httputil"
)

// HealthCheck probes one dependency. A nil error means healthy.
type HealthCheck func(ctx context.Context) error

// Deps carries everything the router mounts.
type Deps struct {
	Scan      scanhandler.Service
	Registry  registryhandler.Service
	Audit     audithandler.Service
	Overrider governancehandler.Service

	// Sandbox is optional; nil leaves the on-demand execution endpoints
	// unmounted.
	Sandbox sandboxhandler.Service

	// Components feeds /health and /healthz with per-dependency status.
	Components map[string]HealthCheck

	Logger        *slog.Logger
	JWTSigningKey string
	DevMode       bool
}

// NewRouter assembles the full route tree. Health and metrics are
// unauthenticated; everything else requires an actor, and moderation routes
// additionally require the moderator role.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestID)

	health := healthHandler(deps.Components)
	r.Get("/health", health)
	r.Get("/healthz", health)
	r.Handle("/metrics", promhttp.Handler())

	scanH := scanhandler.New(deps.Scan, deps.Logger)
	registryH := registryhandler.New(deps.Registry, deps.Logger)
	auditH := audithandler.New(deps.Audit, deps.Logger)
	moderationH := governancehandler.New(deps.Overrider, deps.Logger)

	r.Group(func(api chi.Router) {
		api.Use(middleware.Actor(deps.JWTSigningKey, deps.DevMode, deps.Logger))

		scanH.Register(api)
		registryH.Register(api)
		auditH.Register(api)

		api.Group(func(mod chi.Router) {
			mod.Use(middleware.RequireModerator(deps.Logger))
			scanH.RegisterModeration(mod)
			registryH.RegisterModeration(mod)
			moderationH.RegisterModeration(mod)
			if deps.Sandbox != nil {
				sandboxhandler.New(deps.Sandbox, deps.Logger).RegisterModeration(mod)
			}
		})
	})

	return r
}

// healthBody is the wire shape for health responses.
type healthBody struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components,omitempty"`
}

func healthHandler(components map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		body := healthBody{Status: "ok"}
		if len(components) > 0 {
			body.Components = make(map[string]string, len(components))
		}
		status := http.StatusOK
		for name, check := range components {
			if err := check(ctx); err != nil {
				body.Components[name] = err.Error()
				body.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			body.Components[name] = "ok"
		}
		httputil.WriteJSON(w, status, body)
	}
}
