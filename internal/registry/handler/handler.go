package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"manifestgate/internal/registry"
	dErrors "manifestgate/pkg/domain-errors"
	"manifestgate/pkg/httputil"
	"manifestgate/pkg/requestcontext"
)

// Service defines the interface for catalog operations.
type Service interface {
	Current(ctx context.Context) (*registry.BuiltRegistry, error)
	Rebuild(ctx context.Context) (*registry.BuiltRegistry, error)
}

// Handler wires catalog endpoints to the registry builder.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs a registry handler with its dependencies.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the public catalog endpoint on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/registry", h.HandleCurrent)
}

// RegisterModeration mounts the forced-rebuild endpoint. The caller guards
// the router group with the moderator middleware.
func (h *Handler) RegisterModeration(r chi.Router) {
	r.Post("/registry/rebuild", h.HandleRebuild)
}

// HandleCurrent handles GET /registry requests, building the first snapshot
// on demand.
func (h *Handler) HandleCurrent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	built, err := h.service.Current(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "registry read failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, dErrors.Wrap(dErrors.CodeInternal, "build registry", err))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, built)
}

// HandleRebuild handles POST /registry/rebuild requests.
func (h *Handler) HandleRebuild(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	built, err := h.service.Rebuild(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "registry rebuild failed",
			"request_id", requestcontext.RequestID(ctx),
			"actor", requestcontext.Actor(ctx),
			"error", err,
		)
		httputil.WriteError(w, dErrors.Wrap(dErrors.CodeInternal, "rebuild registry", err))
		return
	}

	h.logger.InfoContext(ctx, "registry rebuild forced",
		"actor", requestcontext.Actor(ctx),
		"version", built.Version,
	)
	httputil.WriteJSON(w, http.StatusOK, built)
}
