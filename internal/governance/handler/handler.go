package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"manifestgate/internal/governance"
	dErrors "manifestgate/pkg/domain-errors"
	"manifestgate/pkg/httputil"
	"manifestgate/pkg/requestcontext"
)

// Service defines the interface for moderator override operations.
type Service interface {
	Override(ctx context.Context, ticketID, moderator string, decision governance.Decision, notes string) (governance.DecisionResult, error)
}

// Handler wires the moderation override endpoint to the overrider.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs a moderation handler with its dependencies.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterModeration mounts the override endpoint. The caller guards the
// router group with the moderator middleware.
func (h *Handler) RegisterModeration(r chi.Router) {
	r.Post("/moderation/override/{ticketID}", h.HandleOverride)
}

// OverrideRequest carries the replacement decision and the moderator's notes.
type OverrideRequest struct {
	Decision string `json:"decision"`
	Notes    string `json:"notes"`
}

// HandleOverride handles POST /moderation/override/{ticketID} requests.
func (h *Handler) HandleOverride(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	ticketID := chi.URLParam(r, "ticketID")

	req, ok := httputil.DecodeAndPrepare[OverrideRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	result, err := h.service.Override(ctx, ticketID, requestcontext.Actor(ctx), governance.Decision(req.Decision), req.Notes)
	if err != nil {
		if dErrors.Is(err, dErrors.CodeInternal) {
			h.logger.ErrorContext(ctx, "override failed",
				"request_id", requestID,
				"ticket_id", ticketID,
				"error", err,
			)
		}
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, result)
}
