package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"manifestgate/internal/audit"
	dErrors "manifestgate/pkg/domain-errors"
	"manifestgate/pkg/httputil"
	"manifestgate/pkg/requestcontext"
)

// Service defines the interface for audit log reads.
type Service interface {
	Query(ctx context.Context, f audit.Filter) ([]audit.Entry, error)
}

// Handler wires the audit export endpoint to the audit service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs an audit handler with its dependencies.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the audit endpoint on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/audit", h.HandleQuery)
}

// HandleQuery handles GET /audit requests. Entries filter on ticket,
// manifest, action, and actor; format=csv switches the body to CSV.
func (h *Handler) HandleQuery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	format := q.Get("format")
	if format != "" && format != "json" && format != "csv" {
		httputil.WriteError(w, dErrors.NewValidation("invalid export format", []dErrors.FieldError{
			{Field: "format", Message: `must be "json" or "csv"`},
		}))
		return
	}

	filter := audit.Filter{
		TicketID:   q.Get("ticketId"),
		ManifestID: q.Get("manifestId"),
		Action:     audit.Action(q.Get("action")),
		Actor:      q.Get("actor"),
	}
	if limit := q.Get("limit"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil && n > 0 {
			filter.Limit = n
		}
	}

	entries, err := h.service.Query(ctx, filter)
	if err != nil {
		h.logger.ErrorContext(ctx, "audit query failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, dErrors.Wrap(dErrors.CodeInternal, "query audit log", err))
		return
	}

	if format == "csv" {
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="audit.csv"`)
		if err := audit.ExportCSV(w, entries); err != nil {
			h.logger.ErrorContext(ctx, "audit csv export failed", "error", err)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := audit.ExportJSON(w, entries); err != nil {
		h.logger.ErrorContext(ctx, "audit json export failed", "error", err)
	}
}
