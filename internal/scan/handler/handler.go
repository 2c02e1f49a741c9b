package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"manifestgate/internal/governance"
	"manifestgate/internal/scan"
	dErrors "manifestgate/pkg/domain-errors"
	"manifestgate/pkg/httputil"
	"manifestgate/pkg/requestcontext"
)

// Service defines the interface for submission and scan-read operations.
type Service interface {
	Submit(ctx context.Context, raw json.RawMessage) (scan.Ticket, error)
	Ticket(ctx context.Context, id string) (scan.Ticket, error)
	Pending(ctx context.Context) ([]scan.Ticket, error)
	Result(ctx context.Context, ticketID string) (scan.Result, error)
	Results(ctx context.Context, f scan.ResultFilter) ([]scan.Result, error)
	Approved(ctx context.Context) ([]scan.ApprovedSummary, error)
	Unpublish(ctx context.Context, manifestID string) error
}

// Handler wires submission and scan endpoints to the scan service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs a scan handler with its dependencies.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the public scan endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/manifests/submit", h.HandleSubmit)
	r.Get("/manifests/status/{ticketID}", h.HandleStatus)
	r.Get("/manifests/pending", h.HandlePending)
	r.Get("/scan/{ticketID}", h.HandleResult)
	r.Get("/scans", h.HandleResults)
	r.Get("/approved", h.HandleApproved)
}

// RegisterModeration mounts moderator-only endpoints. The caller guards the
// router group with the moderator middleware.
func (h *Handler) RegisterModeration(r chi.Router) {
	r.Delete("/approved/{manifestID}", h.HandleUnpublish)
}

// SubmitRequest is the submission envelope.
type SubmitRequest struct {
	Manifest json.RawMessage `json:"manifest"`
}

// SubmitResponse acknowledges an accepted submission.
type SubmitResponse struct {
	Ticket string            `json:"ticket"`
	Status scan.TicketStatus `json:"status"`
}

// HandleSubmit handles POST /manifests/submit requests.
func (h *Handler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	if requestcontext.Actor(ctx) == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	req, ok := httputil.DecodeAndPrepare[SubmitRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	if len(req.Manifest) == 0 {
		httputil.WriteError(w, dErrors.NewValidation("invalid submission", []dErrors.FieldError{
			{Field: "manifest", Message: "manifest is required"},
		}))
		return
	}

	ticket, err := h.service.Submit(ctx, req.Manifest)
	if err != nil {
		if !dErrors.Is(err, dErrors.CodeValidation) {
			h.logger.ErrorContext(ctx, "manifest submission failed",
				"request_id", requestID,
				"error", err,
			)
		}
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusAccepted, SubmitResponse{
		Ticket: ticket.ID,
		Status: ticket.Status,
	})
}

// HandleStatus handles GET /manifests/status/{ticketID} requests.
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	ticket, err := h.service.Ticket(ctx, chi.URLParam(r, "ticketID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ticket)
}

// HandlePending handles GET /manifests/pending requests. Callers see their
// own tickets; moderators see the whole backlog.
func (h *Handler) HandlePending(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tickets, err := h.service.Pending(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "pending listing failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	if !requestcontext.IsModerator(ctx) {
		actor := requestcontext.Actor(ctx)
		own := make([]scan.Ticket, 0, len(tickets))
		for _, t := range tickets {
			if t.SubmittedBy == actor {
				own = append(own, t)
			}
		}
		tickets = own
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{"tickets": tickets})
}

// HandleResult handles GET /scan/{ticketID} requests.
func (h *Handler) HandleResult(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	result, err := h.service.Result(ctx, chi.URLParam(r, "ticketID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

// HandleResults handles GET /scans requests with decision filtering and
// limit/offset paging.
func (h *Handler) HandleResults(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	filter := scan.ResultFilter{
		Limit:  parseIntParam(q.Get("limit"), 50),
		Offset: parseIntParam(q.Get("offset"), 0),
	}
	if d := q.Get("decision"); d != "" {
		if !governance.ValidDecision(governance.Decision(d)) {
			httputil.WriteError(w, dErrors.NewValidation("invalid filter", []dErrors.FieldError{
				{Field: "decision", Message: "unknown decision value"},
			}))
			return
		}
		filter.Decision = governance.Decision(d)
	}

	results, err := h.service.Results(ctx, filter)
	if err != nil {
		h.logger.ErrorContext(ctx, "scan listing failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"scans": results})
}

// HandleApproved handles GET /approved requests.
func (h *Handler) HandleApproved(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	approved, err := h.service.Approved(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "approved listing failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"approved": approved})
}

// HandleUnpublish handles DELETE /approved/{manifestID} requests.
func (h *Handler) HandleUnpublish(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	manifestID := chi.URLParam(r, "manifestID")

	if err := h.service.Unpublish(ctx, manifestID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"unpublished": manifestID})
}

func parseIntParam(s string, fallback int) int {
	if s == "" {
		return fallback
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
