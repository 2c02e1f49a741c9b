package handler

import (
	"context"
	"encoding/base64"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"manifestgate/internal/sandbox"
	dErrors "manifestgate/pkg/domain-errors"
	"manifestgate/pkg/httputil"
	"manifestgate/pkg/requestcontext"
)

// Service defines the interface for on-demand sandbox execution.
type Service interface {
	Invoke(ctx context.Context, code []byte, fn string, args map[string]any) sandbox.Invocation
	RunTests(ctx context.Context, code []byte, cases []sandbox.TestCase) []sandbox.TestOutcome
}

// Handler wires the on-demand sandbox endpoints used by moderator tooling.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs a sandbox handler with its dependencies.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterModeration mounts the sandbox endpoints. The caller guards the
// router group with the moderator middleware.
func (h *Handler) RegisterModeration(r chi.Router) {
	r.Post("/sandbox/invoke", h.HandleInvoke)
	r.Post("/sandbox/tests", h.HandleRunTests)
}

// InvokeRequest carries one ad hoc invocation. Code is base64-encoded wasm.
type InvokeRequest struct {
	Code string         `json:"code"`
	Fn   string         `json:"fn"`
	Args map[string]any `json:"args,omitempty"`
}

// HandleInvoke handles POST /sandbox/invoke requests.
func (h *Handler) HandleInvoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[InvokeRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	code, fieldErrs := decodeCode(req.Code, req.Fn)
	if fieldErrs != nil {
		httputil.WriteError(w, dErrors.NewValidation("invalid invocation", fieldErrs))
		return
	}

	inv := h.service.Invoke(ctx, code, req.Fn, req.Args)
	h.logger.InfoContext(ctx, "sandbox invocation",
		"request_id", requestID,
		"actor", requestcontext.Actor(ctx),
		"fn", req.Fn,
		"ok", inv.OK,
		"timed_out", inv.TimedOut,
	)
	httputil.WriteJSON(w, http.StatusOK, inv)
}

// RunTestsRequest carries a conformance batch. Code is base64-encoded wasm.
type RunTestsRequest struct {
	Code  string             `json:"code"`
	Cases []sandbox.TestCase `json:"cases"`
}

// RunTestsResponse summarizes a conformance batch.
type RunTestsResponse struct {
	Passes   int                   `json:"passes"`
	Fails    int                   `json:"fails"`
	Outcomes []sandbox.TestOutcome `json:"outcomes"`
}

// HandleRunTests handles POST /sandbox/tests requests.
func (h *Handler) HandleRunTests(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[RunTestsRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	if len(req.Cases) == 0 {
		httputil.WriteError(w, dErrors.NewValidation("invalid test batch", []dErrors.FieldError{
			{Field: "cases", Message: "at least one case is required"},
		}))
		return
	}
	code, fieldErrs := decodeCode(req.Code, "probe")
	if fieldErrs != nil {
		httputil.WriteError(w, dErrors.NewValidation("invalid test batch", fieldErrs))
		return
	}

	outcomes := h.service.RunTests(ctx, code, req.Cases)
	resp := RunTestsResponse{Outcomes: outcomes}
	for _, o := range outcomes {
		if o.Passed {
			resp.Passes++
		} else {
			resp.Fails++
		}
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func decodeCode(encoded, fn string) ([]byte, []dErrors.FieldError) {
	var errs []dErrors.FieldError
	if encoded == "" {
		errs = append(errs, dErrors.FieldError{Field: "code", Message: "code is required"})
	}
	if fn == "" {
		errs = append(errs, dErrors.FieldError{Field: "fn", Message: "fn is required"})
	}
	if errs != nil {
		return nil, errs
	}
	code, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, []dErrors.FieldError{{Field: "code", Message: "code must be base64-encoded wasm"}}
	}
	return code, nil
}
