package governance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	domainerrors "manifestgate/pkg/domain-errors"
	"manifestgate/pkg/sentinel"
)

// ManifestRef identifies the manifest a ticket scanned.
type ManifestRef struct {
	ManifestID string
	Version    string
}

// OverrideTarget replaces the decision on a completed scan result.
// Implementations return sentinel.ErrNotFound for unknown tickets and
// sentinel.ErrInvalidState for tickets that are not complete.
type OverrideTarget interface {
	ReplaceDecision(ctx context.Context, ticketID string, decision DecisionResult) (ManifestRef, error)
}

// OverrideRecorder appends the override to the audit trail.
type OverrideRecorder interface {
	RecordOverride(ctx context.Context, ticketID string, ref ManifestRef, actor string, details map[string]string) error
}

// Promoter admits a ticket's manifest into the published catalog. Overrides
// to approve go through it so the manifest reaches the approved set without
// resubmission.
type Promoter interface {
	Promote(ctx context.Context, ticketID string) error
}

// Overrider applies moderator overrides to completed scans.
type Overrider struct {
	results  OverrideTarget
	promoter Promoter
	audit    OverrideRecorder
	logger   *slog.Logger
}

// NewOverrider wires the override service. promoter may be nil, in which case
// approve overrides replace the decision without publishing.
func NewOverrider(results OverrideTarget, promoter Promoter, audit OverrideRecorder, logger *slog.Logger) *Overrider {
	return &Overrider{results: results, promoter: promoter, audit: audit, logger: logger}
}

// Override supersedes the automated decision on a complete ticket. The
// replacement is marked human-reviewed and never auto-approved, and the
// audit entry carries the moderator's notes. An override to approve also
// publishes the manifest; overrides away from approve leave any published
// copy in place, withdrawal is an explicit unpublish.
func (o *Overrider) Override(ctx context.Context, ticketID, moderator string, decision Decision, notes string) (DecisionResult, error) {
	if !ValidDecision(decision) {
		return DecisionResult{}, domainerrors.NewValidation("invalid override", []domainerrors.FieldError{
			{Field: "decision", Message: fmt.Sprintf("%q is not a valid decision", decision)},
		})
	}
	if moderator == "" {
		return DecisionResult{}, domainerrors.New(domainerrors.CodeUnauthorized, "override requires an authenticated moderator")
	}

	replacement := DecisionResult{
		Decision:            decision,
		Reason:              fmt.Sprintf("moderator override by %s: %s", moderator, notes),
		RequiresHumanReview: false,
		AutoApproved:        false,
	}

	ref, err := o.results.ReplaceDecision(ctx, ticketID, replacement)
	if err != nil {
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			return DecisionResult{}, domainerrors.Wrap(domainerrors.CodeNotFound, "scan result not found", err)
		case errors.Is(err, sentinel.ErrInvalidState):
			return DecisionResult{}, domainerrors.Wrap(domainerrors.CodeInvalidState, "ticket has not completed scanning", err)
		default:
			return DecisionResult{}, domainerrors.Wrap(domainerrors.CodeInternal, "replace decision", err)
		}
	}

	details := map[string]string{
		"decision":  string(decision),
		"moderator": moderator,
		"notes":     notes,
	}
	if err := o.audit.RecordOverride(ctx, ticketID, ref, moderator, details); err != nil {
		o.logger.ErrorContext(ctx, "override audit append failed",
			"ticket_id", ticketID, "error", err)
		return DecisionResult{}, domainerrors.Wrap(domainerrors.CodeInternal, "record override", err)
	}

	if decision == DecisionApprove && o.promoter != nil {
		if err := o.promoter.Promote(ctx, ticketID); err != nil {
			o.logger.ErrorContext(ctx, "override promotion failed",
				"ticket_id", ticketID, "manifest_id", ref.ManifestID, "error", err)
			return DecisionResult{}, domainerrors.Wrap(domainerrors.CodeInternal, "publish approved manifest", err)
		}
	}

	o.logger.InfoContext(ctx, "decision overridden",
		"ticket_id", ticketID, "manifest_id", ref.ManifestID, "decision", decision, "moderator", moderator)
	return replacement, nil
}
