package scan

import (
	"context"

	"manifestgate/internal/governance"
	"manifestgate/internal/manifest"
)

// TicketStore persists tickets. Transition is a compare-and-swap so ticket
// state changes stay linearizable under pool concurrency.
type TicketStore interface {
	Create(ctx context.Context, t Ticket) error
	Get(ctx context.Context, id string) (Ticket, error)
	ListByStatus(ctx context.Context, status TicketStatus) ([]Ticket, error)
	// Transition moves the ticket from one status to another. Returns
	// sentinel.ErrNotFound for unknown tickets and sentinel.ErrInvalidState
	// when the current status differs from from.
	Transition(ctx context.Context, id string, from, to TicketStatus, reason string) error
}

// SubmissionStore holds the raw manifest of an in-flight ticket.
type SubmissionStore interface {
	Put(ctx context.Context, ticketID string, m manifest.Manifest) error
	Get(ctx context.Context, ticketID string) (manifest.Manifest, error)
}

// ResultStore persists completed scan results.
type ResultStore interface {
	Put(ctx context.Context, r Result) error
	GetByTicket(ctx context.Context, ticketID string) (Result, error)
	List(ctx context.Context, f ResultFilter) ([]Result, error)
	// ReplaceDecision swaps the decision on a completed result; implements
	// the governance override target.
	ReplaceDecision(ctx context.Context, ticketID string, decision governance.DecisionResult) (governance.ManifestRef, error)
}

// ApprovedStore holds the current admitted-manifest set. Doubles as the
// registry's approved source and the analyzer's version history.
type ApprovedStore interface {
	Upsert(ctx context.Context, m manifest.Manifest) error
	Remove(ctx context.Context, manifestID string) error
	ListApproved(ctx context.Context) ([]manifest.Manifest, error)
	PriorVersions(ctx context.Context, manifestID string) ([]string, error)
}
