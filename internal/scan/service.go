package scan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"manifestgate/internal/audit"
	"manifestgate/internal/manifest"
	"manifestgate/internal/scan/metrics"
	domainerrors "manifestgate/pkg/domain-errors"
	"manifestgate/pkg/requestcontext"
	"manifestgate/pkg/sentinel"
)

// Service is the submission gateway and read surface over the scan pipeline.
// Validation is synchronous; everything after ticket issuance is the
// orchestrator's job.
type Service struct {
	tickets     TicketStore
	submissions SubmissionStore
	results     ResultStore
	approved    ApprovedStore
	queue       Queue
	audit       Auditor
	registry    RegistryRebuilder
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

// ServiceDeps wires the gateway service.
type ServiceDeps struct {
	Tickets     TicketStore
	Submissions SubmissionStore
	Results     ResultStore
	Approved    ApprovedStore
	Queue       Queue
	Audit       Auditor
	Registry    RegistryRebuilder
	Metrics     *metrics.Metrics
	Logger      *slog.Logger
}

func NewService(deps ServiceDeps) *Service {
	return &Service{
		tickets:     deps.Tickets,
		submissions: deps.Submissions,
		results:     deps.Results,
		approved:    deps.Approved,
		queue:       deps.Queue,
		audit:       deps.Audit,
		registry:    deps.Registry,
		metrics:     deps.Metrics,
		logger:      deps.Logger,
	}
}

// Submit validates the raw manifest, issues a pending ticket, and enqueues it
// for asynchronous scanning. Schema violations reject synchronously with
// field detail and never create a ticket.
func (s *Service) Submit(ctx context.Context, raw json.RawMessage) (Ticket, error) {
	m, err := manifest.ValidateRaw(raw)
	if err != nil {
		return Ticket{}, err
	}

	actor := requestcontext.Actor(ctx)
	ticket := Ticket{
		ID:              uuid.New().String(),
		Status:          StatusPending,
		SubmittedAt:     requestcontext.Now(ctx).UTC(),
		SubmittedBy:     actor,
		ManifestID:      m.ID,
		ManifestVersion: m.Version,
	}

	if err := s.tickets.Create(ctx, ticket); err != nil {
		return Ticket{}, domainerrors.Wrap(domainerrors.CodeInternal, "create ticket", err)
	}
	if err := s.submissions.Put(ctx, ticket.ID, *m); err != nil {
		return Ticket{}, domainerrors.Wrap(domainerrors.CodeInternal, "store submission", err)
	}

	if _, err := s.audit.Record(ctx, audit.Record{
		TicketID: ticket.ID, ManifestID: m.ID, ManifestVersion: m.Version,
		Action: audit.ActionSubmit, Actor: actor,
	}); err != nil {
		s.logger.ErrorContext(ctx, "submit audit append failed",
			"ticket_id", ticket.ID, "error", err)
	}

	if err := s.queue.Enqueue(ctx, ticket.ID); err != nil {
		if terr := s.tickets.Transition(ctx, ticket.ID, StatusPending, StatusFailed, "scan queue unavailable"); terr != nil {
			s.logger.ErrorContext(ctx, "ticket failure transition failed",
				"ticket_id", ticket.ID, "error", terr)
		}
		if errors.Is(err, sentinel.ErrQueueFull) {
			return Ticket{}, domainerrors.Wrap(domainerrors.CodeUnavailable, "scan queue is full, retry later", err)
		}
		return Ticket{}, domainerrors.Wrap(domainerrors.CodeInternal, "enqueue ticket", err)
	}

	s.logger.InfoContext(ctx, "manifest submitted",
		"ticket_id", ticket.ID, "manifest_id", m.ID, "version", m.Version,
		"actor", actor, "request_id", requestcontext.RequestID(ctx))
	return ticket, nil
}

// Ticket returns one ticket by ID.
func (s *Service) Ticket(ctx context.Context, id string) (Ticket, error) {
	t, err := s.tickets.Get(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return Ticket{}, domainerrors.New(domainerrors.CodeNotFound, "ticket not found")
		}
		return Ticket{}, domainerrors.Wrap(domainerrors.CodeInternal, "load ticket", err)
	}
	return t, nil
}

// Pending lists tickets awaiting or undergoing scanning.
func (s *Service) Pending(ctx context.Context) ([]Ticket, error) {
	pending, err := s.tickets.ListByStatus(ctx, StatusPending)
	if err != nil {
		return nil, domainerrors.Wrap(domainerrors.CodeInternal, "list pending", err)
	}
	scanning, err := s.tickets.ListByStatus(ctx, StatusScanning)
	if err != nil {
		return nil, domainerrors.Wrap(domainerrors.CodeInternal, "list scanning", err)
	}
	return append(pending, scanning...), nil
}

// Result returns the full scan result for a completed ticket.
func (s *Service) Result(ctx context.Context, ticketID string) (Result, error) {
	r, err := s.results.GetByTicket(ctx, ticketID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return Result{}, domainerrors.New(domainerrors.CodeNotFound, "scan result not available")
		}
		return Result{}, domainerrors.Wrap(domainerrors.CodeInternal, "load result", err)
	}
	return r, nil
}

// Results lists completed scans with optional decision filtering and paging.
func (s *Service) Results(ctx context.Context, f ResultFilter) ([]Result, error) {
	out, err := s.results.List(ctx, f)
	if err != nil {
		return nil, domainerrors.Wrap(domainerrors.CodeInternal, "list results", err)
	}
	return out, nil
}

// Approved lists the admitted manifests in summary form.
func (s *Service) Approved(ctx context.Context) ([]ApprovedSummary, error) {
	manifests, err := s.approved.ListApproved(ctx)
	if err != nil {
		return nil, domainerrors.Wrap(domainerrors.CodeInternal, "list approved", err)
	}
	out := make([]ApprovedSummary, 0, len(manifests))
	for _, m := range manifests {
		out = append(out, ApprovedSummary{
			ID:          m.ID,
			Name:        m.Name,
			Version:     m.Version,
			Category:    m.Category,
			Permissions: m.Permissions,
		})
	}
	return out, nil
}

// Unpublish withdraws a manifest from the admitted set and refreshes the
// catalog. Moderator-only at the transport layer.
func (s *Service) Unpublish(ctx context.Context, manifestID string) error {
	if err := s.approved.Remove(ctx, manifestID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return domainerrors.New(domainerrors.CodeNotFound, "manifest is not published")
		}
		return domainerrors.Wrap(domainerrors.CodeInternal, "remove approved manifest", err)
	}
	if built, err := s.registry.Rebuild(ctx); err != nil {
		s.logger.ErrorContext(ctx, "registry rebuild failed after unpublish",
			"manifest_id", manifestID, "error", err)
	} else {
		s.metrics.SetApproved(len(built.Apps))
	}
	if _, err := s.audit.Record(ctx, audit.Record{
		ManifestID: manifestID,
		Action:     audit.ActionUnpublish,
		Actor:      requestcontext.Actor(ctx),
	}); err != nil {
		s.logger.ErrorContext(ctx, "unpublish audit append failed",
			"manifest_id", manifestID, "error", err)
	}
	return nil
}

// Promote admits a ticket's manifest into the approved set after a moderator
// override, mirroring the auto-approve path. The caller audits the override
// itself; this records the publish.
func (s *Service) Promote(ctx context.Context, ticketID string) error {
	m, err := s.submissions.Get(ctx, ticketID)
	if err != nil {
		return fmt.Errorf("load submission: %w", err)
	}
	if err := s.approved.Upsert(ctx, m); err != nil {
		return fmt.Errorf("approved upsert: %w", err)
	}
	if built, err := s.registry.Rebuild(ctx); err != nil {
		s.logger.ErrorContext(ctx, "registry rebuild failed after promotion",
			"manifest_id", m.ID, "error", err)
	} else {
		s.metrics.SetApproved(len(built.Apps))
	}
	if _, err := s.audit.Record(ctx, audit.Record{
		TicketID: ticketID, ManifestID: m.ID, ManifestVersion: m.Version,
		Action: audit.ActionPublish, Actor: requestcontext.Actor(ctx),
	}); err != nil {
		s.logger.ErrorContext(ctx, "publish audit append failed",
			"ticket_id", ticketID, "error", err)
	}
	s.logger.InfoContext(ctx, "manifest promoted",
		"ticket_id", ticketID, "manifest_id", m.ID, "version", m.Version)
	return nil
}
