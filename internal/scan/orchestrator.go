package scan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"manifestgate/internal/analyzer"
	"manifestgate/internal/audit"
	"manifestgate/internal/governance"
	"manifestgate/internal/heuristics"
	"manifestgate/internal/registry"
	"manifestgate/internal/risk"
	"manifestgate/internal/scan/metrics"
	"manifestgate/pkg/sentinel"
)

// systemActor identifies pipeline-generated audit entries.
const systemActor = "system/scanner"

// Auditor appends pipeline events to the audit log.
type Auditor interface {
	Record(ctx context.Context, rec audit.Record) (audit.Entry, error)
}

// RegistryRebuilder refreshes the published catalog after admissions.
type RegistryRebuilder interface {
	Rebuild(ctx context.Context) (*registry.BuiltRegistry, error)
}

// OrchestratorDeps wires the pipeline stages into the orchestrator.
type OrchestratorDeps struct {
	Tickets     TicketStore
	Submissions SubmissionStore
	Results     ResultStore
	Approved    ApprovedStore
	Queue       Queue
	Analyzer    *analyzer.Analyzer
	Detector    *heuristics.Detector
	Scorer      *risk.Scorer
	Policy      governance.Policy
	Audit       Auditor
	Registry    RegistryRebuilder
	Metrics     *metrics.Metrics
	Logger      *slog.Logger
	Workers     int
}

// Orchestrator drains the scan queue with a bounded worker pool and drives
// each ticket through analysis, heuristics, scoring, and governance. Tickets
// always reach a terminal state; a panic in any stage fails the ticket
// instead of killing the worker.
type Orchestrator struct {
	deps   OrchestratorDeps
	tracer trace.Tracer
}

func NewOrchestrator(deps OrchestratorDeps) *Orchestrator {
	if deps.Workers <= 0 {
		deps.Workers = 4
	}
	return &Orchestrator{
		deps:   deps,
		tracer: otel.Tracer("manifestgate/internal/scan"),
	}
}

// Run blocks until the context ends, processing tickets with Workers
// goroutines.
func (o *Orchestrator) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < o.deps.Workers; i++ {
		g.Go(func() error {
			return o.worker(ctx)
		})
	}
	return g.Wait()
}

func (o *Orchestrator) worker(ctx context.Context) error {
	for {
		ticketID, err := o.deps.Queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			o.deps.Logger.ErrorContext(ctx, "queue dequeue failed", "error", err)
			continue
		}
		o.Process(ctx, ticketID)
	}
}

// Process runs one ticket to a terminal state. Exported so tests and
// synchronous tooling can drive tickets without the worker pool.
func (o *Orchestrator) Process(ctx context.Context, ticketID string) {
	ctx, span := o.tracer.Start(ctx, "scan.process",
		trace.WithAttributes(attribute.String("ticket.id", ticketID)))
	defer span.End()

	o.deps.Metrics.TrackInFlight(1)
	defer o.deps.Metrics.TrackInFlight(-1)
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("scan panic: %v", r)
			span.RecordError(err)
			o.deps.Logger.ErrorContext(ctx, "scan panicked",
				"ticket_id", ticketID, "panic", r)
			o.fail(ctx, ticketID, "internal failure during scan")
		}
	}()

	if err := o.deps.Tickets.Transition(ctx, ticketID, StatusPending, StatusScanning, ""); err != nil {
		switch {
		case errors.Is(err, sentinel.ErrInvalidState):
			// Duplicate delivery of an already claimed or finished ticket.
			o.deps.Logger.DebugContext(ctx, "ticket not pending, skipping", "ticket_id", ticketID)
		case errors.Is(err, sentinel.ErrNotFound):
			o.deps.Logger.WarnContext(ctx, "queued ticket unknown", "ticket_id", ticketID)
		default:
			o.deps.Logger.ErrorContext(ctx, "ticket claim failed", "ticket_id", ticketID, "error", err)
		}
		return
	}

	m, err := o.deps.Submissions.Get(ctx, ticketID)
	if err != nil {
		o.deps.Logger.ErrorContext(ctx, "submission missing for ticket",
			"ticket_id", ticketID, "error", err)
		o.fail(ctx, ticketID, "submission unavailable")
		return
	}

	analysis, err := o.deps.Analyzer.Analyze(ctx, &m)
	if err != nil {
		span.RecordError(err)
		o.deps.Logger.ErrorContext(ctx, "static analysis failed",
			"ticket_id", ticketID, "manifest_id", m.ID, "error", err)
		o.fail(ctx, ticketID, "static analysis failed")
		return
	}

	heur := o.deps.Detector.Detect(&m)
	score := o.deps.Scorer.ScoreManifest(&m, analysis)
	decision := governance.Decide(governance.Input{
		Risk:   score,
		Flags:  heur.Flags,
		Issues: analysis.Issues,
		Scopes: m.UsedScopes(),
	}, o.deps.Policy)

	result := Result{
		TicketID:        ticketID,
		ManifestID:      m.ID,
		ManifestVersion: m.Version,
		Digest:          analysis.Digest,
		Analysis:        analysis,
		Heuristics:      heur,
		Risk:            score,
		Decision:        decision,
		ScannedAt:       time.Now().UTC(),
	}
	if err := o.deps.Results.Put(ctx, result); err != nil {
		span.RecordError(err)
		o.deps.Logger.ErrorContext(ctx, "result persist failed",
			"ticket_id", ticketID, "error", err)
		o.fail(ctx, ticketID, "result persistence failed")
		return
	}

	o.record(ctx, audit.Record{
		TicketID: ticketID, ManifestID: m.ID, ManifestVersion: m.Version,
		Action: audit.ActionScanComplete, Actor: systemActor,
		Details: map[string]string{
			"digest": analysis.Digest,
			"valid":  strconv.FormatBool(analysis.Valid),
			"flags":  strconv.Itoa(len(heur.Flags)),
		},
	})
	o.record(ctx, audit.Record{
		TicketID: ticketID, ManifestID: m.ID, ManifestVersion: m.Version,
		Action: audit.ActionDecision, Actor: systemActor,
		Details: map[string]string{
			"decision": string(decision.Decision),
			"reason":   decision.Reason,
			"score":    strconv.FormatFloat(score.Score, 'f', 2, 64),
			"level":    string(score.Level),
		},
	})

	if decision.AutoApproved {
		if err := o.deps.Approved.Upsert(ctx, m); err != nil {
			span.RecordError(err)
			o.deps.Logger.ErrorContext(ctx, "approved upsert failed",
				"ticket_id", ticketID, "manifest_id", m.ID, "error", err)
			o.fail(ctx, ticketID, "admission persistence failed")
			return
		}
		if built, err := o.deps.Registry.Rebuild(ctx); err != nil {
			// Registry staleness is bounded by the next rebuild; the
			// admission itself already persisted.
			o.deps.Logger.ErrorContext(ctx, "registry rebuild failed",
				"manifest_id", m.ID, "error", err)
		} else {
			o.deps.Metrics.SetApproved(len(built.Apps))
		}
		o.record(ctx, audit.Record{
			TicketID: ticketID, ManifestID: m.ID, ManifestVersion: m.Version,
			Action: audit.ActionPublish, Actor: systemActor,
			Details: map[string]string{"digest": analysis.Digest},
		})
	}

	if err := o.deps.Tickets.Transition(ctx, ticketID, StatusScanning, StatusComplete, ""); err != nil {
		o.deps.Logger.ErrorContext(ctx, "ticket completion failed",
			"ticket_id", ticketID, "error", err)
		return
	}

	o.deps.Metrics.ObserveScan(string(decision.Decision), string(score.Level),
		decision.AutoApproved, time.Since(start))
	span.SetAttributes(
		attribute.String("scan.decision", string(decision.Decision)),
		attribute.Float64("scan.score", score.Score),
	)
	o.deps.Logger.InfoContext(ctx, "scan complete",
		"ticket_id", ticketID, "manifest_id", m.ID,
		"decision", decision.Decision, "score", score.Score, "level", score.Level)
}

// record appends an audit entry; failures are logged, never fatal to the
// scan itself.
func (o *Orchestrator) record(ctx context.Context, rec audit.Record) {
	if _, err := o.deps.Audit.Record(ctx, rec); err != nil {
		o.deps.Logger.ErrorContext(ctx, "audit append failed",
			"ticket_id", rec.TicketID, "action", rec.Action, "error", err)
	}
}

func (o *Orchestrator) fail(ctx context.Context, ticketID, reason string) {
	o.deps.Metrics.ObserveFailure()
	if err := o.deps.Tickets.Transition(ctx, ticketID, StatusScanning, StatusFailed, reason); err != nil {
		o.deps.Logger.ErrorContext(ctx, "ticket failure transition failed",
			"ticket_id", ticketID, "error", err)
	}
}
