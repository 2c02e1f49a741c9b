package scan_test

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"manifestgate/internal/analyzer"
	"manifestgate/internal/analyzer/verifier"
	"manifestgate/internal/audit"
	"manifestgate/internal/governance"
	"manifestgate/internal/heuristics"
	"manifestgate/internal/manifest"
	"manifestgate/internal/registry"
	"manifestgate/internal/risk"
	"manifestgate/internal/scan"
	"manifestgate/internal/scan/metrics"
	domainerrors "manifestgate/pkg/domain-errors"
	"manifestgate/pkg/requestcontext"
)

// pipeline assembles the full scan path on in-memory stores.
type pipeline struct {
	priv         ed25519.PrivateKey
	tickets      *scan.MemoryTicketStore
	submissions  *scan.MemorySubmissionStore
	results      *scan.MemoryResultStore
	approved     *scan.MemoryApprovedStore
	queue        *scan.MemoryQueue
	auditStore   *audit.MemoryStore
	auditSvc     *audit.Service
	builder      *registry.Builder
	orchestrator *scan.Orchestrator
	service      *scan.Service
}

var pipelineMetrics = metrics.New()

func newPipeline(s *suite.Suite, queueSize int) *pipeline {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	s.Require().NoError(err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	p := &pipeline{
		priv:        priv,
		tickets:     scan.NewMemoryTicketStore(),
		submissions: scan.NewMemorySubmissionStore(),
		results:     scan.NewMemoryResultStore(),
		approved:    scan.NewMemoryApprovedStore(),
		queue:       scan.NewMemoryQueue(queueSize),
		auditStore:  audit.NewMemoryStore(),
	}

	p.auditSvc, err = audit.NewService(context.Background(), p.auditStore, nil, logger)
	s.Require().NoError(err)
	p.builder = registry.NewBuilder(p.approved, logger)

	registryV := verifier.NewRegistry(verifier.NewEd25519Verifier(map[string]ed25519.PublicKey{
		"acme": pub,
	}))
	an := analyzer.New(registryV, []string{"acme"}, p.approved)
	detector := heuristics.New(nil)
	scorer := risk.New(risk.DefaultWeights(), risk.DefaultThresholds(), nil)

	p.orchestrator = scan.NewOrchestrator(scan.OrchestratorDeps{
		Tickets:     p.tickets,
		Submissions: p.submissions,
		Results:     p.results,
		Approved:    p.approved,
		Queue:       p.queue,
		Analyzer:    an,
		Detector:    detector,
		Scorer:      scorer,
		Policy:      governance.DefaultPolicy(),
		Audit:       p.auditSvc,
		Registry:    p.builder,
		Metrics:     pipelineMetrics,
		Logger:      logger,
		Workers:     2,
	})
	p.service = scan.NewService(scan.ServiceDeps{
		Tickets:     p.tickets,
		Submissions: p.submissions,
		Results:     p.results,
		Approved:    p.approved,
		Queue:       p.queue,
		Audit:       p.auditSvc,
		Registry:    p.builder,
		Metrics:     pipelineMetrics,
		Logger:      logger,
	})
	return p
}

// drain processes every queued ticket synchronously. Dequeue gets a short
// deadline so draining stops once the queue is empty.
func (p *pipeline) drain(ctx context.Context) {
	for {
		dequeueCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
		id, err := p.queue.Dequeue(dequeueCtx)
		cancel()
		if err != nil {
			return
		}
		p.orchestrator.Process(ctx, id)
	}
}

func (p *pipeline) signedManifest(s *suite.Suite) json.RawMessage {
	m := map[string]any{
		"id":          "app_notes",
		"name":        "Notes",
		"version":     "1.2.0",
		"entry":       "/apps/notes",
		"description": "A note taking app",
		"permissions": []string{"storage"},
		"endpoints": map[string]any{
			"notes.create": map[string]any{"fn": "createNote", "args": map[string]string{"title": "string"}, "scopes": []string{"storage"}},
			"notes.list":   map[string]any{"fn": "listNotes", "scopes": []string{"storage"}},
			"notes.delete": map[string]any{"fn": "deleteNote", "args": map[string]string{"id": "string"}, "scopes": []string{"storage"}},
		},
		"routes": map[string]string{"notes.home": "/apps/notes"},
	}
	sig := ed25519.Sign(p.priv, manifest.SigningMessage("app_notes", "1.2.0", "/apps/notes"))
	m["signer"] = "acme"
	m["signature"] = base64.StdEncoding.EncodeToString(sig)
	m["signatureScheme"] = "ed25519"

	raw, err := json.Marshal(m)
	s.Require().NoError(err)
	return raw
}

type OrchestratorSuite struct {
	suite.Suite
}

func TestOrchestratorSuite(t *testing.T) {
	suite.Run(t, new(OrchestratorSuite))
}

func (s *OrchestratorSuite) TestPipeline() {
	s.Run("signed low-risk manifest auto approves end to end", func() {
		p := newPipeline(&s.Suite, 16)
		ctx := requestcontext.WithActor(context.Background(), "dev@example.com")

		ticket, err := p.service.Submit(ctx, p.signedManifest(&s.Suite))
		s.Require().NoError(err)
		s.Equal(scan.StatusPending, ticket.Status)

		p.drain(ctx)

		got, err := p.service.Ticket(ctx, ticket.ID)
		s.Require().NoError(err)
		s.Equal(scan.StatusComplete, got.Status)

		result, err := p.service.Result(ctx, ticket.ID)
		s.Require().NoError(err)
		s.Equal(governance.DecisionApprove, result.Decision.Decision)
		s.True(result.Decision.AutoApproved)
		s.True(result.Analysis.Valid)

		approved, err := p.service.Approved(ctx)
		s.Require().NoError(err)
		s.Require().Len(approved, 1)
		s.Equal("app_notes", approved[0].ID)

		built, err := p.builder.Current(ctx)
		s.Require().NoError(err)
		s.Contains(built.Apps, "app_notes")

		entries, err := p.auditSvc.Query(ctx, audit.Filter{TicketID: ticket.ID})
		s.Require().NoError(err)
		actions := make([]audit.Action, 0, len(entries))
		for _, e := range entries {
			actions = append(actions, e.Action)
		}
		s.Equal([]audit.Action{audit.ActionSubmit, audit.ActionScanComplete, audit.ActionDecision, audit.ActionPublish}, actions)
		s.NoError(audit.VerifyChain(entries))
	})

	s.Run("unsigned manifest with undeclared payments scope quarantines", func() {
		p := newPipeline(&s.Suite, 16)
		ctx := requestcontext.WithActor(context.Background(), "dev@example.com")

		raw, err := json.Marshal(map[string]any{
			"id": "app_pay", "name": "PayThing", "version": "1.0.0", "entry": "/apps/pay",
			"description": "Payments helper",
			"permissions": []string{"storage"},
			"endpoints": map[string]any{
				"pay.charge": map[string]any{"fn": "charge", "scopes": []string{"payments"}},
			},
		})
		s.Require().NoError(err)

		ticket, err := p.service.Submit(ctx, raw)
		s.Require().NoError(err)
		p.drain(ctx)

		result, err := p.service.Result(ctx, ticket.ID)
		s.Require().NoError(err)
		s.Equal(governance.DecisionQuarantine, result.Decision.Decision)
		s.True(result.Decision.RequiresHumanReview)
		s.Contains(result.Analysis.Issues, `scope "payments" used by endpoints but not declared in permissions`)
		s.Contains(result.Analysis.Issues, "manifest touches sensitive scopes and requires a signature")

		approved, err := p.service.Approved(ctx)
		s.Require().NoError(err)
		s.Empty(approved)
	})

	s.Run("approved gauge follows admissions and withdrawals", func() {
		p := newPipeline(&s.Suite, 16)
		ctx := requestcontext.WithActor(context.Background(), "mod@example.com")

		_, err := p.service.Submit(ctx, p.signedManifest(&s.Suite))
		s.Require().NoError(err)
		p.drain(ctx)
		s.Equal(float64(1), promtest.ToFloat64(pipelineMetrics.ApprovedManifests))

		s.Require().NoError(p.service.Unpublish(ctx, "app_notes"))
		s.Equal(float64(0), promtest.ToFloat64(pipelineMetrics.ApprovedManifests))
	})

	s.Run("promotion publishes a quarantined manifest", func() {
		p := newPipeline(&s.Suite, 16)
		ctx := requestcontext.WithActor(context.Background(), "dev@example.com")

		raw, err := json.Marshal(map[string]any{
			"id": "app_pay", "name": "PayThing", "version": "1.0.0", "entry": "/apps/pay",
			"description": "Payments helper",
			"permissions": []string{"storage"},
			"endpoints": map[string]any{
				"pay.charge": map[string]any{"fn": "charge", "scopes": []string{"payments"}},
			},
		})
		s.Require().NoError(err)

		ticket, err := p.service.Submit(ctx, raw)
		s.Require().NoError(err)
		p.drain(ctx)

		modCtx := requestcontext.WithActor(context.Background(), "mod@example.com")
		s.Require().NoError(p.service.Promote(modCtx, ticket.ID))

		approved, err := p.service.Approved(modCtx)
		s.Require().NoError(err)
		s.Require().Len(approved, 1)
		s.Equal("app_pay", approved[0].ID)

		built, err := p.builder.Current(modCtx)
		s.Require().NoError(err)
		s.Contains(built.Apps, "app_pay")
		s.Equal(float64(1), promtest.ToFloat64(pipelineMetrics.ApprovedManifests))

		entries, err := p.auditSvc.Query(modCtx, audit.Filter{TicketID: ticket.ID})
		s.Require().NoError(err)
		s.Require().NotEmpty(entries)
		last := entries[len(entries)-1]
		s.Equal(audit.ActionPublish, last.Action)
		s.Equal("mod@example.com", last.Actor)
	})

	s.Run("completed tickets are idempotent on repeated reads", func() {
		p := newPipeline(&s.Suite, 16)
		ctx := requestcontext.WithActor(context.Background(), "dev@example.com")

		ticket, err := p.service.Submit(ctx, p.signedManifest(&s.Suite))
		s.Require().NoError(err)
		p.drain(ctx)

		first, err := p.service.Result(ctx, ticket.ID)
		s.Require().NoError(err)
		second, err := p.service.Result(ctx, ticket.ID)
		s.Require().NoError(err)
		s.Equal(first, second)

		// Duplicate queue delivery of a finished ticket is a no-op.
		p.orchestrator.Process(ctx, ticket.ID)
		third, err := p.service.Result(ctx, ticket.ID)
		s.Require().NoError(err)
		s.Equal(first, third)
	})

	s.Run("schema rejection creates no ticket", func() {
		p := newPipeline(&s.Suite, 16)
		ctx := context.Background()

		_, err := p.service.Submit(ctx, json.RawMessage(`{"id":"bad id"}`))

		s.True(domainerrors.Is(err, domainerrors.CodeValidation))
		pending, err := p.service.Pending(ctx)
		s.Require().NoError(err)
		s.Empty(pending)
	})

	s.Run("full queue rejects with backpressure and fails the ticket", func() {
		p := newPipeline(&s.Suite, 1)
		ctx := requestcontext.WithActor(context.Background(), "dev@example.com")

		_, err := p.service.Submit(ctx, p.signedManifest(&s.Suite))
		s.Require().NoError(err)

		_, err = p.service.Submit(ctx, p.signedManifest(&s.Suite))
		s.True(domainerrors.Is(err, domainerrors.CodeUnavailable))
	})

	s.Run("missing submission fails the ticket terminally", func() {
		p := newPipeline(&s.Suite, 16)
		ctx := context.Background()

		s.Require().NoError(p.tickets.Create(ctx, scan.Ticket{ID: "tkt-orphan", Status: scan.StatusPending}))
		p.orchestrator.Process(ctx, "tkt-orphan")

		got, err := p.tickets.Get(ctx, "tkt-orphan")
		s.Require().NoError(err)
		s.Equal(scan.StatusFailed, got.Status)
		s.Equal("submission unavailable", got.FailureReason)
	})
}
