package scan_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"manifestgate/internal/governance"
	"manifestgate/internal/manifest"
	"manifestgate/internal/scan"
	"manifestgate/pkg/sentinel"
)

type MemoryStoreSuite struct {
	suite.Suite
	tickets  *scan.MemoryTicketStore
	results  *scan.MemoryResultStore
	approved *scan.MemoryApprovedStore
}

func TestMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(MemoryStoreSuite))
}

func (s *MemoryStoreSuite) SetupTest() {
	s.tickets = scan.NewMemoryTicketStore()
	s.results = scan.NewMemoryResultStore()
	s.approved = scan.NewMemoryApprovedStore()
}

func (s *MemoryStoreSuite) TestTickets() {
	ctx := context.Background()
	ticket := scan.Ticket{
		ID: "tkt-1", Status: scan.StatusPending, SubmittedAt: time.Now(),
		SubmittedBy: "dev@example.com", ManifestID: "app_notes", ManifestVersion: "1.0.0",
	}

	s.Run("create and get round trip", func() {
		s.Require().NoError(s.tickets.Create(ctx, ticket))

		got, err := s.tickets.Get(ctx, "tkt-1")
		s.Require().NoError(err)
		s.Equal(ticket.ManifestID, got.ManifestID)
	})

	s.Run("duplicate create conflicts", func() {
		s.ErrorIs(s.tickets.Create(ctx, ticket), sentinel.ErrConflict)
	})

	s.Run("unknown ticket is not found", func() {
		_, err := s.tickets.Get(ctx, "missing")
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("transition enforces the current status", func() {
		s.Require().NoError(s.tickets.Transition(ctx, "tkt-1", scan.StatusPending, scan.StatusScanning, ""))
		s.ErrorIs(s.tickets.Transition(ctx, "tkt-1", scan.StatusPending, scan.StatusScanning, ""), sentinel.ErrInvalidState)
		s.Require().NoError(s.tickets.Transition(ctx, "tkt-1", scan.StatusScanning, scan.StatusComplete, ""))
	})

	s.Run("list by status", func() {
		s.Require().NoError(s.tickets.Create(ctx, scan.Ticket{ID: "tkt-2", Status: scan.StatusPending}))

		pending, err := s.tickets.ListByStatus(ctx, scan.StatusPending)
		s.Require().NoError(err)
		s.Len(pending, 1)
		s.Equal("tkt-2", pending[0].ID)
	})
}

func (s *MemoryStoreSuite) TestResults() {
	ctx := context.Background()
	put := func(ticketID string, decision governance.Decision) {
		s.Require().NoError(s.results.Put(ctx, scan.Result{
			TicketID:   ticketID,
			ManifestID: "app_notes", ManifestVersion: "1.0.0",
			Decision: governance.DecisionResult{Decision: decision},
		}))
	}
	put("tkt-1", governance.DecisionApprove)
	put("tkt-2", governance.DecisionManualReview)
	put("tkt-3", governance.DecisionApprove)

	s.Run("filter by decision", func() {
		approved, err := s.results.List(ctx, scan.ResultFilter{Decision: governance.DecisionApprove})
		s.Require().NoError(err)
		s.Len(approved, 2)
	})

	s.Run("limit and offset page through", func() {
		page, err := s.results.List(ctx, scan.ResultFilter{Limit: 2, Offset: 1})
		s.Require().NoError(err)
		s.Require().Len(page, 2)
		s.Equal("tkt-2", page[0].TicketID)
	})

	s.Run("replace decision returns the manifest reference", func() {
		ref, err := s.results.ReplaceDecision(ctx, "tkt-2", governance.DecisionResult{Decision: governance.DecisionApprove})
		s.Require().NoError(err)
		s.Equal("app_notes", ref.ManifestID)

		r, err := s.results.GetByTicket(ctx, "tkt-2")
		s.Require().NoError(err)
		s.Equal(governance.DecisionApprove, r.Decision.Decision)
	})

	s.Run("replace on unknown ticket is not found", func() {
		_, err := s.results.ReplaceDecision(ctx, "missing", governance.DecisionResult{})
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *MemoryStoreSuite) TestApproved() {
	ctx := context.Background()

	s.Run("upsert tracks version history", func() {
		s.Require().NoError(s.approved.Upsert(ctx, manifest.Manifest{ID: "app_notes", Version: "1.0.0"}))
		s.Require().NoError(s.approved.Upsert(ctx, manifest.Manifest{ID: "app_notes", Version: "1.1.0"}))
		s.Require().NoError(s.approved.Upsert(ctx, manifest.Manifest{ID: "app_notes", Version: "1.1.0"}))

		versions, err := s.approved.PriorVersions(ctx, "app_notes")
		s.Require().NoError(err)
		s.Equal([]string{"1.0.0", "1.1.0"}, versions)

		approved, err := s.approved.ListApproved(ctx)
		s.Require().NoError(err)
		s.Require().Len(approved, 1)
		s.Equal("1.1.0", approved[0].Version)
	})

	s.Run("remove keeps history but drops the listing", func() {
		s.Require().NoError(s.approved.Remove(ctx, "app_notes"))

		approved, err := s.approved.ListApproved(ctx)
		s.Require().NoError(err)
		s.Empty(approved)

		versions, err := s.approved.PriorVersions(ctx, "app_notes")
		s.Require().NoError(err)
		s.NotEmpty(versions)

		s.ErrorIs(s.approved.Remove(ctx, "app_notes"), sentinel.ErrNotFound)
	})
}

func TestMemoryQueueBackpressure(t *testing.T) {
	ctx := context.Background()
	q := scan.NewMemoryQueue(2)

	if err := q.Enqueue(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	if err := q.Enqueue(ctx, "b"); err != nil {
		t.Fatal(err)
	}
	if err := q.Enqueue(ctx, "c"); err != sentinel.ErrQueueFull {
		t.Fatalf("expected queue full, got %v", err)
	}

	got, err := q.Dequeue(ctx)
	if err != nil || got != "a" {
		t.Fatalf("dequeue = %q, %v", got, err)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := scan.NewMemoryQueue(1).Dequeue(cancelled); err == nil {
		t.Fatal("expected context error from empty queue")
	}
}
