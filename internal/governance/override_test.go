package governance_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/suite"

	"manifestgate/internal/governance"
	domainerrors "manifestgate/pkg/domain-errors"
	"manifestgate/pkg/sentinel"
)

type fakeOverrideTarget struct {
	err      error
	ref      governance.ManifestRef
	ticketID string
	applied  *governance.DecisionResult
}

func (f *fakeOverrideTarget) ReplaceDecision(_ context.Context, ticketID string, decision governance.DecisionResult) (governance.ManifestRef, error) {
	f.ticketID = ticketID
	if f.err != nil {
		return governance.ManifestRef{}, f.err
	}
	f.applied = &decision
	return f.ref, nil
}

type fakeOverrideRecorder struct {
	err      error
	ticketID string
	actor    string
	details  map[string]string
}

func (f *fakeOverrideRecorder) RecordOverride(_ context.Context, ticketID string, _ governance.ManifestRef, actor string, details map[string]string) error {
	f.ticketID = ticketID
	f.actor = actor
	f.details = details
	return f.err
}

type fakePromoter struct {
	err       error
	ticketIDs []string
}

func (f *fakePromoter) Promote(_ context.Context, ticketID string) error {
	if f.err != nil {
		return f.err
	}
	f.ticketIDs = append(f.ticketIDs, ticketID)
	return nil
}

type OverrideSuite struct {
	suite.Suite
	target   *fakeOverrideTarget
	promoter *fakePromoter
	recorder *fakeOverrideRecorder
	svc      *governance.Overrider
}

func TestOverrideSuite(t *testing.T) {
	suite.Run(t, new(OverrideSuite))
}

func (s *OverrideSuite) SetupTest() {
	s.target = &fakeOverrideTarget{
		ref: governance.ManifestRef{ManifestID: "app_notes", Version: "1.0.0"},
	}
	s.promoter = &fakePromoter{}
	s.recorder = &fakeOverrideRecorder{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.svc = governance.NewOverrider(s.target, s.promoter, s.recorder, logger)
}

func (s *OverrideSuite) TestOverride() {
	ctx := context.Background()

	s.Run("replaces decision and records audit entry", func() {
		res, err := s.svc.Override(ctx, "tkt-1", "mod@example.com", governance.DecisionApprove, "looks fine")

		s.Require().NoError(err)
		s.Equal(governance.DecisionApprove, res.Decision)
		s.False(res.AutoApproved)
		s.False(res.RequiresHumanReview)

		s.Require().NotNil(s.target.applied)
		s.Equal(governance.DecisionApprove, s.target.applied.Decision)
		s.Equal("tkt-1", s.recorder.ticketID)
		s.Equal("mod@example.com", s.recorder.actor)
		s.Equal("approve", s.recorder.details["decision"])
		s.Equal("looks fine", s.recorder.details["notes"])
	})

	s.Run("approve publishes the ticket's manifest", func() {
		_, err := s.svc.Override(ctx, "tkt-approve", "mod@example.com", governance.DecisionApprove, "")

		s.Require().NoError(err)
		s.Contains(s.promoter.ticketIDs, "tkt-approve")
	})

	s.Run("non-approve decisions never publish", func() {
		before := len(s.promoter.ticketIDs)

		_, err := s.svc.Override(ctx, "tkt-reject", "mod@example.com", governance.DecisionReject, "")

		s.Require().NoError(err)
		s.Len(s.promoter.ticketIDs, before)
	})

	s.Run("surfaces promotion failure", func() {
		s.promoter.err = errors.New("approved store down")
		defer func() { s.promoter.err = nil }()

		_, err := s.svc.Override(ctx, "tkt-1", "mod@example.com", governance.DecisionApprove, "")

		var derr *domainerrors.Error
		s.Require().ErrorAs(err, &derr)
		s.Equal(domainerrors.CodeInternal, derr.Code)
	})

	s.Run("rejects unknown decision", func() {
		_, err := s.svc.Override(ctx, "tkt-1", "mod@example.com", "escalate", "")

		var derr *domainerrors.Error
		s.Require().ErrorAs(err, &derr)
		s.Equal(domainerrors.CodeValidation, derr.Code)
	})

	s.Run("requires a moderator identity", func() {
		_, err := s.svc.Override(ctx, "tkt-1", "", governance.DecisionReject, "")

		var derr *domainerrors.Error
		s.Require().ErrorAs(err, &derr)
		s.Equal(domainerrors.CodeUnauthorized, derr.Code)
	})

	s.Run("maps missing ticket to not found", func() {
		s.target.err = sentinel.ErrNotFound

		_, err := s.svc.Override(ctx, "tkt-missing", "mod@example.com", governance.DecisionReject, "")

		var derr *domainerrors.Error
		s.Require().ErrorAs(err, &derr)
		s.Equal(domainerrors.CodeNotFound, derr.Code)
	})

	s.Run("maps incomplete ticket to invalid state", func() {
		s.target.err = sentinel.ErrInvalidState

		_, err := s.svc.Override(ctx, "tkt-pending", "mod@example.com", governance.DecisionReject, "")

		var derr *domainerrors.Error
		s.Require().ErrorAs(err, &derr)
		s.Equal(domainerrors.CodeInvalidState, derr.Code)
	})

	s.Run("surfaces audit append failure", func() {
		s.target.err = nil
		s.recorder.err = errors.New("sink down")

		_, err := s.svc.Override(ctx, "tkt-1", "mod@example.com", governance.DecisionReject, "")

		var derr *domainerrors.Error
		s.Require().ErrorAs(err, &derr)
		s.Equal(domainerrors.CodeInternal, derr.Code)
	})
}
