package audit

import (
	"context"

	"manifestgate/internal/governance"
)

// OverrideLog adapts the audit service to the governance override recorder,
// so moderator overrides land on the same hash chain as automated decisions.
type OverrideLog struct {
	svc *Service
}

// NewOverrideLog wraps an audit service for override recording.
func NewOverrideLog(svc *Service) *OverrideLog {
	return &OverrideLog{svc: svc}
}

// RecordOverride appends an override entry referencing the scanned manifest.
func (l *OverrideLog) RecordOverride(ctx context.Context, ticketID string, ref governance.ManifestRef, actor string, details map[string]string) error {
	_, err := l.svc.Record(ctx, Record{
		TicketID:        ticketID,
		ManifestID:      ref.ManifestID,
		ManifestVersion: ref.Version,
		Action:          ActionOverride,
		Actor:           actor,
		Details:         details,
	})
	return err
}
