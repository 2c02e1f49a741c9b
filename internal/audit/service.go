package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gowebpki/jcs"
)

// Store persists entries. Append must never drop entries under concurrency;
// the service serializes digest chaining, stores only need atomic appends.
type Store interface {
	Append(ctx context.Context, e Entry) error
	List(ctx context.Context, f Filter) ([]Entry, error)
	LastDigest(ctx context.Context) (string, error)
	MarkAnchored(ctx context.Context, id, txHash string) error
}

// Sink mirrors entries to an external stream. Mirror failures are logged,
// never fatal; the store remains the source of truth.
type Sink interface {
	Publish(ctx context.Context, e Entry) error
}

// Service builds the hash chain and fans entries out to the store and the
// optional sink.
type Service struct {
	store  Store
	sink   Sink
	logger *slog.Logger
	now    func() time.Time

	mu         sync.Mutex
	lastDigest string
}

// NewService wires the audit log. sink may be nil. The chain head is loaded
// from the store so restarts continue the existing chain.
func NewService(ctx context.Context, store Store, sink Sink, logger *slog.Logger) (*Service, error) {
	last, err := store.LastDigest(ctx)
	if err != nil {
		return nil, fmt.Errorf("audit: load chain head: %w", err)
	}
	return &Service{
		store:      store,
		sink:       sink,
		logger:     logger,
		now:        time.Now,
		lastDigest: last,
	}, nil
}

// Record appends one entry. The digest covers the entry payload including the
// predecessor's digest, so the log forms a verifiable chain. The mirror sink
// is written after the chain lock is released; a slow broker delays only the
// caller that produced the entry, never concurrent appends.
func (s *Service) Record(ctx context.Context, rec Record) (Entry, error) {
	e, err := s.append(ctx, rec)
	if err != nil {
		return Entry{}, err
	}

	if s.sink != nil {
		if err := s.sink.Publish(ctx, e); err != nil {
			s.logger.ErrorContext(ctx, "audit sink publish failed",
				"entry_id", e.ID, "action", e.Action, "error", err)
		}
	}
	return e, nil
}

// append chains and persists the entry under the service mutex.
func (s *Service) append(ctx context.Context, rec Record) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := Entry{
		ID:              uuid.New().String(),
		TicketID:        rec.TicketID,
		ManifestID:      rec.ManifestID,
		ManifestVersion: rec.ManifestVersion,
		Action:          rec.Action,
		Actor:           rec.Actor,
		Timestamp:       s.now().UTC(),
		PrevDigest:      s.lastDigest,
		Details:         rec.Details,
	}

	digest, err := entryDigest(e)
	if err != nil {
		return Entry{}, err
	}
	e.Digest = digest

	if err := s.store.Append(ctx, e); err != nil {
		return Entry{}, fmt.Errorf("audit: append: %w", err)
	}
	s.lastDigest = e.Digest
	return e, nil
}

// Query returns entries matching the filter in append order.
func (s *Service) Query(ctx context.Context, f Filter) ([]Entry, error) {
	return s.store.List(ctx, f)
}

// MarkAnchored records the external anchor reference on an entry. This is the
// only post-hoc mutation the log permits.
func (s *Service) MarkAnchored(ctx context.Context, id, txHash string) error {
	return s.store.MarkAnchored(ctx, id, txHash)
}

// entryDigest hashes the canonical form of the entry payload. The digest and
// anchor fields are excluded since they are not part of the signed content.
func entryDigest(e Entry) (string, error) {
	payload := struct {
		ID              string            `json:"id"`
		TicketID        string            `json:"ticketId"`
		ManifestID      string            `json:"manifestId"`
		ManifestVersion string            `json:"manifestVersion"`
		Action          Action            `json:"action"`
		Actor           string            `json:"actor"`
		Timestamp       string            `json:"timestamp"`
		PrevDigest      string            `json:"prevDigest"`
		Details         map[string]string `json:"details,omitempty"`
	}{
		ID:              e.ID,
		TicketID:        e.TicketID,
		ManifestID:      e.ManifestID,
		ManifestVersion: e.ManifestVersion,
		Action:          e.Action,
		Actor:           e.Actor,
		Timestamp:       e.Timestamp.Format(time.RFC3339Nano),
		PrevDigest:      e.PrevDigest,
		Details:         e.Details,
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("audit: marshal entry: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("audit: canonicalize entry: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// VerifyChain recomputes every digest over entries in append order and checks
// each link against its predecessor.
func VerifyChain(entries []Entry) error {
	prev := ""
	for i, e := range entries {
		if e.PrevDigest != prev {
			return fmt.Errorf("audit: entry %d (%s) links to %q, chain head is %q", i, e.ID, e.PrevDigest, prev)
		}
		digest, err := entryDigest(e)
		if err != nil {
			return err
		}
		if digest != e.Digest {
			return fmt.Errorf("audit: entry %d (%s) digest mismatch", i, e.ID)
		}
		prev = e.Digest
	}
	return nil
}
