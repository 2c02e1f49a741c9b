package scan

import (
	"context"
	"sort"
	"sync"

	"manifestgate/internal/governance"
	"manifestgate/internal/manifest"
	"manifestgate/pkg/sentinel"
)

// MemoryTicketStore is a mutex-guarded map store for tickets.
type MemoryTicketStore struct {
	mu      sync.RWMutex
	tickets map[string]Ticket
	order   []string
}

func NewMemoryTicketStore() *MemoryTicketStore {
	return &MemoryTicketStore{tickets: map[string]Ticket{}}
}

func (s *MemoryTicketStore) Create(_ context.Context, t Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tickets[t.ID]; exists {
		return sentinel.ErrConflict
	}
	s.tickets[t.ID] = t
	s.order = append(s.order, t.ID)
	return nil
}

func (s *MemoryTicketStore) Get(_ context.Context, id string) (Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tickets[id]
	if !ok {
		return Ticket{}, sentinel.ErrNotFound
	}
	return t, nil
}

func (s *MemoryTicketStore) ListByStatus(_ context.Context, status TicketStatus) ([]Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Ticket
	for _, id := range s.order {
		if t := s.tickets[id]; t.Status == status {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *MemoryTicketStore) Transition(_ context.Context, id string, from, to TicketStatus, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	if t.Status != from {
		return sentinel.ErrInvalidState
	}
	t.Status = to
	t.FailureReason = reason
	s.tickets[id] = t
	return nil
}

// MemorySubmissionStore holds in-flight manifests keyed by ticket.
type MemorySubmissionStore struct {
	mu          sync.RWMutex
	submissions map[string]manifest.Manifest
}

func NewMemorySubmissionStore() *MemorySubmissionStore {
	return &MemorySubmissionStore{submissions: map[string]manifest.Manifest{}}
}

func (s *MemorySubmissionStore) Put(_ context.Context, ticketID string, m manifest.Manifest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submissions[ticketID] = m
	return nil
}

func (s *MemorySubmissionStore) Get(_ context.Context, ticketID string) (manifest.Manifest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.submissions[ticketID]
	if !ok {
		return manifest.Manifest{}, sentinel.ErrNotFound
	}
	return m, nil
}

// MemoryResultStore keeps results in completion order.
type MemoryResultStore struct {
	mu      sync.RWMutex
	results map[string]Result
	order   []string
}

func NewMemoryResultStore() *MemoryResultStore {
	return &MemoryResultStore{results: map[string]Result{}}
}

func (s *MemoryResultStore) Put(_ context.Context, r Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.results[r.TicketID]; !exists {
		s.order = append(s.order, r.TicketID)
	}
	s.results[r.TicketID] = r
	return nil
}

func (s *MemoryResultStore) GetByTicket(_ context.Context, ticketID string) (Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.results[ticketID]
	if !ok {
		return Result{}, sentinel.ErrNotFound
	}
	return r, nil
}

func (s *MemoryResultStore) List(_ context.Context, f ResultFilter) ([]Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matched []Result
	for _, id := range s.order {
		r := s.results[id]
		if f.Decision != "" && r.Decision.Decision != f.Decision {
			continue
		}
		matched = append(matched, r)
	}
	if f.Offset > 0 {
		if f.Offset >= len(matched) {
			return nil, nil
		}
		matched = matched[f.Offset:]
	}
	if f.Limit > 0 && len(matched) > f.Limit {
		matched = matched[:f.Limit]
	}
	return matched, nil
}

func (s *MemoryResultStore) ReplaceDecision(_ context.Context, ticketID string, decision governance.DecisionResult) (governance.ManifestRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.results[ticketID]
	if !ok {
		return governance.ManifestRef{}, sentinel.ErrNotFound
	}
	r.Decision = decision
	s.results[ticketID] = r
	return governance.ManifestRef{ManifestID: r.ManifestID, Version: r.ManifestVersion}, nil
}

// MemoryApprovedStore keeps the admitted set plus per-app version history.
type MemoryApprovedStore struct {
	mu       sync.RWMutex
	approved map[string]manifest.Manifest
	history  map[string][]string
}

func NewMemoryApprovedStore() *MemoryApprovedStore {
	return &MemoryApprovedStore{
		approved: map[string]manifest.Manifest{},
		history:  map[string][]string{},
	}
}

func (s *MemoryApprovedStore) Upsert(_ context.Context, m manifest.Manifest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.approved[m.ID] = m
	versions := s.history[m.ID]
	for _, v := range versions {
		if v == m.Version {
			return nil
		}
	}
	s.history[m.ID] = append(versions, m.Version)
	return nil
}

func (s *MemoryApprovedStore) Remove(_ context.Context, manifestID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.approved[manifestID]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.approved, manifestID)
	return nil
}

func (s *MemoryApprovedStore) ListApproved(_ context.Context) ([]manifest.Manifest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]manifest.Manifest, 0, len(s.approved))
	for _, m := range s.approved {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryApprovedStore) PriorVersions(_ context.Context, manifestID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string{}, s.history[manifestID]...), nil
}
