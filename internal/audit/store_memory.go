package audit

import (
	"context"
	"sync"

	"manifestgate/pkg/sentinel"
)

// MemoryStore keeps entries in an append-ordered slice. Suitable for tests
// and single-node deployments.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []Entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Append(_ context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	return nil
}

func (s *MemoryStore) List(_ context.Context, f Filter) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Entry
	for _, e := range s.entries {
		if f.Matches(e) {
			out = append(out, e)
			if f.Limit > 0 && len(out) == f.Limit {
				break
			}
		}
	}
	return out, nil
}

func (s *MemoryStore) LastDigest(_ context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.entries) == 0 {
		return "", nil
	}
	return s.entries[len(s.entries)-1].Digest, nil
}

func (s *MemoryStore) MarkAnchored(_ context.Context, id, txHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.entries {
		if s.entries[i].ID == id {
			s.entries[i].ChainAnchored = true
			s.entries[i].AnchorTxHash = txHash
			return nil
		}
	}
	return sentinel.ErrNotFound
}
