package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cognicore/flow/pkg/flow/internalerr"
	"github.com/cognicore/flow/pkg/flow/store"
)

// Store is an in-memory implementation of store.Store.
type Store struct {
	mu   sync.RWMutex
	runs map[string]store.Run
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{runs: make(map[string]store.Run)}
}

// Close implements store.Store.
func (s *Store) Close() error { return nil }

// SaveRun inserts or replaces a run, keyed by ID.
func (s *Store) SaveRun(ctx context.Context, r store.Run) error {
	if r.ID == "" {
		return fmt.Errorf("%w: run id is empty", internalerr.ErrInvalidInput)
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[r.ID] = copyRun(r)
	return nil
}

// GetRun returns a run by ID.
func (s *Store) GetRun(ctx context.Context, id string) (store.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.runs[id]
	if !ok {
		return store.Run{}, fmt.Errorf("run %s: %w", id, internalerr.ErrNotFound)
	}
	return copyRun(r), nil
}

// ListRuns returns the most recent runs first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]store.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 20
	}
	runs := make([]store.Run, 0, len(s.runs))
	for _, r := range s.runs {
		runs = append(runs, copyRun(r))
	}
	sort.Slice(runs, func(i, j int) bool {
		if !runs[i].CreatedAt.Equal(runs[j].CreatedAt) {
			return runs[i].CreatedAt.After(runs[j].CreatedAt)
		}
		return runs[i].ID > runs[j].ID
	})
	if len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

// TopReplacements counts applied substitutions across runs.
func (s *Store) TopReplacements(ctx context.Context, k int) ([]store.Replacement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if k <= 0 {
		k = 10
	}
	counts := make(map[[2]string]int64)
	for _, r := range s.runs {
		for _, e := range r.Edits {
			counts[[2]string{e.Original, e.Replacement}]++
		}
	}
	out := make([]store.Replacement, 0, len(counts))
	for pair, n := range counts {
		out = append(out, store.Replacement{Original: pair[0], Replacement: pair[1], Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		if out[i].Original != out[j].Original {
			return out[i].Original < out[j].Original
		}
		return out[i].Replacement < out[j].Replacement
	})
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

func copyRun(r store.Run) store.Run {
	r.Edits = append([]store.EditRecord(nil), r.Edits...)
	return r
}
