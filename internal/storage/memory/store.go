package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/tjfontaine/companion-core/internal/storage"
)

// Store is an in-memory ExportStore. Contents are lost on exit.
type Store struct {
	mu      sync.RWMutex
	exports map[string]*storage.ExportRecord
	order   []string
}

var _ storage.ExportStore = (*Store)(nil)

// New creates a new in-memory store
func New() *Store {
	return &Store{
		exports: make(map[string]*storage.ExportRecord),
	}
}

func (s *Store) SaveExport(ctx context.Context, rec *storage.ExportRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.exports[rec.ID]; exists {
		return fmt.Errorf("export %s already exists", rec.ID)
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	stored := *rec
	stored.Payload = slices.Clone(rec.Payload)
	s.exports[rec.ID] = &stored
	s.order = append(s.order, rec.ID)
	return nil
}

func (s *Store) GetExport(ctx context.Context, id string) (*storage.ExportRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, exists := s.exports[id]
	if !exists {
		return nil, fmt.Errorf("export %s: %w", id, storage.ErrNotFound)
	}
	out := *rec
	out.Payload = slices.Clone(rec.Payload)
	return &out, nil
}

func (s *Store) ListExports(ctx context.Context, opts storage.ListOptions) ([]*storage.ExportRecord, error) {
	opts = opts.Normalized()

	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*storage.ExportRecord
	skipped := 0
	for i := len(s.order) - 1; i >= 0 && len(result) < opts.Limit; i-- {
		if skipped < opts.Offset {
			skipped++
			continue
		}
		rec := *s.exports[s.order[i]]
		rec.Payload = nil
		result = append(result, &rec)
	}
	return result, nil
}

func (s *Store) Close() error {
	return nil
}
