package memory

import (
	"context"
	"sync"
	"time"

	"github.com/code-payments/code-escrow/pkg/deployment"
)

type store struct {
	mu      sync.Mutex
	records map[string]*deployment.Record
}

// New returns a new in memory deployment.Store
func New() deployment.Store {
	return &store{
		records: make(map[string]*deployment.Record),
	}
}

// Save implements deployment.Store.Save
func (s *store) Save(_ context.Context, data *deployment.Record) error {
	if err := data.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if item, ok := s.records[data.Name]; ok {
		item.Address = data.Address
		item.ContentHash = data.ContentHash
		item.LastUpdatedAt = now

		item.CopyTo(data)
		return nil
	}

	if data.CreatedAt.IsZero() {
		data.CreatedAt = now
	}
	data.LastUpdatedAt = now

	cloned := data.Clone()
	s.records[data.Name] = &cloned

	return nil
}

// Get implements deployment.Store.Get
func (s *store) Get(_ context.Context, name string) (*deployment.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.records[name]
	if !ok {
		return nil, deployment.ErrNotFound
	}

	cloned := item.Clone()
	return &cloned, nil
}

// GetIfContentMatches implements deployment.Store.GetIfContentMatches
func (s *store) GetIfContentMatches(ctx context.Context, name, contentHash string) (*deployment.Record, error) {
	record, err := s.Get(ctx, name)
	if err != nil {
		return nil, err
	}

	if !record.Matches(contentHash) {
		return nil, deployment.ErrContentMismatch
	}

	return record, nil
}

// Delete implements deployment.Store.Delete
func (s *store) Delete(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.records, name)
	return nil
}

func (s *store) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = make(map[string]*deployment.Record)
}
