package metadatamock

import (
	"context"
	"sync"

	"github.com/openkcm/metadata-collector/internal/metadata"
)

type StoreOption func(*Store)

// Store records inserted metadata in memory.
type Store struct {
	mu      sync.Mutex
	records []metadata.Record

	insertErr error
}

func WithInsertError(err error) StoreOption {
	return func(s *Store) { s.insertErr = err }
}

var _ = metadata.Store(&Store{})

func NewStore(opts ...StoreOption) *Store {
	s := &Store{}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	return s
}

func (s *Store) Insert(_ context.Context, rec metadata.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.insertErr != nil {
		return s.insertErr
	}
	s.records = append(s.records, rec)

	return nil
}

// Records returns a copy of the inserted records.
func (s *Store) Records() []metadata.Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]metadata.Record(nil), s.records...)
}
