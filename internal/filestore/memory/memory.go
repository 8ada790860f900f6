// Package memory implements the File Store Port in-process, for tests
// and for running the registry without an object store.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Store is a thread-safe, in-process File Store Port.
type Store struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

// New creates an empty in-process file store.
func New() *Store {
	return &Store{blobs: make(map[string][]byte)}
}

func (s *Store) Upload(_ context.Context, _ string, content []byte) (string, error) {
	id := uuid.NewString()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[id] = append([]byte(nil), content...)
	return id, nil
}

func (s *Store) Download(_ context.Context, id string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	content, ok := s.blobs[id]
	if !ok {
		return nil, fmt.Errorf("file %q not found", id)
	}
	return append([]byte(nil), content...), nil
}
