// Package memory provides an in-memory BlobStore used by tests.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/walsync/walsync/internal/storage"
)

type Store struct {
	mu         sync.Mutex
	blobs      map[string][]byte
	storeCalls int
	nextErr    error
}

func New() *Store {
	return &Store{blobs: make(map[string][]byte)}
}

func (s *Store) Store(_ context.Context, blob io.Reader) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.storeCalls++
	if s.nextErr != nil {
		err := s.nextErr
		s.nextErr = nil
		return "", err
	}
	b, err := io.ReadAll(blob)
	if err != nil {
		return "", fmt.Errorf("%w: %v", storage.ErrUnavailable, err)
	}
	id := fmt.Sprintf("mem-%d", s.storeCalls)
	s.blobs[id] = b
	return id, nil
}

func (s *Store) Retrieve(_ context.Context, id string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.blobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, id)
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

// StoreCalls reports how many times Store has been invoked, including
// failed attempts.
func (s *Store) StoreCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.storeCalls
}

// FailNext makes the next Store call fail with err.
func (s *Store) FailNext(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextErr = err
}
