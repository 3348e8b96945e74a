package urlstate

import (
	"context"
	"net/url"
	"sync"
)

// MemoryStore keeps locations in process memory.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]url.Values
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]url.Values)}
}

func (s *MemoryStore) Load(ctx context.Context, id string) (url.Values, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneValues(s.data[id]), nil
}

func (s *MemoryStore) Save(ctx context.Context, id string, query url.Values) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[id] = cloneValues(query)
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, id)
	return nil
}
