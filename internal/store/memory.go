package store

import (
	"context"
	"sync"
)

// MemoryStore keeps the raw encoded lists in process. Used when Redis is not configured.
type MemoryStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

func (s *MemoryStore) Load(_ context.Context, cartID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return DecodeCodes(s.data[cartID]), nil
}

func (s *MemoryStore) Save(_ context.Context, cartID string, codes []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(codes) == 0 {
		delete(s.data, cartID)
		return nil
	}
	s.data[cartID] = EncodeCodes(codes)
	return nil
}

func (s *MemoryStore) Clear(_ context.Context, cartID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, cartID)
	return nil
}

// SetRaw stores raw bytes as-is, bypassing encoding.
func (s *MemoryStore) SetRaw(cartID string, raw []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[cartID] = raw
}

func (s *MemoryStore) Raw(cartID string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.data[cartID]
	return b, ok
}
