package memory

import (
	"context"
	"slices"
	"sync"

	audit "tokencore/pkg/platform/audit"
)

// InMemoryStore keeps audit events per token, in emission order.
type InMemoryStore struct {
	mu     sync.RWMutex
	events map[string][]audit.Event
	order  []audit.Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{events: make(map[string][]audit.Event)}
}

func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = make(map[string][]audit.Event)
	s.order = nil
}

func (s *InMemoryStore) Append(_ context.Context, event audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[event.Token] = append(s.events[event.Token], event)
	s.order = append(s.order, event)
	return nil
}

func (s *InMemoryStore) ListByToken(_ context.Context, token string) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]audit.Event{}, s.events[token]...), nil
}

// ListRecent returns the most recent N events across all tokens, newest first.
func (s *InMemoryStore) ListRecent(_ context.Context, limit int) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	start := max(len(s.order)-limit, 0)
	out := append([]audit.Event{}, s.order[start:]...)
	slices.Reverse(out)
	return out, nil
}
