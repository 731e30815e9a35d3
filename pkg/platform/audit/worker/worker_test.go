package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audit "tokencore/pkg/platform/audit"
	"tokencore/pkg/platform/audit/store/memory"
)

type flakyStore struct {
	mu       sync.Mutex
	failures int
	events   []audit.Event
}

func (s *flakyStore) Append(_ context.Context, event audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures > 0 {
		s.failures--
		return errors.New("store unavailable")
	}
	s.events = append(s.events, event)
	return nil
}

func (s *flakyStore) ListByToken(context.Context, string) ([]audit.Event, error) {
	return nil, nil
}

func (s *flakyStore) ListRecent(context.Context, int) ([]audit.Event, error) {
	return nil, nil
}

func TestWorker_DrainsClosedInbox(t *testing.T) {
	store := memory.NewInMemoryStore()
	inbox := make(chan audit.Event, 3)
	for _, action := range []string{"a", "b", "c"} {
		inbox <- audit.Event{Token: "0x1", Action: action}
	}
	close(inbox)

	err := NewWorker(store, inbox, nil).Run(context.Background())
	require.NoError(t, err)

	events, err := store.ListByToken(context.Background(), "0x1")
	require.NoError(t, err)
	assert.Len(t, events, 3)
}

func TestWorker_ContinuesAfterStoreError(t *testing.T) {
	store := &flakyStore{failures: 1}
	inbox := make(chan audit.Event, 2)
	inbox <- audit.Event{Action: "lost"}
	inbox <- audit.Event{Action: "kept"}
	close(inbox)

	require.NoError(t, NewWorker(store, inbox, nil).Run(context.Background()))
	require.Len(t, store.events, 1)
	assert.Equal(t, "kept", store.events[0].Action)
}

func TestWorker_StopsOnCancel(t *testing.T) {
	inbox := make(chan audit.Event)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- NewWorker(memory.NewInMemoryStore(), inbox, nil).Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}
