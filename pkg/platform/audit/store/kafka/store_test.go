package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audit "tokencore/pkg/platform/audit"
	"tokencore/pkg/platform/audit/store/memory"
)

type record struct {
	topic string
	key   []byte
	value []byte
}

type fakeProducer struct {
	records []record
	err     error
}

func (f *fakeProducer) Produce(_ context.Context, topic string, key, value []byte) error {
	if f.err != nil {
		return f.err
	}
	f.records = append(f.records, record{topic: topic, key: key, value: value})
	return nil
}

func TestStore_AppendProducesKeyedRecord(t *testing.T) {
	producer := &fakeProducer{}
	store := New(producer, "core.audit")

	ts := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	err := store.Append(context.Background(), audit.Event{
		Timestamp: ts,
		Action:    string(audit.EventTransferDenied),
		Token:     "0xabc",
		Result:    8,
	})
	require.NoError(t, err)
	require.Len(t, producer.records, 1)

	rec := producer.records[0]
	assert.Equal(t, "core.audit", rec.topic)
	assert.Equal(t, []byte("0xabc"), rec.key)

	var got map[string]any
	require.NoError(t, json.Unmarshal(rec.value, &got))
	assert.Equal(t, "compliance", got["category"])
	assert.Equal(t, "2026-03-01T10:00:00Z", got["timestamp"])
	assert.Equal(t, float64(8), got["result"])
	assert.NotEmpty(t, got["id"])
}

func TestStore_ProducerFailureSkipsMirror(t *testing.T) {
	mirror := memory.NewInMemoryStore()
	store := New(&fakeProducer{err: errors.New("broker down")}, "t", WithReadStore(mirror))

	err := store.Append(context.Background(), audit.Event{Token: "0x1", Action: "x"})
	require.Error(t, err)

	events, _ := mirror.ListByToken(context.Background(), "0x1")
	assert.Empty(t, events)
}

func TestStore_ReadsNeedMirror(t *testing.T) {
	store := New(&fakeProducer{}, "t")
	_, err := store.ListByToken(context.Background(), "0x1")
	assert.ErrorIs(t, err, ErrReadsUnsupported)
	_, err = store.ListRecent(context.Background(), 10)
	assert.ErrorIs(t, err, ErrReadsUnsupported)

	mirror := memory.NewInMemoryStore()
	store = New(&fakeProducer{}, "t", WithReadStore(mirror))
	require.NoError(t, store.Append(context.Background(), audit.Event{Token: "0x1", Action: "x"}))
	events, err := store.ListByToken(context.Background(), "0x1")
	require.NoError(t, err)
	assert.Len(t, events, 1)
	recent, err := store.ListRecent(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, recent, 1)
}
