// Package kafka streams audit events to a Kafka topic, keyed by token so a
// token's events stay ordered within one partition.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	audit "tokencore/pkg/platform/audit"
)

// ErrReadsUnsupported is returned by ListByToken when no read store is set.
var ErrReadsUnsupported = errors.New("kafka audit store is write-only")

// Producer is the subset of the platform producer used here.
type Producer interface {
	Produce(ctx context.Context, topic string, key, value []byte) error
}

// Store implements audit.Store by producing each event to a topic.
type Store struct {
	producer Producer
	topic    string
	reads    audit.Store
}

// Option configures the Store.
type Option func(*Store)

// WithReadStore mirrors appends into reads and serves ListByToken from it.
func WithReadStore(reads audit.Store) Option {
	return func(s *Store) {
		s.reads = reads
	}
}

func New(producer Producer, topic string, opts ...Option) *Store {
	s := &Store{producer: producer, topic: topic}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// payload is the JSON record written to the topic.
type payload struct {
	ID           string `json:"id"`
	Category     string `json:"category"`
	Timestamp    string `json:"timestamp"`
	Action       string `json:"action"`
	Token        string `json:"token,omitempty"`
	Actor        string `json:"actor,omitempty"`
	Subject      string `json:"subject,omitempty"`
	Counterparty string `json:"counterparty,omitempty"`
	Amount       string `json:"amount,omitempty"`
	Scope        string `json:"scope,omitempty"`
	DelegateID   string `json:"delegate_id,omitempty"`
	Result       uint8  `json:"result,omitempty"`
	Reason       string `json:"reason,omitempty"`
	RequestID    string `json:"request_id,omitempty"`
}

// Encode renders an event as the topic's JSON record.
func Encode(event audit.Event) ([]byte, error) {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	category := event.Category
	if category == "" {
		category = audit.AuditEvent(event.Action).Category()
	}
	b, err := json.Marshal(payload{
		ID:           event.ID.String(),
		Category:     string(category),
		Timestamp:    event.Timestamp.UTC().Format(time.RFC3339Nano),
		Action:       event.Action,
		Token:        event.Token,
		Actor:        event.Actor,
		Subject:      event.Subject,
		Counterparty: event.Counterparty,
		Amount:       event.Amount,
		Scope:        event.Scope,
		DelegateID:   event.DelegateID,
		Result:       event.Result,
		Reason:       event.Reason,
		RequestID:    event.RequestID,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal audit payload: %w", err)
	}
	return b, nil
}

func (s *Store) Append(ctx context.Context, event audit.Event) error {
	value, err := Encode(event)
	if err != nil {
		return err
	}
	key := []byte(event.Token)
	if len(key) == 0 {
		key = nil
	}
	if err := s.producer.Produce(ctx, s.topic, key, value); err != nil {
		return err
	}
	if s.reads != nil {
		return s.reads.Append(ctx, event)
	}
	return nil
}

func (s *Store) ListByToken(ctx context.Context, token string) ([]audit.Event, error) {
	if s.reads == nil {
		return nil, ErrReadsUnsupported
	}
	return s.reads.ListByToken(ctx, token)
}

func (s *Store) ListRecent(ctx context.Context, limit int) ([]audit.Event, error) {
	if s.reads == nil {
		return nil, ErrReadsUnsupported
	}
	return s.reads.ListRecent(ctx, limit)
}
