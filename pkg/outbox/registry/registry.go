// Package registry routes outbox rows to Kafka topics and checks that each
// stored payload still decodes into the type its event promises.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/repairhub-backend/pkg/config"
	"github.com/angelmondragon/repairhub-backend/pkg/db/models"
	"github.com/angelmondragon/repairhub-backend/pkg/enums"
	"github.com/angelmondragon/repairhub-backend/pkg/outbox"
	"github.com/angelmondragon/repairhub-backend/pkg/outbox/payloads"
)

// ErrNonRetryable marks failures that no number of retries can fix. The
// publisher moves such rows straight to the DLQ.
var ErrNonRetryable = errors.New("non-retryable")

// NonRetryable wraps err with ErrNonRetryable.
func NonRetryable(err error) error {
	return fmt.Errorf("%w: %w", ErrNonRetryable, err)
}

// EventDescriptor links an event type to its aggregate, topic and payload type.
type EventDescriptor struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	Topic         string
	decode        func(json.RawMessage) (any, error)
}

// ResolvedEvent is a row that passed validation, with its decoded payload.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.Envelope
	Payload    any
}

type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

func describe[T any](eventType enums.OutboxEventType, aggregate enums.OutboxAggregateType, topic string) EventDescriptor {
	return EventDescriptor{
		EventType:     eventType,
		AggregateType: aggregate,
		Topic:         topic,
		decode: func(raw json.RawMessage) (any, error) {
			payload := new(T)
			if err := json.Unmarshal(raw, payload); err != nil {
				return nil, err
			}
			return payload, nil
		},
	}
}

// NewEventRegistry sends order events to the repair topic and batch events to
// the batch topic.
func NewEventRegistry(cfg config.KafkaConfig) (*EventRegistry, error) {
	switch {
	case cfg.RepairTopic == "":
		return nil, errors.New("repair topic is required")
	case cfg.BatchTopic == "":
		return nil, errors.New("batch topic is required")
	}
	reg := &EventRegistry{entries: map[enums.OutboxEventType]EventDescriptor{}}
	for _, desc := range []EventDescriptor{
		describe[payloads.RepairOrderCreatedEvent](enums.EventRepairOrderCreated, enums.AggregateRepairOrder, cfg.RepairTopic),
		describe[payloads.RepairStatusChangedEvent](enums.EventRepairStatusChanged, enums.AggregateRepairOrder, cfg.RepairTopic),
		describe[payloads.BatchCreatedEvent](enums.EventBatchCreated, enums.AggregateTransportBatch, cfg.BatchTopic),
		describe[payloads.BatchStatusChangedEvent](enums.EventBatchStatusChanged, enums.AggregateTransportBatch, cfg.BatchTopic),
	} {
		reg.entries[desc.EventType] = desc
	}
	return reg, nil
}

// Resolve validates the row and decodes its typed payload. Every error it
// returns is non-retryable.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[event.EventType]
	switch {
	case !ok:
		return nil, NonRetryable(fmt.Errorf("unsupported event type %q", event.EventType))
	case desc.AggregateType != event.AggregateType:
		return nil, NonRetryable(fmt.Errorf("%s belongs to %s, row says %s", event.EventType, desc.AggregateType, event.AggregateType))
	case event.AggregateID == uuid.Nil:
		return nil, NonRetryable(errors.New("missing aggregate_id"))
	}

	env, err := outbox.DecodeEnvelope(event.Payload)
	if err != nil {
		return nil, NonRetryable(fmt.Errorf("%s: %w", event.EventType, err))
	}
	payload, err := desc.decode(env.Data)
	if err != nil {
		return nil, NonRetryable(fmt.Errorf("decode %s payload: %w", event.EventType, err))
	}
	return &ResolvedEvent{Descriptor: desc, Envelope: env, Payload: payload}, nil
}
