package registry

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/repairhub-backend/pkg/config"
	"github.com/angelmondragon/repairhub-backend/pkg/db/models"
	"github.com/angelmondragon/repairhub-backend/pkg/enums"
	"github.com/angelmondragon/repairhub-backend/pkg/outbox"
	"github.com/angelmondragon/repairhub-backend/pkg/outbox/payloads"
)

func TestResolveDecodesTypedPayload(t *testing.T) {
	reg := newTestEventRegistry(t)
	orderID := uuid.New()
	data, err := json.Marshal(payloads.BatchCreatedEvent{
		BatchID:   uuid.New(),
		BatchNo:   "BATCH-2026-000001",
		Direction: enums.BatchDirectionToHQ,
		OrderIDs:  []uuid.UUID{orderID},
	})
	require.NoError(t, err)

	resolved, err := reg.Resolve(models.OutboxEvent{
		EventType:     enums.EventBatchCreated,
		AggregateType: enums.AggregateTransportBatch,
		AggregateID:   uuid.New(),
		Payload:       mustEnvelope(t, data),
	})
	require.NoError(t, err)

	assert.Equal(t, "batch-topic", resolved.Descriptor.Topic)
	payload, ok := resolved.Payload.(*payloads.BatchCreatedEvent)
	require.True(t, ok, "unexpected payload type %T", resolved.Payload)
	assert.Equal(t, []uuid.UUID{orderID}, payload.OrderIDs)
	assert.NotEmpty(t, resolved.Envelope.EventID)
	assert.False(t, resolved.Envelope.OccurredAt.IsZero())
}

func TestResolveRoutesOrderEventsToRepairTopic(t *testing.T) {
	reg := newTestEventRegistry(t)
	resolved, err := reg.Resolve(models.OutboxEvent{
		EventType:     enums.EventRepairStatusChanged,
		AggregateType: enums.AggregateRepairOrder,
		AggregateID:   uuid.New(),
		Payload:       mustEnvelope(t, []byte(`{"from":"AT_HQ","to":"ASSIGNED_TO_TECHNICIAN"}`)),
	})
	require.NoError(t, err)
	assert.Equal(t, "repair-topic", resolved.Descriptor.Topic)
	assert.Equal(t, enums.RepairOrderStatusAssignedToTechnician, resolved.Payload.(*payloads.RepairStatusChangedEvent).To)
}

func TestResolveRejectsBadRows(t *testing.T) {
	reg := newTestEventRegistry(t)
	tests := []struct {
		name  string
		event models.OutboxEvent
	}{
		{
			name: "unknown event type",
			event: models.OutboxEvent{
				EventType:     "order_teleported",
				AggregateType: enums.AggregateRepairOrder,
				AggregateID:   uuid.New(),
				Payload:       mustEnvelope(t, []byte(`{}`)),
			},
		},
		{
			name: "aggregate mismatch",
			event: models.OutboxEvent{
				EventType:     enums.EventRepairStatusChanged,
				AggregateType: enums.AggregateTransportBatch,
				AggregateID:   uuid.New(),
				Payload:       mustEnvelope(t, []byte(`{}`)),
			},
		},
		{
			name: "missing aggregate id",
			event: models.OutboxEvent{
				EventType:     enums.EventRepairStatusChanged,
				AggregateType: enums.AggregateRepairOrder,
				Payload:       mustEnvelope(t, []byte(`{}`)),
			},
		},
		{
			name: "null data",
			event: models.OutboxEvent{
				EventType:     enums.EventRepairStatusChanged,
				AggregateType: enums.AggregateRepairOrder,
				AggregateID:   uuid.New(),
				Payload:       mustEnvelope(t, []byte("null")),
			},
		},
		{
			name: "payload of wrong shape",
			event: models.OutboxEvent{
				EventType:     enums.EventBatchCreated,
				AggregateType: enums.AggregateTransportBatch,
				AggregateID:   uuid.New(),
				Payload:       mustEnvelope(t, []byte(`{"order_ids":"not-a-list"}`)),
			},
		},
		{
			name: "corrupt envelope",
			event: models.OutboxEvent{
				EventType:     enums.EventBatchCreated,
				AggregateType: enums.AggregateTransportBatch,
				AggregateID:   uuid.New(),
				Payload:       json.RawMessage(`{"version":`),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := reg.Resolve(tt.event)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrNonRetryable), "expected non-retryable, got %v", err)
		})
	}
}

func TestNewEventRegistryRequiresTopics(t *testing.T) {
	_, err := NewEventRegistry(config.KafkaConfig{BatchTopic: "b"})
	assert.ErrorContains(t, err, "repair topic")
	_, err = NewEventRegistry(config.KafkaConfig{RepairTopic: "r"})
	assert.ErrorContains(t, err, "batch topic")
}

func TestNonRetryableKeepsCause(t *testing.T) {
	cause := errors.New("no topic")
	err := NonRetryable(cause)
	assert.ErrorIs(t, err, ErrNonRetryable)
	assert.ErrorIs(t, err, cause)
}

func newTestEventRegistry(t *testing.T) *EventRegistry {
	t.Helper()
	reg, err := NewEventRegistry(config.KafkaConfig{RepairTopic: "repair-topic", BatchTopic: "batch-topic"})
	require.NoError(t, err)
	return reg
}

func mustEnvelope(t *testing.T, data []byte) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(outbox.Envelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Data:       data,
	})
	require.NoError(t, err)
	return raw
}
