package enums

import "slices"

// OutboxAggregateType is the aggregate_type column of outbox_events and the
// Kafka message key namespace.
type OutboxAggregateType string

const (
	AggregateRepairOrder    OutboxAggregateType = "repair_order"
	AggregateTransportBatch OutboxAggregateType = "transport_batch"
)

var aggregateTypes = []OutboxAggregateType{AggregateRepairOrder, AggregateTransportBatch}

func (a OutboxAggregateType) IsValid() bool { return slices.Contains(aggregateTypes, a) }

// OutboxEventType is the event_type column of outbox_events. The publisher
// routes on it, so each value needs a registered topic.
type OutboxEventType string

const (
	EventRepairOrderCreated  OutboxEventType = "repair_order_created"
	EventRepairStatusChanged OutboxEventType = "repair_status_changed"
	EventBatchCreated        OutboxEventType = "batch_created"
	EventBatchStatusChanged  OutboxEventType = "batch_status_changed"
)

var eventTypes = []OutboxEventType{
	EventRepairOrderCreated,
	EventRepairStatusChanged,
	EventBatchCreated,
	EventBatchStatusChanged,
}

func (e OutboxEventType) IsValid() bool { return slices.Contains(eventTypes, e) }

// OutboxDLQErrorReason records why an event was moved to outbox_dlq.
type OutboxDLQErrorReason string

const (
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)

func (r OutboxDLQErrorReason) IsValid() bool {
	return r == OutboxDLQReasonMaxAttempts || r == OutboxDLQReasonNonRetryable
}
