package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/repairhub-backend/pkg/config"
	"github.com/angelmondragon/repairhub-backend/pkg/db/models"
	"github.com/angelmondragon/repairhub-backend/pkg/enums"
	"github.com/angelmondragon/repairhub-backend/pkg/logger"
	"github.com/angelmondragon/repairhub-backend/pkg/metrics"
	"github.com/angelmondragon/repairhub-backend/pkg/outbox"
	"github.com/angelmondragon/repairhub-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/repairhub-backend/pkg/outbox/registry"
)

func TestProcessBatchContinuesPastTransientFailure(t *testing.T) {
	first := orderEvent(t, 0)
	second := orderEvent(t, 0)
	store := &fakeStore{pending: []models.OutboxEvent{first, second}}
	broker := &fakeBroker{errs: []error{errors.New("connection reset"), nil}}
	svc, reg := newTestService(t, store, broker, resolverFor("repair-topic"), config.OutboxConfig{})

	res, err := svc.processBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, batchResult{claimed: 2, published: 1, retried: 1}, res)
	assert.False(t, res.stalled())
	assert.Equal(t, []uuid.UUID{first.ID}, store.failed)
	assert.Equal(t, []uuid.UUID{second.ID}, store.published)
	assert.Empty(t, store.dlq)
	assert.Equal(t, 1.0, counterValue(t, reg, string(enums.EventRepairStatusChanged), metrics.OutcomeRetry))
	assert.Equal(t, 1.0, counterValue(t, reg, string(enums.EventRepairStatusChanged), metrics.OutcomePublished))
}

func TestPublishForwardsEnvelopeKeyedByAggregate(t *testing.T) {
	event := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventBatchStatusChanged,
		AggregateType: enums.AggregateTransportBatch,
		AggregateID:   uuid.New(),
		Payload:       envelopePayload(t),
		CreatedAt:     time.Date(2026, 10, 17, 8, 0, 0, 0, time.UTC),
	}
	store := &fakeStore{pending: []models.OutboxEvent{event}}
	broker := &fakeBroker{}
	svc, _ := newTestService(t, store, broker, resolverFor("batch-topic"), config.OutboxConfig{})

	_, err := svc.processBatch(context.Background())
	require.NoError(t, err)
	require.Len(t, broker.sent, 1)

	msg := broker.sent[0]
	assert.Equal(t, "batch-topic", msg.topic)
	assert.Equal(t, event.AggregateID.String(), string(msg.key))
	assert.JSONEq(t, string(event.Payload), string(msg.value))
	assert.Equal(t, string(enums.EventBatchStatusChanged), msg.headers["event_type"])
	assert.Equal(t, event.ID.String(), msg.headers["event_id"])
	assert.Equal(t, "2026-10-17T08:00:00Z", msg.headers["created_at"])
	assert.Equal(t, []uuid.UUID{event.ID}, store.published)
}

func TestUnresolvableEventGoesStraightToDLQ(t *testing.T) {
	event := orderEvent(t, 0)
	store := &fakeStore{pending: []models.OutboxEvent{event}}
	resolver := &fakeResolver{err: registry.NonRetryable(errors.New("payload does not decode"))}
	broker := &fakeBroker{}
	svc, reg := newTestService(t, store, broker, resolver, config.OutboxConfig{MaxAttempts: 4})

	_, err := svc.processBatch(context.Background())
	require.NoError(t, err)
	assert.Empty(t, broker.sent)
	require.Len(t, store.dlq, 1)

	entry := store.dlq[0]
	assert.Equal(t, event.ID, entry.EventID)
	assert.Equal(t, enums.OutboxDLQReasonNonRetryable, entry.ErrorReason)
	assert.JSONEq(t, string(event.Payload), string(entry.Payload))
	require.NotNil(t, entry.ErrorMessage)
	assert.Contains(t, *entry.ErrorMessage, "payload does not decode")
	assert.Equal(t, []uuid.UUID{event.ID}, store.terminal)
	assert.Equal(t, 4, store.ceiling)
	assert.Equal(t, 1.0, counterValue(t, reg, string(event.EventType), metrics.OutcomeDeadLetter))
}

func TestPermanentBrokerErrorGoesToDLQ(t *testing.T) {
	event := orderEvent(t, 0)
	store := &fakeStore{pending: []models.OutboxEvent{event}}
	broker := &fakeBroker{errs: []error{kafkago.WriteErrors{kafkago.MessageSizeTooLarge}}}
	svc, _ := newTestService(t, store, broker, resolverFor("repair-topic"), config.OutboxConfig{})

	_, err := svc.processBatch(context.Background())
	require.NoError(t, err)
	require.Len(t, store.dlq, 1)
	assert.Equal(t, enums.OutboxDLQReasonNonRetryable, store.dlq[0].ErrorReason)
	assert.Empty(t, store.failed)
}

func TestTemporaryBrokerErrorIsRetried(t *testing.T) {
	event := orderEvent(t, 0)
	store := &fakeStore{pending: []models.OutboxEvent{event}}
	broker := &fakeBroker{errs: []error{kafkago.LeaderNotAvailable}}
	svc, _ := newTestService(t, store, broker, resolverFor("repair-topic"), config.OutboxConfig{})

	_, err := svc.processBatch(context.Background())
	require.NoError(t, err)
	assert.Empty(t, store.dlq)
	assert.Equal(t, []uuid.UUID{event.ID}, store.failed)
}

func TestLastAttemptGoesToDLQ(t *testing.T) {
	event := orderEvent(t, 1)
	store := &fakeStore{pending: []models.OutboxEvent{event}}
	broker := &fakeBroker{errs: []error{errors.New("broker unavailable")}}
	svc, _ := newTestService(t, store, broker, resolverFor("repair-topic"), config.OutboxConfig{MaxAttempts: 2})

	_, err := svc.processBatch(context.Background())
	require.NoError(t, err)
	require.Len(t, store.dlq, 1)

	entry := store.dlq[0]
	assert.Equal(t, enums.OutboxDLQReasonMaxAttempts, entry.ErrorReason)
	assert.Equal(t, 1, entry.AttemptCount)
	require.NotNil(t, entry.ErrorMessage)
	assert.Contains(t, *entry.ErrorMessage, "max publish attempts reached")
	assert.Empty(t, store.failed)
}

func TestMissingTopicIsNonRetryable(t *testing.T) {
	event := orderEvent(t, 0)
	store := &fakeStore{pending: []models.OutboxEvent{event}}
	broker := &fakeBroker{}
	svc, _ := newTestService(t, store, broker, resolverFor(""), config.OutboxConfig{})

	_, err := svc.processBatch(context.Background())
	require.NoError(t, err)
	assert.Empty(t, broker.sent)
	require.Len(t, store.dlq, 1)
	assert.Contains(t, *store.dlq[0].ErrorMessage, "no topic configured")
}

func TestBookkeepingFailureAbortsBatch(t *testing.T) {
	event := orderEvent(t, 0)
	store := &fakeStore{pending: []models.OutboxEvent{event}, markErr: errors.New("deadlock detected")}
	svc, _ := newTestService(t, store, &fakeBroker{}, resolverFor("repair-topic"), config.OutboxConfig{})

	res, err := svc.processBatch(context.Background())
	assert.Equal(t, 1, res.claimed)
	assert.ErrorContains(t, err, "mark published")
}

func TestEmptyPollClaimsNothing(t *testing.T) {
	svc, _ := newTestService(t, &fakeStore{}, &fakeBroker{}, resolverFor("repair-topic"), config.OutboxConfig{})

	res, err := svc.processBatch(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.claimed)
	assert.False(t, res.stalled())
}

func TestBatchWithOnlyRetriesIsStalled(t *testing.T) {
	store := &fakeStore{pending: []models.OutboxEvent{orderEvent(t, 0), orderEvent(t, 0)}}
	broker := &fakeBroker{errs: []error{kafkago.LeaderNotAvailable, kafkago.LeaderNotAvailable}}
	svc, _ := newTestService(t, store, broker, resolverFor("repair-topic"), config.OutboxConfig{})

	res, err := svc.processBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, batchResult{claimed: 2, retried: 2}, res)
	assert.True(t, res.stalled())
}

func TestRunBacksOffWhileBrokerRejectsEverything(t *testing.T) {
	event := orderEvent(t, 0)
	store := &fakeStore{pending: []models.OutboxEvent{event}, redeliver: true}
	broker := &fakeBroker{failAll: errors.New("broker unavailable")}
	svc, _ := newTestService(t, store, broker, resolverFor("repair-topic"), config.OutboxConfig{PollIntervalMS: 20, MaxAttempts: 10})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	err := svc.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Empty(t, store.dlq, "backoff should keep the row under its attempt budget")
	assert.GreaterOrEqual(t, broker.calls, 2)
	assert.LessOrEqual(t, broker.calls, 6)
}

func TestRunFailsWhenBrokerUnreachable(t *testing.T) {
	broker := &fakeBroker{pingErr: errors.New("dial tcp: connection refused")}
	svc, _ := newTestService(t, &fakeStore{}, broker, resolverFor("repair-topic"), config.OutboxConfig{})

	err := svc.Run(context.Background())
	assert.ErrorContains(t, err, "kafka ping failed")
}

func TestRunDrainsThenStopsOnCancel(t *testing.T) {
	event := orderEvent(t, 0)
	store := &fakeStore{pending: []models.OutboxEvent{event}}
	broker := &fakeBroker{}
	svc, _ := newTestService(t, store, broker, resolverFor("repair-topic"), config.OutboxConfig{PollIntervalMS: 5})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	err := svc.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Len(t, broker.sent, 1)
	assert.Equal(t, []uuid.UUID{event.ID}, store.published)
}

func TestRetryPolicyGrowsAndCaps(t *testing.T) {
	svc, _ := newTestService(t, &fakeStore{}, &fakeBroker{}, resolverFor("t"), config.OutboxConfig{PollIntervalMS: 1000})
	policy := svc.retryPolicy()

	var last time.Duration
	for i := 0; i < 20; i++ {
		last = policy.NextBackOff()
		require.True(t, last > 0 && last <= maxRetryInterval+maxRetryInterval/2, "interval %s out of range", last)
	}
	assert.True(t, last > svc.poll, "retry interval %s should outgrow the poll interval", last)
}

func TestNewServiceAppliesDefaults(t *testing.T) {
	svc, _ := newTestService(t, &fakeStore{}, &fakeBroker{}, resolverFor("t"), config.OutboxConfig{})
	assert.Equal(t, defaultBatchSize, svc.batchSize)
	assert.Equal(t, defaultMaxAttempts, svc.maxAttempts)
	assert.Equal(t, defaultPoll, svc.poll)

	_, err := NewService(ServiceParams{})
	assert.ErrorContains(t, err, "logger is required")
}

func newTestService(t *testing.T, store outboxStore, b broker, resolver eventResolver, cfg config.OutboxConfig) (*Service, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	svc, err := NewService(ServiceParams{
		Config:   cfg,
		Logger:   logger.New(logger.Options{ServiceName: "outbox-publisher-test", Output: io.Discard}),
		DB:       fakeDB{},
		Broker:   b,
		Store:    store,
		Registry: resolver,
		Metrics:  metrics.NewOutboxMetrics(reg),
	})
	require.NoError(t, err)
	return svc, reg
}

func counterValue(t *testing.T, reg *prometheus.Registry, eventType, outcome string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != "outbox_events_total" {
			continue
		}
		for _, m := range family.GetMetric() {
			labels := map[string]string{}
			for _, pair := range m.GetLabel() {
				labels[pair.GetName()] = pair.GetValue()
			}
			if labels["event_type"] == eventType && labels["outcome"] == outcome {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func orderEvent(t *testing.T, attempts int) models.OutboxEvent {
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventRepairStatusChanged,
		AggregateType: enums.AggregateRepairOrder,
		AggregateID:   uuid.New(),
		Payload:       envelopePayload(t),
		AttemptCount:  attempts,
	}
}

func envelopePayload(t *testing.T) json.RawMessage {
	t.Helper()
	payload, err := json.Marshal(outbox.Envelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Data:       json.RawMessage(`{"order_id":"x"}`),
	})
	require.NoError(t, err)
	return payload
}

type fakeStore struct {
	pending   []models.OutboxEvent
	published []uuid.UUID
	failed    []uuid.UUID
	terminal  []uuid.UUID
	dlq       []models.OutboxDLQ
	ceiling   int
	markErr   error
	// redeliver puts failed rows back in pending with a bumped attempt count.
	redeliver bool
	claimed   []models.OutboxEvent
}

// FetchUnpublishedForPublish hands out the pending rows once.
func (f *fakeStore) FetchUnpublishedForPublish(_ *gorm.DB, limit, _ int) ([]models.OutboxEvent, error) {
	n := min(limit, len(f.pending))
	batch := f.pending[:n]
	f.pending = f.pending[n:]
	f.claimed = append(f.claimed, batch...)
	return batch, nil
}

func (f *fakeStore) MarkPublishedTx(_ *gorm.DB, id uuid.UUID) error {
	if f.markErr != nil {
		return f.markErr
	}
	f.published = append(f.published, id)
	return nil
}

func (f *fakeStore) MarkFailedTx(_ *gorm.DB, id uuid.UUID, _ error) error {
	f.failed = append(f.failed, id)
	if f.redeliver {
		for i := len(f.claimed) - 1; i >= 0; i-- {
			if event := f.claimed[i]; event.ID == id {
				event.AttemptCount++
				f.pending = append(f.pending, event)
				break
			}
		}
	}
	return nil
}

func (f *fakeStore) MarkTerminalTx(_ *gorm.DB, id uuid.UUID, _ error, ceiling int) error {
	f.terminal = append(f.terminal, id)
	f.ceiling = ceiling
	return nil
}

func (f *fakeStore) InsertDLQTx(_ *gorm.DB, entry models.OutboxDLQ) error {
	f.dlq = append(f.dlq, entry)
	return nil
}

type fakeDB struct{}

func (fakeDB) Ping(context.Context) error { return nil }

func (fakeDB) WithTx(_ context.Context, fn func(*gorm.DB) error) error { return fn(nil) }

type sentMessage struct {
	topic   string
	key     []byte
	value   []byte
	headers map[string]string
}

type fakeBroker struct {
	errs    []error
	failAll error
	sent    []sentMessage
	calls   int
	pingErr error
}

func (f *fakeBroker) Ping(context.Context) error { return f.pingErr }

func (f *fakeBroker) Publish(_ context.Context, topic string, key, value []byte, headers map[string]string) error {
	f.calls++
	err := f.failAll
	if len(f.errs) > 0 {
		err, f.errs = f.errs[0], f.errs[1:]
	}
	if err == nil {
		f.sent = append(f.sent, sentMessage{topic: topic, key: key, value: value, headers: headers})
	}
	return err
}

type fakeResolver struct {
	topic string
	err   error
}

func resolverFor(topic string) *fakeResolver {
	return &fakeResolver{topic: topic}
}

func (f *fakeResolver) Resolve(event models.OutboxEvent) (*registry.ResolvedEvent, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &registry.ResolvedEvent{
		Descriptor: registry.EventDescriptor{
			EventType:     event.EventType,
			AggregateType: event.AggregateType,
			Topic:         f.topic,
		},
		Envelope: outbox.Envelope{EventID: event.ID.String(), OccurredAt: time.Now().UTC()},
		Payload:  &payloads.RepairStatusChangedEvent{},
	}, nil
}
