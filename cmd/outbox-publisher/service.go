package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/repairhub-backend/pkg/config"
	"github.com/angelmondragon/repairhub-backend/pkg/db/models"
	"github.com/angelmondragon/repairhub-backend/pkg/enums"
	"github.com/angelmondragon/repairhub-backend/pkg/kafka"
	"github.com/angelmondragon/repairhub-backend/pkg/logger"
	"github.com/angelmondragon/repairhub-backend/pkg/metrics"
	"github.com/angelmondragon/repairhub-backend/pkg/outbox/registry"
)

const (
	defaultBatchSize   = 50
	defaultPoll        = 500 * time.Millisecond
	defaultMaxAttempts = 10
	publishTimeout     = 15 * time.Second
	maxRetryInterval   = 10 * time.Second
)

type dbClient interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type broker interface {
	Ping(context.Context) error
	Publish(ctx context.Context, topic string, key, value []byte, headers map[string]string) error
}

type outboxStore interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, cause error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, cause error, ceiling int) error
	InsertDLQTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

type eventResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

type ServiceParams struct {
	Config   config.OutboxConfig
	Logger   *logger.Logger
	DB       dbClient
	Broker   broker
	Store    outboxStore
	Registry eventResolver
	Metrics  *metrics.OutboxMetrics
}

// Service drains outbox_events into Kafka. Each poll claims a batch under
// FOR UPDATE SKIP LOCKED, so several publishers can run side by side.
type Service struct {
	logg        *logger.Logger
	db          dbClient
	broker      broker
	store       outboxStore
	registry    eventResolver
	metrics     *metrics.OutboxMetrics
	batchSize   int
	maxAttempts int
	poll        time.Duration
	now         func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger is required")
	case params.DB == nil:
		return nil, errors.New("database client is required")
	case params.Broker == nil:
		return nil, errors.New("kafka producer is required")
	case params.Store == nil:
		return nil, errors.New("outbox store is required")
	case params.Registry == nil:
		return nil, errors.New("event registry is required")
	}

	svc := &Service{
		logg:        params.Logger,
		db:          params.DB,
		broker:      params.Broker,
		store:       params.Store,
		registry:    params.Registry,
		metrics:     params.Metrics,
		batchSize:   orDefault(params.Config.BatchSize, defaultBatchSize),
		maxAttempts: orDefault(params.Config.MaxAttempts, defaultMaxAttempts),
		poll:        defaultPoll,
		now:         time.Now,
	}
	if params.Config.PollIntervalMS > 0 {
		svc.poll = time.Duration(params.Config.PollIntervalMS) * time.Millisecond
	}
	return svc, nil
}

func orDefault(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}

func (s *Service) ensureReadiness(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	if err := s.broker.Ping(ctx); err != nil {
		return fmt.Errorf("kafka ping failed: %w", err)
	}
	return nil
}

// retryPolicy spaces polls after a failed batch: doubling from the poll
// interval up to maxRetryInterval, with jitter, and never giving up.
func (s *Service) retryPolicy() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.poll
	b.MaxInterval = maxRetryInterval
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// Run polls until ctx is canceled. A batch that made progress is followed
// immediately by the next one and an empty poll waits one interval. Errors and
// batches where every publish failed back off exponentially, so a broker
// outage cannot burn through the attempt budget in a tight loop.
func (s *Service) Run(ctx context.Context) error {
	if err := s.ensureReadiness(ctx); err != nil {
		return err
	}

	retry := s.retryPolicy()
	for {
		if err := ctx.Err(); err != nil {
			s.logg.Info(ctx, "outbox publisher context canceled")
			return err
		}

		res, err := s.processBatch(ctx)
		var wait time.Duration
		switch {
		case err != nil:
			s.logg.Error(ctx, "outbox publisher batch error", err)
			wait = retry.NextBackOff()
		case res.stalled():
			wait = retry.NextBackOff()
			s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
				"retried": res.retried,
				"backoff": wait.String(),
			}), "outbox batch published nothing, backing off")
		case res.retried > 0:
			retry.Reset()
			wait = s.poll
		case res.claimed > 0:
			retry.Reset()
			continue
		default:
			retry.Reset()
			wait = s.poll
		}
		if err := sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// batchResult counts what one poll did with the rows it claimed.
type batchResult struct {
	claimed   int
	published int
	retried   int
}

// stalled reports a claimed batch where nothing reached the broker and some
// rows are waiting for another attempt.
func (r batchResult) stalled() bool {
	return r.claimed > 0 && r.published == 0 && r.retried > 0
}

// processBatch publishes one claimed batch inside a single transaction. Row
// bookkeeping errors abort the transaction and release the claims; publish
// failures are recorded on the row and never abort the batch.
func (s *Service) processBatch(ctx context.Context) (batchResult, error) {
	var res batchResult
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := s.store.FetchUnpublishedForPublish(tx, s.batchSize, s.maxAttempts)
		if err != nil {
			return fmt.Errorf("fetch outbox batch: %w", err)
		}
		res.claimed = len(events)
		if len(events) == 0 {
			return nil
		}
		s.metrics.Batch(len(events))
		for _, event := range events {
			outcome, err := s.dispatch(ctx, tx, event)
			if err != nil {
				return err
			}
			switch outcome {
			case metrics.OutcomePublished:
				res.published++
			case metrics.OutcomeRetry:
				res.retried++
			}
		}
		return nil
	})
	return res, err
}

// dispatch publishes one row and records what happened to it. The returned
// outcome is one of the metrics.Outcome values.
func (s *Service) dispatch(ctx context.Context, tx *gorm.DB, event models.OutboxEvent) (string, error) {
	ctx = s.logg.WithFields(ctx, eventFields(event))
	resolved, err := s.registry.Resolve(event)
	if err == nil {
		ctx = s.logg.WithFields(ctx, map[string]any{
			"event_id": resolved.Envelope.EventID,
			"topic":    resolved.Descriptor.Topic,
		})
		err = s.publish(ctx, event, resolved)
	}

	switch {
	case err == nil:
		if markErr := s.store.MarkPublishedTx(tx, event.ID); markErr != nil {
			return "", fmt.Errorf("mark published %s: %w", event.ID, markErr)
		}
		s.metrics.Event(string(event.EventType), metrics.OutcomePublished)
		s.logg.Info(ctx, "outbox event published")
		return metrics.OutcomePublished, nil
	case errors.Is(err, registry.ErrNonRetryable) || kafka.IsPermanent(err):
		return metrics.OutcomeDeadLetter, s.deadLetter(ctx, tx, event, enums.OutboxDLQReasonNonRetryable, err)
	case event.AttemptCount+1 >= s.maxAttempts:
		return metrics.OutcomeDeadLetter, s.deadLetter(ctx, tx, event, enums.OutboxDLQReasonMaxAttempts, fmt.Errorf("max publish attempts reached: %w", err))
	}

	if markErr := s.store.MarkFailedTx(tx, event.ID, err); markErr != nil {
		return "", fmt.Errorf("mark failed %s: %w", event.ID, markErr)
	}
	s.metrics.Event(string(event.EventType), metrics.OutcomeRetry)
	s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
		"attempt_count": event.AttemptCount + 1,
		"error":         err.Error(),
	}), "outbox publish failed, will retry")
	return metrics.OutcomeRetry, nil
}

// deadLetter copies the row into outbox_dlq and parks it at the attempt
// ceiling in the same transaction.
func (s *Service) deadLetter(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error) error {
	msg := cause.Error()
	entry := models.OutboxDLQ{
		EventID:       event.ID,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       event.Payload,
		ErrorReason:   reason,
		ErrorMessage:  &msg,
		AttemptCount:  event.AttemptCount,
		FailedAt:      s.now().UTC(),
	}
	if err := s.store.InsertDLQTx(tx, entry); err != nil {
		return fmt.Errorf("insert dlq %s: %w", event.ID, err)
	}
	if err := s.store.MarkTerminalTx(tx, event.ID, cause, s.maxAttempts); err != nil {
		return fmt.Errorf("mark terminal %s: %w", event.ID, err)
	}
	s.metrics.Event(string(event.EventType), metrics.OutcomeDeadLetter)
	s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
		"error_reason": reason,
		"error":        msg,
	}), "outbox event moved to dlq")
	return nil
}

// publish forwards the stored envelope unchanged, keyed by aggregate id so all
// events of one order or batch land on the same partition. Rows are claimed in
// commit order, but a row left for retry can reach the broker after a later
// event of the same aggregate. Per-aggregate order is therefore best effort.
func (s *Service) publish(ctx context.Context, event models.OutboxEvent, resolved *registry.ResolvedEvent) error {
	topic := resolved.Descriptor.Topic
	if topic == "" {
		return registry.NonRetryable(fmt.Errorf("no topic configured for %s", event.EventType))
	}
	headers := map[string]string{
		"event_id":       resolved.Envelope.EventID,
		"event_type":     string(event.EventType),
		"aggregate_type": string(event.AggregateType),
		"aggregate_id":   event.AggregateID.String(),
		"created_at":     event.CreatedAt.UTC().Format(time.RFC3339Nano),
	}

	publishCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	return s.broker.Publish(publishCtx, topic, []byte(event.AggregateID.String()), event.Payload, headers)
}

func eventFields(event models.OutboxEvent) map[string]any {
	fields := map[string]any{
		"outbox_id":      event.ID.String(),
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID.String(),
	}
	if event.LastError != nil {
		fields["last_error"] = *event.LastError
	}
	return fields
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
