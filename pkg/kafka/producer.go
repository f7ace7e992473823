// Package kafka wraps the segmentio writer used to ship outbox events.
package kafka

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"

	"github.com/angelmondragon/repairhub-backend/pkg/config"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type dialFunc func(ctx context.Context, network, address string) (*kafka.Conn, error)

// Producer publishes keyed messages to Kafka topics.
type Producer struct {
	w       messageWriter
	brokers []string
	dial    dialFunc
}

// NewProducer builds a writer for the configured brokers. Topics are chosen
// per message so one producer serves every outbox topic.
func NewProducer(cfg config.KafkaConfig) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	timeout := cfg.WriteTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		WriteTimeout: timeout,
		Transport:    &kafka.Transport{ClientID: cfg.ClientID},
	}
	return &Producer{w: w, brokers: cfg.Brokers, dial: kafka.DialContext}, nil
}

func newProducerWithWriter(w messageWriter) *Producer {
	return &Producer{w: w}
}

// Publish writes one message. Keys are aggregate ids so every event for an
// order or batch lands on the same partition in order.
func (p *Producer) Publish(ctx context.Context, topic string, key, value []byte, headers map[string]string) error {
	if p == nil || p.w == nil {
		return errors.New("kafka producer not initialized")
	}
	msg := kafka.Message{
		Topic: topic,
		Key:   key,
		Value: value,
	}
	for k, v := range headers {
		msg.Headers = append(msg.Headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return errors.Wrapf(err, "kafka publish to %s", topic)
	}
	return nil
}

// Ping dials the first reachable broker.
func (p *Producer) Ping(ctx context.Context) error {
	if p == nil || p.dial == nil {
		return errors.New("kafka producer not initialized")
	}
	var lastErr error
	for _, broker := range p.brokers {
		conn, err := p.dial(ctx, "tcp", broker)
		if err != nil {
			lastErr = err
			continue
		}
		return conn.Close()
	}
	if lastErr == nil {
		lastErr = errors.New("no brokers configured")
	}
	return errors.Wrap(lastErr, "kafka ping")
}

func (p *Producer) Close() error {
	if p == nil || p.w == nil {
		return nil
	}
	return errors.Wrap(p.w.Close(), "kafka writer close")
}

// IsPermanent reports whether err carries a broker error code that retrying
// cannot clear, such as an oversized message or a topic the client may not
// write to. Network failures are never permanent.
func IsPermanent(err error) bool {
	var batch kafka.WriteErrors
	if errors.As(err, &batch) {
		for _, e := range batch {
			if e != nil && IsPermanent(e) {
				return true
			}
		}
		return false
	}
	var code kafka.Error
	return errors.As(err, &code) && !code.Temporary()
}
