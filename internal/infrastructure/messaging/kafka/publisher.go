// Package kafka forwards committed domain events to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	skafka "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/garyjia/koe-workflow/internal/application/dispatcher"
	"github.com/garyjia/koe-workflow/internal/application/port"
	"github.com/garyjia/koe-workflow/internal/domain/event"
)

// Writer is the subset of kafka.Writer the publisher uses
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...skafka.Message) error
	Close() error
}

// Config holds producer settings
type Config struct {
	Brokers      []string
	Topic        string
	WriteTimeout time.Duration
}

// Publisher implements port.EventPublisher
type Publisher struct {
	writer  Writer
	timeout time.Duration
	logger  *zap.Logger
}

// NewPublisher creates a publisher writing to the configured brokers
func NewPublisher(cfg Config, logger *zap.Logger) *Publisher {
	w := &skafka.Writer{
		Addr:         skafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &skafka.Hash{},
		RequiredAcks: skafka.RequireOne,
	}
	return NewPublisherWithWriter(w, cfg.WriteTimeout, logger)
}

// NewPublisherWithWriter allows injecting a writer
func NewPublisherWithWriter(w Writer, timeout time.Duration, logger *zap.Logger) *Publisher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Publisher{writer: w, timeout: timeout, logger: logger}
}

// Publish marshals the value to JSON and writes one message under key
func (p *Publisher) Publish(ctx context.Context, key string, value any) error {
	b, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal kafka value: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.writer.WriteMessages(ctx, skafka.Message{Key: []byte(key), Value: b}); err != nil {
		return fmt.Errorf("kafka write: %w", err)
	}
	return nil
}

// Close closes the underlying writer
func (p *Publisher) Close() error {
	return p.writer.Close()
}

// Forwarder returns a dispatcher handler that publishes every event keyed by
// case id, so a case's events stay ordered within one partition. Publish
// failures are logged and swallowed.
func Forwarder(pub port.EventPublisher, logger *zap.Logger) dispatcher.Handler {
	return func(ctx context.Context, evt *event.Event) error {
		if err := pub.Publish(context.WithoutCancel(ctx), evt.CaseID, evt); err != nil {
			logger.Warn("Failed to publish event",
				zap.String("event_id", evt.ID),
				zap.String("event_type", string(evt.Type)),
				zap.String("case_id", evt.CaseID),
				zap.Error(err))
		}
		return nil
	}
}

// Verify interface compliance
var _ port.EventPublisher = (*Publisher)(nil)
