// Package kafka wraps the franz-go client behind the small producer surface
// the event bridge needs.
package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

// ProducerConfig configures the broker connection.
type ProducerConfig struct {
	Brokers     []string
	TopicPrefix string
	MaxAttempts int
	BaseBackoff time.Duration
}

// Producer publishes event payloads to the external broker. Delivery is
// at-most-once from the caller's perspective: transient failures are retried
// with bounded exponential backoff and a terminal error is returned after
// all attempts are exhausted.
type Producer struct {
	client      *kgo.Client
	topicPrefix string
	maxAttempts int
	baseBackoff time.Duration
	logger      *slog.Logger
}

// NewProducer connects to the seed brokers and returns a Producer.
func NewProducer(cfg ProducerConfig, logger *slog.Logger) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka: at least one seed broker is required")
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = 100 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka: failed to create client: %w", err)
	}

	return &Producer{
		client:      client,
		topicPrefix: cfg.TopicPrefix,
		maxAttempts: cfg.MaxAttempts,
		baseBackoff: cfg.BaseBackoff,
		logger:      logger,
	}, nil
}

// Topic derives the full topic name from an event routing key.
func (p *Producer) Topic(routingKey string) string {
	if p.topicPrefix == "" {
		return routingKey
	}
	return p.topicPrefix + "." + routingKey
}

// Publish produces one record synchronously, retrying transient failures
// with exponential backoff up to the configured attempt limit.
func (p *Producer) Publish(ctx context.Context, topic string, key, payload []byte) error {
	record := &kgo.Record{Topic: topic, Key: key, Value: payload}

	backoff := p.baseBackoff
	var lastErr error
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		if err := p.client.ProduceSync(ctx, record).FirstErr(); err == nil {
			return nil
		} else {
			lastErr = err
		}

		p.logger.Warn("kafka produce failed",
			slog.String("topic", topic),
			slog.Int("attempt", attempt),
			slog.String("error", lastErr.Error()))

		if attempt == p.maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return fmt.Errorf("kafka: publish to %s failed after %d attempts: %w", topic, p.maxAttempts, lastErr)
}

// Close flushes and releases the underlying client.
func (p *Producer) Close() {
	p.client.Close()
}
