package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/Africa-PID-Alliance/DOCiD-sub001/internal/platform/config"
)

// KafkaSink publishes audit events to a Kafka topic for downstream
// consumers (compliance exports, usage analytics). Delivery is asynchronous
// and best-effort.
type KafkaSink struct {
	client *kgo.Client
	topic  string
	logger *slog.Logger
}

// NewKafkaSink connects to the configured brokers. Returns nil if no
// brokers are configured (Kafka not in use).
func NewKafkaSink(cfg config.Kafka, logger *slog.Logger) (*KafkaSink, error) {
	if len(cfg.Brokers) == 0 {
		return nil, nil
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.DefaultProduceTopic(cfg.Topic),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka client: %w", err)
	}
	return &KafkaSink{client: client, topic: cfg.Topic, logger: logger}, nil
}

// Publish enqueues one event. Events for the same entity share a key so
// partition ordering follows entity history.
func (s *KafkaSink) Publish(ctx context.Context, event Event) {
	value, err := json.Marshal(event)
	if err != nil {
		s.logger.ErrorContext(ctx, "audit event encode failed", "error", err)
		return
	}
	record := &kgo.Record{
		Topic: s.topic,
		Key:   fmt.Appendf(nil, "%s:%d", event.EntityType, event.EntityID),
		Value: value,
	}
	s.client.Produce(ctx, record, func(_ *kgo.Record, err error) {
		if err != nil {
			s.logger.Error("audit event publish failed",
				"action", event.Action,
				"error", err,
			)
		}
	})
}

// Close flushes pending records and releases the client.
func (s *KafkaSink) Close() {
	if s == nil {
		return
	}
	s.client.Close()
}
