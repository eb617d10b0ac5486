package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/example/rocket-deliveries/internal/observability"
)

const (
	publishTimeout = 2 * time.Second
	// Publish is synchronous, so a partial batch must flush quickly.
	publishBatchTimeout = 10 * time.Millisecond
)

type KafkaPublisher struct {
	writer *kafka.Writer
}

// NewKafkaPublisher writes events keyed by pilot ID so a pilot's events stay
// ordered within a partition.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	w := kafka.NewWriter(kafka.WriterConfig{
		Brokers:      brokers,
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: publishBatchTimeout,
	})
	return &KafkaPublisher{writer: w}
}

func (k *KafkaPublisher) Publish(ctx context.Context, e Event) error {
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := k.writer.WriteMessages(ctx, kafka.Message{Key: []byte(e.PilotID), Value: b}); err != nil {
		observability.EventsPublished.WithLabelValues(string(e.Type), "error").Inc()
		return fmt.Errorf("publish %s: %w", e.Type, err)
	}
	observability.EventsPublished.WithLabelValues(string(e.Type), "ok").Inc()
	return nil
}

func (k *KafkaPublisher) Close() error {
	if k.writer == nil {
		return nil
	}
	return k.writer.Close()
}
