package events

import (
	"context"
	"fmt"

	"github.com/segmentio/kafka-go"
)

// messageWriter is the subset of *kafka.Writer the relay uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaRelay publishes change envelopes to a Kafka topic keyed by tenant, so
// one tenant's events stay ordered within a partition.
type KafkaRelay struct {
	writer messageWriter
	topic  string
}

func NewKafkaRelay(brokers []string, topic string) (*KafkaRelay, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka relay: no brokers configured")
	}
	if topic == "" {
		return nil, fmt.Errorf("kafka relay: topic required")
	}
	w := kafka.NewWriter(kafka.WriterConfig{
		Brokers:  brokers,
		Topic:    topic,
		Balancer: &kafka.Hash{},
	})
	return &KafkaRelay{writer: w, topic: topic}, nil
}

func (r *KafkaRelay) Name() string { return "kafka" }

func (r *KafkaRelay) Publish(ctx context.Context, msg Message) error {
	err := r.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(msg.Key),
		Value: msg.Body,
	})
	if err != nil {
		return fmt.Errorf("write to %s: %w", r.topic, err)
	}
	return nil
}

func (r *KafkaRelay) Close() error {
	return r.writer.Close()
}
