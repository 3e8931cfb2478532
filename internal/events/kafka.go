package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"
)

// KafkaSink writes events to a Kafka topic keyed by market, so every event
// of a market lands on the same partition in commit order.
type KafkaSink struct {
	writer *kafka.Writer
}

// NewKafkaSink creates a sink producing to topic on brokers
func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	return &KafkaSink{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
		},
	}
}

// Publish writes one message per event
func (s *KafkaSink) Publish(ctx context.Context, env Envelope) error {
	msg, err := kafkaMessage(env)
	if err != nil {
		return err
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write kafka message: %w", err)
	}
	return nil
}

// Close flushes and closes the writer
func (s *KafkaSink) Close() error {
	return s.writer.Close()
}

func kafkaMessage(env Envelope) (kafka.Message, error) {
	value, err := json.Marshal(env)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to marshal event: %w", err)
	}
	return kafka.Message{
		Key:   env.Market[:],
		Value: value,
		Time:  env.Time,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(env.Type)},
			{Key: "id", Value: []byte(env.ID.String())},
		},
	}, nil
}
