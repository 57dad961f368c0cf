package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes entries as JSON. Messages are keyed by OrderingKey so that one
// identity's entries stay on one partition, in order.
type KafkaSink struct {
	w messageWriter
}

// NewKafkaWriter returns a synchronous, hash-balanced writer for topic.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		MaxAttempts:  3,
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		Compression:  kafka.Snappy,
	}
}

// NewKafkaSink wraps w. Use NewKafkaWriter for production.
func NewKafkaSink(w messageWriter) *KafkaSink { return &KafkaSink{w: w} }

func (s *KafkaSink) Name() string { return "kafka" }

func (s *KafkaSink) Write(ctx context.Context, e Entry) error {
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("audit: marshal entry: %w", err)
	}
	return s.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(e.OrderingKey()),
		Value: b,
		Time:  e.CreatedAt,
		Headers: []kafka.Header{
			{Key: "action", Value: []byte(e.Action)},
		},
	})
}

// Close flushes and closes the underlying writer.
func (s *KafkaSink) Close() error { return s.w.Close() }
