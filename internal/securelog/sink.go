package securelog

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/khaleddesign/chantierpro-sub001/internal/platform/kafka/producer"
)

// Sink receives drained batches in production mode.
type Sink interface {
	Write(ctx context.Context, entries []Entry) error
}

// DiscardSink drops every batch.
type DiscardSink struct{}

func (DiscardSink) Write(context.Context, []Entry) error { return nil }

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, entries []Entry) error

func (f SinkFunc) Write(ctx context.Context, entries []Entry) error {
	return f(ctx, entries)
}

type batchProducer interface {
	ProduceBatch(ctx context.Context, msgs []*producer.Message) error
	Close() error
}

// KafkaSink publishes each entry as one JSON record. Records are keyed by
// request id so entries of one request stay ordered within a partition.
type KafkaSink struct {
	producer batchProducer
	topic    string
}

func NewKafkaSink(p batchProducer, topic string) (*KafkaSink, error) {
	if p == nil {
		return nil, fmt.Errorf("producer is required")
	}
	if topic == "" {
		return nil, fmt.Errorf("topic is required")
	}
	return &KafkaSink{producer: p, topic: topic}, nil
}

func (s *KafkaSink) Write(ctx context.Context, entries []Entry) error {
	msgs := make([]*producer.Message, 0, len(entries))
	for _, e := range entries {
		value, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("encode log entry: %w", err)
		}
		msgs = append(msgs, &producer.Message{
			Topic:   s.topic,
			Key:     []byte(recordKey(e)),
			Value:   value,
			Headers: map[string]string{"level": string(e.Level)},
		})
	}
	return s.producer.ProduceBatch(ctx, msgs)
}

func (s *KafkaSink) Close() error {
	return s.producer.Close()
}

func recordKey(e Entry) string {
	if e.Context != nil && e.Context.RequestID != "" {
		return e.Context.RequestID
	}
	return e.UserID
}
