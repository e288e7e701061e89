package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/geo-anchor-service/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// EventTypeRegistered is the event_type header on record events.
const EventTypeRegistered = "record.registered"

// Writer publishes record events to a Kafka topic.
// It implements outbox.Publisher.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the record event topic.
func NewWriter(brokers []string, topic string, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &Writer{writer: w, logger: logger}
}

// PublishBatch writes one message per record in a single WriteMessages call.
// Records are keyed by ID so retries land on the same partition.
func (w *Writer) PublishBatch(ctx context.Context, records []domain.Record) error {
	if len(records) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(records))
	for i := range records {
		msg, err := serializeToMessage(records[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	return w.writer.WriteMessages(ctx, msgs...)
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

func serializeToMessage(r domain.Record) (kafkago.Message, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize record: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(r.ID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte(EventTypeRegistered)},
			{Key: "created_at", Value: []byte(r.CreatedAt.Format(time.RFC3339Nano))},
		},
	}, nil
}
