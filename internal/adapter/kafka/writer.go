package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/zonal-climate-analyzer/internal/config"
	"github.com/couchcryptid/zonal-climate-analyzer/internal/domain"
)

// publishTimeout bounds one publish so a slow broker never delays a response.
const publishTimeout = 5 * time.Second

// Writer publishes run lifecycle events to a Kafka topic.
// It implements gateway.Publisher.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured run topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.KafkaBrokers...),
		Topic:                  cfg.KafkaRunTopic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &Writer{writer: w, logger: logger}
}

// Publish serializes one event keyed by run ID, so all events of a run land
// on the same partition in order.
func (w *Writer) Publish(ctx context.Context, event domain.RunEvent) error {
	msg, err := serializeToMessage(event)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := w.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish run event: %w", err)
	}
	w.logger.Debug("run event published", "run_id", event.RunID, "status", event.Status)
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a RunEvent into a Kafka message.
func serializeToMessage(event domain.RunEvent) (kafkago.Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize run event: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(event.RunID),
		Value: data,
		Time:  event.OccurredAt,
		Headers: []kafkago.Header{
			{Key: "status", Value: []byte(event.Status)},
			{Key: "occurred_at", Value: []byte(event.OccurredAt.Format(time.RFC3339))},
		},
	}, nil
}
