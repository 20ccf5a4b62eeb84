package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/tsunami-alert-service/internal/config"
	"github.com/couchcryptid/tsunami-alert-service/internal/domain"
)

// Writer publishes event reports to a Kafka topic.
// It implements pipeline.BatchLoader.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured sink topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaSinkTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// LoadBatch serializes and publishes event reports in a single
// WriteMessages call. Reports are keyed by earthquake id so updates for one
// event stay on one partition.
func (w *Writer) LoadBatch(ctx context.Context, reports []domain.EventReport) error {
	if len(reports) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(reports))
	for i := range reports {
		msg, err := serializeToMessage(reports[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write %d reports: %w", len(msgs), err)
	}
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals an EventReport into a Kafka message.
func serializeToMessage(report domain.EventReport) (kafkago.Message, error) {
	data, err := json.Marshal(report)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize event report: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(report.Source.ID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "impact_priority", Value: []byte(report.Impact.Priority)},
			{Key: "alerts_created", Value: []byte(strconv.Itoa(len(report.AlertsCreated)))},
			{Key: "processed_at", Value: []byte(report.ProcessedAt.Format(time.RFC3339))},
		},
	}, nil
}
