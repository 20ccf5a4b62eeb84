//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/tsunami-alert-service/internal/adapter/kafka"
	"github.com/couchcryptid/tsunami-alert-service/internal/config"
	"github.com/couchcryptid/tsunami-alert-service/internal/domain"
	"github.com/couchcryptid/tsunami-alert-service/internal/observability"
	"github.com/couchcryptid/tsunami-alert-service/internal/pipeline"
)

const (
	testSourceTopic = "test-earthquakes"
	testSinkTopic   = "test-reports"
)

// publishedReport holds a deserialized message read from the sink topic.
type publishedReport struct {
	Report  domain.EventReport
	Key     string
	Headers map[string]string
}

// readReport reads a single message from the sink consumer and deserializes it.
func readReport(ctx context.Context, t *testing.T, consumer *kafkago.Reader) publishedReport {
	t.Helper()
	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	msg, err := consumer.ReadMessage(readCtx)
	require.NoError(t, err, "read from sink topic")

	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	var report domain.EventReport
	require.NoError(t, json.Unmarshal(msg.Value, &report), "unmarshal sink message")

	return publishedReport{Report: report, Key: string(msg.Key), Headers: headers}
}

func testConfig(broker, group string) *config.Config {
	return &config.Config{
		KafkaBrokers:       []string{broker},
		KafkaSourceTopic:   testSourceTopic,
		KafkaSinkTopic:     testSinkTopic,
		KafkaGroupID:       fmt.Sprintf("%s-%d", group, time.Now().UnixNano()),
		BatchFlushInterval: 2 * time.Second,
	}
}

func sinkConsumer(t *testing.T, broker string) *kafkago.Reader {
	t.Helper()
	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testSinkTopic,
		GroupID:     fmt.Sprintf("test-sink-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })
	return consumer
}

// TestKafkaReaderWriter verifies the adapter layer: kafka.Reader and
// kafka.Writer round-trip an earthquake and its report through Kafka.
func TestKafkaReaderWriter(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testSourceTopic)
	createTopic(t, broker, testSinkTopic)
	cfg := testConfig(broker, "test-reader")

	payload := loadMockData(t)[0] // Tohoku, USGS feature
	producer := &kafkago.Writer{Addr: kafkago.TCP(broker), Topic: testSourceTopic}
	t.Cleanup(func() { _ = producer.Close() })
	require.NoError(t, producer.WriteMessages(ctx, kafkago.Message{Key: []byte("tohoku"), Value: payload}))

	reader := kafka.NewReader(cfg, discardLogger())
	t.Cleanup(func() { _ = reader.Close() })

	batch, err := reader.ExtractBatch(ctx, 1)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	raw := batch[0]
	assert.Equal(t, []byte("tohoku"), raw.Key)
	assert.JSONEq(t, string(payload), string(raw.Value))
	assert.Equal(t, testSourceTopic, raw.Topic)
	require.NotNil(t, raw.Commit, "commit callback should be set")
	require.NoError(t, raw.Commit(ctx))

	evaluator, _ := newEvaluator(t, observability.NewMetricsForTesting())
	report, err := evaluator.Evaluate(ctx, raw)
	require.NoError(t, err)

	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })
	require.NoError(t, writer.LoadBatch(ctx, []domain.EventReport{report}))

	got := readReport(ctx, t, sinkConsumer(t, broker))
	assert.Equal(t, "official20110311054624120_30", got.Key)
	assert.Equal(t, string(report.Impact.Priority), got.Headers["impact_priority"])
	_, err = time.Parse(time.RFC3339, got.Headers["processed_at"])
	assert.NoError(t, err, "processed_at should be valid RFC3339")
	assert.Equal(t, report.AlertsCreated, got.Report.AlertsCreated)
	assert.NotEmpty(t, got.Report.Threats)
}

// TestPipelineEndToEnd wires Reader, ThreatEvaluator and Writer with real
// Kafka and verifies that every fixture produces one report.
func TestPipelineEndToEnd(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testSourceTopic)
	createTopic(t, broker, testSinkTopic)
	cfg := testConfig(broker, "test-pipeline")

	fixtures := loadMockData(t)
	producer := &kafkago.Writer{Addr: kafkago.TCP(broker), Topic: testSourceTopic}
	t.Cleanup(func() { _ = producer.Close() })

	msgs := make([]kafkago.Message, 0, len(fixtures))
	for i, payload := range fixtures {
		msgs = append(msgs, kafkago.Message{Key: []byte(fmt.Sprintf("fixture-%d", i)), Value: payload})
	}
	require.NoError(t, producer.WriteMessages(ctx, msgs...))

	reader := kafka.NewReader(cfg, discardLogger())
	t.Cleanup(func() { _ = reader.Close() })
	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	metrics := observability.NewMetricsForTesting()
	evaluator, store := newEvaluator(t, metrics)
	p := pipeline.New(reader, evaluator, writer, discardLogger(), metrics, 50)

	pipelineCtx, pipelineCancel := context.WithCancel(ctx)
	errCh := make(chan error, 1)
	go func() { errCh <- p.Run(pipelineCtx) }()

	consumer := sinkConsumer(t, broker)
	received := make(map[string]publishedReport, len(fixtures))
	for len(received) < len(fixtures) {
		got := readReport(ctx, t, consumer)
		received[got.Key] = got
	}

	pipelineCancel()
	require.NoError(t, <-errCh)
	require.NoError(t, p.CheckReadiness(ctx))

	for key, got := range received {
		assert.Equal(t, key, got.Report.Source.ID)
		assert.NotEmpty(t, got.Headers["impact_priority"])
	}

	tohoku, ok := received["official20110311054624120_30"]
	require.True(t, ok)
	require.NotEmpty(t, tohoku.Report.AlertsCreated)
	alert, err := store.GetAlert(ctx, tohoku.Report.AlertsCreated[0])
	require.NoError(t, err)
	assert.Equal(t, "official20110311054624120_30", alert.EventID)
}

// TestPipelinePoisonPill verifies that an unparseable message is skipped and
// the pipeline continues with valid messages.
func TestPipelinePoisonPill(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testSourceTopic)
	createTopic(t, broker, testSinkTopic)
	cfg := testConfig(broker, "test-poison")

	producer := &kafkago.Writer{Addr: kafkago.TCP(broker), Topic: testSourceTopic}
	t.Cleanup(func() { _ = producer.Close() })
	require.NoError(t, producer.WriteMessages(ctx,
		kafkago.Message{Key: []byte("bad"), Value: []byte("not-json{{{")},
		kafkago.Message{Key: []byte("shape"), Value: []byte(`{"type":"FeatureCollection","features":[]}`)},
		kafkago.Message{Key: []byte("good"), Value: loadMockData(t)[1]},
	))

	reader := kafka.NewReader(cfg, discardLogger())
	t.Cleanup(func() { _ = reader.Close() })
	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	metrics := observability.NewMetricsForTesting()
	evaluator, _ := newEvaluator(t, metrics)
	p := pipeline.New(reader, evaluator, writer, discardLogger(), metrics, 50)

	pipelineCtx, pipelineCancel := context.WithCancel(ctx)
	errCh := make(chan error, 1)
	go func() { errCh <- p.Run(pipelineCtx) }()

	consumer := sinkConsumer(t, broker)
	got := readReport(ctx, t, consumer)
	assert.Equal(t, "eq-maule-2010", got.Report.Source.ID)

	readCtx, readCancel := context.WithTimeout(ctx, 5*time.Second)
	_, err := consumer.ReadMessage(readCtx)
	readCancel()
	assert.Error(t, err, "expected no second message on sink topic")

	pipelineCancel()
	require.NoError(t, <-errCh)
}
