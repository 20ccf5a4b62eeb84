//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"

	"github.com/couchcryptid/tsunami-alert-service/internal/adapter/memory"
	"github.com/couchcryptid/tsunami-alert-service/internal/dispatch"
	"github.com/couchcryptid/tsunami-alert-service/internal/observability"
	"github.com/couchcryptid/tsunami-alert-service/internal/pipeline"
)

const kafkaImage = "confluentinc/confluent-local:7.5.0"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startKafka runs a single-node Kafka container and returns its broker address.
func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()

	container, err := tckafka.Run(ctx, kafkaImage, tckafka.WithClusterID("tsunami-alert-test"))
	require.NoError(t, err, "start kafka container")
	t.Cleanup(func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		_ = container.Terminate(stopCtx)
	})

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

// createTopic creates a single-partition topic through the cluster controller.
func createTopic(t *testing.T, broker, topic string) {
	t.Helper()

	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)

	ctrlConn, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer ctrlConn.Close()

	require.NoError(t, ctrlConn.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

// loadMockData returns the raw earthquake fixture messages.
func loadMockData(t *testing.T) []json.RawMessage {
	t.Helper()

	data, err := os.ReadFile(filepath.Join("..", "..", "data", "mock", "earthquakes.json"))
	require.NoError(t, err)

	var messages []json.RawMessage
	require.NoError(t, json.Unmarshal(data, &messages))
	return messages
}

// newEvaluator wires an evaluator over the fixture fleet with in-memory
// persistence and no channel gateways.
func newEvaluator(t *testing.T, metrics *observability.Metrics) (*pipeline.ThreatEvaluator, *memory.Store) {
	t.Helper()

	positions, contacts, err := memory.LoadFleet(filepath.Join("..", "..", "data", "mock", "fleet.json"))
	require.NoError(t, err)

	store := memory.NewStore()
	orch := dispatch.New(store, dispatch.Options{SendTimeout: time.Second}, discardLogger(), metrics)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = orch.Shutdown(ctx)
	})

	return pipeline.NewEvaluator(positions, contacts, orch, pipeline.EvaluatorOptions{}, discardLogger(), metrics), store
}
