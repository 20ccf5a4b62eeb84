package pipeline_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/tsunami-alert-service/internal/adapter/memory"
	"github.com/couchcryptid/tsunami-alert-service/internal/dispatch"
	"github.com/couchcryptid/tsunami-alert-service/internal/domain"
	"github.com/couchcryptid/tsunami-alert-service/internal/observability"
	"github.com/couchcryptid/tsunami-alert-service/internal/pipeline"
)

var evalNow = time.Date(2026, time.March, 11, 6, 0, 0, 0, time.UTC)

const offshoreThrust = `{"id":"eq-offshore","magnitude":8.0,"depthKm":20,"latitude":10,"longitude":150,"faultType":"thrust","timestamp":"2026-03-11T05:50:00Z"}`

type evalHarness struct {
	store     *memory.Store
	positions *memory.Positions
	contacts  *memory.Contacts
	metrics   *observability.Metrics
	evaluator *pipeline.ThreatEvaluator
}

func newEvalHarness(t *testing.T, opts pipeline.EvaluatorOptions) *evalHarness {
	t.Helper()
	h := &evalHarness{
		store:     memory.NewStore(),
		positions: memory.NewPositions(),
		contacts:  memory.NewContacts(),
		metrics:   observability.NewMetricsForTesting(),
	}
	clock := clockwork.NewFakeClockAt(evalNow)
	ok := dispatch.SenderFunc(func(_ context.Context, msg dispatch.Message) (dispatch.SendResult, error) {
		return dispatch.SendResult{MessageID: "gw-" + msg.DeliveryLogID}, nil
	})
	orch := dispatch.New(h.store, dispatch.Options{
		Senders: map[domain.Channel]dispatch.ChannelSender{
			domain.ChannelSMS:   ok,
			domain.ChannelEmail: ok,
		},
		Clock: clock,
	}, discardLogger(), h.metrics)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = orch.Shutdown(ctx)
	})

	opts.Clock = clock
	h.evaluator = pipeline.NewEvaluator(h.positions, h.contacts, orch, opts, discardLogger(), h.metrics)
	return h
}

func TestThreatEvaluator_AlertsThreatenedVessel(t *testing.T) {
	h := newEvalHarness(t, pipeline.EvaluatorOptions{})
	h.positions.Upsert(domain.VesselPosition{VesselID: "near", Lat: 10.2, Lon: 150.2})
	h.positions.Upsert(domain.VesselPosition{VesselID: "far", Lat: -40, Lon: 20})
	h.contacts.Set("near", domain.Contact{ID: "c-1", Phone: "+15550100", Email: "master@near.example"})

	report, err := h.evaluator.Evaluate(context.Background(), domain.RawEvent{Value: []byte(offshoreThrust)})
	require.NoError(t, err)

	assert.Equal(t, "eq-offshore", report.Source.ID)
	assert.Equal(t, evalNow, report.ProcessedAt)
	assert.Equal(t, "eq-offshore", report.Forecast.MainshockID)
	assert.GreaterOrEqual(t, report.Impact.TotalScore, 0.0)
	assert.LessOrEqual(t, report.Impact.TotalScore, 100.0)

	require.NotEmpty(t, report.Threats)
	assert.Equal(t, "near", report.Threats[0].VesselID)
	assert.Equal(t, domain.SeverityCritical, report.Threats[0].Severity)

	require.Len(t, report.AlertsCreated, 1)
	alerts := h.store.Alerts()
	require.Len(t, alerts, 1)
	assert.Equal(t, report.AlertsCreated[0], alerts[0].ID)
	assert.Equal(t, "near", alerts[0].AssetID)
	assert.Equal(t, domain.AlertSent, alerts[0].Status)
	require.NotNil(t, alerts[0].Threat)

	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.EventsParsed.WithLabelValues(string(domain.FormatFlat))))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.ThreatsAssessed.WithLabelValues(string(domain.SeverityCritical))))
}

func TestThreatEvaluator_ReplayDoesNotDuplicateAlerts(t *testing.T) {
	h := newEvalHarness(t, pipeline.EvaluatorOptions{})
	h.positions.Upsert(domain.VesselPosition{VesselID: "near", Lat: 10.2, Lon: 150.2})

	raw := domain.RawEvent{Value: []byte(offshoreThrust)}
	first, err := h.evaluator.Evaluate(context.Background(), raw)
	require.NoError(t, err)
	require.Len(t, first.AlertsCreated, 1)

	second, err := h.evaluator.Evaluate(context.Background(), raw)
	require.NoError(t, err)
	assert.Empty(t, second.AlertsCreated)
	assert.Len(t, h.store.Alerts(), 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.AlertConflicts))
}

func TestThreatEvaluator_BelowThresholdRaisesNoAlert(t *testing.T) {
	h := newEvalHarness(t, pipeline.EvaluatorOptions{MinSeverity: domain.SeverityHigh})
	h.positions.Upsert(domain.VesselPosition{VesselID: "mid", Lat: 16, Lon: 150})
	h.positions.Upsert(domain.VesselPosition{VesselID: "remote", Lat: -40, Lon: 20})

	small := `{"id":"eq-small","magnitude":5.0,"depthKm":10,"latitude":10,"longitude":150,"timestamp":"2026-03-11T05:50:00Z"}`
	report, err := h.evaluator.Evaluate(context.Background(), domain.RawEvent{Value: []byte(small)})
	require.NoError(t, err)

	assert.Empty(t, report.AlertsCreated)
	assert.Empty(t, h.store.Alerts())
	require.Len(t, report.Threats, 1, "minimal threats are left out of the report")
	assert.Equal(t, "mid", report.Threats[0].VesselID)
	assert.Equal(t, domain.ModelSimplified, report.Threats[0].Model)
}

func TestThreatEvaluator_RejectsBadMessages(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		target  error
		reason  string
	}{
		{name: "not json", payload: `not json`, target: domain.ErrUnrecognizedPayload, reason: "unrecognized"},
		{name: "unknown shape", payload: `{"foo":1}`, target: domain.ErrUnrecognizedPayload, reason: "unrecognized"},
		{name: "magnitude out of range", payload: `{"magnitude":12,"depthKm":10,"latitude":0,"longitude":0}`, target: domain.ErrInvalidSource, reason: "invalid_source"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newEvalHarness(t, pipeline.EvaluatorOptions{})
			_, err := h.evaluator.Evaluate(context.Background(), domain.RawEvent{Value: []byte(tt.payload)})
			require.ErrorIs(t, err, tt.target)
			assert.NotErrorIs(t, err, pipeline.ErrUnavailable)
			assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.ParseErrors.WithLabelValues(tt.reason)))
		})
	}
}

type failingPositions struct{}

func (failingPositions) Positions(context.Context) ([]domain.VesselPosition, error) {
	return nil, errors.New("connection refused")
}

type failingContacts struct{}

func (failingContacts) ContactsForAsset(context.Context, string) ([]domain.Contact, error) {
	return nil, errors.New("connection refused")
}

func TestThreatEvaluator_UnavailableCollaborators(t *testing.T) {
	metrics := observability.NewMetricsForTesting()
	orch := dispatch.New(memory.NewStore(), dispatch.Options{}, discardLogger(), metrics)
	raw := domain.RawEvent{Value: []byte(offshoreThrust)}

	t.Run("positions", func(t *testing.T) {
		ev := pipeline.NewEvaluator(failingPositions{}, memory.NewContacts(), orch, pipeline.EvaluatorOptions{}, discardLogger(), metrics)
		_, err := ev.Evaluate(context.Background(), raw)
		require.ErrorIs(t, err, pipeline.ErrUnavailable)
	})

	t.Run("contacts", func(t *testing.T) {
		positions := memory.NewPositions(domain.VesselPosition{VesselID: "near", Lat: 10.2, Lon: 150.2})
		ev := pipeline.NewEvaluator(positions, failingContacts{}, orch, pipeline.EvaluatorOptions{}, discardLogger(), metrics)
		_, err := ev.Evaluate(context.Background(), raw)
		require.ErrorIs(t, err, pipeline.ErrUnavailable)
	})
}

type unreachableCatalog struct{}

func (unreachableCatalog) Name() string { return "test" }

func (unreachableCatalog) Aftershocks(context.Context, domain.EarthquakeSource) (domain.HistoricalSummary, error) {
	return domain.HistoricalSummary{}, errors.New("timeout")
}

func TestThreatEvaluator_CatalogFailureDowngradesConfidence(t *testing.T) {
	without := newEvalHarness(t, pipeline.EvaluatorOptions{})
	with := newEvalHarness(t, pipeline.EvaluatorOptions{Catalog: unreachableCatalog{}})
	raw := domain.RawEvent{Value: []byte(offshoreThrust)}

	base, err := without.evaluator.Evaluate(context.Background(), raw)
	require.NoError(t, err)
	enriched, err := with.evaluator.Evaluate(context.Background(), raw)
	require.NoError(t, err)

	assert.Nil(t, base.Forecast.Historical)
	require.NotNil(t, enriched.Forecast.Historical)
	assert.Equal(t, domain.CatalogSourceUnavailable, enriched.Forecast.Historical.Source)
	assert.Equal(t, base.Forecast.Confidence.Downgrade(), enriched.Forecast.Confidence)
}
