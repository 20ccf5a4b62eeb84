package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/tsunami-alert-service/internal/dispatch"
	"github.com/couchcryptid/tsunami-alert-service/internal/domain"
	"github.com/couchcryptid/tsunami-alert-service/internal/observability"
)

// PositionSource supplies the last known position of every tracked vessel.
type PositionSource interface {
	Positions(ctx context.Context) ([]domain.VesselPosition, error)
}

// ContactDirectory resolves the people notified for a vessel.
type ContactDirectory interface {
	ContactsForAsset(ctx context.Context, assetID string) ([]domain.Contact, error)
}

// AlertDispatcher creates an alert and fans it out to contacts.
type AlertDispatcher interface {
	Dispatch(ctx context.Context, alert domain.Alert, contacts []domain.Contact) (*dispatch.Dispatch, error)
}

// EvaluatorOptions configures a ThreatEvaluator. Zero values select defaults.
type EvaluatorOptions struct {
	// MinSeverity is the lowest threat severity that raises an alert.
	MinSeverity domain.Severity
	AlertTTL    time.Duration
	// Concurrency bounds the fleet assessment fan-out.
	Concurrency int
	// Catalog enriches forecasts with recorded aftershocks. Nil disables it.
	Catalog domain.AftershockCatalog
	Clock   clockwork.Clock
}

// ThreatEvaluator runs the scorer, forecaster and propagation engine for each
// earthquake and dispatches alerts for threatened vessels.
type ThreatEvaluator struct {
	scorer     *domain.ImpactScorer
	forecaster *domain.Forecaster
	engine     *domain.PropagationEngine
	positions  PositionSource
	contacts   ContactDirectory
	dispatcher AlertDispatcher
	opts       EvaluatorOptions
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewEvaluator wires the pure domain components with the fleet collaborators.
func NewEvaluator(positions PositionSource, contacts ContactDirectory, dispatcher AlertDispatcher, opts EvaluatorOptions, logger *slog.Logger, metrics *observability.Metrics) *ThreatEvaluator {
	if opts.MinSeverity == "" {
		opts.MinSeverity = domain.SeverityHigh
	}
	if opts.AlertTTL <= 0 {
		opts.AlertTTL = 6 * time.Hour
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 8
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	mask := domain.NewBoxOceanMask()
	return &ThreatEvaluator{
		scorer:     domain.NewImpactScorer(mask),
		forecaster: domain.NewForecaster(mask),
		engine:     domain.NewPropagationEngine(domain.NewBasinDepthHeuristic()),
		positions:  positions,
		contacts:   contacts,
		dispatcher: dispatcher,
		opts:       opts,
		logger:     logger,
		metrics:    metrics,
	}
}

// Evaluate parses one earthquake message and produces its report. Malformed
// or out-of-range messages return an error that the pipeline skips; failures
// reaching positions, contacts or the alert store wrap ErrUnavailable.
func (e *ThreatEvaluator) Evaluate(ctx context.Context, raw domain.RawEvent) (domain.EventReport, error) {
	src, format, err := domain.ParseEarthquakeMessage(raw)
	if err != nil {
		e.metrics.ParseErrors.WithLabelValues(parseErrorReason(err)).Inc()
		return domain.EventReport{}, err
	}
	e.metrics.EventsParsed.WithLabelValues(string(format)).Inc()

	now := e.opts.Clock.Now()

	impact, err := e.scorer.Score(src)
	if err != nil {
		return domain.EventReport{}, fmt.Errorf("score %s: %w", src.ID, err)
	}
	e.metrics.ImpactScore.Observe(impact.TotalScore)

	forecast, err := e.forecaster.Forecast(src, now)
	if err != nil {
		return domain.EventReport{}, fmt.Errorf("forecast %s: %w", src.ID, err)
	}
	if e.opts.Catalog != nil {
		forecast = domain.EnrichForecastWithCatalog(ctx, forecast, src, e.opts.Catalog, e.logger)
	}

	vessels, err := e.positions.Positions(ctx)
	if err != nil {
		return domain.EventReport{}, fmt.Errorf("%w: vessel positions: %w", ErrUnavailable, err)
	}

	threats, err := e.engine.AssessFleet(ctx, src, vessels, e.opts.Concurrency)
	if err != nil {
		return domain.EventReport{}, fmt.Errorf("assess %s: %w", src.ID, err)
	}

	alerts, err := e.raiseAlerts(ctx, src, threats, now)
	if err != nil {
		return domain.EventReport{}, err
	}

	report := domain.EventReport{
		Source:        src,
		Impact:        impact,
		Forecast:      forecast,
		Threats:       reportableThreats(threats),
		AlertsCreated: alerts,
		ProcessedAt:   now,
	}

	e.logger.Info("earthquake evaluated",
		"event_id", src.ID,
		"format", format,
		"magnitude", src.Magnitude,
		"impact_priority", impact.Priority,
		"vessels", len(vessels),
		"threats", len(report.Threats),
		"alerts", len(alerts),
	)
	return report, nil
}

// raiseAlerts dispatches an alert for every threat at or above the minimum
// severity. Existing active alerts are left alone, so re-evaluating an event
// after a partial failure is safe.
func (e *ThreatEvaluator) raiseAlerts(ctx context.Context, src domain.EarthquakeSource, threats []domain.VesselThreatAssessment, now time.Time) ([]string, error) {
	created := []string{}
	for _, threat := range threats {
		e.metrics.ThreatsAssessed.WithLabelValues(string(threat.Severity)).Inc()
		if !threat.Severity.AtLeast(e.opts.MinSeverity) {
			continue
		}

		contacts, err := e.contacts.ContactsForAsset(ctx, threat.VesselID)
		if err != nil {
			return nil, fmt.Errorf("%w: contacts for %s: %w", ErrUnavailable, threat.VesselID, err)
		}

		alert := domain.NewThreatAlert("", src, threat, now, e.opts.AlertTTL)
		d, err := e.dispatcher.Dispatch(ctx, alert, contacts)
		switch {
		case errors.Is(err, domain.ErrConflict):
			e.logger.Debug("vessel already alerted for event",
				"vessel_id", threat.VesselID, "event_id", src.ID)
			continue
		case errors.Is(err, dispatch.ErrPersistence) && d == nil:
			return nil, fmt.Errorf("%w: dispatch for %s: %w", ErrUnavailable, threat.VesselID, err)
		case err != nil && d == nil:
			e.logger.Warn("alert rejected",
				"vessel_id", threat.VesselID, "event_id", src.ID, "error", err)
			continue
		case err != nil:
			e.logger.Warn("alert dispatched with errors",
				"vessel_id", threat.VesselID, "event_id", src.ID, "error", err)
		}
		created = append(created, d.Summary.AlertID)
	}
	return created, nil
}

// reportableThreats drops minimal threats and orders the rest by severity,
// then distance.
func reportableThreats(threats []domain.VesselThreatAssessment) []domain.VesselThreatAssessment {
	out := make([]domain.VesselThreatAssessment, 0, len(threats))
	for _, t := range threats {
		if t.Severity != domain.SeverityMinimal {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Severity.Rank() != out[j].Severity.Rank() {
			return out[i].Severity.Rank() > out[j].Severity.Rank()
		}
		return out[i].DistanceKm < out[j].DistanceKm
	})
	return out
}

func parseErrorReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrUnrecognizedPayload):
		return "unrecognized"
	case errors.Is(err, domain.ErrInvalidSource):
		return "invalid_source"
	default:
		return "malformed"
	}
}
