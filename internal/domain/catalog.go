package domain

import (
	"context"
	"log/slog"
)

// Historical summary sources.
const (
	CatalogSourceUnavailable = "unavailable"
)

// AftershockCatalog queries an external record of past aftershocks around a
// mainshock. Results are advisory.
type AftershockCatalog interface {
	// Name identifies the catalog in HistoricalSummary.Source.
	Name() string

	// Aftershocks summarizes recorded events near the source since its origin
	// time.
	Aftershocks(ctx context.Context, src EarthquakeSource) (HistoricalSummary, error)
}

// EnrichForecastWithCatalog attaches catalog history to a forecast. A nil
// catalog leaves the forecast untouched. A failed lookup never fails the
// forecast: confidence drops one step and the historical source is marked
// unavailable.
func EnrichForecastWithCatalog(ctx context.Context, forecast AftershockForecast, src EarthquakeSource, catalog AftershockCatalog, logger *slog.Logger) AftershockForecast {
	if catalog == nil {
		return forecast
	}

	summary, err := catalog.Aftershocks(ctx, src)
	if err != nil {
		logger.Warn("aftershock catalog lookup failed",
			"event_id", src.ID,
			"catalog", catalog.Name(),
			"error", err,
		)
		forecast.Confidence = forecast.Confidence.Downgrade()
		forecast.Historical = &HistoricalSummary{Source: CatalogSourceUnavailable}
		return forecast
	}

	if summary.Source == "" {
		summary.Source = catalog.Name()
	}
	forecast.Historical = &summary
	return forecast
}
