// Package catalog looks up recorded aftershocks in the USGS FDSN event
// service. Lookups are advisory and feed domain.EnrichForecastWithCatalog.
package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/couchcryptid/tsunami-alert-service/internal/domain"
	"github.com/couchcryptid/tsunami-alert-service/internal/observability"
)

const (
	// Name is reported as the historical summary source.
	Name = "usgs-fdsn"

	minCatalogMagnitude = 4.0
	minSearchRadiusKm   = 100.0
	maxSearchRadiusKm   = 1000.0
)

// Client implements domain.AftershockCatalog over the FDSN event API.
type Client struct {
	http    *resty.Client
	timeout time.Duration
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewClient creates a catalog client for the FDSN base URL, for example
// https://earthquake.usgs.gov/fdsnws/event/1. Every lookup, retries
// included, is bounded by timeout.
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Client {
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(1).
		SetRetryWaitTime(100 * time.Millisecond).
		SetRetryMaxWaitTime(500 * time.Millisecond).
		SetHeader("Accept", "application/json").
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err == nil && r.StatusCode() >= http.StatusInternalServerError
		})

	return &Client{
		http:    httpClient,
		timeout: timeout,
		logger:  logger,
		metrics: metrics,
	}
}

func (c *Client) Name() string { return Name }

// Aftershocks counts M4+ events recorded within the rupture neighbourhood
// since the mainshock, excluding the mainshock itself.
func (c *Client) Aftershocks(ctx context.Context, src domain.EarthquakeSource) (domain.HistoricalSummary, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var fc featureCollection
	start := time.Now()
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(queryParams(src)).
		SetResult(&fc).
		Get("/query")
	c.metrics.CatalogAPIDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		c.metrics.CatalogRequests.WithLabelValues("error").Inc()
		return domain.HistoricalSummary{}, fmt.Errorf("catalog request: %w", err)
	}
	if resp.IsError() {
		c.metrics.CatalogRequests.WithLabelValues("error").Inc()
		return domain.HistoricalSummary{}, fmt.Errorf("catalog API error: status %d: %s", resp.StatusCode(), resp.String())
	}
	c.metrics.CatalogRequests.WithLabelValues("success").Inc()

	summary := domain.HistoricalSummary{Source: Name}
	for _, f := range fc.Features {
		if f.ID == src.ID || f.Properties.Mag == nil {
			continue
		}
		summary.Count++
		summary.MaxMagnitude = math.Max(summary.MaxMagnitude, *f.Properties.Mag)
	}
	c.logger.Debug("catalog lookup",
		"event_id", src.ID, "aftershocks", summary.Count, "max_magnitude", summary.MaxMagnitude)
	return summary, nil
}

// SearchRadiusKm is the catalog search radius: the rupture length, bounded
// to [100, 1000] km.
func SearchRadiusKm(src domain.EarthquakeSource) float64 {
	length, _ := domain.FaultDimensions(src)
	return math.Min(maxSearchRadiusKm, math.Max(minSearchRadiusKm, length))
}

func queryParams(src domain.EarthquakeSource) map[string]string {
	return map[string]string{
		"format":       "geojson",
		"starttime":    src.Timestamp.UTC().Add(time.Second).Format(time.RFC3339),
		"latitude":     strconv.FormatFloat(src.Latitude, 'f', 4, 64),
		"longitude":    strconv.FormatFloat(src.Longitude, 'f', 4, 64),
		"maxradiuskm":  strconv.FormatFloat(SearchRadiusKm(src), 'f', 0, 64),
		"minmagnitude": strconv.FormatFloat(minCatalogMagnitude, 'f', 1, 64),
		"orderby":      "time",
	}
}

// FDSN GeoJSON response types.

type featureCollection struct {
	Features []feature `json:"features"`
}

type feature struct {
	ID         string     `json:"id"`
	Properties properties `json:"properties"`
}

type properties struct {
	Mag *float64 `json:"mag"`
}
