package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/tsunami-alert-service/internal/dispatch"
	"github.com/couchcryptid/tsunami-alert-service/internal/domain"
)

const maxBodyBytes = 1 << 20

// AlertService is the alert lifecycle used by the /v1/alerts routes.
type AlertService interface {
	Dispatch(ctx context.Context, alert domain.Alert, contacts []domain.Contact) (*dispatch.Dispatch, error)
	Alert(ctx context.Context, id string) (domain.Alert, []domain.DeliveryLog, error)
	Acknowledge(ctx context.Context, id string) error
}

type api struct {
	scorer     *domain.ImpactScorer
	forecaster *domain.Forecaster
	engine     *domain.PropagationEngine
	alerts     AlertService
	catalog    domain.AftershockCatalog
	clock      clockwork.Clock
	logger     *slog.Logger
}

func newAPI(opts Options, logger *slog.Logger) *api {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	mask := domain.NewBoxOceanMask()
	return &api{
		scorer:     domain.NewImpactScorer(mask),
		forecaster: domain.NewForecaster(mask),
		engine:     domain.NewPropagationEngine(domain.NewBasinDepthHeuristic()),
		alerts:     opts.Alerts,
		catalog:    opts.Catalog,
		clock:      opts.Clock,
		logger:     logger,
	}
}

func (a *api) register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/impact/score", a.handleScore)
	mux.HandleFunc("POST /v1/impact/rank", a.handleRank)
	mux.HandleFunc("POST /v1/forecast", a.handleForecast)
	mux.HandleFunc("POST /v1/threat", a.handleThreat)
	if a.alerts != nil {
		mux.HandleFunc("POST /v1/alerts/dispatch", a.handleDispatch)
		mux.HandleFunc("GET /v1/alerts/{id}", a.handleGetAlert)
		mux.HandleFunc("POST /v1/alerts/{id}/ack", a.handleAcknowledge)
	}
}

func (a *api) handleScore(w http.ResponseWriter, r *http.Request) {
	var src domain.EarthquakeSource
	if !decode(w, r, &src) {
		return
	}
	score, err := a.scorer.Score(src)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, score)
}

// handleRank scores a batch of sources and returns them highest first.
// Query: displayable=true keeps only displayable events, minPriority drops
// lower tiers.
func (a *api) handleRank(w http.ResponseWriter, r *http.Request) {
	var sources []domain.EarthquakeSource
	if !decode(w, r, &sources) {
		return
	}

	displayable := false
	if v := r.URL.Query().Get("displayable"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("displayable: %w", err))
			return
		}
		displayable = b
	}
	minPriority := domain.ImpactPriority(r.URL.Query().Get("minPriority"))
	if minPriority != "" && minPriority.Rank() < 0 {
		writeError(w, http.StatusBadRequest, fmt.Errorf("unknown priority %q", minPriority))
		return
	}

	scores := make([]domain.MaritimeImpactScore, 0, len(sources))
	for i, src := range sources {
		score, err := a.scorer.Score(src)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("source %d: %w", i, err))
			return
		}
		scores = append(scores, score)
	}
	ranked := domain.FilterMaritimeEvents(domain.RankMaritimeEvents(scores), minPriority, displayable)
	writeJSON(w, http.StatusOK, ranked)
}

func (a *api) handleForecast(w http.ResponseWriter, r *http.Request) {
	var src domain.EarthquakeSource
	if !decode(w, r, &src) {
		return
	}
	forecast, err := a.forecaster.Forecast(src, a.clock.Now())
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if a.catalog != nil {
		forecast = domain.EnrichForecastWithCatalog(r.Context(), forecast, src, a.catalog, a.logger)
	}
	writeJSON(w, http.StatusOK, forecast)
}

type threatRequest struct {
	Earthquake domain.EarthquakeSource `json:"earthquake"`
	Vessel     domain.VesselPosition   `json:"vessel"`
}

func (a *api) handleThreat(w http.ResponseWriter, r *http.Request) {
	var req threatRequest
	if !decode(w, r, &req) {
		return
	}
	if err := req.Vessel.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	threat, err := a.engine.AssessSource(req.Earthquake, req.Vessel)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, threat)
}

type dispatchRequest struct {
	Alert    domain.Alert     `json:"alert"`
	Contacts []domain.Contact `json:"contacts"`
}

type conflictResponse struct {
	Error    string       `json:"error"`
	Existing domain.Alert `json:"existing"`
}

func (a *api) handleDispatch(w http.ResponseWriter, r *http.Request) {
	var req dispatchRequest
	if !decode(w, r, &req) {
		return
	}

	d, err := a.alerts.Dispatch(r.Context(), req.Alert, req.Contacts)
	var conflict *domain.ConflictError
	switch {
	case errors.As(err, &conflict):
		writeJSON(w, http.StatusConflict, conflictResponse{Error: err.Error(), Existing: conflict.Existing})
		return
	case errors.Is(err, domain.ErrInvalidAlert):
		writeError(w, http.StatusBadRequest, err)
		return
	case err != nil && d == nil:
		a.logger.Error("dispatch failed", "asset_id", req.Alert.AssetID, "event_id", req.Alert.EventID, "error", err)
		writeError(w, http.StatusServiceUnavailable, err)
		return
	case err != nil:
		// Deliveries are running; only the status update was lost.
		a.logger.Error("dispatch accepted with errors", "alert_id", d.Summary.AlertID, "error", err)
	}
	writeJSON(w, http.StatusAccepted, d.Summary)
}

type alertResponse struct {
	Alert      domain.Alert         `json:"alert"`
	Deliveries []domain.DeliveryLog `json:"deliveries"`
}

func (a *api) handleGetAlert(w http.ResponseWriter, r *http.Request) {
	alert, logs, err := a.alerts.Alert(r.Context(), r.PathValue("id"))
	if err != nil {
		a.writeAlertError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, alertResponse{Alert: alert, Deliveries: logs})
}

func (a *api) handleAcknowledge(w http.ResponseWriter, r *http.Request) {
	if err := a.alerts.Acknowledge(r.Context(), r.PathValue("id")); err != nil {
		a.writeAlertError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) writeAlertError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, domain.ErrInvalidAlert):
		writeError(w, http.StatusConflict, err)
	default:
		a.logger.Error("alert lookup failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, err)
	}
}

// decode reads a JSON body into v, writing a 400 and returning false on
// failure.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return false
	}
	return true
}
