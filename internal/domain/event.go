package domain

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	// ErrInvalidSource is returned when earthquake parameters fall outside the
	// physical domain accepted by the models.
	ErrInvalidSource = errors.New("invalid earthquake source")

	// ErrUnrecognizedPayload is returned when an upstream message matches none
	// of the known earthquake formats.
	ErrUnrecognizedPayload = errors.New("unrecognized earthquake payload")

	// ErrInvalidPosition is returned for vessel positions without an id or
	// with coordinates off the globe.
	ErrInvalidPosition = errors.New("invalid vessel position")
)

// Physical domain limits for an earthquake source.
const (
	MaxMagnitude = 10.0
	MaxDepthKm   = 800.0
)

// FaultType is the rupture mechanism of an earthquake.
type FaultType string

const (
	FaultThrust     FaultType = "thrust"
	FaultStrikeSlip FaultType = "strike-slip"
	FaultNormal     FaultType = "normal"
)

// Known reports whether f is one of the three modelled mechanisms.
func (f FaultType) Known() bool {
	switch f {
	case FaultThrust, FaultStrikeSlip, FaultNormal:
		return true
	}
	return false
}

// EarthquakeSource is an ingested earthquake record. It is passed by value and
// never mutated after parsing.
type EarthquakeSource struct {
	ID             string    `json:"id"`
	Magnitude      float64   `json:"magnitude"`
	DepthKm        float64   `json:"depthKm"`
	Latitude       float64   `json:"latitude"`
	Longitude      float64   `json:"longitude"`
	FaultType      FaultType `json:"faultType,omitempty"`
	FaultLengthKm  *float64  `json:"faultLengthKm,omitempty"`
	FaultWidthKm   *float64  `json:"faultWidthKm,omitempty"`
	FaultStrikeDeg *float64  `json:"faultStrikeDeg,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
	TsunamiWarning bool      `json:"tsunamiWarning"`
	TsunamiWatch   bool      `json:"tsunamiWatch"`
	Place          string    `json:"place,omitempty"`
}

// Validate rejects sources outside the physical domain. Values are never
// clamped.
func (s EarthquakeSource) Validate() error {
	switch {
	case !finite(s.Magnitude) || s.Magnitude <= 0 || s.Magnitude > MaxMagnitude:
		return fmt.Errorf("%w: magnitude %g outside (0, %g]", ErrInvalidSource, s.Magnitude, MaxMagnitude)
	case !finite(s.DepthKm) || s.DepthKm < 0 || s.DepthKm > MaxDepthKm:
		return fmt.Errorf("%w: depth %g km outside [0, %g]", ErrInvalidSource, s.DepthKm, MaxDepthKm)
	case !validCoordinate(s.Latitude, s.Longitude):
		return fmt.Errorf("%w: coordinates (%g, %g)", ErrInvalidSource, s.Latitude, s.Longitude)
	case s.FaultType != "" && !s.FaultType.Known():
		return fmt.Errorf("%w: fault type %q", ErrInvalidSource, s.FaultType)
	}
	if !validDimension(s.FaultLengthKm) {
		return fmt.Errorf("%w: fault length %g", ErrInvalidSource, *s.FaultLengthKm)
	}
	if !validDimension(s.FaultWidthKm) {
		return fmt.Errorf("%w: fault width %g", ErrInvalidSource, *s.FaultWidthKm)
	}
	if s.FaultStrikeDeg != nil && !finite(*s.FaultStrikeDeg) {
		return fmt.Errorf("%w: fault strike %g", ErrInvalidSource, *s.FaultStrikeDeg)
	}
	return nil
}

// validDimension accepts an absent value or a finite positive one.
func validDimension(v *float64) bool {
	return v == nil || (finite(*v) && *v > 0)
}

// RawEvent represents an unprocessed message from the source topic.
type RawEvent struct {
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Commit    func(ctx context.Context) error
}

// GeoPoint is a WGS-84 latitude/longitude pair.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// VesselPosition is the last known position of a tracked vessel.
type VesselPosition struct {
	VesselID  string    `json:"vesselId"`
	Name      string    `json:"name,omitempty"`
	Lat       float64   `json:"lat"`
	Lon       float64   `json:"lon"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// Point returns the vessel's coordinates.
func (v VesselPosition) Point() GeoPoint {
	return GeoPoint{Lat: v.Lat, Lon: v.Lon}
}

// Validate checks the vessel id and coordinates.
func (v VesselPosition) Validate() error {
	if v.VesselID == "" {
		return fmt.Errorf("%w: missing vessel id", ErrInvalidPosition)
	}
	if !validCoordinate(v.Lat, v.Lon) {
		return fmt.Errorf("%w: %s at (%g, %g)", ErrInvalidPosition, v.VesselID, v.Lat, v.Lon)
	}
	return nil
}

// EventReport is the per-earthquake result published to the sink topic.
type EventReport struct {
	Source        EarthquakeSource         `json:"source"`
	Impact        MaritimeImpactScore      `json:"impact"`
	Forecast      AftershockForecast       `json:"forecast"`
	Threats       []VesselThreatAssessment `json:"threats"`
	AlertsCreated []string                 `json:"alertsCreated"`
	ProcessedAt   time.Time                `json:"processedAt"`
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func validCoordinate(lat, lon float64) bool {
	return finite(lat) && finite(lon) && lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}
