package domain

import (
	"context"
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"
)

const (
	gravity = 9.81

	minWaveHeightM = 0.01

	simplifiedSpeedKmh = 800.0
	simplifiedDecay    = 0.8
)

// Severity grades a threat or alert.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityModerate Severity = "moderate"
	SeverityLow      Severity = "low"
	SeverityMinimal  Severity = "minimal"
)

// Rank orders severities from minimal (0) to critical (4). Unknown values
// rank -1.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityModerate:
		return 2
	case SeverityLow:
		return 1
	case SeverityMinimal:
		return 0
	}
	return -1
}

// AtLeast reports whether s is as severe as min.
func (s Severity) AtLeast(min Severity) bool {
	return s.Rank() >= min.Rank() && s.Rank() >= 0
}

// ParseSeverity validates a severity name.
func ParseSeverity(v string) (Severity, error) {
	s := Severity(v)
	if s.Rank() < 0 {
		return "", fmt.Errorf("unknown severity %q", v)
	}
	return s, nil
}

// PropagationModel names which variant produced an assessment.
type PropagationModel string

const (
	ModelPhysics    PropagationModel = "physics"
	ModelSimplified PropagationModel = "simplified"
)

// VesselThreatAssessment is the tsunami threat to one vessel from one source.
// It is recomputed per query and only persisted as an Alert snapshot.
type VesselThreatAssessment struct {
	VesselID        string           `json:"vesselId"`
	EventID         string           `json:"eventId"`
	Position        GeoPoint         `json:"position"`
	DistanceKm      float64          `json:"distanceKm"`
	WaveHeightM     float64          `json:"waveHeightM"`
	EtaMinutes      int              `json:"etaMinutes"`
	Severity        Severity         `json:"severity"`
	TsunamiSpeedKmh float64          `json:"tsunamiSpeedKmh"`
	AzimuthDeg      float64          `json:"azimuthDeg"`
	OceanDepthM     float64          `json:"oceanDepthM"`
	Model           PropagationModel `json:"model"`
}

// ClassifySeverity grades a wave by height OR proximity. Both thresholds are
// strict, so a 5.0 m wave at exactly 100 km is high, not critical.
func ClassifySeverity(waveHeightM, distanceKm float64) Severity {
	switch {
	case waveHeightM > 5 || distanceKm < 100:
		return SeverityCritical
	case waveHeightM > 2 || distanceKm < 300:
		return SeverityHigh
	case waveHeightM > 0.5 || distanceKm < 500:
		return SeverityModerate
	case waveHeightM > 0.1 || distanceKm < 1000:
		return SeverityLow
	default:
		return SeverityMinimal
	}
}

// FaultTypeMultiplier scales wave height by mechanism.
func FaultTypeMultiplier(f FaultType) float64 {
	switch f {
	case FaultThrust:
		return 1.5
	case FaultNormal:
		return 0.8
	case FaultStrikeSlip:
		return 0.3
	}
	return 1.0
}

// GeometricAttenuation models cylindrical spreading.
func GeometricAttenuation(distanceKm float64) float64 {
	return 1 / math.Sqrt(distanceKm/100+1)
}

// DirectivityFactor is strongest perpendicular to the rupture. Without a
// known strike the factor is 1.
func DirectivityFactor(azimuthDeg float64, strikeDeg *float64) float64 {
	if strikeDeg == nil {
		return 1.0
	}
	return 0.3 + 0.7*math.Abs(math.Sin(radians(azimuthDeg-*strikeDeg)))
}

// ShallowWaterSpeedKmh returns √(g·h) converted to km/h.
func ShallowWaterSpeedKmh(depthM float64) float64 {
	return math.Sqrt(gravity*depthM) * 3.6
}

// PropagationEngine evaluates wave arrival at observer points. It holds no
// mutable state and is safe for concurrent use.
type PropagationEngine struct {
	depth DepthEstimator
}

// NewPropagationEngine creates an engine. A nil estimator always uses
// DefaultOceanDepthM.
func NewPropagationEngine(depth DepthEstimator) *PropagationEngine {
	return &PropagationEngine{depth: depth}
}

// Assess applies the full physics model for a known initial amplitude.
func (e *PropagationEngine) Assess(src EarthquakeSource, amplitudeM float64, vessel VesselPosition) VesselThreatAssessment {
	epicenter := GeoPoint{Lat: src.Latitude, Lon: src.Longitude}
	observer := vessel.Point()

	distance := HaversineKm(epicenter, observer)
	azimuth := InitialBearing(epicenter, observer)
	depthM := e.oceanDepth(Midpoint(epicenter, observer))
	speed := ShallowWaterSpeedKmh(depthM)

	height := amplitudeM *
		GeometricAttenuation(distance) *
		DirectivityFactor(azimuth, src.FaultStrikeDeg) *
		FaultTypeMultiplier(src.FaultType)
	height = math.Max(height, minWaveHeightM)

	return VesselThreatAssessment{
		VesselID:        vessel.VesselID,
		EventID:         src.ID,
		Position:        observer,
		DistanceKm:      distance,
		WaveHeightM:     height,
		EtaMinutes:      int(math.Round(distance / speed * 60)),
		Severity:        ClassifySeverity(height, distance),
		TsunamiSpeedKmh: speed,
		AzimuthDeg:      azimuth,
		OceanDepthM:     depthM,
		Model:           ModelPhysics,
	}
}

// AssessSource validates the source and picks the physics model when the fault
// mechanism is known, the simplified model otherwise.
func (e *PropagationEngine) AssessSource(src EarthquakeSource, vessel VesselPosition) (VesselThreatAssessment, error) {
	if err := src.Validate(); err != nil {
		return VesselThreatAssessment{}, err
	}
	if !src.FaultType.Known() {
		return SimplifiedAssess(src, vessel), nil
	}
	amplitude, err := InitialAmplitude(src)
	if err != nil {
		return VesselThreatAssessment{}, err
	}
	return e.Assess(src, amplitude, vessel), nil
}

// AssessFleet evaluates every vessel against one source, at most limit at a
// time. Results keep the input order.
func (e *PropagationEngine) AssessFleet(ctx context.Context, src EarthquakeSource, vessels []VesselPosition, limit int) ([]VesselThreatAssessment, error) {
	if err := src.Validate(); err != nil {
		return nil, err
	}
	assess := func(v VesselPosition) VesselThreatAssessment { return SimplifiedAssess(src, v) }
	if src.FaultType.Known() {
		amplitude, err := InitialAmplitude(src)
		if err != nil {
			return nil, err
		}
		assess = func(v VesselPosition) VesselThreatAssessment { return e.Assess(src, amplitude, v) }
	}

	out := make([]VesselThreatAssessment, len(vessels))
	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, v := range vessels {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out[i] = assess(v)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("assess fleet: %w", err)
	}
	return out, nil
}

func (e *PropagationEngine) oceanDepth(p GeoPoint) float64 {
	if e.depth == nil {
		return DefaultOceanDepthM
	}
	if d, ok := e.depth.OceanDepthM(p); ok && d > 0 {
		return d
	}
	return DefaultOceanDepthM
}

// SimplifiedAmplitude is the magnitude-only amplitude estimate used when the
// fault mechanism is unknown.
func SimplifiedAmplitude(magnitude float64) float64 {
	return math.Pow(10, 0.5*magnitude-3.3)
}

// SimplifiedAssess is the fallback model: fixed 800 km/h speed and power-law
// height decay. Height is strictly non-increasing in distance.
func SimplifiedAssess(src EarthquakeSource, vessel VesselPosition) VesselThreatAssessment {
	epicenter := GeoPoint{Lat: src.Latitude, Lon: src.Longitude}
	observer := vessel.Point()
	distance := HaversineKm(epicenter, observer)

	height := SimplifiedAmplitude(src.Magnitude) * math.Pow(1+distance/50, -simplifiedDecay)
	height = math.Max(height, minWaveHeightM)

	return VesselThreatAssessment{
		VesselID:        vessel.VesselID,
		EventID:         src.ID,
		Position:        observer,
		DistanceKm:      distance,
		WaveHeightM:     height,
		EtaMinutes:      int(math.Round(distance / simplifiedSpeedKmh * 60)),
		Severity:        ClassifySeverity(height, distance),
		TsunamiSpeedKmh: simplifiedSpeedKmh,
		AzimuthDeg:      InitialBearing(epicenter, observer),
		Model:           ModelSimplified,
	}
}
