package domain

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedDepth struct {
	depth float64
	ok    bool
}

func (f fixedDepth) OceanDepthM(GeoPoint) (float64, bool) { return f.depth, f.ok }

func TestClassifySeverity(t *testing.T) {
	tests := []struct {
		name     string
		height   float64
		distance float64
		want     Severity
	}{
		{"tall wave far away", 5.01, 5000, SeverityCritical},
		{"tiny wave close in", 0.01, 99.9, SeverityCritical},
		{"height exactly 5 at exactly 100", 5.0, 100, SeverityHigh},
		{"tiny wave at exactly 100", 0.01, 100, SeverityHigh},
		{"height exactly 2 at exactly 300", 2.0, 300, SeverityModerate},
		{"height exactly 0.5 at exactly 500", 0.5, 500, SeverityLow},
		{"height exactly 0.1 at exactly 1000", 0.1, 1000, SeverityMinimal},
		{"tiny wave just inside 1000", 0.01, 999.9, SeverityLow},
		{"moderate wave far away", 0.6, 4000, SeverityModerate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifySeverity(tt.height, tt.distance))
			assert.Equal(t, tt.want, ClassifySeverity(tt.height, tt.distance), "deterministic")
		})
	}
}

func TestSeverity_Rank(t *testing.T) {
	assert.True(t, SeverityCritical.AtLeast(SeverityHigh))
	assert.True(t, SeverityHigh.AtLeast(SeverityHigh))
	assert.False(t, SeverityModerate.AtLeast(SeverityHigh))
	assert.False(t, Severity("bogus").AtLeast(SeverityMinimal))

	s, err := ParseSeverity("moderate")
	require.NoError(t, err)
	assert.Equal(t, SeverityModerate, s)

	_, err = ParseSeverity("severe")
	assert.Error(t, err)
}

func TestPropagationEngine_TohokuScenario(t *testing.T) {
	engine := NewPropagationEngine(NewBasinDepthHeuristic())
	vessel := VesselPosition{VesselID: "vessel-1", Lat: 35.0, Lon: 140.0}

	threat, err := engine.AssessSource(tohoku(), vessel)

	require.NoError(t, err)
	assert.Equal(t, "vessel-1", threat.VesselID)
	assert.Equal(t, "usp000hvnu", threat.EventID)
	assert.Equal(t, ModelPhysics, threat.Model)
	assert.Contains(t, []Severity{SeverityHigh, SeverityCritical}, threat.Severity)
	assert.Greater(t, threat.WaveHeightM, 0.5)
	assert.InDelta(t, 425, threat.DistanceKm, 10)
	assert.Greater(t, threat.AzimuthDeg, 180.0)
	assert.Less(t, threat.AzimuthDeg, 270.0)
	assert.Equal(t, int(math.Round(threat.DistanceKm/threat.TsunamiSpeedKmh*60)), threat.EtaMinutes)
	assert.InDelta(t, ShallowWaterSpeedKmh(threat.OceanDepthM), threat.TsunamiSpeedKmh, 1e-9)
}

func TestPropagationEngine_HeightNonIncreasingWithDistance(t *testing.T) {
	engine := NewPropagationEngine(NewBasinDepthHeuristic())

	for _, strike := range []*float64{nil, ptr(200)} {
		src := tohoku()
		src.FaultStrikeDeg = strike
		amp, err := InitialAmplitude(src)
		require.NoError(t, err)

		prev := math.Inf(1)
		for step := 0.0; step <= 60; step += 0.5 {
			vessel := VesselPosition{VesselID: "v", Lat: src.Latitude - step, Lon: src.Longitude}
			threat := engine.Assess(src, amp, vessel)
			assert.LessOrEqual(t, threat.WaveHeightM, prev, "step %.1f", step)
			assert.GreaterOrEqual(t, threat.WaveHeightM, minWaveHeightM)
			prev = threat.WaveHeightM
		}
	}
}

func TestPropagationEngine_StrikeSlipStaysModerateBeyond300Km(t *testing.T) {
	src := EarthquakeSource{
		ID:        "ss-1",
		Magnitude: 6.2,
		DepthKm:   10,
		Latitude:  -20,
		Longitude: -175,
		FaultType: FaultStrikeSlip,
	}
	engine := NewPropagationEngine(NewBasinDepthHeuristic())

	for _, offset := range []float64{3, 5, 10, 20} {
		threat, err := engine.AssessSource(src, VesselPosition{VesselID: "v", Lat: src.Latitude + offset, Lon: src.Longitude})
		require.NoError(t, err)
		require.Greater(t, threat.DistanceKm, 300.0)
		assert.LessOrEqual(t, threat.Severity.Rank(), SeverityModerate.Rank(), "distance %.0f km", threat.DistanceKm)
	}
}

func TestPropagationEngine_Factors(t *testing.T) {
	assert.Equal(t, 1.5, FaultTypeMultiplier(FaultThrust))
	assert.Equal(t, 0.8, FaultTypeMultiplier(FaultNormal))
	assert.Equal(t, 0.3, FaultTypeMultiplier(FaultStrikeSlip))

	assert.Equal(t, 1.0, GeometricAttenuation(0))
	assert.InDelta(t, 1/math.Sqrt(2), GeometricAttenuation(100), 1e-12)

	assert.Equal(t, 1.0, DirectivityFactor(45, nil))
	assert.InDelta(t, 1.0, DirectivityFactor(90, ptr(0)), 1e-12)
	assert.InDelta(t, 0.3, DirectivityFactor(180, ptr(0)), 1e-12)
}

func TestPropagationEngine_DepthFallback(t *testing.T) {
	defaultSpeed := ShallowWaterSpeedKmh(DefaultOceanDepthM)
	assert.InDelta(t, 713.1, defaultSpeed, 0.1)

	vessel := VesselPosition{VesselID: "v", Lat: 30, Lon: 150}
	amp, err := InitialAmplitude(tohoku())
	require.NoError(t, err)

	tests := []struct {
		name      string
		estimator DepthEstimator
		wantDepth float64
	}{
		{"nil estimator", nil, DefaultOceanDepthM},
		{"estimator without opinion", fixedDepth{depth: 1000, ok: false}, DefaultOceanDepthM},
		{"non-positive depth", fixedDepth{depth: 0, ok: true}, DefaultOceanDepthM},
		{"estimator depth", fixedDepth{depth: 1000, ok: true}, 1000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			threat := NewPropagationEngine(tt.estimator).Assess(tohoku(), amp, vessel)
			assert.Equal(t, tt.wantDepth, threat.OceanDepthM)
		})
	}
}

func TestSimplifiedAssess(t *testing.T) {
	src := tohoku()
	src.FaultType = ""

	t.Run("chosen for unknown mechanism", func(t *testing.T) {
		threat, err := NewPropagationEngine(nil).AssessSource(src, VesselPosition{VesselID: "v", Lat: 35, Lon: 140})
		require.NoError(t, err)
		assert.Equal(t, ModelSimplified, threat.Model)
		assert.Equal(t, simplifiedSpeedKmh, threat.TsunamiSpeedKmh)
	})

	t.Run("monotonic in distance", func(t *testing.T) {
		prev := math.Inf(1)
		for step := 0.0; step <= 80; step += 0.25 {
			threat := SimplifiedAssess(src, VesselPosition{VesselID: "v", Lat: src.Latitude - step, Lon: src.Longitude})
			assert.LessOrEqual(t, threat.WaveHeightM, prev)
			assert.GreaterOrEqual(t, threat.WaveHeightM, minWaveHeightM)
			prev = threat.WaveHeightM
		}
	})

	t.Run("amplitude at the epicenter", func(t *testing.T) {
		threat := SimplifiedAssess(src, VesselPosition{VesselID: "v", Lat: src.Latitude, Lon: src.Longitude})
		assert.InDelta(t, SimplifiedAmplitude(9.1), threat.WaveHeightM, 1e-9)
		assert.Equal(t, 0, threat.EtaMinutes)
		assert.Equal(t, SeverityCritical, threat.Severity)
	})
}

func TestAssessFleet(t *testing.T) {
	engine := NewPropagationEngine(NewBasinDepthHeuristic())
	src := tohoku()
	vessels := []VesselPosition{
		{VesselID: "near", Lat: 38.0, Lon: 142.0},
		{VesselID: "mid", Lat: 35.0, Lon: 140.0},
		{VesselID: "far", Lat: 21.3, Lon: -157.9},
		{VesselID: "farther", Lat: 34.0, Lon: -120.0},
	}

	t.Run("preserves input order", func(t *testing.T) {
		threats, err := engine.AssessFleet(context.Background(), src, vessels, 2)
		require.NoError(t, err)
		require.Len(t, threats, len(vessels))
		for i, v := range vessels {
			want, err := engine.AssessSource(src, v)
			require.NoError(t, err)
			assert.Equal(t, want, threats[i])
		}
	})

	t.Run("unbounded limit", func(t *testing.T) {
		threats, err := engine.AssessFleet(context.Background(), src, vessels, 0)
		require.NoError(t, err)
		assert.Len(t, threats, len(vessels))
	})

	t.Run("invalid source", func(t *testing.T) {
		bad := src
		bad.Magnitude = 11
		_, err := engine.AssessFleet(context.Background(), bad, vessels, 2)
		assert.ErrorIs(t, err, ErrInvalidSource)
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := engine.AssessFleet(ctx, src, vessels, 2)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestGeo(t *testing.T) {
	origin := GeoPoint{Lat: 0, Lon: 0}

	assert.Equal(t, 0.0, HaversineKm(origin, origin))
	assert.InDelta(t, 111.19, HaversineKm(origin, GeoPoint{Lat: 1, Lon: 0}), 0.01)

	assert.InDelta(t, 0, InitialBearing(origin, GeoPoint{Lat: 1, Lon: 0}), 1e-9)
	assert.InDelta(t, 90, InitialBearing(origin, GeoPoint{Lat: 0, Lon: 1}), 1e-9)
	assert.InDelta(t, 180, InitialBearing(origin, GeoPoint{Lat: -1, Lon: 0}), 1e-9)
	assert.InDelta(t, 270, InitialBearing(origin, GeoPoint{Lat: 0, Lon: -1}), 1e-9)

	mid := Midpoint(GeoPoint{Lat: 0, Lon: 170}, GeoPoint{Lat: 0, Lon: -170})
	assert.InDelta(t, 0, mid.Lat, 1e-9)
	assert.InDelta(t, 180, math.Abs(mid.Lon), 1e-9)
}

func TestBasinDepthHeuristic(t *testing.T) {
	h := NewBasinDepthHeuristic()

	d, ok := h.OceanDepthM(GeoPoint{Lat: 0, Lon: -160})
	require.True(t, ok)
	assert.InDelta(t, h.MaxDepthM, d, 1e-6)

	d, ok = h.OceanDepthM(GeoPoint{Lat: 60, Lon: 10})
	require.True(t, ok)
	assert.Equal(t, h.ShelfDepthM, d)

	d, _ = h.OceanDepthM(GeoPoint{Lat: 20, Lon: -150})
	assert.Greater(t, d, h.ShelfDepthM)
	assert.Less(t, d, h.MaxDepthM)
}
