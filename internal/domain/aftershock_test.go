package domain

import (
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForecaster_Tohoku(t *testing.T) {
	src := tohoku()
	forecast, err := NewForecaster(nil).Forecast(src, src.Timestamp.Add(time.Hour))
	require.NoError(t, err)

	assert.Equal(t, "usp000hvnu", forecast.MainshockID)
	assert.InDelta(t, 7.9, forecast.MaxAftershockMagnitude, 1e-9)
	assert.InDelta(t, 1.0, forecast.ElapsedHours, 1e-9)
	require.NotEmpty(t, forecast.Probabilities)
	assert.Equal(t, 7.9, forecast.Probabilities[0].Magnitude)
	assert.True(t, sort.SliceIsSorted(forecast.Probabilities, func(i, j int) bool {
		return forecast.Probabilities[i].Magnitude > forecast.Probabilities[j].Magnitude
	}))
	for _, p := range forecast.Probabilities {
		assert.GreaterOrEqual(t, p.Magnitude, 4.0)
		assert.Greater(t, p.Probability, 0.01)
		assert.LessOrEqual(t, p.Probability, 1.0)
		assert.Contains(t, []string{"24h", "7d", "30d"}, p.Timeframe)
	}

	assert.True(t, forecast.TsunamiRisk.Possible)
	assert.True(t, forecast.TsunamiRisk.Monitoring)
	assert.NotEmpty(t, forecast.TsunamiRisk.Description)
	assert.Equal(t, RecommendEvacuate, forecast.Recommendation)
	assert.Equal(t, ConfidenceHigh, forecast.Confidence)
	assert.Nil(t, forecast.Historical)
}

func TestForecaster_Recommendations(t *testing.T) {
	f := NewForecaster(nil)

	t.Run("small inland event is safe", func(t *testing.T) {
		src := kansas()
		forecast, err := f.Forecast(src, src.Timestamp.Add(240*time.Hour))
		require.NoError(t, err)
		assert.Empty(t, forecast.Probabilities)
		assert.False(t, forecast.TsunamiRisk.Possible)
		assert.False(t, forecast.TsunamiRisk.Monitoring)
		assert.Equal(t, RecommendSafe, forecast.Recommendation)
		assert.Equal(t, ConfidenceLow, forecast.Confidence)
	})

	t.Run("inland M6 after ten days is monitor", func(t *testing.T) {
		src := kansas()
		src.Magnitude = 6.0
		forecast, err := f.Forecast(src, src.Timestamp.Add(240*time.Hour))
		require.NoError(t, err)
		assert.NotEmpty(t, forecast.Probabilities)
		assert.Equal(t, RecommendMonitor, forecast.Recommendation)
		assert.Equal(t, ConfidenceLow, forecast.Confidence)
	})

	t.Run("likely near-mainshock aftershock is caution", func(t *testing.T) {
		src := EarthquakeSource{ID: "ss", Magnitude: 6.2, DepthKm: 100, Latitude: -20, Longitude: -175, Timestamp: tohokuTime}
		forecast, err := f.Forecast(src, src.Timestamp)
		require.NoError(t, err)
		assert.False(t, forecast.TsunamiRisk.Possible)
		assert.False(t, forecast.TsunamiRisk.Monitoring)
		assert.Equal(t, RecommendCaution, forecast.Recommendation)
		assert.Equal(t, ConfidenceHigh, forecast.Confidence)
	})

	t.Run("watch flag raises monitoring", func(t *testing.T) {
		src := kansas()
		src.TsunamiWatch = true
		forecast, err := f.Forecast(src, src.Timestamp)
		require.NoError(t, err)
		assert.True(t, forecast.TsunamiRisk.Monitoring)
		assert.False(t, forecast.TsunamiRisk.Possible)
		assert.Equal(t, RecommendCaution, forecast.Recommendation)
	})

	t.Run("deep offshore event is not tsunami-possible", func(t *testing.T) {
		src := tohoku()
		src.DepthKm = 300
		forecast, err := f.Forecast(src, src.Timestamp)
		require.NoError(t, err)
		assert.False(t, forecast.TsunamiRisk.Possible)
		assert.True(t, forecast.TsunamiRisk.Monitoring)
		assert.NotEqual(t, RecommendEvacuate, forecast.Recommendation)
	})
}

func TestForecaster_ElapsedTime(t *testing.T) {
	f := NewForecaster(nil)

	t.Run("zero timestamp counts as now", func(t *testing.T) {
		src := tohoku()
		src.Timestamp = time.Time{}
		forecast, err := f.Forecast(src, tohokuTime)
		require.NoError(t, err)
		assert.Zero(t, forecast.ElapsedHours)
	})

	t.Run("future timestamp clamps to zero", func(t *testing.T) {
		src := tohoku()
		forecast, err := f.Forecast(src, src.Timestamp.Add(-time.Hour))
		require.NoError(t, err)
		assert.Zero(t, forecast.ElapsedHours)
	})

	t.Run("probabilities decay with time", func(t *testing.T) {
		src := tohoku()
		early := ExpectedAftershocks(src.Magnitude, 7.9, 0, 1)
		late := ExpectedAftershocks(src.Magnitude, 7.9, 30, 1)
		assert.Greater(t, early, late)
	})
}

func TestForecaster_InvalidSource(t *testing.T) {
	src := tohoku()
	src.DepthKm = -3
	_, err := NewForecaster(nil).Forecast(src, tohokuTime)
	assert.ErrorIs(t, err, ErrInvalidSource)
}

func TestForecastConfidence(t *testing.T) {
	tests := []struct {
		hours     float64
		magnitude float64
		want      Confidence
	}{
		{0, 6.0, ConfidenceHigh},
		{71.9, 6.0, ConfidenceHigh},
		{72, 6.0, ConfidenceMedium},
		{10, 5.9, ConfidenceMedium},
		{167.9, 5.5, ConfidenceMedium},
		{168, 7.0, ConfidenceLow},
		{10, 5.4, ConfidenceLow},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, forecastConfidence(tt.hours, tt.magnitude), "%vh M%v", tt.hours, tt.magnitude)
	}
}

func TestConfidence_Downgrade(t *testing.T) {
	assert.Equal(t, ConfidenceMedium, ConfidenceHigh.Downgrade())
	assert.Equal(t, ConfidenceLow, ConfidenceMedium.Downgrade())
	assert.Equal(t, ConfidenceLow, ConfidenceLow.Downgrade())
}

func TestPoissonExceedance(t *testing.T) {
	assert.Zero(t, PoissonExceedance(0))
	assert.InDelta(t, 0.632, PoissonExceedance(1), 0.001)
	assert.Less(t, PoissonExceedance(50), 1.0+1e-12)
}
