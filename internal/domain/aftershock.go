package domain

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// Regionally uncalibrated aftershock parameters.
const (
	grB        = 1.0  // Gutenberg-Richter b-value
	omoriP     = 1.1  // Omori-Utsu decay exponent
	omoriCDays = 0.05 // Omori-Utsu time offset
	bathDelta  = 1.2  // Båth's law magnitude gap

	minForecastMagnitude   = 4.0
	minForecastProbability = 0.01
	forecastHorizonDays    = 365.0

	tsunamiAftershockMagnitude   = 6.5
	tsunamiAftershockProbability = 0.1
	evacuateProbability          = 0.5
	cautionMagnitudeGap          = 1.5
	cautionProbability           = 0.3

	// magnitudeEpsilon absorbs rounding of forecast magnitudes to 0.1.
	magnitudeEpsilon = 1e-9
)

// Recommendation is the operator guidance attached to a forecast.
type Recommendation string

const (
	RecommendSafe     Recommendation = "safe"
	RecommendMonitor  Recommendation = "monitor"
	RecommendCaution  Recommendation = "caution"
	RecommendEvacuate Recommendation = "evacuate"
)

// Confidence grades how much weight a forecast deserves.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Downgrade returns the next lower confidence level. Low stays low.
func (c Confidence) Downgrade() Confidence {
	switch c {
	case ConfidenceHigh:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

type forecastWindow struct {
	label string
	days  float64
}

var (
	forecastOffsets = []float64{1.2, 1.5, 2.0, 2.5, 3.0}
	forecastWindows = []forecastWindow{
		{label: "24h", days: 1},
		{label: "7d", days: 7},
		{label: "30d", days: 30},
	}
)

// AftershockProbability is the chance of at least one aftershock of the given
// magnitude or larger within the timeframe.
type AftershockProbability struct {
	Magnitude     float64 `json:"magnitude"`
	Probability   float64 `json:"probability"`
	Timeframe     string  `json:"timeframe"`
	ExpectedCount float64 `json:"expectedCount"`
}

// TsunamiRisk summarizes secondary tsunami risk from aftershocks.
type TsunamiRisk struct {
	Possible    bool   `json:"possible"`
	Monitoring  bool   `json:"monitoring"`
	Description string `json:"description"`
}

// HistoricalSummary is advisory context from an external aftershock catalog.
type HistoricalSummary struct {
	Source       string  `json:"source"`
	Count        int     `json:"count"`
	MaxMagnitude float64 `json:"maxMagnitude"`
}

// AftershockForecast is the probabilistic outlook after a mainshock.
type AftershockForecast struct {
	MainshockID            string                  `json:"mainshockId"`
	Probabilities          []AftershockProbability `json:"probabilities"`
	TsunamiRisk            TsunamiRisk             `json:"tsunamiRisk"`
	Recommendation         Recommendation          `json:"recommendation"`
	Confidence             Confidence              `json:"confidence"`
	MaxAftershockMagnitude float64                 `json:"maxAftershockMagnitude"`
	ElapsedHours           float64                 `json:"elapsedHours"`
	Historical             *HistoricalSummary      `json:"historical,omitempty"`
}

// Forecaster produces aftershock forecasts. It holds no mutable state and is
// safe for concurrent use.
type Forecaster struct {
	mask OceanMask
}

// NewForecaster creates a forecaster. A nil mask uses NewBoxOceanMask.
func NewForecaster(mask OceanMask) *Forecaster {
	if mask == nil {
		mask = NewBoxOceanMask()
	}
	return &Forecaster{mask: mask}
}

// Forecast computes the statistical forecast for src as of now. Elapsed time
// is measured from the source timestamp; a zero timestamp counts as now.
func (f *Forecaster) Forecast(src EarthquakeSource, now time.Time) (AftershockForecast, error) {
	if err := src.Validate(); err != nil {
		return AftershockForecast{}, err
	}

	elapsedDays := 0.0
	if !src.Timestamp.IsZero() {
		elapsedDays = math.Max(0, now.Sub(src.Timestamp).Hours()/24)
	}
	elapsedHours := elapsedDays * 24

	probs := aftershockProbabilities(src.Magnitude, elapsedDays)
	oceanic := f.mask.IsOceanic(GeoPoint{Lat: src.Latitude, Lon: src.Longitude})
	risk := assessTsunamiRisk(src, oceanic, probs)

	return AftershockForecast{
		MainshockID:            src.ID,
		Probabilities:          probs,
		TsunamiRisk:            risk,
		Recommendation:         recommend(src.Magnitude, risk, probs),
		Confidence:             forecastConfidence(elapsedHours, src.Magnitude),
		MaxAftershockMagnitude: src.Magnitude - bathDelta,
		ElapsedHours:           elapsedHours,
	}, nil
}

// omoriIntegral is the integral of (t+c)^-p from a to b, in days.
func omoriIntegral(a, b float64) float64 {
	q := 1 - omoriP
	return (math.Pow(b+omoriCDays, q) - math.Pow(a+omoriCDays, q)) / q
}

// ExpectedAftershocks is the expected number of aftershocks of magnitude m or
// larger between elapsedDays and elapsedDays+windowDays. Productivity
// K = 10^(M-4.5) is distributed over a one-year horizon so that one event at
// the Båth magnitude is expected within it.
func ExpectedAftershocks(mainshock, m, elapsedDays, windowDays float64) float64 {
	productivity := math.Pow(10, mainshock-4.5)
	count := productivity * math.Pow(10, -grB*(m-4.5)) * math.Pow(10, -bathDelta)
	share := omoriIntegral(elapsedDays, elapsedDays+windowDays) / omoriIntegral(0, forecastHorizonDays)
	return count * share
}

// PoissonExceedance converts an expected count into P(at least one event).
func PoissonExceedance(lambda float64) float64 {
	return 1 - math.Exp(-lambda)
}

func aftershockProbabilities(mainshock, elapsedDays float64) []AftershockProbability {
	out := []AftershockProbability{}
	for _, offset := range forecastOffsets {
		m := math.Round((mainshock-offset)*10) / 10
		if m < minForecastMagnitude {
			continue
		}
		for _, w := range forecastWindows {
			lambda := ExpectedAftershocks(mainshock, m, elapsedDays, w.days)
			p := PoissonExceedance(lambda)
			if p <= minForecastProbability {
				continue
			}
			out = append(out, AftershockProbability{
				Magnitude:     m,
				Probability:   p,
				Timeframe:     w.label,
				ExpectedCount: lambda,
			})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Magnitude > out[j].Magnitude })
	return out
}

func assessTsunamiRisk(src EarthquakeSource, oceanic bool, probs []AftershockProbability) TsunamiRisk {
	large := false
	for _, p := range probs {
		if p.Magnitude >= tsunamiAftershockMagnitude && p.Probability > tsunamiAftershockProbability {
			large = true
			break
		}
	}

	possible := oceanic && src.DepthKm < shallowFocusKm && large
	monitoring := possible || src.TsunamiWarning || src.TsunamiWatch || (oceanic && src.Magnitude >= tsunamiAftershockMagnitude)

	var desc string
	switch {
	case possible:
		desc = fmt.Sprintf("Shallow offshore sequence: aftershocks of M%.1f or larger may generate tsunamis.", tsunamiAftershockMagnitude)
	case src.TsunamiWarning:
		desc = "Tsunami warning in effect for the mainshock. Monitor for additional waves."
	case monitoring:
		desc = "Offshore sequence under monitoring. Tsunamigenic aftershocks are unlikely but possible."
	default:
		desc = "No significant aftershock tsunami risk."
	}
	return TsunamiRisk{Possible: possible, Monitoring: monitoring, Description: desc}
}

func recommend(mainshock float64, risk TsunamiRisk, probs []AftershockProbability) Recommendation {
	top := 0.0
	caution := risk.Monitoring
	for _, p := range probs {
		top = math.Max(top, p.Probability)
		if mainshock-p.Magnitude <= cautionMagnitudeGap+magnitudeEpsilon && p.Probability > cautionProbability {
			caution = true
		}
	}

	switch {
	case risk.Possible && top > evacuateProbability:
		return RecommendEvacuate
	case caution:
		return RecommendCaution
	case len(probs) > 0:
		return RecommendMonitor
	default:
		return RecommendSafe
	}
}

func forecastConfidence(elapsedHours, magnitude float64) Confidence {
	switch {
	case elapsedHours < 72 && magnitude >= 6.0:
		return ConfidenceHigh
	case elapsedHours < 168 && magnitude >= 5.5:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}
