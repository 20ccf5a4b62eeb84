package domain

import "math"

const (
	// rigidityPa is the crustal shear modulus μ.
	rigidityPa = 3e10

	// depthDecayKm is the e-folding depth of seafloor displacement.
	depthDecayKm = 50.0

	thrustDipDeg  = 15.0
	normalDipDeg  = 60.0
	normalScale   = 0.5
	strikeSlipVal = 0.1
)

// SeismicMoment returns M0 in N·m for a moment magnitude.
func SeismicMoment(magnitude float64) float64 {
	return math.Pow(10, 1.5*magnitude+9.1)
}

// FaultDimensions returns rupture length and width in km, using the supplied
// geometry where present and empirical magnitude scaling otherwise.
func FaultDimensions(src EarthquakeSource) (lengthKm, widthKm float64) {
	lengthKm = math.Pow(10, 0.5*src.Magnitude-1.8)
	widthKm = math.Pow(10, 0.25*src.Magnitude-0.8)
	if src.FaultLengthKm != nil {
		lengthKm = *src.FaultLengthKm
	}
	if src.FaultWidthKm != nil {
		widthKm = *src.FaultWidthKm
	}
	return lengthKm, widthKm
}

// AverageSlip returns mean fault slip in metres.
func AverageSlip(src EarthquakeSource) float64 {
	lengthKm, widthKm := FaultDimensions(src)
	areaM2 := lengthKm * 1000 * widthKm * 1000
	return SeismicMoment(src.Magnitude) / (rigidityPa * areaM2)
}

// InitialAmplitude returns the initial tsunami amplitude in metres. The source
// is validated first; an unknown fault type is treated as thrust, the dominant
// tsunami generator.
func InitialAmplitude(src EarthquakeSource) (float64, error) {
	if err := src.Validate(); err != nil {
		return 0, err
	}

	slip := AverageSlip(src)

	var vertical float64
	switch src.FaultType {
	case FaultNormal:
		vertical = slip * math.Sin(radians(normalDipDeg)) * normalScale
	case FaultStrikeSlip:
		vertical = slip * strikeSlipVal
	default:
		vertical = slip * math.Sin(radians(thrustDipDeg))
	}

	return math.Max(0, vertical*math.Exp(-src.DepthKm/depthDecayKm)), nil
}
