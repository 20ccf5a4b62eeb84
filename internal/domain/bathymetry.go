package domain

import "math"

// DefaultOceanDepthM is used when no depth estimate is available.
const DefaultOceanDepthM = 4000.0

// DepthEstimator supplies an ocean depth for wave-speed calculations. The bool
// result is false when the estimator has no opinion about the point.
type DepthEstimator interface {
	OceanDepthM(p GeoPoint) (float64, bool)
}

type oceanBasin struct {
	name     string
	center   GeoPoint
	radiusKm float64
}

// BasinDepthHeuristic estimates depth from the distance to the nearest basin
// centre: deepest at the centre, shoaling linearly to shelf depth at the basin
// radius. It stands in for real bathymetry.
type BasinDepthHeuristic struct {
	MaxDepthM   float64
	ShelfDepthM float64
	basins      []oceanBasin
}

// NewBasinDepthHeuristic returns the default Pacific / Atlantic / Indian basin
// model.
func NewBasinDepthHeuristic() *BasinDepthHeuristic {
	return &BasinDepthHeuristic{
		MaxDepthM:   5000,
		ShelfDepthM: 200,
		basins: []oceanBasin{
			{name: "pacific", center: GeoPoint{Lat: 0, Lon: -160}, radiusKm: 9000},
			{name: "atlantic", center: GeoPoint{Lat: 10, Lon: -35}, radiusKm: 5000},
			{name: "indian", center: GeoPoint{Lat: -20, Lon: 80}, radiusKm: 5000},
		},
	}
}

// OceanDepthM implements DepthEstimator. Points outside every basin get shelf
// depth.
func (h *BasinDepthHeuristic) OceanDepthM(p GeoPoint) (float64, bool) {
	best := math.Inf(1)
	for _, b := range h.basins {
		frac := HaversineKm(p, b.center) / b.radiusKm
		if frac < best {
			best = frac
		}
	}
	if math.IsInf(best, 1) {
		return 0, false
	}
	if best >= 1 {
		return h.ShelfDepthM, true
	}
	return h.MaxDepthM - best*(h.MaxDepthM-h.ShelfDepthM), true
}
