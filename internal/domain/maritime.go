package domain

// BoundingBox is a latitude/longitude rectangle. MinLon > MaxLon denotes a
// box that crosses the antimeridian.
type BoundingBox struct {
	MinLat, MaxLat float64
	MinLon, MaxLon float64
}

// Contains reports whether p lies inside the box, edges inclusive.
func (b BoundingBox) Contains(p GeoPoint) bool {
	if p.Lat < b.MinLat || p.Lat > b.MaxLat {
		return false
	}
	if b.MinLon <= b.MaxLon {
		return p.Lon >= b.MinLon && p.Lon <= b.MaxLon
	}
	return p.Lon >= b.MinLon || p.Lon <= b.MaxLon
}

// OceanMask decides whether an epicenter is offshore.
type OceanMask interface {
	IsOceanic(p GeoPoint) bool
}

// BoxOceanMask is a coarse land/sea mask: a point is oceanic when it lies in
// an ocean box and in no continental-interior box.
type BoxOceanMask struct {
	Ocean []BoundingBox
	Land  []BoundingBox
}

// NewBoxOceanMask returns the default ocean and continental-interior boxes.
func NewBoxOceanMask() *BoxOceanMask {
	return &BoxOceanMask{
		Ocean: []BoundingBox{
			{MinLat: -60, MaxLat: 65, MinLon: 120, MaxLon: -70}, // Pacific
			{MinLat: -60, MaxLat: 70, MinLon: -80, MaxLon: 20},  // Atlantic
			{MinLat: -60, MaxLat: 30, MinLon: 20, MaxLon: 120},  // Indian
			{MinLat: 30, MaxLat: 46, MinLon: -6, MaxLon: 36},    // Mediterranean
			{MinLat: -90, MaxLat: -60, MinLon: -180, MaxLon: 180},
			{MinLat: 66, MaxLat: 90, MinLon: -180, MaxLon: 180},
		},
		Land: []BoundingBox{
			{MinLat: 30, MaxLat: 60, MinLon: -120, MaxLon: -82},  // North America
			{MinLat: -30, MaxLat: 2, MinLon: -70, MaxLon: -40},   // South America
			{MinLat: 5, MaxLat: 30, MinLon: -10, MaxLon: 30},     // North Africa
			{MinLat: -25, MaxLat: 5, MinLon: 15, MaxLon: 35},     // Central Africa
			{MinLat: 25, MaxLat: 65, MinLon: 45, MaxLon: 120},    // Central Asia
			{MinLat: 48, MaxLat: 65, MinLon: 10, MaxLon: 45},     // Eastern Europe
			{MinLat: -32, MaxLat: -20, MinLon: 118, MaxLon: 148}, // Australia
		},
	}
}

// IsOceanic implements OceanMask.
func (m *BoxOceanMask) IsOceanic(p GeoPoint) bool {
	for _, b := range m.Land {
		if b.Contains(p) {
			return false
		}
	}
	for _, b := range m.Ocean {
		if b.Contains(p) {
			return true
		}
	}
	return false
}

// ShippingLane is a representative point on a major route with an importance
// weight from 1 to 10.
type ShippingLane struct {
	Name       string
	Point      GeoPoint
	Importance float64
}

// Port is a major port with an importance weight from 1 to 10.
type Port struct {
	Name       string
	Point      GeoPoint
	Importance float64
}

// RiskRegion is a historically tsunamigenic zone. Events inside it at or
// above MinMagnitude earn the historical-impact bonus.
type RiskRegion struct {
	Name         string
	Box          BoundingBox
	MinMagnitude float64
}

// DefaultShippingLanes returns the built-in lane table.
func DefaultShippingLanes() []ShippingLane {
	return []ShippingLane{
		{Name: "Strait of Malacca", Point: GeoPoint{Lat: 2.5, Lon: 101.0}, Importance: 10},
		{Name: "Suez Canal", Point: GeoPoint{Lat: 30.5, Lon: 32.3}, Importance: 10},
		{Name: "Panama Canal", Point: GeoPoint{Lat: 9.1, Lon: -79.7}, Importance: 9},
		{Name: "Strait of Hormuz", Point: GeoPoint{Lat: 26.6, Lon: 56.3}, Importance: 9},
		{Name: "English Channel", Point: GeoPoint{Lat: 50.2, Lon: -1.0}, Importance: 8},
		{Name: "Strait of Gibraltar", Point: GeoPoint{Lat: 35.95, Lon: -5.6}, Importance: 8},
		{Name: "Taiwan Strait", Point: GeoPoint{Lat: 24.0, Lon: 119.5}, Importance: 8},
		{Name: "Japan Pacific Coastal Route", Point: GeoPoint{Lat: 34.5, Lon: 140.0}, Importance: 8},
		{Name: "North Pacific Great Circle", Point: GeoPoint{Lat: 45.0, Lon: -170.0}, Importance: 7},
		{Name: "Bab-el-Mandeb", Point: GeoPoint{Lat: 12.6, Lon: 43.3}, Importance: 8},
		{Name: "Luzon Strait", Point: GeoPoint{Lat: 20.5, Lon: 121.0}, Importance: 6},
		{Name: "Cape of Good Hope", Point: GeoPoint{Lat: -34.5, Lon: 18.5}, Importance: 6},
		{Name: "US West Coast Approach", Point: GeoPoint{Lat: 34.0, Lon: -120.0}, Importance: 7},
		{Name: "Chilean Coastal Route", Point: GeoPoint{Lat: -33.0, Lon: -72.5}, Importance: 5},
	}
}

// DefaultPorts returns the built-in port table.
func DefaultPorts() []Port {
	return []Port{
		{Name: "Shanghai", Point: GeoPoint{Lat: 31.23, Lon: 121.47}, Importance: 10},
		{Name: "Singapore", Point: GeoPoint{Lat: 1.26, Lon: 103.84}, Importance: 10},
		{Name: "Ningbo-Zhoushan", Point: GeoPoint{Lat: 29.87, Lon: 121.55}, Importance: 9},
		{Name: "Busan", Point: GeoPoint{Lat: 35.10, Lon: 129.04}, Importance: 8},
		{Name: "Hong Kong", Point: GeoPoint{Lat: 22.29, Lon: 114.17}, Importance: 8},
		{Name: "Tokyo", Point: GeoPoint{Lat: 35.62, Lon: 139.78}, Importance: 8},
		{Name: "Yokohama", Point: GeoPoint{Lat: 35.44, Lon: 139.64}, Importance: 7},
		{Name: "Kobe", Point: GeoPoint{Lat: 34.68, Lon: 135.20}, Importance: 6},
		{Name: "Sendai", Point: GeoPoint{Lat: 38.27, Lon: 141.02}, Importance: 4},
		{Name: "Kaohsiung", Point: GeoPoint{Lat: 22.61, Lon: 120.28}, Importance: 6},
		{Name: "Manila", Point: GeoPoint{Lat: 14.59, Lon: 120.97}, Importance: 5},
		{Name: "Jakarta", Point: GeoPoint{Lat: -6.10, Lon: 106.88}, Importance: 6},
		{Name: "Rotterdam", Point: GeoPoint{Lat: 51.95, Lon: 4.14}, Importance: 9},
		{Name: "Los Angeles", Point: GeoPoint{Lat: 33.73, Lon: -118.26}, Importance: 8},
		{Name: "Seattle", Point: GeoPoint{Lat: 47.60, Lon: -122.34}, Importance: 6},
		{Name: "Valparaiso", Point: GeoPoint{Lat: -33.03, Lon: -71.63}, Importance: 5},
		{Name: "Jebel Ali", Point: GeoPoint{Lat: 25.01, Lon: 55.06}, Importance: 8},
		{Name: "Piraeus", Point: GeoPoint{Lat: 37.94, Lon: 23.64}, Importance: 6},
		{Name: "Colombo", Point: GeoPoint{Lat: 6.95, Lon: 79.85}, Importance: 6},
		{Name: "Anchorage", Point: GeoPoint{Lat: 61.22, Lon: -149.89}, Importance: 3},
	}
}

// DefaultRiskRegions returns the built-in historical-risk regions.
func DefaultRiskRegions() []RiskRegion {
	return []RiskRegion{
		{Name: "Japan Trench", Box: BoundingBox{MinLat: 30, MaxLat: 46, MinLon: 138, MaxLon: 148}, MinMagnitude: 7.0},
		{Name: "Sunda Arc", Box: BoundingBox{MinLat: -10, MaxLat: 15, MinLon: 90, MaxLon: 105}, MinMagnitude: 7.0},
		{Name: "Peru-Chile Trench", Box: BoundingBox{MinLat: -45, MaxLat: -15, MinLon: -80, MaxLon: -68}, MinMagnitude: 7.5},
		{Name: "Cascadia", Box: BoundingBox{MinLat: 40, MaxLat: 50, MinLon: -130, MaxLon: -122}, MinMagnitude: 7.0},
		{Name: "Aleutian Arc", Box: BoundingBox{MinLat: 50, MaxLat: 62, MinLon: -180, MaxLon: -145}, MinMagnitude: 7.5},
		{Name: "Hellenic Arc", Box: BoundingBox{MinLat: 33, MaxLat: 40, MinLon: 20, MaxLon: 30}, MinMagnitude: 6.5},
	}
}
