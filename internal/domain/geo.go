package domain

import "math"

const earthRadiusKm = 6371.0

func radians(deg float64) float64 { return deg * math.Pi / 180 }

func degrees(rad float64) float64 { return rad * 180 / math.Pi }

// HaversineKm returns the great-circle distance between two points.
func HaversineKm(a, b GeoPoint) float64 {
	dLat := radians(b.Lat - a.Lat)
	dLon := radians(b.Lon - a.Lon)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(radians(a.Lat))*math.Cos(radians(b.Lat))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// InitialBearing returns the forward azimuth from a to b in degrees, [0, 360).
func InitialBearing(a, b GeoPoint) float64 {
	lat1, lat2 := radians(a.Lat), radians(b.Lat)
	dLon := radians(b.Lon - a.Lon)
	y := math.Sin(dLon) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLon)
	return normalizeDegrees(degrees(math.Atan2(y, x)))
}

// Midpoint returns the great-circle midpoint between a and b.
func Midpoint(a, b GeoPoint) GeoPoint {
	lat1, lon1 := radians(a.Lat), radians(a.Lon)
	lat2 := radians(b.Lat)
	dLon := radians(b.Lon - a.Lon)
	bx := math.Cos(lat2) * math.Cos(dLon)
	by := math.Cos(lat2) * math.Sin(dLon)
	lat := math.Atan2(math.Sin(lat1)+math.Sin(lat2), math.Sqrt((math.Cos(lat1)+bx)*(math.Cos(lat1)+bx)+by*by))
	lon := lon1 + math.Atan2(by, math.Cos(lat1)+bx)
	return GeoPoint{Lat: degrees(lat), Lon: normalizeLongitude(degrees(lon))}
}

func normalizeDegrees(d float64) float64 {
	d = math.Mod(d, 360)
	if d < 0 {
		d += 360
	}
	if d >= 360 {
		d = 0
	}
	return d
}

func normalizeLongitude(lon float64) float64 {
	return math.Mod(lon+540, 360) - 180
}
