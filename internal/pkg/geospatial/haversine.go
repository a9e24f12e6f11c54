package geospatial

import (
	"math"

	"github.com/samirrijal/orchardscan/internal/core/domain"
)

const earthRadiusKm = 6371.0

// Haversine calculates the great-circle distance in meters between two points.
func Haversine(a, b domain.Coordinate) float64 {
	dLat := toRad(b.Lat - a.Lat)
	dLng := toRad(b.Lng - a.Lng)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(a.Lat))*math.Cos(toRad(b.Lat))*
			math.Sin(dLng/2)*math.Sin(dLng/2)

	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadiusKm * c * 1000 // meters
}

// Extent returns the east-west and north-south size of a box in meters,
// measured through its center.
func Extent(b domain.Bounds) (widthMeters, heightMeters float64) {
	mid := b.Center()
	widthMeters = Haversine(
		domain.Coordinate{Lat: mid.Lat, Lng: b.MinLng},
		domain.Coordinate{Lat: mid.Lat, Lng: b.MaxLng},
	)
	heightMeters = Haversine(
		domain.Coordinate{Lat: b.MinLat, Lng: mid.Lng},
		domain.Coordinate{Lat: b.MaxLat, Lng: mid.Lng},
	)
	return widthMeters, heightMeters
}

// MetersToDegrees converts a ground distance at the given latitude into the
// degree offset along the latitude and longitude axes.
func MetersToDegrees(lat, meters float64) (dLat, dLng float64) {
	dLat = meters / 111320.0
	dLng = meters / (111320.0 * math.Cos(toRad(lat)))
	return dLat, dLng
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}
