package domain

import "math"

// Coordinate is a geographic position in degrees. The internal convention is
// always (lat, lng); providers that deliver (lng, lat) must swap on the way in.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Rounded returns the coordinate rounded to 6 decimal places (~0.11 m).
func (c Coordinate) Rounded() Coordinate {
	return Coordinate{Lat: Round6(c.Lat), Lng: Round6(c.Lng)}
}

// Round6 rounds half away from zero to 6 decimal places.
func Round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}

// Bounds represents an axis-aligned geographic bounding box.
type Bounds struct {
	MinLat float64 `json:"min_lat"`
	MaxLat float64 `json:"max_lat"`
	MinLng float64 `json:"min_lng"`
	MaxLng float64 `json:"max_lng"`
}

// Center returns the midpoint of the box.
func (b Bounds) Center() Coordinate {
	return Coordinate{Lat: (b.MinLat + b.MaxLat) / 2, Lng: (b.MinLng + b.MaxLng) / 2}
}
