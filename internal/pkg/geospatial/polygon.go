package geospatial

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/samirrijal/orchardscan/internal/core/domain"
)

// Polygon is a validated simple orchard boundary. Geometry is computed in
// degree space: orb points are stored as {lng, lat}.
//
// Contains is boundary-exclusive, for both Polygon and Region.
type Polygon struct {
	ring  orb.Ring
	bound orb.Bound
}

// NewPolygon validates the vertices and builds a closed ring. Consecutive
// duplicates and an explicit closing vertex are dropped first.
func NewPolygon(vertices []domain.Coordinate) (*Polygon, error) {
	pts := make([]orb.Point, 0, len(vertices)+1)
	for _, v := range vertices {
		if math.IsNaN(v.Lat) || math.IsNaN(v.Lng) || math.IsInf(v.Lat, 0) || math.IsInf(v.Lng, 0) {
			return nil, fmt.Errorf("%w: non-finite vertex %v", domain.ErrInvalidGeometry, v)
		}
		p := toPoint(v)
		if len(pts) > 0 && pts[len(pts)-1].Equal(p) {
			continue
		}
		pts = append(pts, p)
	}
	if len(pts) > 1 && pts[0].Equal(pts[len(pts)-1]) {
		pts = pts[:len(pts)-1]
	}
	if len(pts) < 3 {
		return nil, fmt.Errorf("%w: need at least 3 distinct vertices, got %d", domain.ErrInvalidGeometry, len(pts))
	}

	ring := orb.Ring(append(pts, pts[0]))
	if ringArea(ring) == 0 {
		return nil, fmt.Errorf("%w: polygon has zero area", domain.ErrInvalidGeometry)
	}
	if i, j, ok := selfIntersection(ring); ok {
		return nil, fmt.Errorf("%w: edges %d and %d intersect", domain.ErrInvalidGeometry, i, j)
	}

	return &Polygon{ring: ring, bound: ring.Bound()}, nil
}

// BoundsOf returns the axis-aligned bounding box of a vertex list.
func BoundsOf(vertices []domain.Coordinate) (domain.Bounds, error) {
	p, err := NewPolygon(vertices)
	if err != nil {
		return domain.Bounds{}, err
	}
	return p.Bounds(), nil
}

// Bounds returns the axis-aligned bounding box.
func (p *Polygon) Bounds() domain.Bounds {
	return boundOf(p.bound)
}

// Vertices returns the ring without its closing vertex.
func (p *Polygon) Vertices() []domain.Coordinate {
	out := make([]domain.Coordinate, 0, len(p.ring)-1)
	for _, pt := range p.ring[:len(p.ring)-1] {
		out = append(out, toCoordinate(pt))
	}
	return out
}

// Contains reports whether c lies strictly inside the polygon.
func (p *Polygon) Contains(c domain.Coordinate) bool {
	pt := toPoint(c)
	if !p.bound.Contains(pt) {
		return false
	}
	return planar.RingContains(p.ring, pt) && p.boundaryDistance(pt) > 0
}

// DistanceToBoundary is the planar distance from c to the nearest edge.
func (p *Polygon) DistanceToBoundary(c domain.Coordinate) float64 {
	return p.boundaryDistance(toPoint(c))
}

// Area is the planar area in square degrees.
func (p *Polygon) Area() float64 {
	return ringArea(p.ring)
}

// Centroid is the area-weighted centroid.
func (p *Polygon) Centroid() domain.Coordinate {
	c, _ := planar.CentroidArea(p.ring)
	return toCoordinate(c)
}

// Erode buffers the polygon inward by distance. The result may be empty;
// callers must check Region.IsEmpty.
func (p *Polygon) Erode(distance float64) (*Region, error) {
	if !(distance >= 0) || math.IsInf(distance, 0) {
		return nil, fmt.Errorf("%w: erosion distance must be >= 0, got %v", domain.ErrInvalidGeometry, distance)
	}
	r := &Region{outer: p, inset: distance}
	if distance > 0 {
		w, h := p.span()
		precision := math.Max(distance*1e-3, (w+h)*1e-9)
		r.empty = p.inscribedRadius(precision, distance) <= distance
	}
	return r, nil
}

// Erode is a convenience wrapper for NewPolygon(vertices).Erode(distance).
func Erode(vertices []domain.Coordinate, distance float64) (*Region, error) {
	p, err := NewPolygon(vertices)
	if err != nil {
		return nil, err
	}
	return p.Erode(distance)
}

func (p *Polygon) boundaryDistance(pt orb.Point) float64 {
	best := math.Inf(1)
	for i := 0; i < len(p.ring)-1; i++ {
		if d := planar.DistanceFromSegment(p.ring[i], p.ring[i+1], pt); d < best {
			best = d
		}
	}
	return best
}

// signedDistance is positive inside the polygon and negative outside.
func (p *Polygon) signedDistance(pt orb.Point) float64 {
	d := p.boundaryDistance(pt)
	if planar.RingContains(p.ring, pt) {
		return d
	}
	return -d
}

// Region is a polygon eroded by a fixed inset: the set of points of the
// polygon whose distance to its boundary is greater than the inset.
type Region struct {
	outer *Polygon
	inset float64
	empty bool
}

// Contains reports whether c lies strictly inside the eroded region.
func (r *Region) Contains(c domain.Coordinate) bool {
	if r.empty {
		return false
	}
	pt := toPoint(c)
	if !r.outer.bound.Contains(pt) || !planar.RingContains(r.outer.ring, pt) {
		return false
	}
	return r.outer.boundaryDistance(pt) > r.inset
}

// IsEmpty reports whether the inset consumed the whole polygon.
func (r *Region) IsEmpty() bool { return r.empty }

// Inset returns the erosion distance.
func (r *Region) Inset() float64 { return r.inset }

// Outer returns the polygon the region was eroded from.
func (r *Region) Outer() *Polygon { return r.outer }

// Bounds returns a box that contains the region. For an empty region the
// zero value is returned.
func (r *Region) Bounds() domain.Bounds {
	if r.empty {
		return domain.Bounds{}
	}
	b := r.outer.Bounds()
	return domain.Bounds{
		MinLat: b.MinLat + r.inset,
		MaxLat: b.MaxLat - r.inset,
		MinLng: b.MinLng + r.inset,
		MaxLng: b.MaxLng - r.inset,
	}
}

func toPoint(c domain.Coordinate) orb.Point {
	return orb.Point{c.Lng, c.Lat}
}

func toCoordinate(p orb.Point) domain.Coordinate {
	return domain.Coordinate{Lat: p.Lat(), Lng: p.Lon()}
}

func boundOf(b orb.Bound) domain.Bounds {
	return domain.Bounds{
		MinLat: b.Min.Lat(),
		MaxLat: b.Max.Lat(),
		MinLng: b.Min.Lon(),
		MaxLng: b.Max.Lon(),
	}
}

// ringArea is the absolute shoelace area of a closed ring.
func ringArea(r orb.Ring) float64 {
	var sum float64
	for i := 0; i < len(r)-1; i++ {
		sum += r[i][0]*r[i+1][1] - r[i+1][0]*r[i][1]
	}
	return math.Abs(sum) / 2
}

// selfIntersection finds two non-adjacent edges of a closed ring that touch.
func selfIntersection(r orb.Ring) (int, int, bool) {
	n := len(r) - 1
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if j == i+1 || (i == 0 && j == n-1) {
				continue
			}
			if segmentsIntersect(r[i], r[i+1], r[j], r[j+1]) {
				return i, j, true
			}
		}
	}
	return 0, 0, false
}

func segmentsIntersect(p1, p2, q1, q2 orb.Point) bool {
	d1 := orient(q1, q2, p1)
	d2 := orient(q1, q2, p2)
	d3 := orient(p1, p2, q1)
	d4 := orient(p1, p2, q2)

	if ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) && ((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0)) {
		return true
	}
	switch {
	case d1 == 0 && onSegment(q1, q2, p1):
		return true
	case d2 == 0 && onSegment(q1, q2, p2):
		return true
	case d3 == 0 && onSegment(p1, p2, q1):
		return true
	case d4 == 0 && onSegment(p1, p2, q2):
		return true
	}
	return false
}

func orient(a, b, c orb.Point) float64 {
	return (b[0]-a[0])*(c[1]-a[1]) - (b[1]-a[1])*(c[0]-a[0])
}

func onSegment(a, b, p orb.Point) bool {
	return math.Min(a[0], b[0]) <= p[0] && p[0] <= math.Max(a[0], b[0]) &&
		math.Min(a[1], b[1]) <= p[1] && p[1] <= math.Max(a[1], b[1])
}

// span is the bounding box width (lng) and height (lat) in degrees.
func (p *Polygon) span() (w, h float64) {
	return p.bound.Right() - p.bound.Left(), p.bound.Top() - p.bound.Bottom()
}
