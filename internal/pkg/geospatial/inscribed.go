package geospatial

import (
	"container/heap"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// cell is a square search cell used by the inscribed-circle search.
type cell struct {
	center orb.Point
	half   float64
	dist   float64 // signed distance from center to the boundary
	max    float64 // upper bound on dist for any point in the cell
}

func newCell(p *Polygon, center orb.Point, half float64) *cell {
	d := p.signedDistance(center)
	return &cell{center: center, half: half, dist: d, max: d + half*math.Sqrt2}
}

type cellQueue []*cell

func (q cellQueue) Len() int           { return len(q) }
func (q cellQueue) Less(i, j int) bool { return q[i].max > q[j].max }
func (q cellQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }
func (q *cellQueue) Push(x any)        { *q = append(*q, x.(*cell)) }
func (q *cellQueue) Pop() any {
	old := *q
	n := len(old)
	c := old[n-1]
	*q = old[:n-1]
	return c
}

// InscribedRadius returns the radius of the largest circle that fits inside
// the polygon, to within precision.
func (p *Polygon) InscribedRadius(precision float64) float64 {
	return p.inscribedRadius(precision, math.Inf(1))
}

// inscribedRadius runs a best-first quadtree search over the bounding box.
// The search stops as soon as a point farther than stopAbove from the
// boundary is found, since callers only need to know the radius exceeds it.
func (p *Polygon) inscribedRadius(precision, stopAbove float64) float64 {
	w, h := p.span()
	size := math.Min(w, h)
	if size == 0 {
		return 0
	}
	half := size / 2

	q := &cellQueue{}
	for x := p.bound.Min[0]; x < p.bound.Max[0]; x += size {
		for y := p.bound.Min[1]; y < p.bound.Max[1]; y += size {
			heap.Push(q, newCell(p, orb.Point{x + half, y + half}, half))
		}
	}

	centroid, _ := planar.CentroidArea(p.ring)
	best := newCell(p, centroid, 0)
	if c := newCell(p, p.bound.Center(), 0); c.dist > best.dist {
		best = c
	}

	for q.Len() > 0 {
		c := heap.Pop(q).(*cell)
		if c.dist > best.dist {
			best = c
		}
		if best.dist > stopAbove {
			break
		}
		if c.max-best.dist <= precision {
			continue
		}
		hh := c.half / 2
		heap.Push(q, newCell(p, orb.Point{c.center[0] - hh, c.center[1] - hh}, hh))
		heap.Push(q, newCell(p, orb.Point{c.center[0] + hh, c.center[1] - hh}, hh))
		heap.Push(q, newCell(p, orb.Point{c.center[0] - hh, c.center[1] + hh}, hh))
		heap.Push(q, newCell(p, orb.Point{c.center[0] + hh, c.center[1] + hh}, hh))
	}

	return math.Max(best.dist, 0)
}
