package kde

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/samirrijal/orchardscan/internal/core/domain"
)

// Grid is a regular sampling lattice. Row i is latitude Lats[i], column j is
// longitude Lngs[j].
type Grid struct {
	Lats []float64
	Lngs []float64
}

// NewGrid spans b with n points per axis, both ends inclusive.
func NewGrid(b domain.Bounds, n int) (Grid, error) {
	if n < 2 {
		return Grid{}, fmt.Errorf("%w: grid needs at least 2 points per axis, got %d", domain.ErrInvalidParams, n)
	}
	if b.MaxLat < b.MinLat || b.MaxLng < b.MinLng {
		return Grid{}, fmt.Errorf("%w: inverted bounds %+v", domain.ErrInvalidParams, b)
	}
	return Grid{
		Lats: Linspace(b.MinLat, b.MaxLat, n),
		Lngs: Linspace(b.MinLng, b.MaxLng, n),
	}, nil
}

// Linspace returns n evenly spaced values over [lo, hi]. The last value is
// exactly hi.
func Linspace(lo, hi float64, n int) []float64 {
	out := make([]float64, n)
	if n == 1 {
		out[0] = lo
		return out
	}
	step := (hi - lo) / float64(n-1)
	for i := range out {
		out[i] = lo + float64(i)*step
	}
	out[n-1] = hi
	return out
}

// Rows is the number of latitude samples.
func (g Grid) Rows() int { return len(g.Lats) }

// Cols is the number of longitude samples.
func (g Grid) Cols() int { return len(g.Lngs) }

// At returns the coordinate of cell (i, j).
func (g Grid) At(i, j int) domain.Coordinate {
	return domain.Coordinate{Lat: g.Lats[i], Lng: g.Lngs[j]}
}

// Field holds density samples on a grid: Values[i][j] is the density at
// Grid.At(i, j).
type Field struct {
	Grid   Grid
	Values [][]float64
}

// Evaluate samples the estimator on every grid point. Rows are evaluated in
// parallel; ctx cancellation stops outstanding rows.
func (e *Estimator) Evaluate(ctx context.Context, g Grid) (*Field, error) {
	values := make([][]float64, g.Rows())

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(runtime.GOMAXPROCS(0))
	for i := range values {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			row := make([]float64, g.Cols())
			for j := range row {
				row[j] = e.At(g.At(i, j))
			}
			values[i] = row
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, fmt.Errorf("evaluate density: %w", err)
	}

	return &Field{Grid: g, Values: values}, nil
}

// Estimate fits a KDE to the weighted positions and samples it on a
// numPoints × numPoints grid spanning bounds.
func Estimate(ctx context.Context, positions []domain.Coordinate, weights []float64, bounds domain.Bounds, numPoints int, bw Bandwidth) (*Field, error) {
	g, err := NewGrid(bounds, numPoints)
	if err != nil {
		return nil, err
	}
	e, err := New(positions, weights, bw)
	if err != nil {
		return nil, err
	}
	return e.Evaluate(ctx, g)
}
