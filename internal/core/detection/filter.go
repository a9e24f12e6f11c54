package detection

import (
	"math"
	"sort"

	"github.com/samirrijal/orchardscan/internal/core/domain"
	"github.com/samirrijal/orchardscan/internal/pkg/kde"
)

// Density is one grid sample. Cells outside the inner region are not
// Valid; they take part in neither the minimum filter nor the percentile.
type Density struct {
	Value float64
	Valid bool
}

// Container is satisfied by geospatial.Polygon and geospatial.Region.
type Container interface {
	Contains(c domain.Coordinate) bool
}

// Mask keeps the density of every cell whose centre lies inside region.
func Mask(field *kde.Field, region Container) [][]Density {
	out := make([][]Density, len(field.Values))
	for i, row := range field.Values {
		out[i] = make([]Density, len(row))
		for j, v := range row {
			if region.Contains(field.Grid.At(i, j)) {
				out[i][j] = Density{Value: v, Valid: true}
			}
		}
	}
	return out
}

// LocalMinima marks every valid cell whose value equals the minimum over the
// size×size window around it. The window spans offsets -size/2 through
// size-1-size/2; cells beyond the grid edge and invalid cells count as +Inf.
func LocalMinima(cells [][]Density, size int) [][]bool {
	rows := len(cells)
	if rows == 0 {
		return nil
	}
	cols := len(cells[0])
	lo := -(size / 2)
	hi := size - 1 + lo

	// Separable filter: minimum along each row, then along each column.
	rowMin := make([][]float64, rows)
	for i := range cells {
		rowMin[i] = make([]float64, cols)
		for j := 0; j < cols; j++ {
			m := math.Inf(1)
			for k := j + lo; k <= j+hi; k++ {
				if k < 0 || k >= cols || !cells[i][k].Valid {
					continue
				}
				m = math.Min(m, cells[i][k].Value)
			}
			rowMin[i][j] = m
		}
	}

	out := make([][]bool, rows)
	for i := range cells {
		out[i] = make([]bool, cols)
		for j := 0; j < cols; j++ {
			if !cells[i][j].Valid {
				continue
			}
			m := math.Inf(1)
			for k := i + lo; k <= i+hi; k++ {
				if k < 0 || k >= rows {
					continue
				}
				m = math.Min(m, rowMin[k][j])
			}
			out[i][j] = cells[i][j].Value == m
		}
	}
	return out
}

// Percentile returns the p-th percentile (0-100) of values using linear
// interpolation between closest ranks. It reports false for an empty input.
func Percentile(values []float64, p float64) (float64, bool) {
	if len(values) == 0 {
		return 0, false
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	rank := p / 100 * float64(len(sorted)-1)
	below := math.Floor(rank)
	above := math.Ceil(rank)
	lo, hi := sorted[int(below)], sorted[int(above)]
	if below == above {
		return lo, true
	}
	return lo + (hi-lo)*(rank-below), true
}

// validValues collects the defined densities in row-major order.
func validValues(cells [][]Density) []float64 {
	var out []float64
	for _, row := range cells {
		for _, c := range row {
			if c.Valid {
				out = append(out, c.Value)
			}
		}
	}
	return out
}
