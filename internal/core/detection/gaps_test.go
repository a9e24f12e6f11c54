package detection

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samirrijal/orchardscan/internal/core/domain"
	"github.com/samirrijal/orchardscan/internal/pkg/geospatial"
	"github.com/samirrijal/orchardscan/internal/pkg/kde"
)

type containerFunc func(domain.Coordinate) bool

func (f containerFunc) Contains(c domain.Coordinate) bool { return f(c) }

var everywhere = containerFunc(func(domain.Coordinate) bool { return true })

func square(size float64) []domain.Coordinate {
	return []domain.Coordinate{
		{Lat: 0, Lng: 0},
		{Lat: 0, Lng: size},
		{Lat: size, Lng: size},
		{Lat: size, Lng: 0},
	}
}

func cornerTrees(size float64) []domain.TreeRecord {
	var trees []domain.TreeRecord
	for i, c := range square(size) {
		trees = append(trees, domain.TreeRecord{ID: string(rune('a' + i)), Position: c, Area: 1, NDRE: 0.5})
	}
	return trees
}

// handField is a 4x4 field with two pits: (1,1)=1 and (3,3)=2.
func handField() *kde.Field {
	return &kde.Field{
		Grid: kde.Grid{Lats: []float64{0, 1, 2, 3}, Lngs: []float64{0, 1, 2, 3}},
		Values: [][]float64{
			{9, 9, 9, 9},
			{9, 1, 9, 9},
			{9, 9, 9, 9},
			{9, 9, 9, 2},
		},
	}
}

func TestPercentile(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		p      float64
		want   float64
	}{
		{"median even", []float64{4, 1, 3, 2}, 50, 2.5},
		{"min", []float64{4, 1, 3, 2}, 0, 1},
		{"max", []float64{4, 1, 3, 2}, 100, 4},
		{"interpolated", []float64{0, 10}, 12, 1.2},
		{"single", []float64{7}, 33, 7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Percentile(tt.values, tt.p)
			require.True(t, ok)
			assert.InDelta(t, tt.want, got, 1e-12)
		})
	}

	_, ok := Percentile(nil, 50)
	assert.False(t, ok)
}

func TestPercentile_DoesNotReorderInput(t *testing.T) {
	in := []float64{3, 1, 2}
	_, _ = Percentile(in, 50)
	assert.Equal(t, []float64{3, 1, 2}, in)
}

func TestLocalMinima(t *testing.T) {
	cells := Mask(handField(), everywhere)
	minima := LocalMinima(cells, 3)

	assert.True(t, minima[1][1])
	assert.True(t, minima[3][3])
	assert.False(t, minima[0][0], "window reaches the pit at (1,1)")
	assert.True(t, minima[0][3], "flat plateau away from both pits")
}

func TestLocalMinima_AsymmetricWindow(t *testing.T) {
	// A window of 2 spans offsets -1..0, so a cell only sees its upper-left
	// neighbours.
	cells := Mask(&kde.Field{
		Grid:   kde.Grid{Lats: []float64{0, 1}, Lngs: []float64{0, 1}},
		Values: [][]float64{{1, 5}, {5, 3}},
	}, everywhere)
	minima := LocalMinima(cells, 2)

	assert.True(t, minima[0][0])
	assert.False(t, minima[0][1])
	assert.False(t, minima[1][0])
	assert.False(t, minima[1][1])
}

func TestLocalMinima_MaskedCellsAreIgnored(t *testing.T) {
	pit := containerFunc(func(c domain.Coordinate) bool { return !(c.Lat == 1 && c.Lng == 1) })
	cells := Mask(handField(), pit)
	require.False(t, cells[1][1].Valid)

	minima := LocalMinima(cells, 3)
	assert.False(t, minima[1][1], "masked cell is never a minimum")
	assert.True(t, minima[0][0], "masked pit no longer dominates its neighbours")
}

func TestFindGaps_HandField(t *testing.T) {
	gaps, err := FindGaps(handField(), everywhere, 3, 50)
	require.NoError(t, err)
	assert.Equal(t, []domain.GapCandidate{{Lat: 1, Lng: 1}, {Lat: 3, Lng: 3}}, gaps)
}

func TestFindGaps_MaskedPitIsDropped(t *testing.T) {
	pit := containerFunc(func(c domain.Coordinate) bool { return !(c.Lat == 1 && c.Lng == 1) })
	gaps, err := FindGaps(handField(), pit, 3, 50)
	require.NoError(t, err)
	assert.Equal(t, []domain.GapCandidate{{Lat: 3, Lng: 3}}, gaps)
}

func TestFindGaps_ZeroPercentileIsEmpty(t *testing.T) {
	gaps, err := FindGaps(handField(), everywhere, 3, 0)
	require.NoError(t, err)
	assert.NotNil(t, gaps)
	assert.Empty(t, gaps)
}

func TestFindGaps_AllMaskedIsEmpty(t *testing.T) {
	nowhere := containerFunc(func(domain.Coordinate) bool { return false })
	gaps, err := FindGaps(handField(), nowhere, 3, 50)
	require.NoError(t, err)
	assert.NotNil(t, gaps)
	assert.Empty(t, gaps)
}

func TestFindGaps_RoundsCoordinates(t *testing.T) {
	f := &kde.Field{
		Grid:   kde.Grid{Lats: []float64{-33.123456789, -33.1}, Lngs: []float64{18.987654321, 19}},
		Values: [][]float64{{0, 1}, {1, 1}},
	}
	gaps, err := FindGaps(f, everywhere, 3, 50)
	require.NoError(t, err)
	assert.Equal(t, []domain.GapCandidate{{Lat: -33.123457, Lng: 18.987654}}, gaps)
}

func TestFindGaps_InvalidParams(t *testing.T) {
	_, err := FindGaps(handField(), everywhere, 0, 50)
	assert.ErrorIs(t, err, domain.ErrInvalidParams)

	_, err = FindGaps(handField(), everywhere, 3, 101)
	assert.ErrorIs(t, err, domain.ErrInvalidParams)

	_, err = FindGaps(handField(), everywhere, 3, math.NaN())
	assert.ErrorIs(t, err, domain.ErrInvalidParams)
}

func TestFindGaps_OutputInsideInnerRegion(t *testing.T) {
	poly := []domain.Coordinate{
		{Lat: 0, Lng: 0}, {Lat: 0, Lng: 10}, {Lat: 4, Lng: 10},
		{Lat: 4, Lng: 4}, {Lat: 10, Lng: 4}, {Lat: 10, Lng: 0},
	}
	trees := []domain.TreeRecord{
		{ID: "1", Position: domain.Coordinate{Lat: 1, Lng: 1}, Area: 2},
		{ID: "2", Position: domain.Coordinate{Lat: 1, Lng: 8}, Area: 1},
		{ID: "3", Position: domain.Coordinate{Lat: 8, Lng: 2}, Area: 3},
		{ID: "4", Position: domain.Coordinate{Lat: 3, Lng: 3}, Area: 1},
		{ID: "5", Position: domain.Coordinate{Lat: 6, Lng: 1}, Area: 2},
	}
	region, err := geospatial.Erode(poly, 0.5)
	require.NoError(t, err)

	positions := make([]domain.Coordinate, len(trees))
	weights := make([]float64, len(trees))
	for i, tr := range trees {
		positions[i], weights[i] = tr.Position, tr.Area
	}
	b, err := geospatial.BoundsOf(poly)
	require.NoError(t, err)
	field, err := kde.Estimate(context.Background(), positions, weights, b, 40, kde.Scalar(0.3))
	require.NoError(t, err)

	gaps, err := FindGaps(field, region, 4, 30)
	require.NoError(t, err)
	require.NotEmpty(t, gaps)

	grid := map[domain.Coordinate]bool{}
	for i := range field.Grid.Lats {
		for j := range field.Grid.Lngs {
			c := field.Grid.At(i, j)
			if region.Contains(c) {
				grid[c.Rounded()] = true
			}
		}
	}
	for _, g := range gaps {
		assert.True(t, grid[g], "gap %v is not an inner grid point", g)
	}
}

func TestDetectMissingTrees_CornerTreesLeaveCentreGap(t *testing.T) {
	params := domain.DefaultDetectionParams()
	params.NumPoints = 20
	params.Bandwidth = 0.5
	params.ThresholdPercentile = 20
	params.InnerBuffer = 0.1

	gaps, err := DetectMissingTrees(context.Background(), square(10), cornerTrees(10), params)
	require.NoError(t, err)
	require.NotEmpty(t, gaps)
	assert.LessOrEqual(t, len(gaps), 4)
	for _, g := range gaps {
		assert.InDelta(t, 5.0, g.Lat, 0.6, "gap %v", g)
		assert.InDelta(t, 5.0, g.Lng, 0.6, "gap %v", g)
	}
}

func TestDetectMissingTrees_BufferWiderThanOrchardIsEmpty(t *testing.T) {
	params := domain.DefaultDetectionParams()
	params.NumPoints = 20
	params.Bandwidth = 0.5
	params.InnerBuffer = 6

	gaps, err := DetectMissingTrees(context.Background(), square(10), cornerTrees(10), params)
	require.NoError(t, err)
	assert.NotNil(t, gaps)
	assert.Empty(t, gaps)
}

func TestDetectMissingTrees_Errors(t *testing.T) {
	params := domain.DefaultDetectionParams()
	params.NumPoints = 20
	params.Bandwidth = 0.5

	tests := []struct {
		name    string
		polygon []domain.Coordinate
		trees   []domain.TreeRecord
		params  domain.DetectionParams
		want    error
	}{
		{"bad polygon", square(10)[:2], cornerTrees(10), params, domain.ErrInvalidGeometry},
		{"one tree", square(10), cornerTrees(10)[:1], params, domain.ErrInsufficientData},
		{"zero area weight", square(10), func() []domain.TreeRecord {
			tr := cornerTrees(10)
			tr[2].Area = 0
			return tr
		}(), params, domain.ErrDegenerateInput},
		{"bad params", square(10), cornerTrees(10), domain.DetectionParams{}, domain.ErrInvalidParams},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DetectMissingTrees(context.Background(), tt.polygon, tt.trees, tt.params)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
