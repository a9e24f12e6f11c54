package detection

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samirrijal/orchardscan/internal/core/domain"
)

func row(ndre ...float64) []domain.TreeRecord {
	trees := make([]domain.TreeRecord, len(ndre))
	for i, v := range ndre {
		trees[i] = domain.TreeRecord{
			ID:       fmt.Sprintf("t%d", i),
			Position: domain.Coordinate{Lat: -33.0 - float64(i)*0.0001, Lng: 18.5},
			Area:     1,
			NDRE:     v,
		}
	}
	return trees
}

func TestFindOutliers_SingleSickTree(t *testing.T) {
	trees := row(0.6, 0.6, 0.6, 0.6, 0.1, 0.6, 0.6, 0.6, 0.6, 0.6)

	got, err := FindOutliers(trees)
	require.NoError(t, err)
	assert.Equal(t, []domain.UnhealthyTree{trees[4].Position.Rounded()}, got)

	mean, sd, err := HealthStats(trees)
	require.NoError(t, err)
	assert.InDelta(t, 0.55, mean, 1e-12)
	assert.InDelta(t, 0.15, sd, 1e-12)
}

func TestFindOutliers_AllEqualFlagsNothing(t *testing.T) {
	for _, v := range []float64{0.6, 0.1, 0.3333333333, 0} {
		got, err := FindOutliers(row(v, v, v, v, v, v, v))
		require.NoError(t, err)
		assert.Empty(t, got, "ndre %v", v)
	}
}

func TestFindOutliers_Empty(t *testing.T) {
	_, err := FindOutliers(nil)
	assert.ErrorIs(t, err, domain.ErrInsufficientData)
}

func TestFindOutliers_NonFinite(t *testing.T) {
	_, err := FindOutliers(row(0.5, math.NaN(), 0.4))
	assert.ErrorIs(t, err, domain.ErrDegenerateInput)
}

func TestFindOutliers_KeepsInputOrder(t *testing.T) {
	ndre := make([]float64, 40)
	for i := range ndre {
		ndre[i] = 0.7
	}
	ndre[3], ndre[30] = 0.05, 0.02
	trees := row(ndre...)

	got, err := FindOutliers(trees)
	require.NoError(t, err)
	assert.Equal(t, []domain.UnhealthyTree{trees[3].Position.Rounded(), trees[30].Position.Rounded()}, got)
}
