package detection

import (
	"fmt"
	"math"

	"github.com/samirrijal/orchardscan/internal/core/domain"
)

// OutlierSigmas is how many population standard deviations below the mean
// an NDRE value must fall to be flagged.
const OutlierSigmas = 2.0

// HealthStats returns the mean and population standard deviation of the
// NDRE values. An empty survey has no statistics.
func HealthStats(trees []domain.TreeRecord) (mean, stddev float64, err error) {
	if len(trees) == 0 {
		return 0, 0, fmt.Errorf("%w: no trees in survey", domain.ErrInsufficientData)
	}
	for _, t := range trees {
		if math.IsNaN(t.NDRE) || math.IsInf(t.NDRE, 0) {
			return 0, 0, fmt.Errorf("%w: tree %q has non-finite ndre", domain.ErrDegenerateInput, t.ID)
		}
		mean += t.NDRE
	}
	n := float64(len(trees))
	mean /= n

	var ss float64
	for _, t := range trees {
		d := t.NDRE - mean
		ss += d * d
	}
	return mean, math.Sqrt(ss / n), nil
}

// FindOutliers returns the positions of trees whose NDRE is below
// mean - 2·stddev, in input order, rounded to 6 decimals.
func FindOutliers(trees []domain.TreeRecord) ([]domain.UnhealthyTree, error) {
	mean, stddev, err := HealthStats(trees)
	if err != nil {
		return nil, err
	}

	cutoff := mean - OutlierSigmas*stddev
	out := []domain.UnhealthyTree{}
	for _, t := range trees {
		if t.NDRE < cutoff {
			out = append(out, t.Position.Rounded())
		}
	}
	return out, nil
}
