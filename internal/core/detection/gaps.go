// Package detection finds missing and unhealthy trees in an orchard survey.
package detection

import (
	"context"
	"fmt"

	"github.com/samirrijal/orchardscan/internal/core/domain"
	"github.com/samirrijal/orchardscan/internal/pkg/geospatial"
	"github.com/samirrijal/orchardscan/internal/pkg/kde"
)

// FindGaps returns the local density minima inside region whose density is
// strictly below the thresholdPercentile-th percentile of all densities in
// region. Candidates are listed row-major (latitude outer, longitude inner)
// and rounded to 6 decimals. A region that masks every cell yields an empty
// list.
func FindGaps(field *kde.Field, region Container, neighborhoodSize int, thresholdPercentile float64) ([]domain.GapCandidate, error) {
	if neighborhoodSize < 1 {
		return nil, fmt.Errorf("%w: neighborhood_size must be >= 1, got %d", domain.ErrInvalidParams, neighborhoodSize)
	}
	if !(thresholdPercentile >= 0 && thresholdPercentile <= 100) {
		return nil, fmt.Errorf("%w: threshold_percentile must be in [0,100], got %v", domain.ErrInvalidParams, thresholdPercentile)
	}

	cells := Mask(field, region)
	threshold, ok := Percentile(validValues(cells), thresholdPercentile)
	if !ok {
		return []domain.GapCandidate{}, nil
	}

	minima := LocalMinima(cells, neighborhoodSize)
	gaps := []domain.GapCandidate{}
	for i, row := range cells {
		for j, c := range row {
			if c.Valid && minima[i][j] && c.Value < threshold {
				gaps = append(gaps, field.Grid.At(i, j).Rounded())
			}
		}
	}
	return gaps, nil
}

// DetectMissingTrees runs the full pipeline: erode the orchard polygon,
// fit a canopy-area weighted KDE to the trees, sample it over the polygon's
// bounding box and pick the low-density minima inside the eroded region.
func DetectMissingTrees(ctx context.Context, polygon []domain.Coordinate, trees []domain.TreeRecord, params domain.DetectionParams) ([]domain.GapCandidate, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	poly, err := geospatial.NewPolygon(polygon)
	if err != nil {
		return nil, err
	}
	inner, err := poly.Erode(params.InnerBuffer)
	if err != nil {
		return nil, err
	}

	positions := make([]domain.Coordinate, len(trees))
	weights := make([]float64, len(trees))
	for i, t := range trees {
		positions[i] = t.Position
		weights[i] = t.Area
	}

	est, err := kde.New(positions, weights, kde.Bandwidth{Method: params.Method(), Factor: params.Bandwidth})
	if err != nil {
		return nil, err
	}
	if inner.IsEmpty() {
		return []domain.GapCandidate{}, nil
	}

	grid, err := kde.NewGrid(poly.Bounds(), params.NumPoints)
	if err != nil {
		return nil, err
	}
	field, err := est.Evaluate(ctx, grid)
	if err != nil {
		return nil, err
	}

	return FindGaps(field, inner, params.NeighborhoodSize, params.ThresholdPercentile)
}
