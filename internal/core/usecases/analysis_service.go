package usecases

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/samirrijal/orchardscan/internal/core/detection"
	"github.com/samirrijal/orchardscan/internal/core/domain"
	"github.com/samirrijal/orchardscan/internal/core/ports"
	"github.com/samirrijal/orchardscan/internal/pkg/geospatial"
	"github.com/samirrijal/orchardscan/internal/pkg/logging"
	"github.com/samirrijal/orchardscan/internal/pkg/metrics"
	"github.com/samirrijal/orchardscan/internal/pkg/telemetry"
)

// AnalysisService runs the detectors against provider data. Every call
// fetches fresh inputs; nothing is kept between requests.
type AnalysisService struct {
	provider  ports.OrchardProvider
	publisher ports.EventPublisher
	defaults  domain.DetectionParams

	newRunID func() string
	now      func() time.Time
}

// NewAnalysisService creates a new AnalysisService. publisher may be nil.
func NewAnalysisService(provider ports.OrchardProvider, publisher ports.EventPublisher, defaults domain.DetectionParams) *AnalysisService {
	return &AnalysisService{
		provider:  provider,
		publisher: publisher,
		defaults:  defaults,
		newRunID:  uuid.NewString,
		now:       time.Now,
	}
}

// Defaults returns the configured detection parameters.
func (s *AnalysisService) Defaults() domain.DetectionParams {
	return s.defaults
}

// MissingTrees finds likely gaps in the orchard's planting pattern.
func (s *AnalysisService) MissingTrees(ctx context.Context, orchardID string, params domain.DetectionParams) (*domain.MissingTreesResponse, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	var gaps []domain.GapCandidate
	err := s.run(ctx, orchardID, domain.AnalysisGaps, func(ctx context.Context) ([]domain.Coordinate, int, error) {
		polygon, trees, err := s.load(ctx, orchardID)
		if err != nil {
			return nil, 0, err
		}
		gaps, err = detection.DetectMissingTrees(ctx, polygon, trees, params)
		return gaps, len(trees), err
	})
	if err != nil {
		return nil, err
	}

	metrics.GapsFound.Add(float64(len(gaps)))
	return &domain.MissingTreesResponse{MissingTrees: gaps}, nil
}

// UnhealthyTrees reports trees whose NDRE is a low statistical outlier.
func (s *AnalysisService) UnhealthyTrees(ctx context.Context, orchardID string) (*domain.UnhealthyTreesResponse, error) {
	var sick []domain.UnhealthyTree
	err := s.run(ctx, orchardID, domain.AnalysisHealth, func(ctx context.Context) ([]domain.Coordinate, int, error) {
		trees, err := s.provider.TreeRecords(ctx, orchardID)
		if err != nil {
			return nil, 0, fmt.Errorf("load trees: %w", err)
		}
		sick, err = detection.FindOutliers(trees)
		return sick, len(trees), err
	})
	if err != nil {
		return nil, err
	}

	metrics.UnhealthyTreesFound.Add(float64(len(sick)))
	return &domain.UnhealthyTreesResponse{UnhealthyTrees: sick}, nil
}

// Summary describes the orchard and survey an analysis would run on.
func (s *AnalysisService) Summary(ctx context.Context, orchardID string, params domain.DetectionParams) (*domain.OrchardSummary, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	polygon, trees, err := s.load(ctx, orchardID)
	if err != nil {
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

	bounds := poly.Bounds()
	width, height := geospatial.Extent(bounds)
	sum := &domain.OrchardSummary{
		OrchardID:        orchardID,
		Vertices:         len(poly.Vertices()),
		Trees:            len(trees),
		AreaDeg2:         poly.Area(),
		WidthMeters:      width,
		HeightMeters:     height,
		InnerRegionEmpty: inner.IsEmpty(),
		Bounds:           bounds,
	}
	if len(trees) > 0 {
		sum.MeanNDRE, sum.StdDevNDRE, err = detection.HealthStats(trees)
		if err != nil {
			return nil, err
		}
	}
	return sum, nil
}

// load fetches the polygon and the trees concurrently.
func (s *AnalysisService) load(ctx context.Context, orchardID string) ([]domain.Coordinate, []domain.TreeRecord, error) {
	var (
		polygon []domain.Coordinate
		trees   []domain.TreeRecord
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		polygon, err = s.provider.OrchardPolygon(gctx, orchardID)
		if err != nil {
			return fmt.Errorf("load polygon: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		trees, err = s.provider.TreeRecords(gctx, orchardID)
		if err != nil {
			return fmt.Errorf("load trees: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return polygon, trees, nil
}

type detector func(ctx context.Context) (points []domain.Coordinate, trees int, err error)

// run wraps a detector with tracing, metrics, logging and event publishing.
func (s *AnalysisService) run(ctx context.Context, orchardID string, kind domain.AnalysisKind, fn detector) error {
	runID := s.newRunID()
	ctx, span := telemetry.Tracer().Start(ctx, "analysis."+string(kind))
	defer span.End()
	span.SetAttributes(
		attribute.String(telemetry.AttrOrchardID, orchardID),
		attribute.String(telemetry.AttrRunID, runID),
		attribute.String(telemetry.AttrKind, string(kind)),
	)

	start := s.now()
	points, trees, err := fn(ctx)
	elapsed := s.now().Sub(start)
	metrics.AnalysisDuration.WithLabelValues(string(kind)).Observe(elapsed.Seconds())

	if err != nil {
		metrics.AnalysisErrors.WithLabelValues(string(kind)).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logging.FromContext(ctx).WarnContext(ctx, "analysis failed",
			"run_id", runID, "orchard_id", orchardID, "kind", kind, "error", err)
		return err
	}

	span.SetAttributes(
		attribute.Int(telemetry.AttrTrees, trees),
		attribute.Int(telemetry.AttrPoints, len(points)),
	)
	logging.FromContext(ctx).InfoContext(ctx, "analysis finished",
		"run_id", runID,
		"orchard_id", orchardID,
		"kind", kind,
		"trees", trees,
		"points", len(points),
		"duration", elapsed,
	)

	if s.publisher != nil {
		event := &domain.AnalysisEvent{
			RunID:      runID,
			OrchardID:  orchardID,
			Kind:       kind,
			Points:     points,
			Duration:   elapsed,
			FinishedAt: s.now(),
		}
		if err := s.publisher.PublishAnalysis(ctx, event); err != nil {
			logging.FromContext(ctx).WarnContext(ctx, "publish analysis event", "run_id", runID, "error", err)
		}
	}
	return nil
}
