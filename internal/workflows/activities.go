package workflows

import (
	"context"
	"errors"

	"go.temporal.io/sdk/temporal"

	"github.com/samirrijal/orchardscan/internal/core/domain"
	"github.com/samirrijal/orchardscan/internal/core/usecases"
	"github.com/samirrijal/orchardscan/internal/pkg/logging"
)

// Activity names, as registered from AnalysisActivities' methods.
const (
	ActivityRefreshOrchard     = "RefreshOrchard"
	ActivityDetectMissingTrees = "DetectMissingTrees"
	ActivityDetectUnhealthy    = "DetectUnhealthyTrees"
)

// errTypeInvalidData tags failures that a retry cannot fix.
const errTypeInvalidData = "InvalidOrchardData"

// Invalidator drops cached provider data for an orchard.
type Invalidator interface {
	Invalidate(ctx context.Context, orchardID string) error
}

// AnalysisActivities holds the activity implementations for the orchard
// analysis workflow. Each detector run publishes its own analysis event.
type AnalysisActivities struct {
	Analysis *usecases.AnalysisService
	Cache    Invalidator // optional
}

// RefreshOrchard drops cached data so the detectors see the new survey.
func (a *AnalysisActivities) RefreshOrchard(ctx context.Context, orchardID string) error {
	if a.Cache == nil {
		return nil
	}
	if err := a.Cache.Invalidate(ctx, orchardID); err != nil {
		logging.FromContext(ctx).WarnContext(ctx, "invalidate orchard cache", "orchard_id", orchardID, "error", err)
	}
	return nil
}

// DetectMissingTrees runs gap detection. Nil params mean the service defaults.
func (a *AnalysisActivities) DetectMissingTrees(ctx context.Context, orchardID string, params *domain.DetectionParams) ([]domain.GapCandidate, error) {
	p := a.Analysis.Defaults()
	if params != nil {
		p = *params
	}
	resp, err := a.Analysis.MissingTrees(ctx, orchardID, p)
	if err != nil {
		return nil, classify(err)
	}
	return resp.MissingTrees, nil
}

// DetectUnhealthyTrees runs NDRE outlier detection.
func (a *AnalysisActivities) DetectUnhealthyTrees(ctx context.Context, orchardID string) ([]domain.UnhealthyTree, error) {
	resp, err := a.Analysis.UnhealthyTrees(ctx, orchardID)
	if err != nil {
		return nil, classify(err)
	}
	return resp.UnhealthyTrees, nil
}

// classify marks input errors as non-retryable; provider outages keep the
// default retry policy.
func classify(err error) error {
	switch {
	case errors.Is(err, domain.ErrInvalidGeometry),
		errors.Is(err, domain.ErrInsufficientData),
		errors.Is(err, domain.ErrDegenerateInput),
		errors.Is(err, domain.ErrInvalidParams),
		errors.Is(err, domain.ErrNotFound):
		return temporal.NewNonRetryableApplicationError(err.Error(), errTypeInvalidData, err)
	default:
		return err
	}
}
