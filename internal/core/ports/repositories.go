package ports

import (
	"context"

	"github.com/samirrijal/orchardscan/internal/core/domain"
)

// OrchardProvider supplies the inputs of an analysis. Implementations
// return domain.ErrNotFound for unknown orchards and wrap transport
// failures in domain.ErrRemote.
type OrchardProvider interface {
	// OrchardPolygon returns the boundary ring in (lat, lng) order.
	OrchardPolygon(ctx context.Context, orchardID string) ([]domain.Coordinate, error)
	// TreeRecords returns the trees of the latest survey. The list may be empty.
	TreeRecords(ctx context.Context, orchardID string) ([]domain.TreeRecord, error)
}

// SurveySource fetches whole surveys for import.
type SurveySource interface {
	Orchard(ctx context.Context, orchardID string) (*domain.Orchard, error)
	LatestSurvey(ctx context.Context, orchardID string) (*domain.Survey, error)
}

// SurveyStore persists imported orchards and surveys.
type SurveyStore interface {
	UpsertOrchard(ctx context.Context, orchard *domain.Orchard) error
	// ReplaceSurvey stores survey as the orchard's current tree set.
	ReplaceSurvey(ctx context.Context, survey *domain.Survey) error
}
