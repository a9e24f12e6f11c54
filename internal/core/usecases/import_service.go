package usecases

import (
	"context"
	"fmt"
	"time"

	"github.com/samirrijal/orchardscan/internal/core/domain"
	"github.com/samirrijal/orchardscan/internal/core/ports"
	"github.com/samirrijal/orchardscan/internal/pkg/logging"
	"github.com/samirrijal/orchardscan/internal/pkg/metrics"
)

// ImportService copies an orchard and its latest survey from a SurveySource
// into a SurveyStore.
type ImportService struct {
	source    ports.SurveySource
	store     ports.SurveyStore
	publisher ports.EventPublisher
	now       func() time.Time
}

// NewImportService creates a new ImportService. publisher may be nil.
func NewImportService(source ports.SurveySource, store ports.SurveyStore, publisher ports.EventPublisher) *ImportService {
	return &ImportService{source: source, store: store, publisher: publisher, now: time.Now}
}

// Import stores the orchard boundary and replaces its tree set with the
// latest survey.
func (s *ImportService) Import(ctx context.Context, orchardID string) (*domain.SurveyImported, error) {
	orchard, err := s.source.Orchard(ctx, orchardID)
	if err != nil {
		return nil, fmt.Errorf("fetch orchard: %w", err)
	}
	survey, err := s.source.LatestSurvey(ctx, orchardID)
	if err != nil {
		return nil, fmt.Errorf("fetch survey: %w", err)
	}

	if err := s.store.UpsertOrchard(ctx, orchard); err != nil {
		return nil, fmt.Errorf("store orchard: %w", err)
	}
	if err := s.store.ReplaceSurvey(ctx, survey); err != nil {
		return nil, fmt.Errorf("store survey: %w", err)
	}
	metrics.SurveysImported.Inc()

	event := &domain.SurveyImported{
		OrchardID:  orchardID,
		SurveyID:   survey.ID,
		Trees:      len(survey.Trees),
		ImportedAt: s.now(),
	}
	logging.FromContext(ctx).InfoContext(ctx, "survey imported",
		"orchard_id", orchardID, "survey_id", survey.ID, "trees", event.Trees)

	if s.publisher != nil {
		if err := s.publisher.PublishSurveyImported(ctx, event); err != nil {
			logging.FromContext(ctx).WarnContext(ctx, "publish survey imported", "orchard_id", orchardID, "error", err)
		}
	}
	return event, nil
}
