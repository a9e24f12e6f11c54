package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/samirrijal/orchardscan/internal/core/domain"
)

// OrchardRepo implements ports.OrchardProvider and ports.SurveyStore with pgx.
type OrchardRepo struct {
	db *DB
}

// NewOrchardRepo creates a new OrchardRepo.
func NewOrchardRepo(db *DB) *OrchardRepo {
	return &OrchardRepo{db: db}
}

// UpsertOrchard inserts or updates an orchard boundary.
func (r *OrchardRepo) UpsertOrchard(ctx context.Context, o *domain.Orchard) error {
	polygon, err := json.Marshal(o.Polygon)
	if err != nil {
		return fmt.Errorf("encode polygon: %w", err)
	}
	_, err = r.db.Pool.Exec(ctx, `
		INSERT INTO orchards (id, name, polygon)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, polygon = EXCLUDED.polygon, updated_at = now()
	`, o.ID, o.Name, polygon)
	return err
}

// ReplaceSurvey stores the survey and its trees in one transaction and
// makes it the orchard's current survey.
func (r *OrchardRepo) ReplaceSurvey(ctx context.Context, s *domain.Survey) error {
	return pgx.BeginFunc(ctx, r.db.Pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO surveys (id, orchard_id, survey_date)
			VALUES ($1, $2, $3)
			ON CONFLICT (id) DO UPDATE
			SET survey_date = EXCLUDED.survey_date, imported_at = now()
		`, s.ID, s.OrchardID, s.Date)
		if err != nil {
			return fmt.Errorf("upsert survey: %w", err)
		}

		if _, err := tx.Exec(ctx, `DELETE FROM tree_observations WHERE survey_id = $1`, s.ID); err != nil {
			return fmt.Errorf("clear trees: %w", err)
		}

		batch := &pgx.Batch{}
		for _, t := range s.Trees {
			batch.Queue(`
				INSERT INTO tree_observations (survey_id, tree_id, lat, lng, area, ndre)
				VALUES ($1, $2, $3, $4, $5, $6)
			`, s.ID, t.ID, t.Position.Lat, t.Position.Lng, t.Area, t.NDRE)
		}
		br := tx.SendBatch(ctx, batch)
		for range s.Trees {
			if _, err := br.Exec(); err != nil {
				_ = br.Close()
				return fmt.Errorf("batch exec: %w", err)
			}
		}
		if err := br.Close(); err != nil {
			return fmt.Errorf("batch close: %w", err)
		}

		tag, err := tx.Exec(ctx, `
			UPDATE orchards SET current_survey_id = $2, updated_at = now() WHERE id = $1
		`, s.OrchardID, s.ID)
		if err != nil {
			return fmt.Errorf("set current survey: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: orchard %s", domain.ErrNotFound, s.OrchardID)
		}
		return nil
	})
}

// OrchardPolygon returns the stored boundary.
func (r *OrchardRepo) OrchardPolygon(ctx context.Context, orchardID string) ([]domain.Coordinate, error) {
	var raw []byte
	err := r.db.Pool.QueryRow(ctx, `SELECT polygon FROM orchards WHERE id = $1`, orchardID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: orchard %s", domain.ErrNotFound, orchardID)
	}
	if err != nil {
		return nil, err
	}

	var polygon []domain.Coordinate
	if err := json.Unmarshal(raw, &polygon); err != nil {
		return nil, fmt.Errorf("decode polygon of orchard %s: %w", orchardID, err)
	}
	return polygon, nil
}

// TreeRecords returns the trees of the orchard's current survey, or an
// empty list if no survey has been imported yet.
func (r *OrchardRepo) TreeRecords(ctx context.Context, orchardID string) ([]domain.TreeRecord, error) {
	var surveyID *string
	err := r.db.Pool.QueryRow(ctx, `SELECT current_survey_id FROM orchards WHERE id = $1`, orchardID).Scan(&surveyID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: orchard %s", domain.ErrNotFound, orchardID)
	}
	if err != nil {
		return nil, err
	}

	trees := []domain.TreeRecord{}
	if surveyID == nil {
		return trees, nil
	}

	rows, err := r.db.Pool.Query(ctx, `
		SELECT tree_id, lat, lng, area, ndre
		FROM tree_observations
		WHERE survey_id = $1
		ORDER BY tree_id
	`, *surveyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var t domain.TreeRecord
		if err := rows.Scan(&t.ID, &t.Position.Lat, &t.Position.Lng, &t.Area, &t.NDRE); err != nil {
			return nil, err
		}
		trees = append(trees, t)
	}
	return trees, rows.Err()
}
