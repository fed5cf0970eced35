package repository

import (
	"context"
	"errors"
	"fmt"

	"istory-server/internal/model"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const (
	metadataFields = `story_id, themes, emotional_tone, life_domain, intensity_score,
		significance_score, people_mentioned, places_mentioned, time_references,
		brief_insight, is_canonical, analysis_status, updated_at`

	// One statement, insert-or-update, so two concurrent analyses of the
	// same story converge to a single row. is_canonical is deliberately
	// absent from the UPDATE branch: re-analysis must not reset the
	// author's toggle.
	upsertMetadataQuery = `
		INSERT INTO story_metadata (
			story_id, themes, emotional_tone, life_domain, intensity_score,
			significance_score, people_mentioned, places_mentioned, time_references,
			brief_insight, is_canonical, analysis_status, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, FALSE, 'completed', NOW())
		ON CONFLICT (story_id) DO UPDATE SET
			themes = EXCLUDED.themes,
			emotional_tone = EXCLUDED.emotional_tone,
			life_domain = EXCLUDED.life_domain,
			intensity_score = EXCLUDED.intensity_score,
			significance_score = EXCLUDED.significance_score,
			people_mentioned = EXCLUDED.people_mentioned,
			places_mentioned = EXCLUDED.places_mentioned,
			time_references = EXCLUDED.time_references,
			brief_insight = EXCLUDED.brief_insight,
			analysis_status = 'completed',
			updated_at = NOW()
		RETURNING ` + metadataFields

	getMetadataQuery = `SELECT ` + metadataFields + ` FROM story_metadata WHERE story_id = $1`

	setCanonicalQuery = `
		INSERT INTO story_metadata (
			story_id, themes, emotional_tone, life_domain, intensity_score,
			significance_score, people_mentioned, places_mentioned, time_references,
			brief_insight, is_canonical, analysis_status, updated_at
		) VALUES ($1, '{}', 'neutral', 'general', 0.5, 0.5, '{}', '{}', '{}', NULL, $2, 'pending', NOW())
		ON CONFLICT (story_id) DO UPDATE SET
			is_canonical = EXCLUDED.is_canonical,
			updated_at = NOW()
		RETURNING ` + metadataFields

	markProcessingQuery = `
		INSERT INTO story_metadata (
			story_id, themes, emotional_tone, life_domain, intensity_score,
			significance_score, people_mentioned, places_mentioned, time_references,
			brief_insight, is_canonical, analysis_status, updated_at
		) VALUES ($1, '{}', 'neutral', 'general', 0.5, 0.5, '{}', '{}', '{}', NULL, FALSE, 'processing', NOW())
		ON CONFLICT (story_id) DO UPDATE SET
			analysis_status = 'processing',
			updated_at = NOW()`

	markFailedQuery = `
		UPDATE story_metadata SET analysis_status = 'failed', updated_at = NOW()
		WHERE story_id = $1`
)

type pgMetadataRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

var _ MetadataRepository = (*pgMetadataRepository)(nil)

// NewPgMetadataRepository creates the PostgreSQL-backed metadata store.
func NewPgMetadataRepository(db *pgxpool.Pool, logger *zap.Logger) MetadataRepository {
	return &pgMetadataRepository{db: db, logger: logger.Named("PgMetadataRepo")}
}

func (r *pgMetadataRepository) Upsert(ctx context.Context, storyID string, fields model.SanitizedMetadata) (*model.StoryMetadata, error) {
	var stored model.StoryMetadata
	err := pgxscan.Get(ctx, r.db, &stored, upsertMetadataQuery,
		storyID,
		fields.Themes,
		fields.EmotionalTone,
		fields.LifeDomain,
		fields.IntensityScore,
		fields.SignificanceScore,
		fields.PeopleMentioned,
		fields.PlacesMentioned,
		fields.TimeReferences,
		fields.BriefInsight,
	)
	if err != nil {
		if schemaMissing(err) {
			r.logger.Warn("story_metadata table missing, migration required", zap.String("storyID", storyID))
			return nil, ErrSchemaMissing
		}
		r.logger.Error("Failed to upsert story metadata", zap.String("storyID", storyID), zap.Error(err))
		return nil, fmt.Errorf("failed to upsert metadata for story %s: %w", storyID, err)
	}

	r.logger.Debug("Story metadata upserted",
		zap.String("storyID", storyID),
		zap.String("tone", string(stored.EmotionalTone)),
		zap.Bool("isCanonical", stored.IsCanonical),
	)
	return &stored, nil
}

func (r *pgMetadataRepository) GetByStoryID(ctx context.Context, storyID string) (*model.StoryMetadata, error) {
	var metadata model.StoryMetadata
	err := pgxscan.Get(ctx, r.db, &metadata, getMetadataQuery, storyID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		if schemaMissing(err) {
			return nil, ErrSchemaMissing
		}
		return nil, fmt.Errorf("failed to get metadata for story %s: %w", storyID, err)
	}
	return &metadata, nil
}

func (r *pgMetadataRepository) SetCanonical(ctx context.Context, storyID string, canonical bool) (*model.StoryMetadata, error) {
	var stored model.StoryMetadata
	err := pgxscan.Get(ctx, r.db, &stored, setCanonicalQuery, storyID, canonical)
	if err != nil {
		if schemaMissing(err) {
			return nil, ErrSchemaMissing
		}
		r.logger.Error("Failed to set canonical flag", zap.String("storyID", storyID), zap.Error(err))
		return nil, fmt.Errorf("failed to set canonical flag for story %s: %w", storyID, err)
	}
	return &stored, nil
}

func (r *pgMetadataRepository) MarkProcessing(ctx context.Context, storyID string) error {
	if _, err := r.db.Exec(ctx, markProcessingQuery, storyID); err != nil {
		if schemaMissing(err) {
			return ErrSchemaMissing
		}
		return fmt.Errorf("failed to mark metadata processing for story %s: %w", storyID, err)
	}
	return nil
}

func (r *pgMetadataRepository) MarkFailed(ctx context.Context, storyID string) error {
	tag, err := r.db.Exec(ctx, markFailedQuery, storyID)
	if err != nil {
		if schemaMissing(err) {
			return ErrSchemaMissing
		}
		return fmt.Errorf("failed to mark metadata failed for story %s: %w", storyID, err)
	}
	if tag.RowsAffected() == 0 {
		// First-ever analysis failed: no row existed and none is created.
		r.logger.Debug("No metadata row to mark failed", zap.String("storyID", storyID))
	}
	return nil
}

// schemaMissing reports SQLSTATE 42P01 (undefined_table), the expected
// state of a deployment that has not run migrations yet.
func schemaMissing(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "42P01"
}
