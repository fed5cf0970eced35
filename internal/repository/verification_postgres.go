package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"istory-server/internal/model"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const (
	verificationLogFields = `id, story_id, workflow_run_id, status, updated_at`

	createPendingLogQuery = `
		INSERT INTO verification_logs (id, story_id, workflow_run_id, status, updated_at)
		VALUES (gen_random_uuid(), $1, $2, 'pending', NOW())
		RETURNING ` + verificationLogFields

	hasPendingLogQuery = `
		SELECT EXISTS (
			SELECT 1 FROM verification_logs WHERE story_id = $1 AND status = 'pending'
		)`

	completePendingLogQuery = `
		UPDATE verification_logs SET status = 'completed', updated_at = NOW()
		WHERE story_id = $1 AND status = 'pending'`

	expirePendingLogsQuery = `
		UPDATE verification_logs SET status = 'expired', updated_at = NOW()
		WHERE status = 'pending' AND updated_at < $1`

	listPendingLogsQuery = `
		SELECT ` + verificationLogFields + ` FROM verification_logs
		WHERE status = 'pending' ORDER BY updated_at ASC LIMIT $1`

	metricsFields = `story_id, significance_score, emotional_depth, quality_score,
		word_count, verified_themes, cre_attestation_id, updated_at`

	// Re-reading the same on-chain state must produce the same row.
	upsertMetricsQuery = `
		INSERT INTO verified_metrics (
			story_id, significance_score, emotional_depth, quality_score,
			word_count, verified_themes, cre_attestation_id, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (story_id) DO UPDATE SET
			significance_score = EXCLUDED.significance_score,
			emotional_depth = EXCLUDED.emotional_depth,
			quality_score = EXCLUDED.quality_score,
			word_count = EXCLUDED.word_count,
			verified_themes = EXCLUDED.verified_themes,
			cre_attestation_id = EXCLUDED.cre_attestation_id,
			updated_at = NOW()`

	getMetricsQuery = `SELECT ` + metricsFields + ` FROM verified_metrics WHERE story_id = $1`
)

type pgVerificationRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

var _ VerificationRepository = (*pgVerificationRepository)(nil)

// NewPgVerificationRepository creates the PostgreSQL-backed verification
// store.
func NewPgVerificationRepository(db *pgxpool.Pool, logger *zap.Logger) VerificationRepository {
	return &pgVerificationRepository{db: db, logger: logger.Named("PgVerificationRepo")}
}

// CreatePending inserts the dispatch log. The partial unique index on
// (story_id) WHERE status='pending' is the real guard against
// concurrent dispatches; a unique violation surfaces as
// ErrDispatchPending.
func (r *pgVerificationRepository) CreatePending(ctx context.Context, storyID, workflowRunID string) (*model.VerificationLog, error) {
	var logEntry model.VerificationLog
	err := pgxscan.Get(ctx, r.db, &logEntry, createPendingLogQuery, storyID, workflowRunID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
			r.logger.Debug("Concurrent dispatch rejected by unique index", zap.String("storyID", storyID))
			return nil, ErrDispatchPending
		}
		r.logger.Error("Failed to create pending verification log", zap.String("storyID", storyID), zap.Error(err))
		return nil, fmt.Errorf("failed to create verification log for story %s: %w", storyID, err)
	}
	return &logEntry, nil
}

func (r *pgVerificationRepository) HasPending(ctx context.Context, storyID string) (bool, error) {
	var exists bool
	if err := r.db.QueryRow(ctx, hasPendingLogQuery, storyID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check pending verification log for story %s: %w", storyID, err)
	}
	return exists, nil
}

func (r *pgVerificationRepository) CompletePending(ctx context.Context, storyID string) error {
	tag, err := r.db.Exec(ctx, completePendingLogQuery, storyID)
	if err != nil {
		return fmt.Errorf("failed to complete verification log for story %s: %w", storyID, err)
	}
	if tag.RowsAffected() > 0 {
		r.logger.Info("Verification log marked completed", zap.String("storyID", storyID))
	}
	return nil
}

func (r *pgVerificationRepository) ExpireOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, expirePendingLogsQuery, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to expire pending verification logs: %w", err)
	}
	if n := tag.RowsAffected(); n > 0 {
		r.logger.Warn("Expired stale pending verification logs",
			zap.Int64("count", n),
			zap.Time("cutoff", cutoff),
		)
		return n, nil
	}
	return 0, nil
}

func (r *pgVerificationRepository) ListPending(ctx context.Context, limit int) ([]model.VerificationLog, error) {
	var logs []model.VerificationLog
	if err := pgxscan.Select(ctx, r.db, &logs, listPendingLogsQuery, limit); err != nil {
		return nil, fmt.Errorf("failed to list pending verification logs: %w", err)
	}
	return logs, nil
}

func (r *pgVerificationRepository) UpsertMetrics(ctx context.Context, metrics *model.VerifiedMetrics) error {
	_, err := r.db.Exec(ctx, upsertMetricsQuery,
		metrics.StoryID,
		metrics.SignificanceScore,
		metrics.EmotionalDepth,
		metrics.QualityScore,
		metrics.WordCount,
		metrics.VerifiedThemes,
		metrics.CREAttestationID,
	)
	if err != nil {
		r.logger.Error("Failed to upsert verified metrics", zap.String("storyID", metrics.StoryID), zap.Error(err))
		return fmt.Errorf("failed to upsert verified metrics for story %s: %w", metrics.StoryID, err)
	}
	return nil
}

func (r *pgVerificationRepository) GetMetrics(ctx context.Context, storyID string) (*model.VerifiedMetrics, error) {
	var metrics model.VerifiedMetrics
	err := pgxscan.Get(ctx, r.db, &metrics, getMetricsQuery, storyID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get verified metrics for story %s: %w", storyID, err)
	}
	return &metrics, nil
}
