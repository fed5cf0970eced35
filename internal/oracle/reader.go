package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"istory-server/internal/model"
	"istory-server/internal/repository"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const metricsCachePrefix = "verified_metrics:"

// Reader answers "is this story verified yet". The local database and
// redis are both caches of the ledger; re-reading the same on-chain
// record any number of times leaves the same state behind.
type Reader struct {
	ledger       LedgerClient
	verification repository.VerificationRepository
	redisClient  *redis.Client
	cacheTTL     time.Duration
	logger       *zap.Logger
}

func NewReader(
	ledger LedgerClient,
	verification repository.VerificationRepository,
	redisClient *redis.Client,
	cacheTTL time.Duration,
	logger *zap.Logger,
) *Reader {
	if cacheTTL <= 0 {
		cacheTTL = time.Hour
	}
	return &Reader{
		ledger:       ledger,
		verification: verification,
		redisClient:  redisClient,
		cacheTTL:     cacheTTL,
		logger:       logger.Named("OracleReader"),
	}
}

// CheckAndCache returns the verified metrics for a story, or (nil, nil)
// when the ledger has no record yet. A ledger outage surfaces as
// ErrLedgerUnavailable so callers can tell "not verified" from "could
// not check".
func (r *Reader) CheckAndCache(ctx context.Context, storyID string) (*model.VerifiedMetrics, error) {
	if cached := r.fromCache(ctx, storyID); cached != nil {
		return cached, nil
	}

	record, err := r.ledger.GetVerification(ctx, RequestKey(storyID))
	if err != nil {
		if errors.Is(err, ErrNotRecorded) {
			return nil, nil
		}
		return nil, err
	}

	metrics := recordToMetrics(storyID, record)
	if err := r.verification.UpsertMetrics(ctx, metrics); err != nil {
		return nil, fmt.Errorf("failed to persist verified metrics: %w", err)
	}
	if err := r.verification.CompletePending(ctx, storyID); err != nil {
		// Metrics are already durable; the reconciler will retry the log.
		r.logger.Warn("Failed to complete pending verification log", zap.String("storyID", storyID), zap.Error(err))
	}
	r.toCache(ctx, storyID, metrics)

	r.logger.Info("Verified metrics cached from ledger",
		zap.String("storyID", storyID),
		zap.String("attestationID", metrics.CREAttestationID),
	)
	return metrics, nil
}

func (r *Reader) fromCache(ctx context.Context, storyID string) *model.VerifiedMetrics {
	if r.redisClient == nil {
		return nil
	}
	raw, err := r.redisClient.Get(ctx, metricsCachePrefix+storyID).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.logger.Warn("Redis read failed, falling back to ledger", zap.String("storyID", storyID), zap.Error(err))
		}
		return nil
	}
	var metrics model.VerifiedMetrics
	if err := json.Unmarshal([]byte(raw), &metrics); err != nil {
		r.logger.Warn("Corrupt cache entry dropped", zap.String("storyID", storyID), zap.Error(err))
		r.redisClient.Del(ctx, metricsCachePrefix+storyID)
		return nil
	}
	return &metrics
}

func (r *Reader) toCache(ctx context.Context, storyID string, metrics *model.VerifiedMetrics) {
	if r.redisClient == nil {
		return
	}
	raw, err := json.Marshal(metrics)
	if err != nil {
		return
	}
	if err := r.redisClient.Set(ctx, metricsCachePrefix+storyID, raw, r.cacheTTL).Err(); err != nil {
		r.logger.Warn("Failed to cache verified metrics", zap.String("storyID", storyID), zap.Error(err))
	}
}

// recordToMetrics validates and clamps the gateway record. Consensus
// output is untrusted input: scores live in 0-100, depth in 1-5, word
// count is never negative.
func recordToMetrics(storyID string, record *LedgerRecord) *model.VerifiedMetrics {
	themes := record.VerifiedThemes
	if themes == nil {
		themes = []string{}
	}
	return &model.VerifiedMetrics{
		StoryID:           storyID,
		SignificanceScore: clampInt(record.SignificanceScore, 0, 100),
		EmotionalDepth:    clampInt(record.EmotionalDepth, 1, 5),
		QualityScore:      clampInt(record.QualityScore, 0, 100),
		WordCount:         clampInt(record.WordCount, 0, record.WordCount),
		VerifiedThemes:    themes,
		CREAttestationID:  record.AttestationID,
		UpdatedAt:         time.Now().UTC(),
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if hi >= lo && v > hi {
		return hi
	}
	return v
}
