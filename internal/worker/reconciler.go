package worker

import (
	"context"
	"time"

	"istory-server/internal/model"
	"istory-server/internal/repository"

	"go.uber.org/zap"
)

const (
	DefaultSweepInterval = 5 * time.Minute
	DefaultPendingTTL    = 24 * time.Hour
	sweepBatchSize       = 100
)

// VerificationChecker re-reads the ledger for one story. Satisfied by
// oracle.Reader.
type VerificationChecker interface {
	CheckAndCache(ctx context.Context, storyID string) (*model.VerifiedMetrics, error)
}

// Reconciler periodically sweeps pending verification logs. Logs older
// than the TTL become expired; the rest are re-checked against the
// ledger, which recovers dispatches whose queue message or poller was
// lost.
type Reconciler struct {
	verification repository.VerificationRepository
	checker      VerificationChecker
	interval     time.Duration
	pendingTTL   time.Duration
	logger       *zap.Logger
}

func NewReconciler(
	verification repository.VerificationRepository,
	checker VerificationChecker,
	interval, pendingTTL time.Duration,
	logger *zap.Logger,
) *Reconciler {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if pendingTTL <= 0 {
		pendingTTL = DefaultPendingTTL
	}
	return &Reconciler{
		verification: verification,
		checker:      checker,
		interval:     interval,
		pendingTTL:   pendingTTL,
		logger:       logger.Named("Reconciler"),
	}
}

// Run blocks until the context is cancelled, sweeping once immediately
// and then on every tick.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Reconciler stopping")
			return
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

func (r *Reconciler) sweep(ctx context.Context) {
	cutoff := time.Now().Add(-r.pendingTTL)
	expired, err := r.verification.ExpireOlderThan(ctx, cutoff)
	if err != nil {
		r.logger.Error("Failed to expire stale verification logs", zap.Error(err))
	} else if expired > 0 {
		r.logger.Info("Expired stale verification logs", zap.Int64("count", expired))
	}

	pending, err := r.verification.ListPending(ctx, sweepBatchSize)
	if err != nil {
		r.logger.Error("Failed to list pending verification logs", zap.Error(err))
		return
	}
	for _, entry := range pending {
		if ctx.Err() != nil {
			return
		}
		metrics, err := r.checker.CheckAndCache(ctx, entry.StoryID)
		if err != nil {
			r.logger.Debug("Ledger re-check failed, will retry next sweep",
				zap.String("storyID", entry.StoryID), zap.Error(err))
			continue
		}
		if metrics != nil {
			r.logger.Info("Reconciler completed pending verification",
				zap.String("storyID", entry.StoryID),
				zap.String("workflowRunID", entry.WorkflowRunID),
			)
		}
	}
}
