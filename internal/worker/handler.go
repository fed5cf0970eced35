// Package worker contains the consumers and background loops of the
// verification worker binary.
package worker

import (
	"context"
	"fmt"
	"time"

	"istory-server/internal/model"
	"istory-server/internal/oracle"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var jobsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "istory_verification_jobs_processed_total",
	Help: "Verification jobs consumed from the queue, by outcome.",
}, []string{"outcome"})

// Handler delivers a dequeued verification job to the CRE gateway.
type Handler struct {
	ledger oracle.LedgerClient
	logger *zap.Logger
}

func NewHandler(ledger oracle.LedgerClient, logger *zap.Logger) *Handler {
	return &Handler{ledger: ledger, logger: logger.Named("JobHandler")}
}

// Handle submits the job. A gateway error returns non-nil so the
// consumer nacks the message into the DLX for inspection; the pending
// log row remains and the reconciler keeps checking the ledger.
func (h *Handler) Handle(ctx context.Context, job model.VerificationJobPayload) error {
	start := time.Now()
	if err := h.ledger.SubmitJob(ctx, job); err != nil {
		jobsProcessed.WithLabelValues("failed").Inc()
		return fmt.Errorf("failed to submit verification job for story %s: %w", job.StoryID, err)
	}
	jobsProcessed.WithLabelValues("submitted").Inc()
	h.logger.Info("Verification job handed to gateway",
		zap.String("storyID", job.StoryID),
		zap.String("workflowRunID", job.WorkflowRunID),
		zap.Duration("took", time.Since(start)),
	)
	return nil
}
