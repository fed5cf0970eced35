// Package oracle owns the dispatch and read-back sides of the on-chain
// verification flow. The dispatcher records intent and hands the job to
// the queue; the reader pulls consensus results from the CRE gateway
// and caches them locally. The ledger stays the source of truth.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"istory-server/internal/model"
	"istory-server/internal/repository"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Dispatch rejection reasons, checked in a fixed order. Handlers map
// each to its own HTTP status.
var (
	ErrStoryNotFound      = errors.New("story not found")
	ErrEmptyContent       = errors.New("story has no content to verify")
	ErrMissingIdentity    = errors.New("story has no author wallet")
	ErrAlreadyVerified    = errors.New("story already has verified metrics")
	ErrDispatchInProgress = errors.New("verification already dispatched for story")
)

var dispatchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "istory_verification_dispatches_total",
	Help: "Verification dispatch attempts by outcome.",
}, []string{"outcome"})

// JobPublisher delivers a dispatched job to the worker. Publishing is
// best-effort: the pending log row is the durable record and the
// reconciler re-drives anything the queue lost.
type JobPublisher interface {
	PublishVerificationJob(ctx context.Context, payload model.VerificationJobPayload) error
}

// Dispatcher validates a story and records a pending verification run.
type Dispatcher struct {
	stories      repository.StoryRepository
	verification repository.VerificationRepository
	publisher    JobPublisher
	logger       *zap.Logger
}

func NewDispatcher(
	stories repository.StoryRepository,
	verification repository.VerificationRepository,
	publisher JobPublisher,
	logger *zap.Logger,
) *Dispatcher {
	return &Dispatcher{
		stories:      stories,
		verification: verification,
		publisher:    publisher,
		logger:       logger.Named("Dispatcher"),
	}
}

// Dispatch runs the precondition chain and, if the story qualifies,
// creates the pending log and publishes the job. The returned log
// carries the workflow_run_id the client will poll with.
//
// Precondition order is part of the contract: missing story, then empty
// content, then missing identity, then already verified, then dispatch
// in progress. A story failing several checks reports the first.
func (d *Dispatcher) Dispatch(ctx context.Context, storyID string) (*model.VerificationLog, error) {
	story, err := d.stories.GetForVerification(ctx, storyID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			dispatchesTotal.WithLabelValues("story_not_found").Inc()
			return nil, ErrStoryNotFound
		}
		dispatchesTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to load story for dispatch: %w", err)
	}

	if strings.TrimSpace(story.Content) == "" {
		dispatchesTotal.WithLabelValues("empty_content").Inc()
		return nil, ErrEmptyContent
	}
	if strings.TrimSpace(story.AuthorWallet) == "" {
		dispatchesTotal.WithLabelValues("missing_identity").Inc()
		return nil, ErrMissingIdentity
	}

	if _, err := d.verification.GetMetrics(ctx, storyID); err == nil {
		dispatchesTotal.WithLabelValues("already_verified").Inc()
		return nil, ErrAlreadyVerified
	} else if !errors.Is(err, repository.ErrNotFound) {
		dispatchesTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to check existing metrics: %w", err)
	}

	workflowRunID := uuid.New().String()
	logEntry, err := d.verification.CreatePending(ctx, storyID, workflowRunID)
	if err != nil {
		if errors.Is(err, repository.ErrDispatchPending) {
			dispatchesTotal.WithLabelValues("in_progress").Inc()
			return nil, ErrDispatchInProgress
		}
		dispatchesTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to record pending verification: %w", err)
	}

	payload := model.VerificationJobPayload{
		WorkflowRunID: workflowRunID,
		StoryID:       storyID,
		AuthorWallet:  story.AuthorWallet,
		Content:       story.Content,
		DispatchedAt:  time.Now().UTC(),
	}
	if err := d.publisher.PublishVerificationJob(ctx, payload); err != nil {
		// The pending row survives; the reconciler will pick it up.
		d.logger.Error("Failed to publish verification job, relying on reconciler",
			zap.String("storyID", storyID),
			zap.String("workflowRunID", workflowRunID),
			zap.Error(err),
		)
	}

	dispatchesTotal.WithLabelValues("dispatched").Inc()
	d.logger.Info("Verification dispatched",
		zap.String("storyID", storyID),
		zap.String("workflowRunID", workflowRunID),
	)
	return logEntry, nil
}
