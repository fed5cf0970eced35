// Package repository holds the PostgreSQL adapters for the verification
// pipeline's three tables, plus a read-only view of the stories table
// owned by the rest of the journaling app.
package repository

import (
	"context"
	"errors"
	"time"

	"istory-server/internal/model"
)

var (
	// ErrNotFound: no row for the requested key.
	ErrNotFound = errors.New("record not found")
	// ErrSchemaMissing: the table does not exist yet (pre-migration
	// deployment). Recoverable; callers degrade to "no metadata".
	ErrSchemaMissing = errors.New("metadata schema not migrated")
	// ErrDispatchPending: a pending verification log already exists for
	// the story. Raised by the partial unique index, not by a
	// check-then-insert read.
	ErrDispatchPending = errors.New("verification dispatch already pending")
)

// MetadataRepository stores sanitized story metadata, one row per story.
type MetadataRepository interface {
	// Upsert atomically inserts or refreshes the metadata row, keeping
	// the author's is_canonical choice on re-analysis, and returns the
	// full stored record.
	Upsert(ctx context.Context, storyID string, fields model.SanitizedMetadata) (*model.StoryMetadata, error)
	GetByStoryID(ctx context.Context, storyID string) (*model.StoryMetadata, error)
	// SetCanonical flips the author toggle, inserting a minimal pending
	// row when the story has not been analyzed yet.
	SetCanonical(ctx context.Context, storyID string, canonical bool) (*model.StoryMetadata, error)
	// MarkProcessing records that an analysis is in flight, inserting a
	// minimal row when the story has not been analyzed yet. Readers see
	// analysis_status=processing until Upsert or MarkFailed lands.
	MarkProcessing(ctx context.Context, storyID string) error
	// MarkFailed moves an existing row to analysis_status=failed.
	// A missing row is not an error; failure of a first-ever analysis
	// leaves no record behind.
	MarkFailed(ctx context.Context, storyID string) error
}

// VerificationRepository stores dispatch logs and the on-chain metrics
// cache.
type VerificationRepository interface {
	CreatePending(ctx context.Context, storyID, workflowRunID string) (*model.VerificationLog, error)
	HasPending(ctx context.Context, storyID string) (bool, error)
	CompletePending(ctx context.Context, storyID string) error
	// ExpireOlderThan marks pending logs whose last update is older
	// than the cutoff as expired, returning how many were touched.
	ExpireOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	ListPending(ctx context.Context, limit int) ([]model.VerificationLog, error)

	UpsertMetrics(ctx context.Context, metrics *model.VerifiedMetrics) error
	GetMetrics(ctx context.Context, storyID string) (*model.VerifiedMetrics, error)
}

// StoryRepository reads the slice of the stories table the dispatcher
// needs.
type StoryRepository interface {
	GetForVerification(ctx context.Context, storyID string) (*model.Story, error)
}
