// Package mocks holds hand-written testify mocks for the pipeline's
// interfaces.
package mocks

import (
	"context"
	"time"

	"istory-server/internal/model"
	"istory-server/internal/repository"

	"github.com/stretchr/testify/mock"
)

// MockMetadataRepository is a mock type for the MetadataRepository type
type MockMetadataRepository struct {
	mock.Mock
}

func (_m *MockMetadataRepository) Upsert(ctx context.Context, storyID string, fields model.SanitizedMetadata) (*model.StoryMetadata, error) {
	ret := _m.Called(ctx, storyID, fields)

	var r0 *model.StoryMetadata
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*model.StoryMetadata)
	}
	return r0, ret.Error(1)
}

func (_m *MockMetadataRepository) GetByStoryID(ctx context.Context, storyID string) (*model.StoryMetadata, error) {
	ret := _m.Called(ctx, storyID)

	var r0 *model.StoryMetadata
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*model.StoryMetadata)
	}
	return r0, ret.Error(1)
}

func (_m *MockMetadataRepository) SetCanonical(ctx context.Context, storyID string, canonical bool) (*model.StoryMetadata, error) {
	ret := _m.Called(ctx, storyID, canonical)

	var r0 *model.StoryMetadata
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*model.StoryMetadata)
	}
	return r0, ret.Error(1)
}

func (_m *MockMetadataRepository) MarkProcessing(ctx context.Context, storyID string) error {
	ret := _m.Called(ctx, storyID)
	return ret.Error(0)
}

func (_m *MockMetadataRepository) MarkFailed(ctx context.Context, storyID string) error {
	ret := _m.Called(ctx, storyID)
	return ret.Error(0)
}

var _ repository.MetadataRepository = (*MockMetadataRepository)(nil)

// MockVerificationRepository is a mock type for the VerificationRepository type
type MockVerificationRepository struct {
	mock.Mock
}

func (_m *MockVerificationRepository) CreatePending(ctx context.Context, storyID, workflowRunID string) (*model.VerificationLog, error) {
	ret := _m.Called(ctx, storyID, workflowRunID)

	var r0 *model.VerificationLog
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*model.VerificationLog)
	}
	return r0, ret.Error(1)
}

func (_m *MockVerificationRepository) HasPending(ctx context.Context, storyID string) (bool, error) {
	ret := _m.Called(ctx, storyID)
	return ret.Bool(0), ret.Error(1)
}

func (_m *MockVerificationRepository) CompletePending(ctx context.Context, storyID string) error {
	ret := _m.Called(ctx, storyID)
	return ret.Error(0)
}

func (_m *MockVerificationRepository) ExpireOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	ret := _m.Called(ctx, cutoff)
	return ret.Get(0).(int64), ret.Error(1)
}

func (_m *MockVerificationRepository) ListPending(ctx context.Context, limit int) ([]model.VerificationLog, error) {
	ret := _m.Called(ctx, limit)

	var r0 []model.VerificationLog
	if ret.Get(0) != nil {
		r0 = ret.Get(0).([]model.VerificationLog)
	}
	return r0, ret.Error(1)
}

func (_m *MockVerificationRepository) UpsertMetrics(ctx context.Context, metrics *model.VerifiedMetrics) error {
	ret := _m.Called(ctx, metrics)
	return ret.Error(0)
}

func (_m *MockVerificationRepository) GetMetrics(ctx context.Context, storyID string) (*model.VerifiedMetrics, error) {
	ret := _m.Called(ctx, storyID)

	var r0 *model.VerifiedMetrics
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*model.VerifiedMetrics)
	}
	return r0, ret.Error(1)
}

var _ repository.VerificationRepository = (*MockVerificationRepository)(nil)

// MockStoryRepository is a mock type for the StoryRepository type
type MockStoryRepository struct {
	mock.Mock
}

func (_m *MockStoryRepository) GetForVerification(ctx context.Context, storyID string) (*model.Story, error) {
	ret := _m.Called(ctx, storyID)

	var r0 *model.Story
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*model.Story)
	}
	return r0, ret.Error(1)
}

var _ repository.StoryRepository = (*MockStoryRepository)(nil)
