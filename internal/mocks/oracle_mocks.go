package mocks

import (
	"context"

	"istory-server/internal/model"
	"istory-server/internal/oracle"

	"github.com/stretchr/testify/mock"
)

// MockLedgerClient is a mock type for the LedgerClient type
type MockLedgerClient struct {
	mock.Mock
}

func (_m *MockLedgerClient) GetVerification(ctx context.Context, requestKey string) (*oracle.LedgerRecord, error) {
	ret := _m.Called(ctx, requestKey)

	var r0 *oracle.LedgerRecord
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*oracle.LedgerRecord)
	}
	return r0, ret.Error(1)
}

func (_m *MockLedgerClient) SubmitJob(ctx context.Context, payload model.VerificationJobPayload) error {
	ret := _m.Called(ctx, payload)
	return ret.Error(0)
}

var _ oracle.LedgerClient = (*MockLedgerClient)(nil)

// MockJobPublisher is a mock type for the JobPublisher type
type MockJobPublisher struct {
	mock.Mock
}

func (_m *MockJobPublisher) PublishVerificationJob(ctx context.Context, payload model.VerificationJobPayload) error {
	ret := _m.Called(ctx, payload)
	return ret.Error(0)
}

var _ oracle.JobPublisher = (*MockJobPublisher)(nil)

// MockChecker is a mock type for the verification check surface
// (oracle.Reader shaped).
type MockChecker struct {
	mock.Mock
}

func (_m *MockChecker) CheckAndCache(ctx context.Context, storyID string) (*model.VerifiedMetrics, error) {
	ret := _m.Called(ctx, storyID)

	var r0 *model.VerifiedMetrics
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*model.VerifiedMetrics)
	}
	return r0, ret.Error(1)
}
