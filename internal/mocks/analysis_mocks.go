package mocks

import (
	"context"

	"istory-server/internal/analysis"

	"github.com/stretchr/testify/mock"
)

// MockLLMClient is a mock type for the analysis Client type
type MockLLMClient struct {
	mock.Mock
}

func (_m *MockLLMClient) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	ret := _m.Called(ctx, systemPrompt, userPrompt)
	return ret.String(0), ret.Error(1)
}

var _ analysis.Client = (*MockLLMClient)(nil)
