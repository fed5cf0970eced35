package oracle_test

import (
	"context"
	"testing"
	"time"

	"istory-server/internal/mocks"
	"istory-server/internal/oracle"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newReader(ledger *mocks.MockLedgerClient, verification *mocks.MockVerificationRepository) *oracle.Reader {
	return oracle.NewReader(ledger, verification, nil, time.Hour, zap.NewNop())
}

func TestRequestKey(t *testing.T) {
	key := oracle.RequestKey("story-42")
	assert.Len(t, key, 66) // "0x" + 64 hex chars
	assert.Equal(t, "0x", key[:2])
	// Deterministic: the same story maps to the same ledger slot.
	assert.Equal(t, key, oracle.RequestKey("story-42"))
	assert.NotEqual(t, key, oracle.RequestKey("story-43"))
}

func TestReader_CheckAndCache(t *testing.T) {
	t.Run("unrecorded story answers nil without error", func(t *testing.T) {
		ledger := &mocks.MockLedgerClient{}
		verification := &mocks.MockVerificationRepository{}
		ledger.On("GetVerification", mock.Anything, oracle.RequestKey(testStoryID)).
			Return(nil, oracle.ErrNotRecorded)

		metrics, err := newReader(ledger, verification).CheckAndCache(context.Background(), testStoryID)

		require.NoError(t, err)
		assert.Nil(t, metrics)
		verification.AssertNotCalled(t, "UpsertMetrics", mock.Anything, mock.Anything)
	})

	t.Run("ledger outage is distinct from not verified", func(t *testing.T) {
		ledger := &mocks.MockLedgerClient{}
		verification := &mocks.MockVerificationRepository{}
		ledger.On("GetVerification", mock.Anything, mock.Anything).
			Return(nil, oracle.ErrLedgerUnavailable)

		metrics, err := newReader(ledger, verification).CheckAndCache(context.Background(), testStoryID)

		assert.Nil(t, metrics)
		assert.ErrorIs(t, err, oracle.ErrLedgerUnavailable)
	})

	t.Run("recorded result is clamped, persisted and completes the log", func(t *testing.T) {
		ledger := &mocks.MockLedgerClient{}
		verification := &mocks.MockVerificationRepository{}
		ledger.On("GetVerification", mock.Anything, mock.Anything).Return(&oracle.LedgerRecord{
			SignificanceScore: 140,
			EmotionalDepth:    0,
			QualityScore:      87,
			WordCount:         -3,
			VerifiedThemes:    nil,
			AttestationID:     "att-9",
		}, nil)
		verification.On("UpsertMetrics", mock.Anything, mock.Anything).Return(nil)
		verification.On("CompletePending", mock.Anything, testStoryID).Return(nil)

		metrics, err := newReader(ledger, verification).CheckAndCache(context.Background(), testStoryID)

		require.NoError(t, err)
		require.NotNil(t, metrics)
		assert.Equal(t, 100, metrics.SignificanceScore)
		assert.Equal(t, 1, metrics.EmotionalDepth)
		assert.Equal(t, 87, metrics.QualityScore)
		assert.Equal(t, 0, metrics.WordCount)
		assert.NotNil(t, metrics.VerifiedThemes)
		assert.Equal(t, "att-9", metrics.CREAttestationID)
		verification.AssertExpectations(t)
	})

	t.Run("re-checking a verified story is idempotent", func(t *testing.T) {
		ledger := &mocks.MockLedgerClient{}
		verification := &mocks.MockVerificationRepository{}
		record := &oracle.LedgerRecord{SignificanceScore: 70, EmotionalDepth: 4, QualityScore: 80, WordCount: 250, AttestationID: "att-1"}
		ledger.On("GetVerification", mock.Anything, mock.Anything).Return(record, nil)
		verification.On("UpsertMetrics", mock.Anything, mock.Anything).Return(nil)
		verification.On("CompletePending", mock.Anything, testStoryID).Return(nil)

		reader := newReader(ledger, verification)
		first, err := reader.CheckAndCache(context.Background(), testStoryID)
		require.NoError(t, err)
		second, err := reader.CheckAndCache(context.Background(), testStoryID)
		require.NoError(t, err)

		assert.Equal(t, first.SignificanceScore, second.SignificanceScore)
		assert.Equal(t, first.CREAttestationID, second.CREAttestationID)
		verification.AssertNumberOfCalls(t, "UpsertMetrics", 2)
	})
}
