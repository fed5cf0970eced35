package analysis_test

import (
	"context"
	"errors"
	"testing"

	"istory-server/internal/analysis"
	"istory-server/internal/mocks"
	"istory-server/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testStoryID = "story-abc"

func TestService_Analyze(t *testing.T) {
	t.Run("fenced response with out-of-range score is clamped and stored", func(t *testing.T) {
		mockClient := &mocks.MockLLMClient{}
		mockStore := &mocks.MockMetadataRepository{}

		raw := "```json\n{\"themes\": [\"Loss\", \"FAMILY\"], \"emotional_tone\": \"reflective\", " +
			"\"life_domain\": \"relationships\", \"intensity_score\": 1.5, \"significance_score\": 0.8}\n```"
		mockClient.On("Complete", mock.Anything, mock.Anything, mock.Anything).Return(raw, nil)
		mockStore.On("MarkProcessing", mock.Anything, testStoryID).Return(nil)

		var captured model.SanitizedMetadata
		mockStore.On("Upsert", mock.Anything, testStoryID, mock.AnythingOfType("model.SanitizedMetadata")).
			Run(func(args mock.Arguments) {
				captured = args.Get(2).(model.SanitizedMetadata)
			}).
			Return(&model.StoryMetadata{StoryID: testStoryID, AnalysisStatus: model.AnalysisCompleted}, nil)

		svc := analysis.NewService(mockClient, mockStore, nil, 0)
		stored, err := svc.Analyze(context.Background(), testStoryID, "today I wrote about my family")

		require.NoError(t, err)
		require.NotNil(t, stored)
		assert.Equal(t, []string{"loss", "family"}, captured.Themes)
		assert.Equal(t, model.ToneReflective, captured.EmotionalTone)
		assert.Equal(t, 1.0, captured.IntensityScore)
		assert.Equal(t, 0.8, captured.SignificanceScore)
		mockStore.AssertExpectations(t)
	})

	t.Run("model failure reports upstream kind and writes nothing", func(t *testing.T) {
		mockClient := &mocks.MockLLMClient{}
		mockStore := &mocks.MockMetadataRepository{}
		mockClient.On("Complete", mock.Anything, mock.Anything, mock.Anything).
			Return("", errors.New("connection refused"))
		mockStore.On("MarkProcessing", mock.Anything, testStoryID).Return(nil)

		svc := analysis.NewService(mockClient, mockStore, nil, 0)
		stored, err := svc.Analyze(context.Background(), testStoryID, "some text")

		require.Error(t, err)
		assert.Nil(t, stored)
		var analysisErr *analysis.Error
		require.ErrorAs(t, err, &analysisErr)
		assert.Equal(t, analysis.KindUpstream, analysisErr.Kind)
		mockStore.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("prose response reports invalid kind and writes nothing", func(t *testing.T) {
		mockClient := &mocks.MockLLMClient{}
		mockStore := &mocks.MockMetadataRepository{}
		mockClient.On("Complete", mock.Anything, mock.Anything, mock.Anything).
			Return("I cannot analyze this story, sorry.", nil)
		mockStore.On("MarkProcessing", mock.Anything, testStoryID).Return(nil)

		svc := analysis.NewService(mockClient, mockStore, nil, 0)
		_, err := svc.Analyze(context.Background(), testStoryID, "some text")

		var analysisErr *analysis.Error
		require.ErrorAs(t, err, &analysisErr)
		assert.Equal(t, analysis.KindInvalidResponse, analysisErr.Kind)
		mockStore.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("wrong shaped but valid JSON falls back to defaults", func(t *testing.T) {
		mockClient := &mocks.MockLLMClient{}
		mockStore := &mocks.MockMetadataRepository{}
		mockClient.On("Complete", mock.Anything, mock.Anything, mock.Anything).
			Return(`{"unexpected": "shape"}`, nil)
		mockStore.On("MarkProcessing", mock.Anything, testStoryID).Return(nil)

		var captured model.SanitizedMetadata
		mockStore.On("Upsert", mock.Anything, testStoryID, mock.AnythingOfType("model.SanitizedMetadata")).
			Run(func(args mock.Arguments) {
				captured = args.Get(2).(model.SanitizedMetadata)
			}).
			Return(&model.StoryMetadata{StoryID: testStoryID}, nil)

		svc := analysis.NewService(mockClient, mockStore, nil, 0)
		_, err := svc.Analyze(context.Background(), testStoryID, "text")

		require.NoError(t, err)
		assert.Equal(t, model.ToneNeutral, captured.EmotionalTone)
		assert.Equal(t, model.DomainGeneral, captured.LifeDomain)
		assert.Equal(t, 0.5, captured.IntensityScore)
		assert.Empty(t, captured.Themes)
	})

	t.Run("store failure is returned as-is", func(t *testing.T) {
		mockClient := &mocks.MockLLMClient{}
		mockStore := &mocks.MockMetadataRepository{}
		mockClient.On("Complete", mock.Anything, mock.Anything, mock.Anything).
			Return(`{"themes": []}`, nil)
		storeErr := errors.New("connection reset")
		mockStore.On("MarkProcessing", mock.Anything, testStoryID).Return(nil)
		mockStore.On("Upsert", mock.Anything, testStoryID, mock.Anything).Return(nil, storeErr)

		svc := analysis.NewService(mockClient, mockStore, nil, 0)
		_, err := svc.Analyze(context.Background(), testStoryID, "text")

		assert.ErrorIs(t, err, storeErr)
	})

	t.Run("row is marked processing before the model is called", func(t *testing.T) {
		mockClient := &mocks.MockLLMClient{}
		mockStore := &mocks.MockMetadataRepository{}

		var events []string
		mockStore.On("MarkProcessing", mock.Anything, testStoryID).
			Run(func(mock.Arguments) { events = append(events, "processing") }).
			Return(nil)
		mockClient.On("Complete", mock.Anything, mock.Anything, mock.Anything).
			Run(func(mock.Arguments) { events = append(events, "complete") }).
			Return(`{"themes": []}`, nil)
		mockStore.On("Upsert", mock.Anything, testStoryID, mock.Anything).
			Run(func(mock.Arguments) { events = append(events, "upsert") }).
			Return(&model.StoryMetadata{StoryID: testStoryID, AnalysisStatus: model.AnalysisCompleted}, nil)

		svc := analysis.NewService(mockClient, mockStore, nil, 0)
		_, err := svc.Analyze(context.Background(), testStoryID, "text")

		require.NoError(t, err)
		assert.Equal(t, []string{"processing", "complete", "upsert"}, events)
	})

	t.Run("processing marker failure does not abort the analysis", func(t *testing.T) {
		mockClient := &mocks.MockLLMClient{}
		mockStore := &mocks.MockMetadataRepository{}

		mockStore.On("MarkProcessing", mock.Anything, testStoryID).
			Return(errors.New("deadlock detected"))
		mockClient.On("Complete", mock.Anything, mock.Anything, mock.Anything).
			Return(`{"themes": []}`, nil)
		mockStore.On("Upsert", mock.Anything, testStoryID, mock.Anything).
			Return(&model.StoryMetadata{StoryID: testStoryID}, nil)

		svc := analysis.NewService(mockClient, mockStore, nil, 0)
		stored, err := svc.Analyze(context.Background(), testStoryID, "text")

		require.NoError(t, err)
		assert.NotNil(t, stored)
	})
}
