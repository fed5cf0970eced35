package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"istory-server/internal/analysis"
	"istory-server/internal/handler"
	"istory-server/internal/mocks"
	"istory-server/internal/model"
	"istory-server/internal/obs"
	"istory-server/internal/oracle"
	"istory-server/internal/repository"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	testSecret = "test-secret-key"
	testWallet = "0xabc123"
)

type testEnv struct {
	router       *gin.Engine
	analysisStub *stubAnalysisService
	metadata     *mocks.MockMetadataRepository
	stories      *mocks.MockStoryRepository
	verification *mocks.MockVerificationRepository
	publisher    *mocks.MockJobPublisher
	checker      *mocks.MockChecker
	ring         *obs.RingLog
}

func setupEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	env := &testEnv{
		analysisStub: &stubAnalysisService{},
		metadata:     &mocks.MockMetadataRepository{},
		stories:      &mocks.MockStoryRepository{},
		verification: &mocks.MockVerificationRepository{},
		publisher:    &mocks.MockJobPublisher{},
		checker:      &mocks.MockChecker{},
		ring:         obs.NewRingLog(16),
	}

	logger := zap.NewNop()
	verifier, err := handler.NewJWTVerifier(testSecret, logger)
	require.NoError(t, err)

	dispatcher := oracle.NewDispatcher(env.stories, env.verification, env.publisher, logger)

	h := handler.NewHandler(env.analysisStub, env.metadata, env.stories, dispatcher, env.checker, env.ring, verifier, logger)
	env.router = gin.New()
	h.RegisterRoutes(env.router)
	return env
}

// stubAnalysisService scripts the analysis outcome without real
// prompting.
type stubAnalysisService struct {
	metadata *model.StoryMetadata
	err      error
}

func (s *stubAnalysisService) Analyze(ctx context.Context, storyID, storyText string) (*model.StoryMetadata, error) {
	return s.metadata, s.err
}

func signToken(t *testing.T, wallet string) string {
	t.Helper()
	claims := model.Claims{
		Wallet: wallet,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return token
}

func doJSON(router *gin.Engine, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestAnalysisEndpoint(t *testing.T) {
	t.Run("success returns metadata and insight", func(t *testing.T) {
		env := setupEnv(t)
		insight := "A quiet milestone."
		env.analysisStub.metadata = &model.StoryMetadata{
			StoryID:        "s1",
			EmotionalTone:  model.ToneReflective,
			BriefInsight:   &insight,
			AnalysisStatus: model.AnalysisCompleted,
		}

		rec := doJSON(env.router, http.MethodPost, "/api/analysis",
			gin.H{"storyId": "s1", "storyText": "today was strange"}, nil)

		assert.Equal(t, http.StatusOK, rec.Code)
		var resp map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, true, resp["success"])
		assert.Equal(t, insight, resp["insight"])
		assert.NotNil(t, resp["metadata"])
	})

	t.Run("missing fields", func(t *testing.T) {
		env := setupEnv(t)
		rec := doJSON(env.router, http.MethodPost, "/api/analysis", gin.H{"storyId": "s1"}, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("invalid model response marks row failed and maps code", func(t *testing.T) {
		env := setupEnv(t)
		env.analysisStub.err = analysisInvalidErr()
		env.metadata.On("MarkFailed", mock.Anything, "s1").Return(nil)

		rec := doJSON(env.router, http.MethodPost, "/api/analysis",
			gin.H{"storyId": "s1", "storyText": "text"}, nil)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		var resp map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "invalid_response", resp["code"])
		env.metadata.AssertCalled(t, "MarkFailed", mock.Anything, "s1")
	})

	t.Run("schema missing maps to migration_required", func(t *testing.T) {
		env := setupEnv(t)
		env.analysisStub.err = repository.ErrSchemaMissing
		env.metadata.On("MarkFailed", mock.Anything, "s1").Return(repository.ErrSchemaMissing)

		rec := doJSON(env.router, http.MethodPost, "/api/analysis",
			gin.H{"storyId": "s1", "storyText": "text"}, nil)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		var resp map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "migration_required", resp["code"])
	})
}

// analysisInvalidErr builds a real invalid-response error through the
// public extraction path.
func analysisInvalidErr() error {
	_, err := analysis.ExtractJSON("not json at all")
	return err
}

func TestDispatchEndpoint(t *testing.T) {
	t.Run("accepted dispatch returns workflow run id", func(t *testing.T) {
		env := setupEnv(t)
		env.stories.On("GetForVerification", mock.Anything, "s1").
			Return(&model.Story{ID: "s1", AuthorWallet: testWallet, Content: "text"}, nil)
		env.verification.On("GetMetrics", mock.Anything, "s1").Return(nil, repository.ErrNotFound)
		env.verification.On("CreatePending", mock.Anything, "s1", mock.Anything).
			Return(&model.VerificationLog{StoryID: "s1", WorkflowRunID: "run-7", Status: model.VerificationPending}, nil)
		env.publisher.On("PublishVerificationJob", mock.Anything, mock.Anything).Return(nil)

		rec := doJSON(env.router, http.MethodPost, "/api/verification/dispatch", gin.H{"storyId": "s1"}, nil)

		assert.Equal(t, http.StatusAccepted, rec.Code)
		var resp map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, true, resp["success"])
		assert.Equal(t, "run-7", resp["workflowRunId"])
	})

	t.Run("rejection statuses", func(t *testing.T) {
		cases := []struct {
			name       string
			story      *model.Story
			storyErr   error
			metrics    *model.VerifiedMetrics
			createErr  error
			wantStatus int
		}{
			{"story not found", nil, repository.ErrNotFound, nil, nil, http.StatusNotFound},
			{"empty content", &model.Story{ID: "s1", AuthorWallet: testWallet, Content: " "}, nil, nil, nil, http.StatusBadRequest},
			{"missing identity", &model.Story{ID: "s1", Content: "text"}, nil, nil, nil, http.StatusForbidden},
			{"already verified", &model.Story{ID: "s1", AuthorWallet: testWallet, Content: "text"}, nil, &model.VerifiedMetrics{StoryID: "s1"}, nil, http.StatusConflict},
			{"dispatch in progress", &model.Story{ID: "s1", AuthorWallet: testWallet, Content: "text"}, nil, nil, repository.ErrDispatchPending, http.StatusConflict},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				env := setupEnv(t)
				env.stories.On("GetForVerification", mock.Anything, "s1").Return(tc.story, tc.storyErr)
				if tc.metrics != nil {
					env.verification.On("GetMetrics", mock.Anything, "s1").Return(tc.metrics, nil)
				} else {
					env.verification.On("GetMetrics", mock.Anything, "s1").Return(nil, repository.ErrNotFound)
				}
				if tc.createErr != nil {
					env.verification.On("CreatePending", mock.Anything, "s1", mock.Anything).Return(nil, tc.createErr)
				}

				rec := doJSON(env.router, http.MethodPost, "/api/verification/dispatch", gin.H{"storyId": "s1"}, nil)
				assert.Equal(t, tc.wantStatus, rec.Code)
			})
		}
	})

	t.Run("missing storyId", func(t *testing.T) {
		env := setupEnv(t)
		rec := doJSON(env.router, http.MethodPost, "/api/verification/dispatch", gin.H{}, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestCheckEndpoint(t *testing.T) {
	t.Run("not verified yet", func(t *testing.T) {
		env := setupEnv(t)
		env.checker.On("CheckAndCache", mock.Anything, "s1").Return(nil, nil)

		rec := doJSON(env.router, http.MethodPost, "/api/verification/check", gin.H{"storyId": "s1"}, nil)

		assert.Equal(t, http.StatusOK, rec.Code)
		var resp map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, false, resp["verified"])
		_, hasMetrics := resp["metrics"]
		assert.False(t, hasMetrics)
	})

	t.Run("verified returns metrics", func(t *testing.T) {
		env := setupEnv(t)
		env.checker.On("CheckAndCache", mock.Anything, "s1").
			Return(&model.VerifiedMetrics{StoryID: "s1", SignificanceScore: 80, EmotionalDepth: 4}, nil)

		rec := doJSON(env.router, http.MethodPost, "/api/verification/check", gin.H{"storyId": "s1"}, nil)

		assert.Equal(t, http.StatusOK, rec.Code)
		var resp map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, true, resp["verified"])
		assert.NotNil(t, resp["metrics"])
	})

	t.Run("ledger outage maps to 502", func(t *testing.T) {
		env := setupEnv(t)
		env.checker.On("CheckAndCache", mock.Anything, "s1").Return(nil, oracle.ErrLedgerUnavailable)

		rec := doJSON(env.router, http.MethodPost, "/api/verification/check", gin.H{"storyId": "s1"}, nil)
		assert.Equal(t, http.StatusBadGateway, rec.Code)
	})
}

func TestMetadataEndpoints(t *testing.T) {
	t.Run("get returns null when schema missing", func(t *testing.T) {
		env := setupEnv(t)
		env.metadata.On("GetByStoryID", mock.Anything, "s1").Return(nil, repository.ErrSchemaMissing)

		rec := doJSON(env.router, http.MethodGet, "/api/stories/s1/metadata", nil, nil)

		assert.Equal(t, http.StatusOK, rec.Code)
		var resp map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Nil(t, resp["metadata"])
	})

	t.Run("patch requires a token", func(t *testing.T) {
		env := setupEnv(t)
		rec := doJSON(env.router, http.MethodPatch, "/api/stories/s1/metadata", gin.H{"is_canonical": true}, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("patch rejects non-author", func(t *testing.T) {
		env := setupEnv(t)
		env.stories.On("GetForVerification", mock.Anything, "s1").
			Return(&model.Story{ID: "s1", AuthorWallet: "0xother", Content: "x"}, nil)

		rec := doJSON(env.router, http.MethodPatch, "/api/stories/s1/metadata",
			gin.H{"is_canonical": true},
			map[string]string{"Authorization": "Bearer " + signToken(t, testWallet)})
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("author toggles canonical", func(t *testing.T) {
		env := setupEnv(t)
		env.stories.On("GetForVerification", mock.Anything, "s1").
			Return(&model.Story{ID: "s1", AuthorWallet: testWallet, Content: "x"}, nil)
		env.metadata.On("SetCanonical", mock.Anything, "s1", true).
			Return(&model.StoryMetadata{StoryID: "s1", IsCanonical: true}, nil)

		rec := doJSON(env.router, http.MethodPatch, "/api/stories/s1/metadata",
			gin.H{"is_canonical": true},
			map[string]string{"Authorization": "Bearer " + signToken(t, testWallet)})

		assert.Equal(t, http.StatusOK, rec.Code)
		env.metadata.AssertExpectations(t)
	})

	t.Run("patch missing story is 404", func(t *testing.T) {
		env := setupEnv(t)
		env.stories.On("GetForVerification", mock.Anything, "s1").Return(nil, repository.ErrNotFound)

		rec := doJSON(env.router, http.MethodPatch, "/api/stories/s1/metadata",
			gin.H{"is_canonical": false},
			map[string]string{"Authorization": "Bearer " + signToken(t, testWallet)})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestAdminAnalysisLog(t *testing.T) {
	env := setupEnv(t)
	env.ring.RecordAnalysis("s1", "completed", 42*time.Millisecond, "")

	rec := doJSON(env.router, http.MethodGet, "/api/admin/analysis-log", nil, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Stats  obs.Stats   `json:"stats"`
		Events []obs.Event `json:"events"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Stats.Total)
	require.Len(t, resp.Events, 1)
	assert.Equal(t, "s1", resp.Events[0].StoryID)
}
