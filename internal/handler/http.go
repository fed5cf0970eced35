// Package handler is the HTTP boundary of the verification pipeline:
// analysis, metadata, dispatch and check endpoints plus admin
// observability.
package handler

import (
	"context"
	"net/http"

	"istory-server/internal/model"
	"istory-server/internal/obs"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	ginprometheus "github.com/zsais/go-gin-prometheus"
	"go.uber.org/zap"
)

// AnalysisService runs the LLM analysis for one story.
type AnalysisService interface {
	Analyze(ctx context.Context, storyID, storyText string) (*model.StoryMetadata, error)
}

// MetadataService is the stored-metadata surface the handlers need.
type MetadataService interface {
	GetByStoryID(ctx context.Context, storyID string) (*model.StoryMetadata, error)
	SetCanonical(ctx context.Context, storyID string, canonical bool) (*model.StoryMetadata, error)
	MarkFailed(ctx context.Context, storyID string) error
}

// VerificationDispatcher starts a verification run.
type VerificationDispatcher interface {
	Dispatch(ctx context.Context, storyID string) (*model.VerificationLog, error)
}

// VerificationChecker answers whether a story is verified.
type VerificationChecker interface {
	CheckAndCache(ctx context.Context, storyID string) (*model.VerifiedMetrics, error)
}

// StoryReader loads stories for the author ownership check.
type StoryReader interface {
	GetForVerification(ctx context.Context, storyID string) (*model.Story, error)
}

// Handler wires the pipeline services to gin routes.
type Handler struct {
	analysis   AnalysisService
	metadata   MetadataService
	stories    StoryReader
	dispatcher VerificationDispatcher
	checker    VerificationChecker
	ring       *obs.RingLog
	verifier   *JWTVerifier
	logger     *zap.Logger
}

func NewHandler(
	analysis AnalysisService,
	metadata MetadataService,
	stories StoryReader,
	dispatcher VerificationDispatcher,
	checker VerificationChecker,
	ring *obs.RingLog,
	verifier *JWTVerifier,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		analysis:   analysis,
		metadata:   metadata,
		stories:    stories,
		dispatcher: dispatcher,
		checker:    checker,
		ring:       ring,
		verifier:   verifier,
		logger:     logger.Named("Handler"),
	}
}

// NewRouter builds the gin engine with the full middleware chain.
func (h *Handler) NewRouter(corsOrigins []string) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestID())
	router.Use(RequestLogger(h.logger))

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = corsOrigins
	corsConfig.AllowHeaders = append(corsConfig.AllowHeaders, "Authorization", "X-Request-ID")
	router.Use(cors.New(corsConfig))

	prom := ginprometheus.NewPrometheus("istory")
	prom.Use(router)

	h.RegisterRoutes(router)
	return router
}

// RegisterRoutes attaches the API routes to the engine.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.GET("/healthz", h.healthz)

	api := router.Group("/api")
	{
		api.POST("/analysis", h.runAnalysis)
		api.GET("/stories/:id/metadata", h.getMetadata)
		api.PATCH("/stories/:id/metadata", WalletAuth(h.verifier), h.patchMetadata)

		api.POST("/verification/dispatch", h.dispatchVerification)
		api.POST("/verification/check", h.checkVerification)

		api.GET("/admin/analysis-log", h.analysisLog)
	}
}

func (h *Handler) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
