package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type analysisRequest struct {
	StoryID   string `json:"storyId"`
	StoryText string `json:"storyText"`
}

// runAnalysis executes the synchronous LLM analysis for a story and
// returns the stored metadata.
func (h *Handler) runAnalysis(c *gin.Context) {
	var req analysisRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.StoryID) == "" || strings.TrimSpace(req.StoryText) == "" {
		respondError(c, http.StatusBadRequest, "storyId and storyText are required")
		return
	}

	metadata, err := h.analysis.Analyze(c.Request.Context(), req.StoryID, req.StoryText)
	if err != nil {
		// A story analyzed before keeps its row but flips to failed;
		// a first-ever failure leaves nothing behind.
		if markErr := h.metadata.MarkFailed(c.Request.Context(), req.StoryID); markErr != nil {
			h.logger.Warn("Failed to mark analysis as failed",
				zap.String("storyID", req.StoryID), zap.Error(markErr))
		}
		analysisErrorResponse(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"metadata": metadata,
		"insight":  metadata.BriefInsight,
	})
}
