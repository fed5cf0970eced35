package handler

import (
	"errors"
	"net/http"
	"strings"

	"istory-server/internal/oracle"

	"github.com/gin-gonic/gin"
)

type dispatchRequest struct {
	StoryID string `json:"storyId"`
}

// dispatchVerification starts an on-chain verification run for a
// story. 202: the run is recorded and the client should poll.
func (h *Handler) dispatchVerification(c *gin.Context) {
	var req dispatchRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.StoryID) == "" {
		respondError(c, http.StatusBadRequest, "storyId is required")
		return
	}

	logEntry, err := h.dispatcher.Dispatch(c.Request.Context(), req.StoryID)
	if err != nil {
		dispatchErrorResponse(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"success":       true,
		"workflowRunId": logEntry.WorkflowRunID,
	})
}

type checkRequest struct {
	StoryID string `json:"storyId"`
}

// checkVerification reports whether a story's verification has landed
// on the ledger. "Not verified yet" is a successful answer; only a
// ledger outage is an error, so clients know to keep polling.
func (h *Handler) checkVerification(c *gin.Context) {
	var req checkRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.StoryID) == "" {
		respondError(c, http.StatusBadRequest, "storyId is required")
		return
	}

	metrics, err := h.checker.CheckAndCache(c.Request.Context(), req.StoryID)
	if err != nil {
		if errors.Is(err, oracle.ErrLedgerUnavailable) {
			respondError(c, http.StatusBadGateway, "verification ledger unavailable")
			return
		}
		respondError(c, http.StatusInternalServerError, "failed to check verification")
		return
	}
	if metrics == nil {
		c.JSON(http.StatusOK, gin.H{"verified": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"verified": true, "metrics": metrics})
}
