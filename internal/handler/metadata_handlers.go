package handler

import (
	"errors"
	"net/http"

	"istory-server/internal/repository"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// getMetadata returns the stored metadata for a story, or null when
// none exists yet. A missing schema degrades to null rather than an
// error so pre-migration deployments stay readable.
func (h *Handler) getMetadata(c *gin.Context) {
	storyID := c.Param("id")

	metadata, err := h.metadata.GetByStoryID(c.Request.Context(), storyID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			c.JSON(http.StatusOK, gin.H{"metadata": nil})
		case errors.Is(err, repository.ErrSchemaMissing):
			h.logger.Warn("Metadata schema missing, returning null metadata",
				zap.String("storyID", storyID))
			c.JSON(http.StatusOK, gin.H{"metadata": nil})
		default:
			respondError(c, http.StatusInternalServerError, "failed to load metadata")
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"metadata": metadata})
}

type patchMetadataRequest struct {
	IsCanonical *bool `json:"is_canonical"`
}

// patchMetadata lets the story's author toggle the canonical flag.
// Requires a wallet session; only the author may change it.
func (h *Handler) patchMetadata(c *gin.Context) {
	storyID := c.Param("id")

	var req patchMetadataRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.IsCanonical == nil {
		respondError(c, http.StatusBadRequest, "is_canonical is required")
		return
	}

	story, err := h.stories.GetForVerification(c.Request.Context(), storyID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			respondError(c, http.StatusNotFound, "story not found")
			return
		}
		respondError(c, http.StatusInternalServerError, "failed to load story")
		return
	}
	if story.AuthorWallet == "" || story.AuthorWallet != walletFromContext(c) {
		respondError(c, http.StatusForbidden, "only the story author may change canonical status")
		return
	}

	metadata, err := h.metadata.SetCanonical(c.Request.Context(), storyID, *req.IsCanonical)
	if err != nil {
		if errors.Is(err, repository.ErrSchemaMissing) {
			respondErrorCode(c, http.StatusInternalServerError, "migration_required", "metadata schema has not been migrated")
			return
		}
		respondError(c, http.StatusInternalServerError, "failed to update metadata")
		return
	}
	c.JSON(http.StatusOK, gin.H{"metadata": metadata})
}
