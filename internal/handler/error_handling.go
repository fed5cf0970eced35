package handler

import (
	"errors"
	"net/http"

	"istory-server/internal/analysis"
	"istory-server/internal/oracle"
	"istory-server/internal/repository"

	"github.com/gin-gonic/gin"
)

func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"success": false, "error": message})
}

func respondErrorCode(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{"success": false, "code": code, "error": message})
}

// analysisErrorResponse maps analysis failures onto the error taxonomy
// the frontend branches on.
func analysisErrorResponse(c *gin.Context, err error) {
	var analysisErr *analysis.Error
	if errors.As(err, &analysisErr) {
		switch analysisErr.Kind {
		case analysis.KindUpstream:
			respondErrorCode(c, http.StatusInternalServerError, "upstream_failure", analysisErr.Message)
			return
		case analysis.KindInvalidResponse:
			respondErrorCode(c, http.StatusInternalServerError, "invalid_response", analysisErr.Message)
			return
		}
	}
	if errors.Is(err, repository.ErrSchemaMissing) {
		respondErrorCode(c, http.StatusInternalServerError, "migration_required", "metadata schema has not been migrated")
		return
	}
	respondErrorCode(c, http.StatusInternalServerError, "store_error", "failed to store analysis result")
}

// dispatchErrorResponse maps every dispatch rejection to its own
// status. Precondition order is decided in the dispatcher; this is
// only presentation.
func dispatchErrorResponse(c *gin.Context, err error) {
	switch {
	case errors.Is(err, oracle.ErrStoryNotFound):
		respondError(c, http.StatusNotFound, "story not found")
	case errors.Is(err, oracle.ErrEmptyContent):
		respondError(c, http.StatusBadRequest, "story has no content to verify")
	case errors.Is(err, oracle.ErrMissingIdentity):
		respondError(c, http.StatusForbidden, "story has no author wallet")
	case errors.Is(err, oracle.ErrAlreadyVerified):
		respondError(c, http.StatusConflict, "story is already verified")
	case errors.Is(err, oracle.ErrDispatchInProgress):
		respondError(c, http.StatusConflict, "verification already in progress")
	default:
		respondError(c, http.StatusInternalServerError, "failed to dispatch verification")
	}
}
