package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// analysisLog exposes the in-process analysis ring buffer. Per-instance
// data only; behind a load balancer each replica answers for itself.
func (h *Handler) analysisLog(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"stats":  h.ring.Stats(),
		"events": h.ring.Snapshot(),
	})
}
