package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Health reports liveness and, when a store check is configured, database reachability.
func (h Handlers) Health(c *gin.Context) {
	if h.Ping == nil {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "store": h.StoreName})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := h.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "store": h.StoreName, "error": "database tidak dapat dihubungi"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "store": h.StoreName})
}
