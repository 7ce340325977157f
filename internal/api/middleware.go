package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// cors allows any origin, matching the scale service itself.
func cors(c *gin.Context) {
	h := c.Writer.Header()
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Content-Type")

	if c.Request.Method == http.MethodOptions {
		c.AbortWithStatus(http.StatusNoContent)
		return
	}
	c.Next()
}

func (h *Handler) requestLogger(c *gin.Context) {
	start := time.Now()
	c.Next()

	h.logger.Debug().
		Str("method", c.Request.Method).
		Str("path", c.FullPath()).
		Int("status", c.Writer.Status()).
		Dur("elapsed", time.Since(start)).
		Msg("HTTP request")
}
