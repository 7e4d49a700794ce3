package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"sharetok/pkg/logger"
)

// CORS allows GETs from origin and lets browsers send the session header
func CORS(origin, sessionHeader string) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", origin)
		if origin != "*" {
			h.Set("Vary", "Origin")
		}
		h.Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, Accept, Origin, "+sessionHeader)
		h.Set("Access-Control-Expose-Headers", sessionHeader)
		h.Set("Access-Control-Max-Age", "600")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// RequestLogger logs every request once it has been served
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.LogRequest(
			c.Request.Method,
			c.Request.URL.Path,
			c.Writer.Status(),
			float64(time.Since(start).Microseconds())/1000,
		)
	}
}

// Recovery turns a panicking handler into a generic 500
func Recovery(log logger.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		log.ErrorWithFields("Handler panicked", map[string]interface{}{
			"path":  c.Request.URL.Path,
			"panic": recovered,
		})
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "content unavailable"})
	})
}
