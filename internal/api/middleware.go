package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"compliance-case-service/internal/logging"
)

func RequestLoggingMiddleware(logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method
		c.Next()
		latency := time.Since(start)
		status := c.Writer.Status()
		logger.Infof("Request: %s %s, Status: %d, Latency: %v", method, path, status, latency)
	}
}

// callerIdentity reads the authenticated identity the gateway forwards. A
// missing or malformed header yields the nil id; the dispatcher attributes
// such requests to the system identity.
func callerIdentity(c *gin.Context) (uuid.UUID, string) {
	var id uuid.UUID
	if raw := c.GetHeader("X-User-ID"); raw != "" {
		if parsed, err := uuid.Parse(raw); err == nil {
			id = parsed
		}
	}
	return id, c.GetHeader("X-User-Role")
}
