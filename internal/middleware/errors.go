package middleware

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"chat-escrow/internal/apperr"
)

// NoCache marks a response as not cacheable.
func NoCache(c *gin.Context) {
	c.Header("Cache-Control", "no-store, no-cache, must-revalidate")
	c.Header("Pragma", "no-cache")
}

// AbortWithError logs err with its full detail and writes the caller-safe
// message. Server-side failures all share one generic body.
func AbortWithError(c *gin.Context, logger *zap.Logger, err error) {
	status := apperr.HTTPStatus(err)
	fields := []zap.Field{
		zap.String("request_id", RequestID(c)),
		zap.String("path", c.FullPath()),
		zap.Int("status", status),
		zap.String("kind", apperr.KindOf(err).String()),
		zap.Error(err),
	}
	if status >= 500 {
		logger.Error("Request failed", fields...)
	} else {
		logger.Info("Request rejected", fields...)
	}

	NoCache(c)
	c.AbortWithStatusJSON(status, gin.H{"error": apperr.PublicMessage(err)})
}
