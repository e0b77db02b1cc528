package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"chat-escrow/internal/middleware"
	"chat-escrow/internal/moderation"
)

// Classifier is the moderation pipeline.
type Classifier interface {
	Classify(ctx context.Context, id string) (*moderation.Result, error)
}

type ModerationHandler interface {
	Classify(c *gin.Context)
}

type moderationHandler struct {
	classifier Classifier
	logger     *zap.Logger
}

func NewModerationHandler(classifier Classifier, logger *zap.Logger) ModerationHandler {
	return &moderationHandler{classifier: classifier, logger: logger}
}

// Classify handles POST /internal/moderation/classify
func (h *moderationHandler) Classify(c *gin.Context) {
	id, err := bindMessageID(c)
	if err != nil {
		middleware.AbortWithError(c, h.logger, err)
		return
	}

	result, err := h.classifier.Classify(c.Request.Context(), id)
	if err != nil {
		middleware.AbortWithError(c, h.logger, err)
		return
	}

	if result.Skipped {
		c.JSON(http.StatusOK, gin.H{"status": result.Outcome.Status, "skipped": true})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "classification": result.Outcome})
}
