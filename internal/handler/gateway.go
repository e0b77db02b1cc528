package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"chat-escrow/internal/middleware"
	"chat-escrow/internal/models"
	"chat-escrow/internal/service"
)

// Decrypter is the admin decryption service.
type Decrypter interface {
	DecryptText(ctx context.Context, operator *models.Operator, id string) (*service.TextResult, error)
	DecryptMedia(ctx context.Context, operator *models.Operator, id string) (*service.MediaResult, error)
}

type GatewayHandler interface {
	DecryptText(c *gin.Context)
	DecryptMedia(c *gin.Context)
}

type gatewayHandler struct {
	decrypter Decrypter
	logger    *zap.Logger
}

func NewGatewayHandler(decrypter Decrypter, logger *zap.Logger) GatewayHandler {
	return &gatewayHandler{decrypter: decrypter, logger: logger}
}

// DecryptText handles POST /api/admin/decrypt-text
func (h *gatewayHandler) DecryptText(c *gin.Context) {
	id, err := bindMessageID(c)
	if err != nil {
		middleware.AbortWithError(c, h.logger, err)
		return
	}

	result, err := h.decrypter.DecryptText(c.Request.Context(), middleware.OperatorFrom(c), id)
	if err != nil {
		middleware.AbortWithError(c, h.logger, err)
		return
	}

	middleware.NoCache(c)
	c.JSON(http.StatusOK, result)
}

// DecryptMedia handles POST /api/admin/decrypt-media
func (h *gatewayHandler) DecryptMedia(c *gin.Context) {
	id, err := bindMessageID(c)
	if err != nil {
		middleware.AbortWithError(c, h.logger, err)
		return
	}

	result, err := h.decrypter.DecryptMedia(c.Request.Context(), middleware.OperatorFrom(c), id)
	if err != nil {
		middleware.AbortWithError(c, h.logger, err)
		return
	}

	middleware.NoCache(c)
	c.Data(http.StatusOK, result.ContentType, result.Data)
}
