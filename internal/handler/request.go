package handler

import (
	"errors"
	"io"

	"github.com/gin-gonic/gin"

	"chat-escrow/internal/apperr"
)

type messageRequest struct {
	MessageID string `json:"messageId"`
}

// bindOptionalJSON decodes the body into obj; an empty body leaves obj unchanged.
func bindOptionalJSON(c *gin.Context, obj any) error {
	if err := c.ShouldBindJSON(obj); err != nil && !errors.Is(err, io.EOF) {
		return apperr.BadRequest("Invalid request body")
	}
	return nil
}

func bindMessageID(c *gin.Context) (string, error) {
	var req messageRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		return "", err
	}
	if req.MessageID == "" {
		return "", apperr.BadRequest("Missing messageId")
	}
	return req.MessageID, nil
}
