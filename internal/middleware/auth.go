package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"chat-escrow/internal/models"
)

const operatorKey = "operator"

// Authorizer resolves an Authorization header to a privileged operator.
type Authorizer interface {
	Authorize(ctx context.Context, authHeader string) (*models.Operator, error)
}

// AuthMiddleware creates a Gin middleware that admits only top-tier operators.
// It runs before any handler loads data, so denial never depends on whether
// the requested message exists.
func AuthMiddleware(gate Authorizer, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		operator, err := gate.Authorize(c.Request.Context(), c.GetHeader("Authorization"))
		if err != nil {
			AbortWithError(c, logger, err)
			return
		}

		c.Set(operatorKey, operator)
		c.Next()
	}
}

// OperatorFrom returns the operator stored by AuthMiddleware.
func OperatorFrom(c *gin.Context) *models.Operator {
	v, ok := c.Get(operatorKey)
	if !ok {
		return nil
	}
	op, _ := v.(*models.Operator)
	return op
}
