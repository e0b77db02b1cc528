package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"chat-escrow/internal/apperr"
	"chat-escrow/internal/models"
)

type stubGate struct {
	op  *models.Operator
	err error
}

func (g stubGate) Authorize(context.Context, string) (*models.Operator, error) {
	return g.op, g.err
}

func newRouter(gate Authorizer) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestLogger(zap.NewNop()))
	r.GET("/secure", AuthMiddleware(gate, zap.NewNop()), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"operator": OperatorFrom(c).UserID})
	})
	r.GET("/boom", func(c *gin.Context) {
		AbortWithError(c, zap.NewNop(), apperr.Crypto("failed to unwrap", nil))
	})
	return r
}

func TestAuthMiddleware(t *testing.T) {
	tests := []struct {
		name   string
		gate   stubGate
		status int
		body   string
	}{
		{"unauthenticated", stubGate{err: apperr.Authentication("Invalid token")}, http.StatusUnauthorized, "Invalid token"},
		{"forbidden", stubGate{err: apperr.Authorization("Forbidden")}, http.StatusForbidden, "Forbidden"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			newRouter(tt.gate).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/secure", nil))

			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, "no-cache", w.Header().Get("Pragma"))
			var body map[string]string
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.body, body["error"])
		})
	}

	w := httptest.NewRecorder()
	newRouter(stubGate{op: &models.Operator{UserID: "root"}}).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/secure", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"operator":"root"}`, w.Body.String())
}

func TestAbortWithErrorHidesServerDetail(t *testing.T) {
	w := httptest.NewRecorder()
	newRouter(stubGate{}).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"Internal server error"}`, w.Body.String())
	assert.Contains(t, w.Header().Get("Cache-Control"), "no-store")
}

func TestRequestIDEchoed(t *testing.T) {
	r := newRouter(stubGate{op: &models.Operator{UserID: "root"}})

	req := httptest.NewRequest(http.MethodGet, "/secure", nil)
	req.Header.Set("X-Request-ID", "req-1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "req-1", w.Header().Get("X-Request-ID"))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/secure", nil))
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}
