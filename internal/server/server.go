package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"chat-escrow/internal/handler"
	"chat-escrow/internal/middleware"
)

// Deps are the services behind the HTTP surface.
type Deps struct {
	Gate       middleware.Authorizer
	Decrypter  handler.Decrypter
	Classifier handler.Classifier
	Migrator   handler.Migrator
	Logger     *zap.Logger
}

type Server struct {
	router *gin.Engine
	deps   Deps
	logger *zap.Logger
}

func NewServer(deps Deps) *Server {
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger(deps.Logger))

	s := &Server{
		router: router,
		deps:   deps,
		logger: deps.Logger,
	}

	s.setupRoutes()

	return s
}

func (s *Server) setupRoutes() {
	gatewayHandler := handler.NewGatewayHandler(s.deps.Decrypter, s.logger)
	migrationHandler := handler.NewMigrationHandler(s.deps.Migrator, s.logger)
	moderationHandler := handler.NewModerationHandler(s.deps.Classifier, s.logger)

	// Ping route for health check
	s.router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "pong",
		})
	})

	// Operator routes, top-tier role only
	admin := s.router.Group("/api/admin")
	admin.Use(middleware.AuthMiddleware(s.deps.Gate, s.logger))
	{
		admin.POST("/decrypt-text", gatewayHandler.DecryptText)
		admin.POST("/decrypt-media", gatewayHandler.DecryptMedia)
		admin.POST("/migrate", migrationHandler.Migrate)
	}

	// Trusted internal jobs; not exposed through the public ingress
	internal := s.router.Group("/internal")
	internal.POST("/moderation/classify", moderationHandler.Classify)
}

// Handler exposes the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Server starting", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	s.logger.Info("Server stopped")
	return nil
}
