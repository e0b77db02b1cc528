package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"chat-escrow/internal/middleware"
	"chat-escrow/internal/migration"
)

// Migrator runs one migration batch.
type Migrator interface {
	Run(ctx context.Context, opts migration.Options) (*migration.Report, error)
}

type MigrationHandler interface {
	Migrate(c *gin.Context)
}

type migrationHandler struct {
	migrator Migrator
	logger   *zap.Logger
}

func NewMigrationHandler(migrator Migrator, logger *zap.Logger) MigrationHandler {
	return &migrationHandler{migrator: migrator, logger: logger}
}

type migrateRequest struct {
	DryRun    bool `json:"dryRun"`
	BatchSize int  `json:"batchSize"`
}

type migrateResponse struct {
	Success     bool                  `json:"success"`
	DryRun      bool                  `json:"dryRun"`
	Interrupted bool                  `json:"interrupted,omitempty"`
	Stats       migration.Stats       `json:"stats"`
	Errors      []migration.ItemError `json:"errors,omitempty"`
	Message     string                `json:"message"`
}

// Migrate handles POST /api/admin/migrate. Per-message failures and an
// interrupted batch are part of a successful response.
func (h *migrationHandler) Migrate(c *gin.Context) {
	var req migrateRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		middleware.AbortWithError(c, h.logger, err)
		return
	}

	operator := middleware.OperatorFrom(c)
	if operator != nil {
		h.logger.Info("Migration requested",
			zap.String("operator_id", operator.UserID),
			zap.Bool("dry_run", req.DryRun),
			zap.Int("batch_size", req.BatchSize))
	}

	report, err := h.migrator.Run(c.Request.Context(), migration.Options{DryRun: req.DryRun, BatchSize: req.BatchSize})
	if err != nil {
		middleware.AbortWithError(c, h.logger, err)
		return
	}

	middleware.NoCache(c)
	c.JSON(http.StatusOK, migrateResponse{
		Success:     true,
		DryRun:      report.DryRun,
		Interrupted: report.Interrupted,
		Stats:       report.Stats,
		Errors:      report.Errors,
		Message:     report.Message,
	})
}
