package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"chat-escrow/internal/message_processor"
	"chat-escrow/internal/migration"
	"chat-escrow/internal/models"
	"chat-escrow/internal/moderation"
	"chat-escrow/internal/repository"
	"chat-escrow/internal/server"
	"chat-escrow/internal/service"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the admin gateway and the moderation sweep",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			defer func() {
				_ = logger.Sync()
			}()
			gin.SetMode(cfg.Server.GinMode)

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			db, err := openDatabase(cfg, logger)
			if err != nil {
				return err
			}
			defer db.Close()

			keys, err := loadKeys(cfg, logger)
			if err != nil {
				return err
			}

			store, closeStore, err := openStore(cfg, logger)
			if err != nil {
				return err
			}
			defer closeStore()

			reviewer, closeReviewer, err := newReviewer(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer closeReviewer()

			messageRepo := repository.NewMessageRepository(db, logger)
			adminRepo := repository.NewAdminRepository(db, logger)

			classifier := moderation.NewClassifier(moderation.ClassifierDeps{
				Messages:    messageRepo,
				Store:       store,
				Keys:        keys,
				Bucket:      cfg.Storage.Bucket,
				Heuristics:  moderation.NewHeuristics(cfg.Moderation.Heuristics),
				Reviewer:    reviewer,
				Notifier:    newNotifier(cfg, logger),
				MaxAttempts: cfg.Moderation.Sweep.MaxAttempts,
				Logger:      logger,
			})

			srv := server.NewServer(server.Deps{
				Gate:       service.NewGate(cfg.Auth.JWTSecret, models.Role(cfg.Auth.TopRole), adminRepo, logger),
				Decrypter:  service.NewGatewayService(messageRepo, store, keys, cfg.Storage.Bucket, logger),
				Classifier: classifier,
				Migrator:   migration.NewEngine(messageRepo, store, keys, cfg.Storage.Bucket, logger),
				Logger:     logger,
			})

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return srv.Run(gctx, ":"+cfg.Server.Port)
			})
			if cfg.Moderation.Sweep.Enabled {
				processor := message_processor.NewProcessor(classifier, message_processor.Config{
					Interval:  cfg.Moderation.Sweep.Interval,
					BatchSize: cfg.Moderation.Sweep.BatchSize,
				}, logger)
				g.Go(func() error {
					return processor.Run(gctx)
				})
			}

			err = g.Wait()
			logger.Info("Application stopped.", zap.Error(err))
			return err
		},
	}
}

