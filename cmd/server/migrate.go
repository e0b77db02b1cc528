package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"chat-escrow/internal/migration"
	"chat-escrow/internal/repository"
)

func migrateCmd() *cobra.Command {
	var (
		dryRun    bool
		batchSize int
		untilDone bool
	)

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Rewrite escrow-encrypted messages as plaintext rows",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			defer func() {
				_ = logger.Sync()
			}()

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

			engine := migration.NewEngine(repository.NewMessageRepository(db, logger), store, keys, cfg.Storage.Bucket, logger)
			opts := migration.Options{DryRun: dryRun, BatchSize: batchSize}
			out := cmd.OutOrStdout()

			if !untilDone {
				report, err := engine.Run(ctx, opts)
				if err != nil {
					return err
				}
				printReport(cmd, report)
				if report.Interrupted {
					return ctx.Err()
				}
				return nil
			}

			stats, err := engine.RunUntilDone(ctx, opts, func(report *migration.Report) {
				printReport(cmd, report)
			})
			fmt.Fprintf(out, "total=%d text=%d media=%d errors=%d\n",
				stats.Total, stats.TextDecrypted, stats.MediaDecrypted, stats.Errors)
			if err != nil {
				logger.Error("Migration stopped", zap.Error(err))
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "decrypt without writing anything")
	cmd.Flags().IntVar(&batchSize, "batch-size", migration.DefaultBatchSize, "messages per batch (max 100)")
	cmd.Flags().BoolVar(&untilDone, "until-done", false, "repeat batches until no encrypted messages remain")
	return cmd
}

func printReport(cmd *cobra.Command, report *migration.Report) {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, report.Message)
	for _, item := range report.Errors {
		fmt.Fprintf(out, "  %s: %s\n", item.ID, item.Error)
	}
}
