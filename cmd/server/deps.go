package main

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"chat-escrow/internal/config"
	"chat-escrow/internal/crypto"
	"chat-escrow/internal/gemini"
	"chat-escrow/internal/moderation"
	"chat-escrow/internal/repository"
	"chat-escrow/internal/resilience"
	"chat-escrow/internal/storage"
	"chat-escrow/internal/telegram_bot"
)

func openDatabase(cfg *config.Config, logger *zap.Logger) (*sqlx.DB, error) {
	db, err := repository.Connect(cfg.Database.Driver, cfg.Database.URL, logger)
	if err != nil {
		return nil, err
	}
	if cfg.Database.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	}
	if cfg.Database.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	}
	if cfg.Database.AutoMigrate {
		if err := repository.MigrateDB(db, logger); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return db, nil
}

func loadKeys(cfg *config.Config, logger *zap.Logger) (*crypto.KeyManager, error) {
	sources, legacy := cfg.KeySources()
	keys, err := crypto.LoadKeyManager(sources, legacy, cfg.Escrow.Passphrase)
	if err != nil {
		return nil, fmt.Errorf("failed to load escrow keys: %w", err)
	}
	_, hasLegacy := keys.LegacyKey()
	logger.Info("Escrow keys loaded", zap.Strings("key_ids", keys.KeyIDs()), zap.Bool("legacy_key", hasLegacy))
	return keys, nil
}

// openStore returns the media store and a function releasing it.
func openStore(cfg *config.Config, logger *zap.Logger) (storage.Store, func(), error) {
	switch cfg.Storage.Backend {
	case "badger":
		store, err := storage.OpenBadgerStore(cfg.Storage.BadgerPath, cfg.Storage.Bucket, logger)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	default:
		store := storage.NewHTTPStore(storage.HTTPConfig{
			URL:        cfg.Storage.URL,
			Bucket:     cfg.Storage.Bucket,
			ServiceKey: cfg.Storage.ServiceKey,
			Timeout:    cfg.Storage.Timeout,
		}, logger)
		return store, func() {}, nil
	}
}

// newReviewer returns nil when no model API key is configured; the
// classifier then answers with a configuration error.
func newReviewer(ctx context.Context, cfg *config.Config, logger *zap.Logger) (moderation.Reviewer, func(), error) {
	if cfg.Moderation.APIKey == "" {
		logger.Warn("Moderation API key not set, AI review disabled")
		return nil, func() {}, nil
	}
	client, err := gemini.NewClient(ctx, gemini.Config{
		APIKey:            cfg.Moderation.APIKey,
		ModelName:         cfg.Moderation.Model,
		SystemInstruction: cfg.Moderation.SystemPrompt,
		Timeout:           cfg.Moderation.Timeout,
	}, logger)
	if err != nil {
		return nil, nil, err
	}
	reviewer := resilience.NewBreakerReviewer(client, cfg.Moderation.Breaker, logger)
	return reviewer, func() { _ = client.Close() }, nil
}

func newNotifier(cfg *config.Config, logger *zap.Logger) moderation.Notifier {
	tg := cfg.Alerts.Telegram
	if !tg.Enabled {
		return nil
	}
	notifier, err := telegram_bot.NewNotifier(telegram_bot.Config{BotToken: tg.BotToken, ChatID: tg.ChatID}, logger)
	if err != nil {
		logger.Warn("Failed to initialize Telegram notifier, continuing without alerts", zap.Error(err))
		return nil
	}
	return notifier
}
