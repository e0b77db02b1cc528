package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"chat-escrow/internal/crypto"
	"chat-escrow/internal/models"
	"chat-escrow/internal/moderation"
	"chat-escrow/internal/resilience"
)

// KeyFile locates one escrow private key, inline (pem) or on disk (file).
type KeyFile struct {
	PEM    string `yaml:"pem" validate:"required_without=File"`
	File   string `yaml:"file" validate:"required_without=PEM"`
	Sealed bool   `yaml:"sealed"`
}

// KeyConfig is an escrow key addressed by the admin_key_id stored in messages.
type KeyConfig struct {
	ID      string `yaml:"id" validate:"required"`
	KeyFile `yaml:",inline"`
}

// Config holds the application's configuration.
type Config struct {
	Server struct {
		Port    string `yaml:"port" validate:"required"`
		GinMode string `yaml:"gin_mode" validate:"oneof=debug release test"`
	} `yaml:"server"`
	Logging struct {
		Level       string `yaml:"level" validate:"oneof=debug info warn error"`
		Development bool   `yaml:"development"`
	} `yaml:"logging"`
	Database struct {
		Driver       string `yaml:"driver" validate:"oneof=postgres sqlite"`
		URL          string `yaml:"url" validate:"required"`
		AutoMigrate  bool   `yaml:"auto_migrate"`
		MaxOpenConns int    `yaml:"max_open_conns" validate:"gte=0"`
		MaxIdleConns int    `yaml:"max_idle_conns" validate:"gte=0"`
	} `yaml:"database"`
	Auth struct {
		JWTSecret string `yaml:"jwt_secret" validate:"required,min=16"`
		TopRole   string `yaml:"top_role" validate:"required"`
	} `yaml:"auth"`
	Escrow struct {
		Passphrase string      `yaml:"passphrase"`
		LegacyKey  *KeyFile    `yaml:"legacy_key"`
		Keys       []KeyConfig `yaml:"keys" validate:"dive"`
	} `yaml:"escrow"`
	Storage struct {
		Backend    string        `yaml:"backend" validate:"oneof=http badger"`
		Bucket     string        `yaml:"bucket" validate:"required"`
		URL        string        `yaml:"url" validate:"required_if=Backend http"`
		ServiceKey string        `yaml:"service_key"`
		BadgerPath string        `yaml:"badger_path"`
		Timeout    time.Duration `yaml:"timeout" validate:"gte=0"`
	} `yaml:"storage"`
	Moderation struct {
		APIKey       string                     `yaml:"api_key"`
		Model        string                     `yaml:"model"`
		SystemPrompt string                     `yaml:"system_prompt"`
		Timeout      time.Duration              `yaml:"timeout" validate:"gte=0"`
		Heuristics   moderation.HeuristicConfig `yaml:"heuristics"`
		Breaker      resilience.BreakerConfig   `yaml:"breaker"`
		Sweep        struct {
			Enabled     bool          `yaml:"enabled"`
			Interval    time.Duration `yaml:"interval" validate:"required_if=Enabled true"`
			BatchSize   int           `yaml:"batch_size" validate:"gte=0,lte=500"`
			MaxAttempts int           `yaml:"max_attempts" validate:"gte=0"`
		} `yaml:"sweep"`
	} `yaml:"moderation"`
	Alerts struct {
		Telegram struct {
			Enabled  bool   `yaml:"enabled"`
			BotToken string `yaml:"bot_token" validate:"required_if=Enabled true"`
			ChatID   int64  `yaml:"chat_id" validate:"required_if=Enabled true"`
		} `yaml:"telegram"`
	} `yaml:"alerts"`
}

// Default returns the configuration used for keys absent from the file.
func Default() *Config {
	cfg := &Config{}
	cfg.Server.Port = "8080"
	cfg.Server.GinMode = "release"
	cfg.Logging.Level = "info"
	cfg.Database.Driver = "postgres"
	cfg.Database.AutoMigrate = true
	cfg.Auth.TopRole = string(models.RoleSuperAdmin)
	cfg.Storage.Backend = "http"
	cfg.Storage.Bucket = "chat-media"
	cfg.Storage.Timeout = 60 * time.Second
	cfg.Moderation.Model = "gemini-2.0-flash"
	cfg.Moderation.Timeout = 30 * time.Second
	cfg.Moderation.Heuristics = moderation.HeuristicConfig{
		Enabled:            true,
		MinTextLength:      moderation.DefaultMinTextLength,
		WhitelistMaxLength: moderation.DefaultWhitelistMaxLength,
	}
	cfg.Moderation.Breaker = resilience.BreakerConfig{
		MaxFailures: 5,
		OpenTimeout: 30 * time.Second,
		Interval:    time.Minute,
	}
	cfg.Moderation.Sweep.Interval = time.Minute
	cfg.Moderation.Sweep.BatchSize = 20
	cfg.Moderation.Sweep.MaxAttempts = moderation.DefaultMaxAttempts
	return cfg
}

// LoadConfig reads configuration from the specified YAML file. Keys missing
// from the file keep their defaults; secret values written as ${VAR} are read
// from the environment.
func LoadConfig(configPath string) (*Config, error) {
	config := Default()

	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(config); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	config.resolveSecrets()

	if err := validator.New().Struct(config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return config, nil
}

var envRef = regexp.MustCompile(`^\$\{([A-Za-z_][A-Za-z0-9_]*)\}$`)

// resolveEnv replaces a value of the exact form ${VAR}. Other values are kept
// verbatim, so sealed keys and passwords may contain '$'.
func resolveEnv(value string) string {
	m := envRef.FindStringSubmatch(strings.TrimSpace(value))
	if m == nil {
		return value
	}
	return os.Getenv(m[1])
}

func (c *Config) resolveSecrets() {
	c.Database.URL = resolveEnv(c.Database.URL)
	c.Auth.JWTSecret = resolveEnv(c.Auth.JWTSecret)
	c.Escrow.Passphrase = resolveEnv(c.Escrow.Passphrase)
	c.Storage.ServiceKey = resolveEnv(c.Storage.ServiceKey)
	c.Moderation.APIKey = resolveEnv(c.Moderation.APIKey)
	c.Alerts.Telegram.BotToken = resolveEnv(c.Alerts.Telegram.BotToken)
	if c.Escrow.LegacyKey != nil {
		c.Escrow.LegacyKey.PEM = resolveEnv(c.Escrow.LegacyKey.PEM)
	}
	for i := range c.Escrow.Keys {
		c.Escrow.Keys[i].PEM = resolveEnv(c.Escrow.Keys[i].PEM)
	}
}

// KeySources converts the escrow section for crypto.LoadKeyManager.
func (c *Config) KeySources() ([]crypto.KeySource, *crypto.KeySource) {
	sources := make([]crypto.KeySource, 0, len(c.Escrow.Keys))
	for _, k := range c.Escrow.Keys {
		sources = append(sources, crypto.KeySource{ID: k.ID, PEM: k.PEM, File: k.File, Sealed: k.Sealed})
	}
	var legacy *crypto.KeySource
	if k := c.Escrow.LegacyKey; k != nil {
		legacy = &crypto.KeySource{ID: "legacy", PEM: k.PEM, File: k.File, Sealed: k.Sealed}
	}
	return sources, legacy
}
