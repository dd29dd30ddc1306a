package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Port        string     `env:"PORT" envDefault:"8080"`
	Environment string     `env:"ENVIRONMENT" envDefault:"development"`
	LogLevelRaw string     `env:"LOG_LEVEL" envDefault:"info"`
	LogLevel    slog.Level // Parsed from LogLevelRaw

	// Narration
	LLMProvider      string        `env:"LLM_PROVIDER" envDefault:"anthropic"`
	ModelName        string        `env:"MODEL_NAME"`
	BackendModelName string        `env:"BACKEND_MODEL_NAME"`
	AnthropicAPIKey  string        `env:"ANTHROPIC_API_KEY"`
	VeniceAPIKey     string        `env:"VENICE_API_KEY"`
	OpenAIAPIKey     string        `env:"OPENAI_API_KEY"`
	OpenAIBaseURL    string        `env:"OPENAI_BASE_URL"`
	NarrationTimeout time.Duration `env:"NARRATION_TIMEOUT" envDefault:"45s"`
	HistoryLimit     int           `env:"HISTORY_LIMIT" envDefault:"20"`

	// Storage
	StoreBackend string        `env:"STORE_BACKEND" envDefault:"redis"`
	RedisURL     string        `env:"REDIS_URL" envDefault:"localhost:6379"`
	SQLitePath   string        `env:"SQLITE_PATH" envDefault:"data/sessions.db"`
	DataDir      string        `env:"DATA_DIR" envDefault:"data/scenarios"`
	LockWait     time.Duration `env:"LOCK_WAIT" envDefault:"10s"`

	JWTSecret      string   `env:"JWT_SECRET"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:","` // Websocket origins, empty allows any
}

// Load reads an optional .env file, then the environment, and validates the result.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.LogLevel = parseLogLevel(cfg.LogLevelRaw)
	cfg.LLMProvider = strings.ToLower(strings.TrimSpace(cfg.LLMProvider))
	cfg.StoreBackend = strings.ToLower(strings.TrimSpace(cfg.StoreBackend))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the selected provider and store are usable.
func (c *Config) Validate() error {
	var errs []error

	switch c.LLMProvider {
	case "anthropic":
		if c.AnthropicAPIKey == "" {
			errs = append(errs, errors.New("ANTHROPIC_API_KEY is required for the anthropic provider"))
		}
	case "venice":
		if c.VeniceAPIKey == "" {
			errs = append(errs, errors.New("VENICE_API_KEY is required for the venice provider"))
		}
	case "openai":
		if c.OpenAIAPIKey == "" && c.OpenAIBaseURL == "" {
			errs = append(errs, errors.New("OPENAI_API_KEY or OPENAI_BASE_URL is required for the openai provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported LLM_PROVIDER %q (anthropic, venice, openai)", c.LLMProvider))
	}
	if c.ModelName == "" {
		errs = append(errs, errors.New("MODEL_NAME is required"))
	}

	switch c.StoreBackend {
	case "redis":
		if c.RedisURL == "" {
			errs = append(errs, errors.New("REDIS_URL is required for the redis store"))
		}
	case "sqlite":
		if c.SQLitePath == "" {
			errs = append(errs, errors.New("SQLITE_PATH is required for the sqlite store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported STORE_BACKEND %q (redis, sqlite)", c.StoreBackend))
	}

	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.NarrationTimeout <= 0 {
		errs = append(errs, errors.New("NARRATION_TIMEOUT must be positive"))
	}
	if c.LockWait <= 0 {
		errs = append(errs, errors.New("LOCK_WAIT must be positive"))
	}
	return errors.Join(errs...)
}

// LockTTL bounds how long a session lock may be held: three narration
// calls plus slack for storage.
func (c *Config) LockTTL() time.Duration {
	return 3*c.NarrationTimeout + 30*time.Second
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
