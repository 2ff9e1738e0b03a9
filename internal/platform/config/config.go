package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	AppEnv             string `env:"APP_ENV" default:"development"`
	Port               string `env:"PORT" default:"8080"`
	AppURL             string `env:"APP_URL" default:"http://localhost:8080"`
	DatabaseURL        string `env:"DATABASE_URL"`
	RedisURL           string `env:"REDIS_URL"`
	TwitchClientID     string `env:"TWITCH_CLIENT_ID"`
	TwitchClientSecret string `env:"TWITCH_CLIENT_SECRET"`
	TwitchRedirectURI  string `env:"TWITCH_REDIRECT_URI"`
	SessionSecret      string `env:"SESSION_SECRET"`
	TokenEncryptionKey string `env:"TOKEN_ENCRYPTION_KEY"`
	WebhookCallbackURL string `env:"WEBHOOK_CALLBACK_URL"`
	WebhookSecret      string `env:"WEBHOOK_SECRET"`
	LogLevel           string `env:"LOG_LEVEL" default:"info"`
	LogFormat          string `env:"LOG_FORMAT" default:"text"`

	MaxClientsPerChannel int `env:"MAX_CLIENTS_PER_CHANNEL" default:"200"`

	SessionMaxAge  time.Duration `env:"SESSION_MAX_AGE" default:"168h"` // 7 days
	SourceCacheTTL time.Duration `env:"SOURCE_CACHE_TTL" default:"10s"`
}

// WebhooksEnabled reports whether EventSub delivery is configured.
func (c *Config) WebhooksEnabled() bool {
	return c.WebhookCallbackURL != ""
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	required := map[string]string{
		"DATABASE_URL":         cfg.DatabaseURL,
		"REDIS_URL":            cfg.RedisURL,
		"TWITCH_CLIENT_ID":     cfg.TwitchClientID,
		"TWITCH_CLIENT_SECRET": cfg.TwitchClientSecret,
		"TWITCH_REDIRECT_URI":  cfg.TwitchRedirectURI,
		"SESSION_SECRET":       cfg.SessionSecret,
		"TOKEN_ENCRYPTION_KEY": cfg.TokenEncryptionKey,
	}
	for name, value := range required {
		if value == "" {
			return fmt.Errorf("%s is required", name)
		}
	}

	// Webhook delivery needs both halves or neither.
	if (cfg.WebhookCallbackURL == "") != (cfg.WebhookSecret == "") {
		return errors.New("WEBHOOK_CALLBACK_URL and WEBHOOK_SECRET must be set together")
	}
	if cfg.WebhookSecret != "" && (len(cfg.WebhookSecret) < 10 || len(cfg.WebhookSecret) > 100) {
		return errors.New("WEBHOOK_SECRET must be between 10 and 100 characters")
	}

	if _, err := url.ParseRequestURI(cfg.AppURL); err != nil {
		return fmt.Errorf("APP_URL must be an absolute URL: %w", err)
	}

	keyBytes, err := hex.DecodeString(cfg.TokenEncryptionKey)
	if err != nil {
		return fmt.Errorf("TOKEN_ENCRYPTION_KEY must be valid hex: %w", err)
	}
	if len(keyBytes) != 32 {
		return fmt.Errorf("TOKEN_ENCRYPTION_KEY must be exactly 64 hex characters (32 bytes), got %d bytes", len(keyBytes))
	}

	if cfg.MaxClientsPerChannel < 1 {
		return errors.New("MAX_CLIENTS_PER_CHANNEL must be positive")
	}

	return nil
}

// ControllerConfig configures cmd/controller.
type ControllerConfig struct {
	ServerURL  string `env:"CONTROLLER_SERVER_URL" default:"http://localhost:8080"`
	ChannelKey string `env:"CONTROLLER_CHANNEL_KEY"`
	LogFile    string `env:"CONTROLLER_LOG_FILE"`
}

func LoadController() (*ControllerConfig, error) {
	_ = godotenv.Load()

	var cfg ControllerConfig
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if cfg.ChannelKey == "" {
		return nil, errors.New("CONTROLLER_CHANNEL_KEY is required")
	}
	u, err := url.ParseRequestURI(cfg.ServerURL)
	if err != nil {
		return nil, fmt.Errorf("CONTROLLER_SERVER_URL must be an absolute URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.New("CONTROLLER_SERVER_URL must use http or https")
	}

	return &cfg, nil
}
