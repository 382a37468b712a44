// Package config loads and validates the service configuration from a
// YAML file plus environment overrides (.env supported in development).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the full service configuration.
type Config struct {
	Store       StoreConfig       `yaml:"store" validate:"required"`
	Session     SessionConfig     `yaml:"session" validate:"required"`
	Idempotency IdempotencyConfig `yaml:"idempotency" validate:"required"`
	Messaging   MessagingConfig   `yaml:"messaging" validate:"required"`
}

// StoreConfig selects and locates the context store backend.
type StoreConfig struct {
	Driver string `yaml:"driver" validate:"required,oneof=sqlite memory"`
	Path   string `yaml:"path" validate:"required_if=Driver sqlite"`
}

// SessionConfig governs conversation-context lifecycle.
type SessionConfig struct {
	Timeout time.Duration `yaml:"timeout" validate:"required,min=1m,max=168h"`
}

// IdempotencyConfig selects the claim store backing side-effecting
// operations.
type IdempotencyConfig struct {
	Backend       string        `yaml:"backend" validate:"required,oneof=sqlite redis memory"`
	TTL           time.Duration `yaml:"ttl" validate:"required,min=1m,max=24h"`
	RedisAddr     string        `yaml:"redis_addr" validate:"required_if=Backend redis"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db" validate:"min=0,max=15"`
}

// MessagingConfig throttles outbound message delivery.
type MessagingConfig struct {
	RatePerSecond float64 `yaml:"rate_per_second" validate:"required,gt=0,max=100"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Store: StoreConfig{
			Driver: "sqlite",
			Path:   "convocart.db",
		},
		Session: SessionConfig{
			Timeout: 24 * time.Hour,
		},
		Idempotency: IdempotencyConfig{
			Backend: "sqlite",
			TTL:     time.Hour,
		},
		Messaging: MessagingConfig{
			RatePerSecond: 10,
		},
	}
}

// Load reads the configuration file, applies environment overrides and
// validates the result. A missing file falls back to Default.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	path := configPath()
	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// Defaults only.
	case err != nil:
		return nil, fmt.Errorf("reading config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

func configPath() string {
	if path := os.Getenv("CONVOCART_CONFIG"); path != "" {
		return path
	}
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "convocart", "config.yaml")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "convocart", "config.yaml")
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CONVOCART_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("CONVOCART_REDIS_ADDR"); v != "" {
		cfg.Idempotency.RedisAddr = v
	}
	if v := os.Getenv("CONVOCART_REDIS_PASSWORD"); v != "" {
		cfg.Idempotency.RedisPassword = v
	}
}

func (c *Config) validate() error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(c); err != nil {
		if errs, ok := err.(validator.ValidationErrors); ok && len(errs) > 0 {
			e := errs[0]
			return fmt.Errorf("field %s failed %q validation", e.Namespace(), e.Tag())
		}
		return err
	}
	return nil
}
