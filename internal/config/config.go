// Package config loads the service configuration from the environment.
//
// Values come from the process environment, optionally seeded from a .env
// file in the working directory. Variables already set in the environment
// win over the file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/sakif/yamdb/internal/auth"
)

// Config holds every setting of cmd/server.
type Config struct {
	Port     int    `env:"PORT" envDefault:"8080"`
	DBPath   string `env:"DB_PATH" envDefault:"data/yamdb.db"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	JWTSecret    string        `env:"JWT_SECRET,required"`
	JWTAccessTTL time.Duration `env:"JWT_ACCESS_TTL" envDefault:"24h"`

	CodeLength   int    `env:"CONFIRMATION_CODE_LENGTH" envDefault:"16"`
	CodeAlphabet string `env:"CONFIRMATION_CODE_ALPHABET" envDefault:"0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"`

	EmailFrom    string        `env:"EMAIL_FROM" envDefault:"from@example.com"`
	SMTPHost     string        `env:"SMTP_HOST"` // empty: codes are written to the log
	SMTPPort     int           `env:"SMTP_PORT" envDefault:"587"`
	SMTPUsername string        `env:"SMTP_USERNAME"`
	SMTPPassword string        `env:"SMTP_PASSWORD"`
	SMTPTimeout  time.Duration `env:"SMTP_TIMEOUT" envDefault:"10s"`

	// AuthRateLimit is requests per minute per client IP on /auth/.
	AuthRateLimit int `env:"AUTH_RATE_LIMIT" envDefault:"20"`
}

// Load reads .env if present, parses the environment and validates the
// result.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("config: reading .env: %w", err)
	}
	return Parse()
}

// Parse reads the environment only.
func Parse() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects values the service cannot start with.
func (c Config) Validate() error {
	var errs []error
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT %d out of range", c.Port))
	}
	if c.DBPath == "" {
		errs = append(errs, errors.New("DB_PATH must not be empty"))
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if len(c.JWTSecret) < auth.MinSecretLength {
		errs = append(errs, fmt.Errorf("JWT_SECRET must be at least %d characters", auth.MinSecretLength))
	}
	if c.JWTAccessTTL <= 0 {
		errs = append(errs, errors.New("JWT_ACCESS_TTL must be positive"))
	}
	if c.CodeLength < 1 {
		errs = append(errs, errors.New("CONFIRMATION_CODE_LENGTH must be at least 1"))
	}
	if c.CodeAlphabet == "" {
		errs = append(errs, errors.New("CONFIRMATION_CODE_ALPHABET must not be empty"))
	}
	if c.EmailFrom == "" {
		errs = append(errs, errors.New("EMAIL_FROM must not be empty"))
	}
	if c.SMTPHost != "" && (c.SMTPPort < 1 || c.SMTPPort > 65535) {
		errs = append(errs, fmt.Errorf("SMTP_PORT %d out of range", c.SMTPPort))
	}
	if c.AuthRateLimit < 1 {
		errs = append(errs, errors.New("AUTH_RATE_LIMIT must be at least 1"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// ParseLevel maps LOG_LEVEL to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown LOG_LEVEL %q", s)
}
