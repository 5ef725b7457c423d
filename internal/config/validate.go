package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Validate checks Config for production-critical problems.
// It collects all errors into a single joined error.
func (c *Config) Validate() error {
	var errs []string

	// Identity provider token secret
	if len(c.Auth.TokenSecret) < 32 {
		errs = append(errs, "AUTH_TOKEN_SECRET must be at least 32 characters")
	}

	// DB password
	if c.DB.Password == "" {
		errs = append(errs, "DB_PASSWORD is required")
	}

	// Port ranges
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT must be 1-65535, got %d", c.Server.Port))
	}
	if c.DB.Port < 1 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Sprintf("DB_PORT must be 1-65535, got %d", c.DB.Port))
	}
	if c.Redis.Port < 1 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Sprintf("REDIS_PORT must be 1-65535, got %d", c.Redis.Port))
	}

	if _, err := time.LoadLocation(c.FreeTrial.Timezone); err != nil {
		errs = append(errs, fmt.Sprintf("FREETRIAL_TIMEZONE %q is not a known time zone", c.FreeTrial.Timezone))
	}

	switch c.Retake.CountSource {
	case "lineage", "attempt":
	default:
		errs = append(errs, fmt.Sprintf("RETAKE_COUNT_SOURCE must be lineage or attempt, got %q", c.Retake.CountSource))
	}

	if c.RateLimit.MaxRequests < 0 {
		errs = append(errs, "RATELIMIT_MAX_REQUESTS must not be negative")
	}

	// NATS: warn only
	if c.NATS.URL == "" {
		slog.Warn("NATS_URL is empty, quota and retake events will not be published")
	}

	if len(errs) > 0 {
		return errors.New("config validation failed:\n  " + strings.Join(errs, "\n  "))
	}
	return nil
}
