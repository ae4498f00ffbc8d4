package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/robfig/cron/v3"
)

// Validate checks Config for production-critical problems.
// It collects all errors into a single joined error.
func (c *Config) Validate() error {
	var errs []string

	if c.LLM.APIKey == "" {
		errs = append(errs, "ANTHROPIC_API_KEY is required")
	}

	if c.DB.URL == "" && c.DB.Password == "" {
		errs = append(errs, "DB_PASSWORD is required when DATABASE_URL is unset")
	}

	if u, err := url.Parse(c.Rentok.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Sprintf("RENTOK_API_BASE_URL must be an absolute URL, got %q", c.Rentok.BaseURL))
	}

	// Port ranges
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT must be 1–65535, got %d", c.Server.Port))
	}
	if c.DB.URL == "" && (c.DB.Port < 1 || c.DB.Port > 65535) {
		errs = append(errs, fmt.Sprintf("DB_PORT must be 1–65535, got %d", c.DB.Port))
	}
	if c.Redis.URL == "" && (c.Redis.Port < 1 || c.Redis.Port > 65535) {
		errs = append(errs, fmt.Sprintf("REDIS_PORT must be 1–65535, got %d", c.Redis.Port))
	}

	// Agent loop
	if c.Agent.MaxIterations < 1 {
		errs = append(errs, "MAX_AGENT_ITERATIONS must be positive")
	}
	if c.Agent.KeepRecent < 2 || c.Agent.KeepRecent >= c.Agent.SummarizeThreshold {
		errs = append(errs, fmt.Sprintf("SUMMARIZE_KEEP_RECENT must be between 2 and SUMMARIZE_THRESHOLD-1, got %d", c.Agent.KeepRecent))
	}

	// Rate limits
	if c.RateLimit.UserPerMinute < 1 || c.RateLimit.UserPerHour < 1 || c.RateLimit.GlobalPerMinute < 1 {
		errs = append(errs, "RATE_LIMIT_* caps must be positive")
	}

	if _, err := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow).Parse(c.FollowUp.Schedule); err != nil {
		errs = append(errs, fmt.Sprintf("FOLLOWUP_SCHEDULE is not a valid cron spec: %v", err))
	}

	// API key: warn only
	if c.Auth.APIKey == "" {
		slog.Warn("API_KEY is empty, chat endpoints have no authentication")
	}

	if len(errs) > 0 {
		return errors.New("config validation failed:\n  " + strings.Join(errs, "\n  "))
	}
	return nil
}
