package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 8000, WriteTimeout: 120 * time.Second},
		DB: DBConfig{
			Host: "localhost", Port: 5432, User: "bookingbot",
			Password: "secret", Name: "bookingbot", SSLMode: "disable", MaxConns: 10,
		},
		Redis:  RedisConfig{Host: "localhost", Port: 6379},
		LLM:    LLMConfig{APIKey: "sk-ant-test", FastModel: "haiku", CapableModel: "sonnet", MaxTokens: 4096},
		Rentok: RentokConfig{BaseURL: "https://apiv2.rentok.com", Timeout: 15 * time.Second},
		Agent: AgentConfig{
			MaxIterations: 15, HistoryLimit: 20, ConversationTTL: 24 * time.Hour,
			SummarizeThreshold: 30, KeepRecent: 10, KYCEnabled: true,
		},
		RateLimit: RateLimitConfig{UserPerMinute: 6, UserPerHour: 30, GlobalPerMinute: 100},
		FollowUp:  FollowUpConfig{Schedule: "0 */15 * * * *", BatchSize: 50},
		Auth:      AuthConfig{APIKey: "key"},
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
}

func TestValidate_APIKeyRequired(t *testing.T) {
	cfg := validConfig()
	cfg.LLM.APIKey = ""
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "ANTHROPIC_API_KEY") {
		t.Fatalf("expected ANTHROPIC_API_KEY error, got: %v", err)
	}
}

func TestValidate_DBPasswordRequired(t *testing.T) {
	cfg := validConfig()
	cfg.DB.Password = ""
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "DB_PASSWORD") {
		t.Fatalf("expected DB_PASSWORD error, got: %v", err)
	}
}

func TestValidate_DatabaseURLReplacesPassword(t *testing.T) {
	cfg := validConfig()
	cfg.DB.Password = ""
	cfg.DB.URL = "postgres://u:p@db:5432/bookingbot"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if cfg.DB.DSN() != cfg.DB.URL {
		t.Fatalf("expected DSN to use DATABASE_URL, got %q", cfg.DB.DSN())
	}
}

func TestValidate_RentokURL(t *testing.T) {
	cfg := validConfig()
	cfg.Rentok.BaseURL = "apiv2.rentok.com"
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "RENTOK_API_BASE_URL") {
		t.Fatalf("expected RENTOK_API_BASE_URL error, got: %v", err)
	}
}

func TestValidate_KeepRecentBounds(t *testing.T) {
	cfg := validConfig()
	cfg.Agent.KeepRecent = 30
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "SUMMARIZE_KEEP_RECENT") {
		t.Fatalf("expected SUMMARIZE_KEEP_RECENT error, got: %v", err)
	}
}

func TestValidate_BadCronSpec(t *testing.T) {
	cfg := validConfig()
	cfg.FollowUp.Schedule = "every quarter hour"
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "FOLLOWUP_SCHEDULE") {
		t.Fatalf("expected FOLLOWUP_SCHEDULE error, got: %v", err)
	}
}

func TestValidate_InvalidPorts(t *testing.T) {
	cfg := validConfig()
	cfg.Server.Port = 0
	cfg.DB.Port = 99999
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected port validation errors")
	}
	if !strings.Contains(err.Error(), "SERVER_PORT") {
		t.Errorf("expected SERVER_PORT error in: %v", err)
	}
	if !strings.Contains(err.Error(), "DB_PORT") {
		t.Errorf("expected DB_PORT error in: %v", err)
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	cfg := &Config{
		Server: ServerConfig{Port: 0},
		DB:     DBConfig{Port: 5432},
		Redis:  RedisConfig{Port: 6379},
		Agent:  AgentConfig{SummarizeThreshold: 30, KeepRecent: 10},
	}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected multiple validation errors")
	}
	errStr := err.Error()
	for _, substr := range []string{"ANTHROPIC_API_KEY", "DB_PASSWORD", "RENTOK_API_BASE_URL", "SERVER_PORT", "MAX_AGENT_ITERATIONS", "RATE_LIMIT_", "FOLLOWUP_SCHEDULE"} {
		if !strings.Contains(errStr, substr) {
			t.Errorf("expected %q in error: %s", substr, errStr)
		}
	}
}
