package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/dotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Server    ServerConfig
	DB        DBConfig
	Redis     RedisConfig
	NATS      NATSConfig
	LLM       LLMConfig
	Rentok    RentokConfig
	Agent     AgentConfig
	RateLimit RateLimitConfig
	FollowUp  FollowUpConfig
	Auth      AuthConfig
	CORS      CORSConfig
	Log       LogConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	WriteTimeout time.Duration
}

type DBConfig struct {
	URL      string
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
	MaxConns int32
	// MigrationsPath is the directory of golang-migrate SQL files.
	MigrationsPath string
}

// DSN prefers an explicit DATABASE_URL over the individual fields.
func (c DBConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}

type RedisConfig struct {
	URL      string
	Host     string
	Port     int
	Password string
	DB       int
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type NATSConfig struct {
	URL string
}

// Enabled reports whether a NATS server was configured.
func (c NATSConfig) Enabled() bool {
	return c.URL != ""
}

type LLMConfig struct {
	APIKey       string
	BaseURL      string
	FastModel    string
	CapableModel string
	MaxTokens    int
	Timeout      time.Duration
}

type RentokConfig struct {
	BaseURL string
	// PlacesURL is the Overpass interpreter used for nearby-place lookups.
	PlacesURL string
	Timeout   time.Duration
}

type AgentConfig struct {
	MaxIterations   int
	HistoryLimit    int
	ConversationTTL time.Duration
	// TurnTimeout bounds one turn once it no longer follows the caller.
	TurnTimeout        time.Duration
	SummarizeThreshold int
	KeepRecent         int
	KYCEnabled         bool
}

type RateLimitConfig struct {
	UserPerMinute   int
	UserPerHour     int
	GlobalPerMinute int
}

type FollowUpConfig struct {
	Schedule  string
	BatchSize int
}

type AuthConfig struct {
	APIKey string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	k := koanf.New(".")

	// Load .env file if it exists (ignore error if missing)
	_ = k.Load(file.Provider(".env"), dotenv.Parser())

	// Load environment variables (override .env)
	err := k.Load(env.Provider("", ".", func(s string) string {
		return strings.ToLower(strings.ReplaceAll(s, "_", "."))
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("loading env vars: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: k.String("server.host"),
			Port: k.Int("server.port"),
		},
		DB: DBConfig{
			URL:      k.String("database.url"),
			Host:     k.String("db.host"),
			Port:     k.Int("db.port"),
			User:     k.String("db.user"),
			Password: k.String("db.password"),
			Name:     k.String("db.name"),
			SSLMode:  k.String("db.sslmode"),
			MaxConns: int32(k.Int("db.max.conns")),

			MigrationsPath: k.String("db.migrations.path"),
		},
		Redis: RedisConfig{
			URL:      k.String("redis.url"),
			Host:     k.String("redis.host"),
			Port:     k.Int("redis.port"),
			Password: k.String("redis.password"),
			DB:       k.Int("redis.db"),
		},
		NATS: NATSConfig{
			URL: k.String("nats.url"),
		},
		LLM: LLMConfig{
			APIKey:       k.String("anthropic.api.key"),
			BaseURL:      k.String("anthropic.base.url"),
			FastModel:    k.String("haiku.model"),
			CapableModel: k.String("sonnet.model"),
			MaxTokens:    k.Int("llm.max.tokens"),
		},
		Rentok: RentokConfig{
			BaseURL:   k.String("rentok.api.base.url"),
			PlacesURL: k.String("places.api.url"),
		},
		Agent: AgentConfig{
			MaxIterations:      k.Int("max.agent.iterations"),
			HistoryLimit:       k.Int("conversation.history.limit"),
			SummarizeThreshold: k.Int("summarize.threshold"),
			KeepRecent:         k.Int("summarize.keep.recent"),
			KYCEnabled:         k.Bool("kyc.enabled"),
		},
		RateLimit: RateLimitConfig{
			UserPerMinute:   k.Int("rate.limit.user.per.minute"),
			UserPerHour:     k.Int("rate.limit.user.per.hour"),
			GlobalPerMinute: k.Int("rate.limit.global.per.minute"),
		},
		FollowUp: FollowUpConfig{
			Schedule:  k.String("followup.schedule"),
			BatchSize: k.Int("followup.batch.size"),
		},
		Auth: AuthConfig{
			APIKey: k.String("api.key"),
		},
		CORS: CORSConfig{
			AllowedOrigins: splitList(k.String("cors.allowed.origins")),
		},
		Log: LogConfig{
			Level:  k.String("log.level"),
			Format: k.String("log.format"),
		},
	}

	// Apply defaults
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8000
	}
	if cfg.DB.Host == "" {
		cfg.DB.Host = "localhost"
	}
	if cfg.DB.Port == 0 {
		cfg.DB.Port = 5432
	}
	if cfg.DB.User == "" {
		cfg.DB.User = "bookingbot"
	}
	if cfg.DB.Name == "" {
		cfg.DB.Name = "bookingbot"
	}
	if cfg.DB.SSLMode == "" {
		cfg.DB.SSLMode = "disable"
	}
	if cfg.DB.MaxConns == 0 {
		cfg.DB.MaxConns = 10
	}
	if cfg.DB.MigrationsPath == "" {
		cfg.DB.MigrationsPath = "migrations"
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.LLM.FastModel == "" {
		cfg.LLM.FastModel = "claude-haiku-4-5-20251001"
	}
	if cfg.LLM.CapableModel == "" {
		cfg.LLM.CapableModel = "claude-sonnet-4-6-20250116"
	}
	if cfg.LLM.MaxTokens == 0 {
		cfg.LLM.MaxTokens = 4096
	}
	if cfg.Rentok.BaseURL == "" {
		cfg.Rentok.BaseURL = "https://apiv2.rentok.com"
	}
	if cfg.Rentok.PlacesURL == "" {
		cfg.Rentok.PlacesURL = "https://overpass-api.de/api/interpreter"
	}
	if cfg.Agent.MaxIterations == 0 {
		cfg.Agent.MaxIterations = 15
	}
	if cfg.Agent.HistoryLimit == 0 {
		cfg.Agent.HistoryLimit = 20
	}
	if cfg.Agent.SummarizeThreshold == 0 {
		cfg.Agent.SummarizeThreshold = 30
	}
	if cfg.Agent.KeepRecent == 0 {
		cfg.Agent.KeepRecent = 10
	}
	if k.String("kyc.enabled") == "" {
		cfg.Agent.KYCEnabled = true
	}
	if cfg.RateLimit.UserPerMinute == 0 {
		cfg.RateLimit.UserPerMinute = 6
	}
	if cfg.RateLimit.UserPerHour == 0 {
		cfg.RateLimit.UserPerHour = 30
	}
	if cfg.RateLimit.GlobalPerMinute == 0 {
		cfg.RateLimit.GlobalPerMinute = 100
	}
	if cfg.FollowUp.Schedule == "" {
		cfg.FollowUp.Schedule = "0 */15 * * * *"
	}
	if cfg.FollowUp.BatchSize == 0 {
		cfg.FollowUp.BatchSize = 50
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}

	// Parse durations
	cfg.Server.WriteTimeout, err = parseDuration(k, "server.write.timeout", "120s")
	if err != nil {
		return nil, err
	}
	cfg.LLM.Timeout, err = parseDuration(k, "llm.timeout", "60s")
	if err != nil {
		return nil, err
	}
	cfg.Rentok.Timeout, err = parseDuration(k, "rentok.timeout", "15s")
	if err != nil {
		return nil, err
	}
	cfg.Agent.ConversationTTL, err = parseDuration(k, "conversation.ttl", "24h")
	if err != nil {
		return nil, err
	}
	cfg.Agent.TurnTimeout, err = parseDuration(k, "turn.timeout", "5m")
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

func parseDuration(k *koanf.Koanf, key, fallback string) (time.Duration, error) {
	s := k.String(key)
	if s == "" {
		s = fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", key, err)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
