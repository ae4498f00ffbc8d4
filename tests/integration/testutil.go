//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/aiox-platform/bookingbot/internal/agent"
	"github.com/aiox-platform/bookingbot/internal/analytics"
	"github.com/aiox-platform/bookingbot/internal/api"
	"github.com/aiox-platform/bookingbot/internal/booking"
	"github.com/aiox-platform/bookingbot/internal/chat"
	"github.com/aiox-platform/bookingbot/internal/config"
	"github.com/aiox-platform/bookingbot/internal/conversation"
	"github.com/aiox-platform/bookingbot/internal/database"
	"github.com/aiox-platform/bookingbot/internal/followup"
	"github.com/aiox-platform/bookingbot/internal/llm/llmtest"
	"github.com/aiox-platform/bookingbot/internal/messagelog"
	mw "github.com/aiox-platform/bookingbot/internal/middleware"
	"github.com/aiox-platform/bookingbot/internal/pipeline"
	"github.com/aiox-platform/bookingbot/internal/ratelimit"
	"github.com/aiox-platform/bookingbot/internal/rentok/rentoktest"
	"github.com/aiox-platform/bookingbot/internal/routing"
	"github.com/aiox-platform/bookingbot/internal/tools"
	bookingtools "github.com/aiox-platform/bookingbot/internal/tools/booking"
	"github.com/aiox-platform/bookingbot/internal/tools/general"
	"github.com/aiox-platform/bookingbot/internal/tools/profile"
	"github.com/aiox-platform/bookingbot/internal/usermemory"
	"github.com/aiox-platform/bookingbot/internal/userstate"
)

const testAPIKey = "integration-key"

// Infra holds the containers shared by every test in the package.
type Infra struct {
	DSN         string
	Pool        *pgxpool.Pool
	RedisClient *redis.Client
	Messages    *messagelog.Repository
}

var infra *Infra

func SetupInfra(t *testing.T) *Infra {
	t.Helper()
	if infra != nil {
		return infra
	}

	ctx := context.Background()

	pgContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "test",
				"POSTGRES_PASSWORD": "test",
				"POSTGRES_DB":       "bookingbot_test",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("starting postgres container: %v", err)
	}
	t.Cleanup(func() { pgContainer.Terminate(ctx) })

	pgHost, _ := pgContainer.Host(ctx)
	pgPort, _ := pgContainer.MappedPort(ctx, "5432")

	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("starting redis container: %v", err)
	}
	t.Cleanup(func() { redisContainer.Terminate(ctx) })

	redisHost, _ := redisContainer.Host(ctx)
	redisPort, _ := redisContainer.MappedPort(ctx, "6379")

	dsn := fmt.Sprintf("postgres://test:test@%s:%s/bookingbot_test?sslmode=disable", pgHost, pgPort.Port())
	if err := database.RunMigrations(dsn, getMigrationsPath()); err != nil {
		t.Fatalf("running migrations: %v", err)
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connecting to postgres: %v", err)
	}
	t.Cleanup(func() { pool.Close() })

	redisClient := redis.NewClient(&redis.Options{
		Addr: fmt.Sprintf("%s:%s", redisHost, redisPort.Port()),
	})
	t.Cleanup(func() { redisClient.Close() })

	infra = &Infra{
		DSN:         dsn,
		Pool:        pool,
		RedisClient: redisClient,
		Messages:    messagelog.NewRepository(pool),
	}
	return infra
}

func getMigrationsPath() string {
	paths := []string{
		"../../migrations",
		"../../../migrations",
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	log.Fatal("migrations directory not found")
	return ""
}

// ChatEnv is the HTTP surface backed by real Postgres and Redis, a fake
// property backend and a scripted model.
type ChatEnv struct {
	*Infra
	Server   *httptest.Server
	LLM      *llmtest.Scripted
	Backend  *rentoktest.Server
	Convs    *conversation.Store
	Stats    *analytics.Tracker
	Bookings *booking.Store
}

func SetupChat(t *testing.T, steps ...llmtest.Step) *ChatEnv {
	t.Helper()
	in := SetupInfra(t)
	rdb := in.RedisClient

	env := &ChatEnv{
		Infra:   in,
		LLM:     llmtest.New(steps...),
		Backend: rentoktest.New(t),
		Convs:   conversation.NewStore(rdb, time.Hour, 50),
		Stats:   analytics.NewTracker(rdb),
	}
	backend := env.Backend.Client()
	state := userstate.NewStore(rdb)
	memory := usermemory.NewStore(rdb)
	followups := followup.NewScheduler(rdb)
	bookings := booking.NewStore(rdb, booking.Machine{})
	env.Bookings = bookings
	limiter := ratelimit.NewLimiter(rdb, config.RateLimitConfig{UserPerMinute: 100, UserPerHour: 1000, GlobalPerMinute: 1000})

	payments := bookingtools.NewService(backend, state, memory, bookings, followups, env.Stats, false)
	registry := tools.NewRegistry(tools.NewFallback(state))
	registry.Register(payments.Tools()...)
	registry.Register(profile.NewService(backend, state, memory, bookings).Tools()...)
	registry.Register(general.NewService(backend, state, rdb).Tools()...)

	p := pipeline.New(pipeline.Deps{
		Limiter:       limiter,
		Conversations: env.Convs,
		State:         state,
		Memory:        memory,
		Supervisor:    routing.NewSupervisor(env.LLM, "fast-model"),
		SafetyNet:     routing.NewSafetyNet(state),
		Runner:        agent.NewRunner(env.LLM, agent.Models{Fast: "fast-model", Capable: "capable-model"}, 0),
		Registry:      registry,
		Recorder:      in.Messages,
		Analytics:     env.Stats,
	})

	h := chat.NewHandler(chat.Deps{
		Turns:     p,
		Ratings:   in.Messages,
		Languages: state,
		Limits:    limiter,
		FollowUps: followup.NewSweeper(followups, env.Convs, nil, memory, 10),

		Payments:      payments,
		Conversations: env.Convs,
		Analytics:     env.Stats,
		Volumes:       in.Messages,
	})

	router := api.NewRouter(api.RouterConfig{
		Readiness: map[string]api.Check{
			"database": func(ctx context.Context) error { return database.HealthCheck(ctx, in.Pool) },
			"redis":    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		},
	}, api.HandlerSet{
		Chat:            h.Chat,
		ChatStream:      h.Stream,
		Feedback:        h.Feedback,
		FeedbackStats:   h.FeedbackStats,
		SetLanguage:     h.SetLanguage,
		RateLimitStatus: h.RateLimitStatus,
		RunFollowUps:    h.RunFollowUps,
		PaymentWebhook:  h.PaymentWebhook,
		Funnel:          h.Funnel,
		AdminAnalytics:  h.AdminAnalytics,
		AuthMiddleware:  mw.APIKey(testAPIKey),
	})

	env.Server = httptest.NewServer(router)
	t.Cleanup(env.Server.Close)
	return env
}

func DoRequest(t *testing.T, env *ChatEnv, method, path string, body any, apiKey string) *http.Response {
	t.Helper()
	var bodyReader io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, env.Server.URL+path, bodyReader)
	if err != nil {
		t.Fatalf("creating request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set(mw.APIKeyHeader, apiKey)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("doing request: %v", err)
	}
	return resp
}

func ParseResponse(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var result map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("parsing response: %v", err)
	}
	return result
}
