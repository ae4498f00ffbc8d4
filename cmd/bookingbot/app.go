package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"

	"github.com/aiox-platform/bookingbot/internal/agent"
	"github.com/aiox-platform/bookingbot/internal/analytics"
	"github.com/aiox-platform/bookingbot/internal/booking"
	"github.com/aiox-platform/bookingbot/internal/config"
	"github.com/aiox-platform/bookingbot/internal/conversation"
	"github.com/aiox-platform/bookingbot/internal/database"
	"github.com/aiox-platform/bookingbot/internal/events"
	"github.com/aiox-platform/bookingbot/internal/followup"
	"github.com/aiox-platform/bookingbot/internal/llm"
	"github.com/aiox-platform/bookingbot/internal/messagelog"
	"github.com/aiox-platform/bookingbot/internal/pipeline"
	"github.com/aiox-platform/bookingbot/internal/ratelimit"
	iredis "github.com/aiox-platform/bookingbot/internal/redis"
	"github.com/aiox-platform/bookingbot/internal/rentok"
	"github.com/aiox-platform/bookingbot/internal/retry"
	"github.com/aiox-platform/bookingbot/internal/routing"
	"github.com/aiox-platform/bookingbot/internal/summarizer"
	"github.com/aiox-platform/bookingbot/internal/tools"
	bookingtools "github.com/aiox-platform/bookingbot/internal/tools/booking"
	"github.com/aiox-platform/bookingbot/internal/tools/broker"
	"github.com/aiox-platform/bookingbot/internal/tools/general"
	"github.com/aiox-platform/bookingbot/internal/tools/profile"
	"github.com/aiox-platform/bookingbot/internal/usermemory"
	"github.com/aiox-platform/bookingbot/internal/userstate"
)

// app holds the long-lived clients and services shared by the commands.
type app struct {
	Pool      *pgxpool.Pool
	Redis     *goredis.Client
	NATS      *events.Client
	Publisher *events.Publisher

	State         *userstate.Store
	Limiter       *ratelimit.Limiter
	Messages      *messagelog.Repository
	Conversations *conversation.Store
	Analytics     *analytics.Tracker
	Payments      *bookingtools.Service
	Sweeper       *followup.Sweeper
	Pipeline      *pipeline.Pipeline
}

func build(ctx context.Context, cfg *config.Config) (a *app, err error) {
	a = &app{}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	if a.Pool, err = database.NewPostgresPool(ctx, cfg.DB); err != nil {
		return nil, err
	}
	if a.Redis, err = iredis.NewClient(ctx, cfg.Redis); err != nil {
		return nil, err
	}
	if cfg.NATS.Enabled() {
		if a.NATS, err = events.NewClient(ctx, cfg.NATS); err != nil {
			return nil, err
		}
		a.Publisher = events.NewPublisher(a.NATS.JetStream())
	}

	client, err := llm.NewAnthropic(cfg.LLM, retry.Default())
	if err != nil {
		return nil, fmt.Errorf("creating LLM client: %w", err)
	}
	backend := rentok.New(cfg.Rentok, retry.Default())

	a.State = userstate.NewStore(a.Redis)
	a.Limiter = ratelimit.NewLimiter(a.Redis, cfg.RateLimit)
	a.Messages = messagelog.NewRepository(a.Pool)
	a.Analytics = analytics.NewTracker(a.Redis)
	a.Conversations = conversation.NewStore(a.Redis, cfg.Agent.ConversationTTL, 2*cfg.Agent.HistoryLimit)

	memory := usermemory.NewStore(a.Redis)
	followups := followup.NewScheduler(a.Redis)
	bookings := booking.NewStore(a.Redis, booking.Machine{KYCRequired: cfg.Agent.KYCEnabled})

	registry := tools.NewRegistry(tools.NewFallback(a.State))
	a.Payments = bookingtools.NewService(backend, a.State, memory, bookings, followups, a.Analytics, cfg.Agent.KYCEnabled)
	registry.Register(broker.NewService(backend, a.State, memory, followups, a.Analytics).Tools()...)
	registry.Register(a.Payments.Tools()...)
	registry.Register(profile.NewService(backend, a.State, memory, bookings).Tools()...)
	registry.Register(general.NewService(backend, a.State, a.Redis).Tools()...)

	// Without a bus the follow-ups for phone users are dropped and exchanges
	// go straight to Postgres.
	var outbound followup.OutboundPublisher
	var recorder pipeline.ExchangeRecorder = a.Messages
	if a.Publisher != nil {
		outbound = a.Publisher
		recorder = a.Publisher
	}
	a.Sweeper = followup.NewSweeper(followups, a.Conversations, outbound, memory, cfg.FollowUp.BatchSize)

	a.Pipeline = pipeline.New(pipeline.Deps{
		Limiter:       a.Limiter,
		Conversations: a.Conversations,
		Summarizer: summarizer.New(client, summarizer.Config{
			Model:        cfg.LLM.FastModel,
			Threshold:    cfg.Agent.SummarizeThreshold,
			KeepRecent:   cfg.Agent.KeepRecent,
			HistoryLimit: cfg.Agent.HistoryLimit,
		}),
		State:      a.State,
		Memory:     memory,
		Supervisor: routing.NewSupervisor(client, cfg.LLM.FastModel),
		SafetyNet:  routing.NewSafetyNet(a.State),
		Runner: agent.NewRunner(client, agent.Models{
			Fast:    cfg.LLM.FastModel,
			Capable: cfg.LLM.CapableModel,
		}, cfg.Agent.MaxIterations),
		Registry:    registry,
		Recorder:    recorder,
		Analytics:   a.Analytics,
		KYCEnabled:  cfg.Agent.KYCEnabled,
		TurnTimeout: cfg.Agent.TurnTimeout,
	})
	return a, nil
}

func (a *app) consumers() *events.ConsumerManager {
	return events.NewConsumerManager(a.NATS.JetStream())
}

func (a *app) Close() {
	if a.NATS != nil {
		a.NATS.Close()
	}
	if a.Redis != nil {
		a.Redis.Close()
	}
	if a.Pool != nil {
		a.Pool.Close()
	}
}
