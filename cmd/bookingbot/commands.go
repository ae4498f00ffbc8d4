package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/aiox-platform/bookingbot/internal/api"
	"github.com/aiox-platform/bookingbot/internal/chat"
	"github.com/aiox-platform/bookingbot/internal/database"
	"github.com/aiox-platform/bookingbot/internal/messagelog"
	mw "github.com/aiox-platform/bookingbot/internal/middleware"
	"github.com/aiox-platform/bookingbot/internal/orchestrator"
	"github.com/aiox-platform/bookingbot/internal/server"
)

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if !skipMigrations {
		if err := database.RunMigrations(cfg.DB.DSN(), cfg.DB.MigrationsPath); err != nil {
			return err
		}
	}

	a, err := build(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	h := chat.NewHandler(chat.Deps{
		Turns:     a.Pipeline,
		Ratings:   a.Messages,
		Languages: a.State,
		Limits:    a.Limiter,
		FollowUps: a.Sweeper,

		Payments:      a.Payments,
		Conversations: a.Conversations,
		Analytics:     a.Analytics,
		Volumes:       a.Messages,
	})

	readiness := map[string]api.Check{
		"database": func(ctx context.Context) error { return database.HealthCheck(ctx, a.Pool) },
		"redis":    func(ctx context.Context) error { return a.Redis.Ping(ctx).Err() },
		"nats":     nil,
	}
	if a.NATS != nil {
		readiness["nats"] = func(context.Context) error {
			if !a.NATS.Healthy() {
				return fmt.Errorf("nats connection not healthy")
			}
			return nil
		}
	}

	router := api.NewRouter(api.RouterConfig{
		CORSAllowedOrigins: cfg.CORS.AllowedOrigins,
		Readiness:          readiness,
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
		AuthMiddleware:  mw.APIKey(cfg.Auth.APIKey),
	})

	if err := a.Sweeper.Start(ctx, cfg.FollowUp.Schedule); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	srv := server.New(cfg.Server, router)
	g.Go(func() error { return srv.Run(ctx) })

	if a.NATS != nil {
		consumers := a.consumers()
		logConsumer := messagelog.NewConsumer(a.Messages, consumers)
		g.Go(func() error { return logConsumer.Start(ctx) })

		orch := orchestrator.NewOrchestrator(a.Pipeline, a.Publisher, consumers, orchestrator.NewValidator(0))
		g.Go(func() error { return orch.Start(ctx) })
	} else {
		slog.Info("NATS not configured, exchanges are written directly and the inbound queue is disabled")
	}

	return g.Wait()
}

func runMigrate(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if rollbackSteps > 0 {
		return database.RollbackMigrations(cfg.DB.DSN(), cfg.DB.MigrationsPath, rollbackSteps)
	}
	return database.RunMigrations(cfg.DB.DSN(), cfg.DB.MigrationsPath)
}

func runSweep(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := build(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	rep, err := a.Sweeper.Sweep(cmd.Context())
	if err != nil {
		return err
	}
	slog.Info("follow-up sweep finished", "processed", rep.Processed, "skipped", rep.Skipped, "errors", rep.Errors, "pending", rep.Pending)
	return nil
}
