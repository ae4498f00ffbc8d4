package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	mw "github.com/aiox-platform/bookingbot/internal/middleware"
)

// HandlerSet holds handler functions injected from main.go to avoid import cycles.
type HandlerSet struct {
	Chat            http.HandlerFunc
	ChatStream      http.HandlerFunc
	Feedback        http.HandlerFunc
	FeedbackStats   http.HandlerFunc
	SetLanguage     http.HandlerFunc
	RateLimitStatus http.HandlerFunc
	RunFollowUps    http.HandlerFunc
	PaymentWebhook  http.HandlerFunc
	Funnel          http.HandlerFunc
	AdminAnalytics  http.HandlerFunc

	// AuthMiddleware guards everything except health and metrics.
	AuthMiddleware func(http.Handler) http.Handler
}

// Check is one readiness dependency probe.
type Check func(ctx context.Context) error

type RouterConfig struct {
	CORSAllowedOrigins []string
	// Readiness probes by dependency name. A nil probe reports "not configured".
	Readiness map[string]Check
}

const readinessTimeout = 3 * time.Second

func NewRouter(cfg RouterConfig, h HandlerSet) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(mw.SecurityHeaders)
	r.Use(mw.Logging)
	r.Use(chimw.Recoverer)
	r.Use(mw.Metrics)
	r.Use(cors.Handler(mw.CORS(cfg.CORSAllowedOrigins)))

	// Liveness probe: always 200, no dependency checks.
	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		JSON(w, http.StatusOK, map[string]string{"status": "alive"})
	})

	readiness := readinessHandler(cfg.Readiness)
	r.Get("/health/ready", readiness)
	r.Get("/health", readiness)

	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		if h.AuthMiddleware != nil {
			r.Use(h.AuthMiddleware)
		}
		r.Post("/chat", h.Chat)
		r.Post("/chat/stream", h.ChatStream)
		r.Post("/feedback", h.Feedback)
		r.Get("/feedback/stats", h.FeedbackStats)
		r.Post("/language", h.SetLanguage)
		r.Get("/rate-limit/status", h.RateLimitStatus)
		r.Post("/cron/follow-ups", h.RunFollowUps)
		r.Post("/webhook/payment", h.PaymentWebhook)
		r.Get("/funnel", h.Funnel)
		r.Get("/admin/analytics", h.AdminAnalytics)
	})

	return r
}

func readinessHandler(checks map[string]Check) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		health := map[string]string{"status": "healthy"}
		status := http.StatusOK
		for name, check := range checks {
			if check == nil {
				health[name] = "not configured"
				continue
			}
			if err := check(ctx); err != nil {
				health[name] = "unhealthy"
				health["status"] = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			health[name] = "healthy"
		}
		JSON(w, status, health)
	}
}
