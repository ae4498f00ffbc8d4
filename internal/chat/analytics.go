package chat

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aiox-platform/bookingbot/internal/analytics"
	"github.com/aiox-platform/bookingbot/internal/api"
	"github.com/aiox-platform/bookingbot/internal/llm"
	"github.com/aiox-platform/bookingbot/internal/messagelog"
	"github.com/aiox-platform/bookingbot/internal/ratelimit"
)

// PaymentConfirmedText is appended to the conversation when the backend
// reports a successful payment.
const PaymentConfirmedText = "Payment confirmed for your property reservation. Your booking is being processed."

type PaymentConfirmer interface {
	ConfirmPayment(ctx context.Context, userID, pgID string) (bool, error)
}

type ConversationAppender interface {
	Append(ctx context.Context, userID string, msgs ...llm.Message) error
}

type AnalyticsReader interface {
	Funnel(ctx context.Context, day string) (analytics.DayFunnel, error)
	FunnelTotals(ctx context.Context, days int) (map[string]int64, error)
	AgentTotals(ctx context.Context, days int) (map[string]int64, error)
}

type VolumeReader interface {
	MessageVolume(ctx context.Context, from, to time.Time) (map[string]int64, error)
}

type paymentCallback struct {
	UserID   string `json:"user_id" validate:"required,max=128"`
	PGID     string `json:"pg_id"`
	PGNumber string `json:"pg_number"`
	Status   string `json:"status"`
}

// PaymentWebhook receives the backend's payment callback. Only a "success"
// status has any effect.
func (h *Handler) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	var cb paymentCallback
	if err := json.NewDecoder(r.Body).Decode(&cb); err != nil {
		api.HandleError(w, api.NewBadRequestError("invalid json"))
		return
	}
	cb.UserID = strings.TrimSpace(cb.UserID)
	if err := h.validate.Struct(cb); err != nil {
		api.HandleError(w, api.NewBadRequestError("missing user_id"))
		return
	}
	if cb.Status != "success" {
		slog.Info("payment callback without success", "user_id", cb.UserID, "status", cb.Status)
		api.JSON(w, http.StatusOK, map[string]any{"status": "ok", "booking_advanced": false})
		return
	}

	ctx := r.Context()
	advanced, err := h.Payments.ConfirmPayment(ctx, cb.UserID, cb.PGID)
	if err != nil {
		slog.Error("confirming payment", "user_id", cb.UserID, "pg_id", cb.PGID, "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	if err := h.Conversations.Append(ctx, cb.UserID, llm.AssistantText(PaymentConfirmedText)); err != nil {
		slog.Warn("payment notice not added to conversation", "user_id", cb.UserID, "error", err)
	}
	slog.Info("payment confirmed", "user_id", cb.UserID, "pg_id", cb.PGID, "pg_number", cb.PGNumber, "booking_advanced", advanced)
	api.JSON(w, http.StatusOK, map[string]any{"status": "ok", "booking_advanced": advanced})
}

// Funnel returns the funnel counters of ?day=YYYY-MM-DD, default today.
func (h *Handler) Funnel(w http.ResponseWriter, r *http.Request) {
	day := strings.TrimSpace(r.URL.Query().Get("day"))
	if day != "" {
		if _, err := time.Parse(analytics.DayLayout, day); err != nil {
			api.HandleError(w, api.NewBadRequestError("day must be YYYY-MM-DD"))
			return
		}
	}
	f, err := h.Analytics.Funnel(r.Context(), day)
	if err != nil {
		slog.Error("reading funnel", "day", day, "error", err)
		api.HandleError(w, api.ErrUnavailable)
		return
	}
	api.JSON(w, http.StatusOK, f)
}

type adminMeta struct {
	analytics.Range
	GeneratedAt time.Time `json:"generated_at"`
}

type adminReport struct {
	Funnel     map[string]int64         `json:"funnel"`
	Feedback   messagelog.FeedbackStats `json:"feedback"`
	Messages   map[string]int64         `json:"messages"`
	Agents     map[string]int64         `json:"agents"`
	RateLimits []ratelimit.TierUsage    `json:"rate_limits"`
	Meta       adminMeta                `json:"meta"`
}

// AdminAnalytics aggregates the dashboard numbers over ?time_range=
// today, 7d or 30d. Message volume and rate limits are best effort.
func (h *Handler) AdminAnalytics(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rng := analytics.ParseRange(r.URL.Query().Get("time_range"))
	now := time.Now().UTC()
	report := adminReport{
		Messages:   map[string]int64{},
		RateLimits: []ratelimit.TierUsage{},
		Meta:       adminMeta{Range: rng, GeneratedAt: now},
	}

	var err error
	if report.Funnel, err = h.Analytics.FunnelTotals(ctx, rng.Days); err != nil {
		slog.Error("reading funnel totals", "range", rng.Name, "error", err)
		api.HandleError(w, api.ErrUnavailable)
		return
	}
	if report.Agents, err = h.Analytics.AgentTotals(ctx, rng.Days); err != nil {
		slog.Error("reading agent usage", "range", rng.Name, "error", err)
		api.HandleError(w, api.ErrUnavailable)
		return
	}
	if report.Feedback, err = h.Ratings.FeedbackStats(ctx); err != nil {
		slog.Error("loading feedback stats", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	if h.Volumes != nil {
		volume, err := h.Volumes.MessageVolume(ctx, now.AddDate(0, 0, 1-rng.Days), now)
		if err != nil {
			slog.Warn("message volume unavailable", "error", err)
		} else {
			report.Messages = volume
		}
	}
	if limits, err := h.Limits.GlobalStatus(ctx); err != nil {
		slog.Warn("rate limit status unavailable", "error", err)
	} else if limits != nil {
		report.RateLimits = limits
	}

	api.JSON(w, http.StatusOK, report)
}
