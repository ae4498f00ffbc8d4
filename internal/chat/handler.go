// Package chat exposes the conversation pipeline and its admin helpers over
// HTTP.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/aiox-platform/bookingbot/internal/agent"
	"github.com/aiox-platform/bookingbot/internal/api"
	"github.com/aiox-platform/bookingbot/internal/followup"
	"github.com/aiox-platform/bookingbot/internal/messagelog"
	"github.com/aiox-platform/bookingbot/internal/pipeline"
	"github.com/aiox-platform/bookingbot/internal/ratelimit"
)

// ChannelAPI tags exchanges that arrived over HTTP.
const ChannelAPI = "api"

// Turns runs chat turns.
type Turns interface {
	Handle(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
	Stream(ctx context.Context, req pipeline.Request, emit func(agent.Event) error) (*pipeline.Result, error)
}

type FeedbackStore interface {
	InsertFeedback(ctx context.Context, f *messagelog.Feedback) error
	FeedbackStats(ctx context.Context) (messagelog.FeedbackStats, error)
}

type LanguageStore interface {
	SetLanguage(ctx context.Context, userID, lang string) error
}

type LimitReporter interface {
	Status(ctx context.Context, userID string) ([]ratelimit.TierUsage, error)
	GlobalStatus(ctx context.Context) ([]ratelimit.TierUsage, error)
}

type FollowUpSweeper interface {
	Sweep(ctx context.Context) (followup.Report, error)
}

type Deps struct {
	Turns     Turns
	Ratings   FeedbackStore
	Languages LanguageStore
	Limits    LimitReporter
	FollowUps FollowUpSweeper

	Payments      PaymentConfirmer
	Conversations ConversationAppender
	Analytics     AnalyticsReader
	// Volumes is optional; without it the admin report has no message volume.
	Volumes VolumeReader
}

type Handler struct {
	Deps
	validate *validator.Validate
}

func NewHandler(d Deps) *Handler {
	return &Handler{Deps: d, validate: validator.New()}
}

func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeTurn(w, r)
	if !ok {
		return
	}
	res, err := h.Turns.Handle(r.Context(), req)
	if err != nil {
		writeTurnError(w, req.UserID, err)
		return
	}
	api.JSON(w, http.StatusOK, res)
}

func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeTurn(w, r)
	if !ok {
		return
	}
	sse, err := newSSEWriter(w)
	if err != nil {
		slog.Error("streaming unsupported by response writer", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	res, err := h.Turns.Stream(r.Context(), req, sse.event)
	if err != nil {
		if !sse.started {
			writeTurnError(w, req.UserID, err)
			return
		}
		slog.Error("stream turn failed after start", "user_id", req.UserID, "error", err)
		_ = sse.send(string(agent.EventError), textPayload{Text: agent.TemporaryIssueText})
		return
	}
	if err := sse.send(string(agent.EventDone), donePayload{
		Agent:        res.Agent,
		FullResponse: res.Response,
		Parts:        res.Parts,
		Locale:       res.Locale,
	}); err != nil {
		slog.Warn("stream consumer gone before done", "user_id", req.UserID, "error", err)
	}
}

func decodeTurn(w http.ResponseWriter, r *http.Request) (pipeline.Request, bool) {
	var req pipeline.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.NewBadRequestError("user_id and message are required"))
		return req, false
	}
	req.Channel = ChannelAPI
	return req, true
}

type rateLimitBody struct {
	Detail     string `json:"detail"`
	RetryAfter int    `json:"retry_after"`
	Tier       string `json:"tier"`
	Limit      int    `json:"limit"`
}

func writeTurnError(w http.ResponseWriter, userID string, err error) {
	var ve *pipeline.ValidationError
	var exceeded *ratelimit.ExceededError
	switch {
	case errors.As(err, &ve):
		api.HandleError(w, api.NewValidationError(ve.Error()))
	case errors.As(err, &exceeded):
		w.Header().Set("Retry-After", strconv.Itoa(exceeded.RetryAfter))
		api.Raw(w, http.StatusTooManyRequests, rateLimitBody{
			Detail:     fmt.Sprintf("Rate limit exceeded (%s). Try again in %ds.", exceeded.Tier, exceeded.RetryAfter),
			RetryAfter: exceeded.RetryAfter,
			Tier:       exceeded.Tier,
			Limit:      exceeded.Limit,
		})
	case errors.Is(err, pipeline.ErrDuplicate):
		api.HandleError(w, api.ErrDuplicate)
	default:
		slog.Error("chat turn failed", "user_id", userID, "error", err)
		api.HandleError(w, api.ErrInternalServer)
	}
}

func (h *Handler) Feedback(w http.ResponseWriter, r *http.Request) {
	var f messagelog.Feedback
	if err := json.NewDecoder(r.Body).Decode(&f); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}
	f.UserID = strings.TrimSpace(f.UserID)
	f.Rating = strings.ToLower(strings.TrimSpace(f.Rating))
	if err := h.validate.Struct(f); err != nil {
		api.HandleError(w, api.NewValidationError("rating must be 'up' or 'down' and user_id is required"))
		return
	}
	if err := h.Ratings.InsertFeedback(r.Context(), &f); err != nil {
		slog.Error("saving feedback", "user_id", f.UserID, "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	api.JSON(w, http.StatusCreated, map[string]string{"status": "ok", "id": f.ID.String()})
}

func (h *Handler) FeedbackStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Ratings.FeedbackStats(r.Context())
	if err != nil {
		slog.Error("loading feedback stats", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	api.JSON(w, http.StatusOK, stats)
}

type languageRequest struct {
	UserID   string `json:"user_id" validate:"required,max=128"`
	Language string `json:"language" validate:"required,oneof=en hi mr"`
}

func (h *Handler) SetLanguage(w http.ResponseWriter, r *http.Request) {
	var req languageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}
	req.Language = strings.ToLower(strings.TrimSpace(req.Language))
	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError("language must be 'en', 'hi', or 'mr'"))
		return
	}
	if err := h.Languages.SetLanguage(r.Context(), req.UserID, req.Language); err != nil {
		slog.Error("storing language", "user_id", req.UserID, "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	api.JSON(w, http.StatusOK, map[string]string{"status": "ok", "language": req.Language})
}

func (h *Handler) RateLimitStatus(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
	if userID == "" {
		api.HandleError(w, api.NewBadRequestError("user_id is required"))
		return
	}
	usage, err := h.Limits.Status(r.Context(), userID)
	if err != nil {
		slog.Error("reading rate limit status", "user_id", userID, "error", err)
		api.HandleError(w, api.ErrUnavailable)
		return
	}
	api.JSON(w, http.StatusOK, map[string]any{"user_id": userID, "tiers": usage})
}

func (h *Handler) RunFollowUps(w http.ResponseWriter, r *http.Request) {
	report, err := h.FollowUps.Sweep(r.Context())
	if err != nil {
		slog.Error("follow-up sweep failed", "error", err)
		api.HandleError(w, api.ErrUnavailable)
		return
	}
	api.JSON(w, http.StatusOK, report)
}
