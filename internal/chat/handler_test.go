package chat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aiox-platform/bookingbot/internal/agent"
	"github.com/aiox-platform/bookingbot/internal/followup"
	"github.com/aiox-platform/bookingbot/internal/messagelog"
	"github.com/aiox-platform/bookingbot/internal/pipeline"
	"github.com/aiox-platform/bookingbot/internal/ratelimit"
	"github.com/aiox-platform/bookingbot/internal/uiparts"
)

type fakeTurns struct {
	got    pipeline.Request
	err    error
	events []agent.Event
	result *pipeline.Result
}

func (f *fakeTurns) Handle(_ context.Context, req pipeline.Request) (*pipeline.Result, error) {
	f.got = req
	return f.result, f.err
}

func (f *fakeTurns) Stream(_ context.Context, req pipeline.Request, emit func(agent.Event) error) (*pipeline.Result, error) {
	f.got = req
	if f.err != nil {
		return nil, f.err
	}
	for _, ev := range f.events {
		_ = emit(ev)
	}
	return f.result, nil
}

type fakeRatings struct {
	saved []messagelog.Feedback
}

func (f *fakeRatings) InsertFeedback(_ context.Context, fb *messagelog.Feedback) error {
	f.saved = append(f.saved, *fb)
	return nil
}

func (f *fakeRatings) FeedbackStats(context.Context) (messagelog.FeedbackStats, error) {
	return messagelog.FeedbackStats{RatingCounts: messagelog.RatingCounts{Up: 4, Down: 1}, Total: 5}, nil
}

type fakeLanguages map[string]string

func (f fakeLanguages) SetLanguage(_ context.Context, userID, lang string) error {
	f[userID] = lang
	return nil
}

type fakeLimits struct{}

func (fakeLimits) Status(context.Context, string) ([]ratelimit.TierUsage, error) {
	return []ratelimit.TierUsage{{Tier: "user_minute", Used: 2, Limit: 6, Window: 60}}, nil
}

func (fakeLimits) GlobalStatus(context.Context) ([]ratelimit.TierUsage, error) {
	return []ratelimit.TierUsage{{Tier: "global_minute", Used: 7, Limit: 100, Window: 60}}, nil
}

type fakeSweeper struct{ err error }

func (f fakeSweeper) Sweep(context.Context) (followup.Report, error) {
	return followup.Report{Processed: 2, Pending: 1}, f.err
}

func reply() *pipeline.Result {
	return &pipeline.Result{
		Response: "Here are 2 places in Andheri.",
		Agent:    "broker",
		Parts:    []uiparts.Part{{Type: "text", Markdown: "Here are 2 places in Andheri."}},
		Locale:   "en",
	}
}

func newHandler(turns *fakeTurns) (*Handler, *fakeRatings, fakeLanguages) {
	ratings := &fakeRatings{}
	langs := fakeLanguages{}
	return NewHandler(Deps{
		Turns:     turns,
		Ratings:   ratings,
		Languages: langs,
		Limits:    fakeLimits{},
		FollowUps: fakeSweeper{},
	}), ratings, langs
}

func post(h http.HandlerFunc, path, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodPost, path, strings.NewReader(body)))
	return rec
}

func TestChat(t *testing.T) {
	turns := &fakeTurns{result: reply()}
	h, _, _ := newHandler(turns)

	rec := post(h.Chat, "/chat", `{"user_id":"u1","message":"pg in andheri","account_values":{"pg_ids":["pg-a"]}}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data pipeline.Result `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "broker", body.Data.Agent)
	assert.Equal(t, "en", body.Data.Locale)
	assert.Len(t, body.Data.Parts, 1)

	assert.Equal(t, ChannelAPI, turns.got.Channel)
	assert.Equal(t, []any{"pg-a"}, turns.got.AccountValues["pg_ids"])
}

func TestChat_Errors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		err        error
		wantStatus int
	}{
		{"malformed json", `{`, nil, http.StatusBadRequest},
		{"validation", `{}`, &pipeline.ValidationError{Err: errors.New("message required")}, http.StatusBadRequest},
		{"duplicate", `{"user_id":"u1","message":"hi"}`, pipeline.ErrDuplicate, http.StatusConflict},
		{"unexpected", `{"user_id":"u1","message":"hi"}`, errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _, _ := newHandler(&fakeTurns{err: tt.err})
			rec := post(h.Chat, "/chat", tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestChat_RateLimited(t *testing.T) {
	h, _, _ := newHandler(&fakeTurns{err: &ratelimit.ExceededError{Tier: "user_minute", Limit: 6, RetryAfter: 42}})

	rec := post(h.Chat, "/chat", `{"user_id":"u1","message":"hi"}`)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "42", rec.Header().Get("Retry-After"))

	var body map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "user_minute", body["tier"])
	assert.Equal(t, float64(42), body["retry_after"])
	assert.Equal(t, float64(6), body["limit"])
	assert.Contains(t, body["detail"], "Try again in 42s")
}

type sseEvent struct {
	name string
	data map[string]any
}

func parseSSE(t *testing.T, raw string) []sseEvent {
	t.Helper()
	var out []sseEvent
	for _, block := range strings.Split(strings.TrimSpace(raw), "\n\n") {
		var ev sseEvent
		for _, line := range strings.Split(block, "\n") {
			switch {
			case strings.HasPrefix(line, "event: "):
				ev.name = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev.data))
			}
		}
		out = append(out, ev)
	}
	return out
}

func TestStream(t *testing.T) {
	turns := &fakeTurns{
		result: reply(),
		events: []agent.Event{
			{Type: agent.EventAgentStart, Agent: agent.Broker, Locale: "en"},
			{Type: agent.EventToolStart, Tool: "search_properties"},
			{Type: agent.EventToolDone, Tool: "search_properties"},
			{Type: agent.EventContentDelta, Text: "Here are 2 places in Andheri."},
		},
	}
	h, _, _ := newHandler(turns)

	rec := post(h.Stream, "/chat/stream", `{"user_id":"u1","message":"pg in andheri"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no", rec.Header().Get("X-Accel-Buffering"))

	events := parseSSE(t, rec.Body.String())
	names := make([]string, len(events))
	for i, ev := range events {
		names[i] = ev.name
	}
	assert.Equal(t, []string{"agent_start", "tool_start", "tool_done", "content_delta", "done"}, names)
	assert.Equal(t, "broker", events[0].data["agent"])
	assert.Equal(t, "search_properties", events[1].data["tool"])
	assert.Equal(t, "Here are 2 places in Andheri.", events[3].data["text"])

	done := events[4].data
	assert.Equal(t, "broker", done["agent"])
	assert.Equal(t, "Here are 2 places in Andheri.", done["full_response"])
	assert.Equal(t, "en", done["locale"])
	assert.Len(t, done["parts"], 1)
}

func TestStream_AdmissionErrorIsJSON(t *testing.T) {
	h, _, _ := newHandler(&fakeTurns{err: &ratelimit.ExceededError{Tier: "global_minute", Limit: 100, RetryAfter: 3}})

	rec := post(h.Stream, "/chat/stream", `{"user_id":"u1","message":"hi"}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestFeedback(t *testing.T) {
	h, ratings, _ := newHandler(&fakeTurns{})

	rec := post(h.Feedback, "/feedback", `{"user_id":"u1","message_snippet":"Here are 2 places","rating":"UP","agent":"broker"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, ratings.saved, 1)
	assert.Equal(t, messagelog.RatingUp, ratings.saved[0].Rating)

	rec = post(h.Feedback, "/feedback", `{"user_id":"u1","rating":"meh"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Len(t, ratings.saved, 1)
}

func TestFeedbackStats(t *testing.T) {
	h, _, _ := newHandler(&fakeTurns{})
	rec := httptest.NewRecorder()
	h.FeedbackStats(rec, httptest.NewRequest(http.MethodGet, "/feedback/stats", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"up":4`)
	assert.Contains(t, rec.Body.String(), `"total":5`)
}

func TestSetLanguage(t *testing.T) {
	h, _, langs := newHandler(&fakeTurns{})

	rec := post(h.SetLanguage, "/language", `{"user_id":"u1","language":"mr"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "mr", langs["u1"])

	rec = post(h.SetLanguage, "/language", `{"user_id":"u1","language":"fr"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRateLimitStatus(t *testing.T) {
	h, _, _ := newHandler(&fakeTurns{})

	rec := httptest.NewRecorder()
	h.RateLimitStatus(rec, httptest.NewRequest(http.MethodGet, "/rate-limit/status?user_id=u1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"tier":"user_minute"`)

	rec = httptest.NewRecorder()
	h.RateLimitStatus(rec, httptest.NewRequest(http.MethodGet, "/rate-limit/status", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRunFollowUps(t *testing.T) {
	h, _, _ := newHandler(&fakeTurns{})
	rec := post(h.RunFollowUps, "/cron/follow-ups", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"processed":2`)

	h.FollowUps = fakeSweeper{err: errors.New("redis down")}
	rec = post(h.RunFollowUps, "/cron/follow-ups", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
