//go:build integration

package integration

import (
	"context"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aiox-platform/bookingbot/internal/booking"
	"github.com/aiox-platform/bookingbot/internal/chat"
	"github.com/aiox-platform/bookingbot/internal/llm/llmtest"
	"github.com/aiox-platform/bookingbot/internal/messagelog"
)

func TestChat_RequiresAPIKey(t *testing.T) {
	env := SetupChat(t)

	resp := DoRequest(t, env, http.MethodPost, "/chat", map[string]string{"user_id": "u1", "message": "hi"}, "")
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = DoRequest(t, env, http.MethodGet, "/health/ready", nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestChat_TurnIsPersisted(t *testing.T) {
	env := SetupChat(t,
		llmtest.Text(`{"agent": "default"}`),
		llmtest.Text("Hi! I help you find rental rooms and PGs."),
	)
	userID := "web-" + uuid.NewString()

	resp := DoRequest(t, env, http.MethodPost, "/chat", map[string]string{
		"user_id": userID,
		"message": "hello, who are you?",
	}, testAPIKey)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := ParseResponse(t, resp)
	data := body["data"].(map[string]any)
	assert.Equal(t, "Hi! I help you find rental rooms and PGs.", data["response"])
	assert.Equal(t, "default", data["agent"])

	history, err := env.Convs.Get(context.Background(), userID)
	require.NoError(t, err)
	assert.Len(t, history, 2)

	msgs, err := env.Messages.ListThread(context.Background(), userID, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, messagelog.SentByUser, msgs[0].SentBy)
	assert.Equal(t, "hello, who are you?", msgs[0].Text)
	assert.Equal(t, messagelog.PlatformAPI, msgs[1].Platform)
}

func TestChat_Feedback(t *testing.T) {
	env := SetupChat(t)

	resp := DoRequest(t, env, http.MethodPost, "/feedback", map[string]string{
		"user_id": "fb-http",
		"rating":  "UP",
		"agent":   "broker",
	}, testAPIKey)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp = DoRequest(t, env, http.MethodPost, "/feedback", map[string]string{
		"user_id": "fb-http",
		"rating":  "meh",
	}, testAPIKey)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = DoRequest(t, env, http.MethodGet, "/feedback/stats", nil, testAPIKey)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	stats := ParseResponse(t, resp)["data"].(map[string]any)
	assert.GreaterOrEqual(t, stats["up"].(float64), float64(1))
}

func TestChat_PaymentWebhookAndAnalytics(t *testing.T) {
	env := SetupChat(t)
	ctx := context.Background()
	userID := "web-" + uuid.NewString()

	_, err := env.Bookings.Fire(ctx, userID, booking.EventPaymentLinkCreated, booking.Property{ID: "p1", Name: "Sunrise Residency"})
	require.NoError(t, err)

	resp := DoRequest(t, env, http.MethodPost, "/webhook/payment", map[string]string{
		"user_id": userID,
		"pg_id":   "pg-p1",
		"status":  "success",
	}, testAPIKey)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data := ParseResponse(t, resp)["data"].(map[string]any)
	assert.Equal(t, true, data["booking_advanced"])

	rec, err := env.Bookings.Get(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, booking.PaymentVerified, rec.State)

	history, err := env.Convs.Get(ctx, userID)
	require.NoError(t, err)
	require.NotEmpty(t, history)
	assert.Equal(t, chat.PaymentConfirmedText, history[len(history)-1].Text())

	resp = DoRequest(t, env, http.MethodGet, "/funnel", nil, testAPIKey)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	funnel := ParseResponse(t, resp)["data"].(map[string]any)
	stages := funnel["stages"].(map[string]any)
	assert.GreaterOrEqual(t, stages["booking"].(float64), 1.0)

	resp = DoRequest(t, env, http.MethodGet, "/admin/analytics?time_range=today", nil, testAPIKey)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	report := ParseResponse(t, resp)["data"].(map[string]any)
	for _, key := range []string{"funnel", "feedback", "messages", "agents", "rate_limits", "meta"} {
		assert.Contains(t, report, key)
	}
	assert.Equal(t, "today", report["meta"].(map[string]any)["range"])
}
