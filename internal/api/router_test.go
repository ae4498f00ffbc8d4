package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ok(w http.ResponseWriter, r *http.Request) { JSON(w, http.StatusOK, "ok") }

func handlers() HandlerSet {
	return HandlerSet{
		Chat: ok, ChatStream: ok, Feedback: ok, FeedbackStats: ok,
		SetLanguage: ok, RateLimitStatus: ok, RunFollowUps: ok,
		PaymentWebhook: ok, Funnel: ok, AdminAnalytics: ok,
	}
}

func TestReadiness(t *testing.T) {
	tests := []struct {
		name       string
		checks     map[string]Check
		wantStatus int
		want       map[string]string
	}{
		{
			name: "all healthy",
			checks: map[string]Check{
				"redis":    func(context.Context) error { return nil },
				"database": func(context.Context) error { return nil },
				"nats":     nil,
			},
			wantStatus: http.StatusOK,
			want:       map[string]string{"status": "healthy", "redis": "healthy", "database": "healthy", "nats": "not configured"},
		},
		{
			name: "redis down",
			checks: map[string]Check{
				"redis":    func(context.Context) error { return errors.New("dial tcp: refused") },
				"database": func(context.Context) error { return nil },
			},
			wantStatus: http.StatusServiceUnavailable,
			want:       map[string]string{"status": "degraded", "redis": "unhealthy", "database": "healthy"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := NewRouter(RouterConfig{Readiness: tt.checks}, handlers())
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

			assert.Equal(t, tt.wantStatus, rec.Code)
			var body struct {
				Data map[string]string `json:"data"`
			}
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.Equal(t, tt.want, body.Data)
		})
	}
}

func TestAuthMiddlewareSkipsHealth(t *testing.T) {
	h := handlers()
	h.AuthMiddleware = func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			HandleError(w, ErrUnauthorized)
		})
	}
	router := NewRouter(RouterConfig{}, h)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/chat", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAnalyticsRoutesRequireAuth(t *testing.T) {
	h := handlers()
	h.AuthMiddleware = func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("X-API-Key") != "secret" {
				HandleError(w, ErrUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
	router := NewRouter(RouterConfig{}, h)

	routes := []struct{ method, path string }{
		{http.MethodPost, "/webhook/payment"},
		{http.MethodGet, "/funnel"},
		{http.MethodGet, "/admin/analytics"},
	}
	for _, rt := range routes {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(rt.method, rt.path, nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code, rt.path)

		req := httptest.NewRequest(rt.method, rt.path, nil)
		req.Header.Set("X-API-Key", "secret")
		rec = httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code, rt.path)
	}
}
