package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookingbot_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bookingbot_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	AgentRoutesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookingbot_agent_routes_total",
			Help: "Turns routed to each agent, by routing source.",
		},
		[]string{"agent", "source"},
	)

	ToolCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookingbot_tool_calls_total",
			Help: "Tool executions by tool and outcome (ok, error, fallback, unknown).",
		},
		[]string{"tool", "outcome"},
	)

	LLMCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookingbot_llm_calls_total",
			Help: "LLM provider calls by model and status.",
		},
		[]string{"model", "status"},
	)

	LLMCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bookingbot_llm_call_duration_seconds",
			Help:    "LLM provider call latency in seconds.",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32, 64},
		},
		[]string{"model"},
	)

	AgentIterations = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bookingbot_agent_iterations",
			Help:    "Tool-loop iterations per agent turn.",
			Buckets: []float64{1, 2, 3, 4, 6, 8, 10, 15},
		},
		[]string{"agent"},
	)

	RateLimitRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookingbot_rate_limit_rejections_total",
			Help: "Requests rejected by the rate limiter, by tier.",
		},
		[]string{"tier"},
	)

	SummarizationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookingbot_summarizations_total",
			Help: "Conversation compactions by outcome (summarized, truncated).",
		},
		[]string{"outcome"},
	)

	FollowUpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookingbot_followups_total",
			Help: "Follow-ups processed by type and outcome.",
		},
		[]string{"type", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		AgentRoutesTotal,
		ToolCallsTotal,
		LLMCallsTotal,
		LLMCallDuration,
		AgentIterations,
		RateLimitRejectionsTotal,
		SummarizationsTotal,
		FollowUpsTotal,
	)
}
