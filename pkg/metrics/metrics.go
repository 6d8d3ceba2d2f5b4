// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// BackendRequestDuration tracks completion request duration.
	BackendRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "llm_request_duration_seconds",
			Help:    "LLM completion request duration",
			Buckets: []float64{.25, .5, 1, 2, 5, 10, 20, 30, 60, 120},
		},
		[]string{"backend", "kind", "status"},
	)

	// BackendRequestsTotal tracks completion requests by kind.
	BackendRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_requests_total",
			Help: "Total LLM completion requests",
		},
		[]string{"backend", "kind", "status"},
	)

	// LLMTokensTotal tracks total LLM tokens processed.
	LLMTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_tokens_total",
			Help: "Total LLM tokens processed",
		},
		[]string{"backend", "direction"},
	)

	// PromptBudgetTokens tracks the history budget available per request.
	PromptBudgetTokens = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "prompt_budget_tokens",
			Help:    "Tokens available for composed history per request",
			Buckets: prometheus.ExponentialBuckets(256, 2, 10),
		},
	)

	// TurnsTotal tracks completed turns by outcome.
	TurnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "turns_total",
			Help: "Total conversation turns",
		},
		[]string{"outcome"},
	)

	// TurnDuration tracks turn duration including auto-call rounds.
	TurnDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "turn_duration_seconds",
			Help:    "Conversation turn duration",
			Buckets: []float64{.5, 1, 2, 5, 10, 20, 30, 60, 120, 300},
		},
		[]string{"outcome"},
	)

	// FunctionCallsTotal tracks function resolutions by outcome.
	FunctionCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "function_calls_total",
			Help: "Total function requests resolved",
		},
		[]string{"function", "outcome"},
	)

	// FunctionCacheLookups tracks function cache hits and misses.
	FunctionCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "function_cache_lookups_total",
			Help: "Function cache lookups",
		},
		[]string{"result"},
	)

	// ContextUpdatesTotal tracks context updates by manager.
	ContextUpdatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "context_updates_total",
			Help: "Context keys written by context managers",
		},
		[]string{"manager"},
	)

	// SessionsActive tracks live conversation sessions.
	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sessions_active",
			Help: "Number of active conversation sessions",
		},
	)

	// NATSPublishedTotal tracks messages published to NATS.
	NATSPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nats_published_total",
			Help: "Messages published to NATS",
		},
		[]string{"kind", "status"},
	)

	// ConversationsTotal tracks total conversations created.
	ConversationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conversations_total",
			Help: "Total conversations created",
		},
		[]string{"tenant_id"},
	)

	// MessagesTotal tracks total messages sent.
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_total",
			Help: "Total messages sent",
		},
		[]string{"tenant_id", "role"},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordBackendRequest records metrics for one completion request.
func RecordBackendRequest(backend, kind, status string, duration float64, tokensIn, tokensOut int) {
	BackendRequestDuration.WithLabelValues(backend, kind, status).Observe(duration)
	BackendRequestsTotal.WithLabelValues(backend, kind, status).Inc()
	LLMTokensTotal.WithLabelValues(backend, "in").Add(float64(tokensIn))
	LLMTokensTotal.WithLabelValues(backend, "out").Add(float64(tokensOut))
}

// RecordTurn records metrics for a finished turn.
func RecordTurn(outcome string, duration float64) {
	TurnsTotal.WithLabelValues(outcome).Inc()
	TurnDuration.WithLabelValues(outcome).Observe(duration)
}

// RecordFunctionCall records one function resolution.
func RecordFunctionCall(function, outcome string) {
	FunctionCallsTotal.WithLabelValues(function, outcome).Inc()
}

// RecordCacheLookup records a function cache hit or miss.
func RecordCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	FunctionCacheLookups.WithLabelValues(result).Inc()
}

// RecordPublish records a NATS publish attempt.
func RecordPublish(kind string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	NATSPublishedTotal.WithLabelValues(kind, status).Inc()
}
