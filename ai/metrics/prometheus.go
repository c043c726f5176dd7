// Package metrics provides Prometheus metrics export for the assistant.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/grassrootshq/clubassist/ai/llm"
)

// Exporter exports assistant metrics in Prometheus format.
type Exporter struct {
	registry *prometheus.Registry

	chatRequests *prometheus.CounterVec
	chatLatency  prometheus.Histogram

	capabilityCalls   *prometheus.CounterVec
	capabilityLatency *prometheus.HistogramVec

	llmTokens  *prometheus.CounterVec
	llmLatency *prometheus.HistogramVec
}

var latencyBuckets = []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60}

// NewExporter creates an exporter backed by its own registry.
func NewExporter() *Exporter {
	registry := prometheus.NewRegistry()

	e := &Exporter{registry: registry}

	e.chatRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clubassist",
			Subsystem: "assistant",
			Name:      "chat_requests_total",
			Help:      "Total number of chat requests",
		},
		[]string{"status"},
	)

	e.chatLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "clubassist",
			Subsystem: "assistant",
			Name:      "chat_latency_seconds",
			Help:      "Chat request latency in seconds",
			Buckets:   latencyBuckets,
		},
	)

	e.capabilityCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clubassist",
			Subsystem: "assistant",
			Name:      "capability_calls_total",
			Help:      "Total number of capability invocations against the gateway",
		},
		[]string{"capability", "status"},
	)

	e.capabilityLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "clubassist",
			Subsystem: "assistant",
			Name:      "capability_latency_seconds",
			Help:      "Capability invocation latency in seconds",
			Buckets:   latencyBuckets,
		},
		[]string{"capability"},
	)

	e.llmTokens = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clubassist",
			Subsystem: "assistant",
			Name:      "llm_tokens_total",
			Help:      "Total LLM tokens consumed",
		},
		[]string{"stage", "token_type"},
	)

	e.llmLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "clubassist",
			Subsystem: "assistant",
			Name:      "llm_latency_seconds",
			Help:      "LLM request latency in seconds",
			Buckets:   latencyBuckets,
		},
		[]string{"stage"},
	)

	registry.MustRegister(
		e.chatRequests,
		e.chatLatency,
		e.capabilityCalls,
		e.capabilityLatency,
		e.llmTokens,
		e.llmLatency,
	)

	return e
}

// RecordChatRequest records one completed chat request.
func (e *Exporter) RecordChatRequest(status string, latency time.Duration) {
	e.chatRequests.WithLabelValues(status).Inc()
	e.chatLatency.Observe(latency.Seconds())
}

// RecordCapabilityCall records one capability invocation.
func (e *Exporter) RecordCapabilityCall(capability string, latency time.Duration, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	e.capabilityCalls.WithLabelValues(capability, status).Inc()
	e.capabilityLatency.WithLabelValues(capability).Observe(latency.Seconds())
}

// RecordLLMUsage records token usage and latency for one inference call.
// stage is "resolve" or "synthesize".
func (e *Exporter) RecordLLMUsage(stage string, stats *llm.CallStats) {
	if stats == nil {
		return
	}
	e.llmTokens.WithLabelValues(stage, "prompt").Add(float64(stats.PromptTokens))
	e.llmTokens.WithLabelValues(stage, "completion").Add(float64(stats.CompletionTokens))
	e.llmLatency.WithLabelValues(stage).Observe(float64(stats.TotalDurationMs) / 1000)
}

// Handler returns the HTTP handler for the metrics endpoint.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}
