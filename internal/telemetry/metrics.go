// Package telemetry wires Prometheus metrics and OpenTelemetry tracing for
// the gateway's ambient stack.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds every Prometheus metric the gateway emits.
type Collector struct {
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	parseRequestsTotal *prometheus.CounterVec
	parseModeTotal     *prometheus.CounterVec

	upstreamRequestsTotal   *prometheus.CounterVec
	upstreamRequestDuration *prometheus.HistogramVec
	upstreamTokensUsed      *prometheus.CounterVec

	rateLimitRejectionsTotal *prometheus.CounterVec

	streamFirstByteDuration *prometheus.HistogramVec
}

// NewCollector registers every metric under namespace and returns the
// Collector used to record them.
func NewCollector(namespace string) *Collector {
	return &Collector{
		httpRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests handled.",
		}, []string{"method", "path", "status"}),

		httpRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),

		parseRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "parse_requests_total",
			Help:      "Total number of /v1/parse requests by mode and outcome.",
		}, []string{"mode", "status"}),

		parseModeTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "parse_cascade_attempts_total",
			Help:      "Total number of local parser cascade attempts by parser and outcome.",
		}, []string{"parser", "status"}),

		upstreamRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_requests_total",
			Help:      "Total number of upstream provider calls by provider, tier, and status.",
		}, []string{"provider", "tier", "status"}),

		upstreamRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_request_duration_seconds",
			Help:      "Upstream provider call duration in seconds.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20},
		}, []string{"provider", "tier"}),

		upstreamTokensUsed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_tokens_total",
			Help:      "Total tokens consumed by upstream calls.",
		}, []string{"provider", "type"}),

		rateLimitRejectionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_rejections_total",
			Help:      "Total number of requests rejected by the rate limiter.",
		}, []string{"path"}),

		streamFirstByteDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stream_first_byte_seconds",
			Help:      "Time to first upstream byte for streaming requests.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}, []string{"provider"}),
	}
}

// RecordHTTPRequest records a completed HTTP request.
func (c *Collector) RecordHTTPRequest(method, path string, status int, d time.Duration) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusClass(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(d.Seconds())
}

// RecordParseRequest records a finished /v1/parse request.
func (c *Collector) RecordParseRequest(mode, status string) {
	c.parseRequestsTotal.WithLabelValues(mode, status).Inc()
}

// RecordCascadeAttempt records one cascade entry's outcome.
func (c *Collector) RecordCascadeAttempt(parser, status string) {
	c.parseModeTotal.WithLabelValues(parser, status).Inc()
}

// RecordUpstreamCall records a completed upstream provider call.
func (c *Collector) RecordUpstreamCall(provider, tier, status string, d time.Duration, promptTokens, completionTokens int) {
	c.upstreamRequestsTotal.WithLabelValues(provider, tier, status).Inc()
	c.upstreamRequestDuration.WithLabelValues(provider, tier).Observe(d.Seconds())
	c.upstreamTokensUsed.WithLabelValues(provider, "prompt").Add(float64(promptTokens))
	c.upstreamTokensUsed.WithLabelValues(provider, "completion").Add(float64(completionTokens))
}

// RecordRateLimitRejection records a 429 from the rate limiter.
func (c *Collector) RecordRateLimitRejection(path string) {
	c.rateLimitRejectionsTotal.WithLabelValues(path).Inc()
}

// RecordStreamFirstByte records time-to-first-byte for a streaming call.
func (c *Collector) RecordStreamFirstByte(provider string, d time.Duration) {
	c.streamFirstByteDuration.WithLabelValues(provider).Observe(d.Seconds())
}

func statusClass(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
