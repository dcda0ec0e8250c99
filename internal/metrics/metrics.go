// Package metrics exposes Prometheus instruments for the inference server.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "phigo"

// Forward phases.
const (
	PhasePrompt = "prompt"
	PhaseDecode = "decode"
)

// Metrics holds every instrument on a private registry so tests and
// multiple servers in one process do not collide. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	reg *prometheus.Registry

	Requests        *prometheus.CounterVec
	PromptTokens    prometheus.Counter
	GeneratedTokens prometheus.Counter
	ForwardSeconds  *prometheus.HistogramVec
	ActiveSessions  prometheus.Gauge
	SessionLength   prometheus.Histogram
	CacheLength     prometheus.Histogram
	RateLimited     prometheus.Counter
}

// New registers the instruments together with the Go runtime and process
// collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)
	return &Metrics{
		reg: reg,
		Requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Chat completion requests by outcome.",
		}, []string{"status"}),
		PromptTokens: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "prompt_tokens_total",
			Help:      "Tokens consumed by prompt passes.",
		}),
		GeneratedTokens: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generated_tokens_total",
			Help:      "Tokens sampled per session, including the one from the prompt pass.",
		}),
		ForwardSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "forward_duration_seconds",
			Help:      "Wall time of one model forward pass.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 14),
		}, []string{"phase"}),
		ActiveSessions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Generation sessions currently holding a slot.",
		}),
		SessionLength: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_tokens",
			Help:      "Tokens generated per session.",
			Buckets:   []float64{1, 10, 50, 100, 250, 500, 1000, 2000},
		}),
		CacheLength: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_cache_positions",
			Help:      "Positions held in the KV cache when a session ends.",
			Buckets:   prometheus.ExponentialBuckets(16, 2, 9),
		}),
		RateLimited: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the rate limiter.",
		}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// ObserveForward records one forward pass over n input tokens.
func (m *Metrics) ObserveForward(phase string, n int, d time.Duration) {
	if m == nil {
		return
	}
	m.ForwardSeconds.WithLabelValues(phase).Observe(d.Seconds())
	if phase == PhasePrompt {
		m.PromptTokens.Add(float64(n))
	}
}

// ObserveRequest counts one finished request.
func (m *Metrics) ObserveRequest(status string) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(status).Inc()
}

// SessionStarted and SessionFinished bracket one generation.
func (m *Metrics) SessionStarted() {
	if m == nil {
		return
	}
	m.ActiveSessions.Inc()
}

// SessionFinished records the tokens a session sampled and the cache
// length it reached.
func (m *Metrics) SessionFinished(tokens, cachePositions int) {
	if m == nil {
		return
	}
	m.ActiveSessions.Dec()
	m.GeneratedTokens.Add(float64(tokens))
	m.SessionLength.Observe(float64(tokens))
	m.CacheLength.Observe(float64(cachePositions))
}

func (m *Metrics) ObserveRateLimited() {
	if m == nil {
		return
	}
	m.RateLimited.Inc()
}
