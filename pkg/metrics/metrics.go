// Package metrics provides Prometheus metrics for the rewatch service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Option applies a configuration option to the Metrics.
type Option func(*Metrics)

// WithNamespace sets the namespace for all metrics.
func WithNamespace(namespace string) Option {
	return func(m *Metrics) {
		if namespace != "" {
			m.namespace = namespace
		}
	}
}

// WithRegistry sets the Prometheus registry metrics are registered on.
func WithRegistry(registry prometheus.Registerer) Option {
	return func(m *Metrics) {
		if registry != nil {
			m.registry = registry
		}
	}
}

// Metrics holds every collector the service exports. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	namespace string
	registry  prometheus.Registerer

	cycles         prometheus.Counter
	cycleDuration  prometheus.Histogram
	gamesScored    *prometheus.CounterVec
	scores         *prometheus.HistogramVec
	awaitingData   *prometheus.CounterVec
	published      *prometheus.CounterVec
	publishErrors  *prometheus.CounterVec
	fetchErrors    *prometheus.CounterVec
	fallbacks      *prometheus.CounterVec
	ledgerPruned   prometheus.Counter
	ledgerEntries  prometheus.Gauge
	httpRequests   *prometheus.CounterVec
	httpDurationMs *prometheus.HistogramVec
}

// New creates and registers the collectors.
func New(opts ...Option) *Metrics {
	m := &Metrics{
		namespace: "rewatch",
		registry:  prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}

	auto := promauto.With(m.registry)

	m.cycles = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "poll_cycles_total",
		Help:      "Total number of polling cycles run",
	})
	m.cycleDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Name:      "poll_cycle_duration_seconds",
		Help:      "Wall time of one polling cycle",
		Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
	})
	m.gamesScored = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "games_scored_total",
		Help:      "Final games scored from a win-probability series",
	}, []string{"sport"})
	m.scores = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Name:      "rewatchability_score",
		Help:      "Distribution of rewatchability scores",
		Buckets:   []float64{40, 50, 60, 70, 80, 90, 95, 99, 100},
	}, []string{"sport"})
	m.awaitingData = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "games_awaiting_data_total",
		Help:      "Final games skipped because win probability was not yet published",
	}, []string{"sport"})
	m.published = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "games_published_total",
		Help:      "Games published to at least one destination",
	}, []string{"sport", "reason"})
	m.publishErrors = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "publish_errors_total",
		Help:      "Games no destination accepted",
	}, []string{"sport"})
	m.fetchErrors = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "fetch_errors_total",
		Help:      "Failed calls to external data sources",
	}, []string{"sport", "op"})
	m.fallbacks = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "fallback_verdicts_total",
		Help:      "Outcomes of the best-of-night fallback check",
	}, []string{"sport", "verdict"})
	m.ledgerPruned = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "ledger_pruned_total",
		Help:      "Ledger entries removed by pruning",
	})
	m.ledgerEntries = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Name:      "ledger_entries",
		Help:      "Delivered ids currently held in the ledger",
	})
	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "http_requests_total",
		Help:      "HTTP API requests",
	}, []string{"route", "code"})
	m.httpDurationMs = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Name:      "http_request_duration_ms",
		Help:      "HTTP API latency in milliseconds",
		Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 1000},
	}, []string{"route"})

	return m
}

func (m *Metrics) CycleDone(d time.Duration) {
	if m == nil {
		return
	}
	m.cycles.Inc()
	m.cycleDuration.Observe(d.Seconds())
}

func (m *Metrics) GameScored(sport string, score int) {
	if m == nil {
		return
	}
	m.gamesScored.WithLabelValues(sport).Inc()
	m.scores.WithLabelValues(sport).Observe(float64(score))
}

func (m *Metrics) AwaitingData(sport string) {
	if m == nil {
		return
	}
	m.awaitingData.WithLabelValues(sport).Inc()
}

func (m *Metrics) Published(sport, reason string) {
	if m == nil {
		return
	}
	m.published.WithLabelValues(sport, reason).Inc()
}

func (m *Metrics) PublishFailed(sport string) {
	if m == nil {
		return
	}
	m.publishErrors.WithLabelValues(sport).Inc()
}

func (m *Metrics) FetchFailed(sport, op string) {
	if m == nil {
		return
	}
	m.fetchErrors.WithLabelValues(sport, op).Inc()
}

func (m *Metrics) Fallback(sport, verdict string) {
	if m == nil {
		return
	}
	m.fallbacks.WithLabelValues(sport, verdict).Inc()
}

func (m *Metrics) LedgerPruned(n int, remaining int) {
	if m == nil {
		return
	}
	m.ledgerPruned.Add(float64(n))
	m.ledgerEntries.Set(float64(remaining))
}

func (m *Metrics) HTTPRequest(route string, code int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, codeLabel(code)).Inc()
	m.httpDurationMs.WithLabelValues(route).Observe(float64(d.Microseconds()) / 1000)
}

func codeLabel(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
