package fetch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeSuccess   = "success"
	outcomeTransport = "transport_error"
	outcomeParse     = "parse_error"
)

type Metrics struct {
	attempts   *prometheus.CounterVec
	exhausted  *prometheus.CounterVec
	retryDelay prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		attempts: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qwatch_fetch_attempts_total",
				Help: "HTTP fetch attempts by endpoint path and outcome",
			},
			[]string{"path", "outcome"},
		),
		exhausted: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qwatch_fetch_exhausted_total",
				Help: "Fetches that failed on every attempt",
			},
			[]string{"path"},
		),
		retryDelay: f.NewCounter(
			prometheus.CounterOpts{
				Name: "qwatch_fetch_retry_wait_seconds_total",
				Help: "Total time spent waiting between fetch attempts",
			},
		),
	}
}

func (m *Metrics) observeAttempt(path, outcome string) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(path, outcome).Inc()
}

func (m *Metrics) observeExhausted(path string) {
	if m == nil {
		return
	}
	m.exhausted.WithLabelValues(path).Inc()
}

func (m *Metrics) observeWait(seconds float64) {
	if m == nil {
		return
	}
	m.retryDelay.Add(seconds)
}
