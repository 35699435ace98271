package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/izzyreal/qwatch/internal/protocol"
)

type serverMetrics struct {
	gatherer     prometheus.Gatherer
	jobs         *prometheus.GaugeVec
	processed    prometheus.Gauge
	successRate  prometheus.Gauge
	samples      prometheus.Counter
	sampleErrors prometheus.Counter
}

func newServerMetrics(reg *prometheus.Registry) *serverMetrics {
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)
	return &serverMetrics{
		gatherer: reg,
		jobs: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "qwatch_queue_jobs",
			Help: "Jobs per state at the last history sample.",
		}, []string{"state"}),
		processed: f.NewGauge(prometheus.GaugeOpts{
			Name: "qwatch_processed_jobs",
			Help: "Finished plus failed jobs at the last history sample.",
		}),
		successRate: f.NewGauge(prometheus.GaugeOpts{
			Name: "qwatch_success_rate_percent",
			Help: "Finished share of processed jobs at the last history sample.",
		}),
		samples: f.NewCounter(prometheus.CounterOpts{
			Name: "qwatch_history_samples_total",
			Help: "History snapshots written.",
		}),
		sampleErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "qwatch_history_sample_errors_total",
			Help: "History samples that failed to read the backend or write the snapshot.",
		}),
	}
}

func (m *serverMetrics) observe(stats protocol.QueueStats) {
	for state, n := range stats.Queue {
		m.jobs.WithLabelValues(state).Set(float64(n))
	}
	if p := stats.Processing; p != nil {
		m.processed.Set(float64(p.TotalProcessed))
		m.successRate.Set(p.SuccessRate)
	}
}
