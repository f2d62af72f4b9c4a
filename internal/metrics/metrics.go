package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"batchpurge/internal/purge"
)

const namespace = "batchpurge"

// Collector exports pipeline progress as prometheus metrics. It is a
// purge.Observer.
type Collector struct {
	runsTotal     *prometheus.CounterVec
	chunksTotal   *prometheus.CounterVec
	rowsDeleted   *prometheus.CounterVec
	stepDuration  *prometheus.HistogramVec
	lastSuccess   prometheus.Gauge
	runInProgress prometheus.Gauge
}

// NewCollector creates the metrics and registers them with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Purge runs by final status.",
			},
			[]string{"status"},
		),
		chunksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "chunks_total",
				Help:      "Committed chunks per step.",
			},
			[]string{"step"},
		),
		rowsDeleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rows_deleted_total",
				Help:      "Rows deleted per step and table.",
			},
			[]string{"step", "table"},
		),
		stepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "step_duration_seconds",
				Help:      "Histogram of step durations in seconds.",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 300, 900},
			},
			[]string{"step"},
		),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last purge run that completed.",
		}),
		runInProgress: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_in_progress",
			Help:      "1 while a purge run is executing.",
		}),
	}
	reg.MustRegister(c.runsTotal, c.chunksTotal, c.rowsDeleted, c.stepDuration, c.lastSuccess, c.runInProgress)
	return c
}

func (c *Collector) RunStarted(context.Context, *purge.Run) {
	c.runInProgress.Set(1)
}

func (c *Collector) ChunkCommitted(_ *purge.Run, chunk purge.ChunkResult) {
	c.chunksTotal.WithLabelValues(chunk.Step).Inc()
	for table, n := range chunk.Counts {
		c.rowsDeleted.WithLabelValues(chunk.Step, table).Add(float64(n))
	}
}

func (c *Collector) StepFinished(_ *purge.Run, res purge.StepResult) {
	c.stepDuration.WithLabelValues(res.Name).Observe(res.Duration().Seconds())
}

func (c *Collector) RunFinished(_ context.Context, report *purge.Report, err error) {
	c.runInProgress.Set(0)
	status := report.Status()
	if err != nil {
		status = "failed"
	}
	c.runsTotal.WithLabelValues(status).Inc()
	if status == "completed" {
		c.lastSuccess.Set(float64(report.Finished.Unix()))
	}
}
