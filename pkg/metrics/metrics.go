package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the engine
type Metrics struct {
	RowsProcessed   *prometheus.CounterVec
	Dispatches      *prometheus.CounterVec
	BatchDuration   *prometheus.HistogramVec
	QueueBacklog    *prometheus.GaugeVec
	DBConnPoolStats *prometheus.GaugeVec
}

// NewMetrics creates a new metrics instance
func NewMetrics(serviceName string) *Metrics {
	return &Metrics{
		RowsProcessed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "edugb",
				Subsystem: serviceName,
				Name:      "queue_rows_total",
				Help:      "Queue rows processed per manager and outcome",
			},
			[]string{"manager", "outcome"},
		),
		Dispatches: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "edugb",
				Subsystem: serviceName,
				Name:      "dispatches_total",
				Help:      "Dispatch pipeline runs per status",
			},
			[]string{"status"},
		),
		BatchDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "edugb",
				Subsystem: serviceName,
				Name:      "batch_duration_seconds",
				Help:      "Batch run duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"manager"},
		),
		QueueBacklog: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "edugb",
				Subsystem: serviceName,
				Name:      "queue_backlog",
				Help:      "Rows currently waiting in a queue table",
			},
			[]string{"queue"},
		),
		DBConnPoolStats: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "edugb",
				Subsystem: serviceName,
				Name:      "db_connection_pool",
				Help:      "Database connection pool statistics",
			},
			[]string{"stat"}, // stat can be: open, in_use, idle, wait_count, etc.
		),
	}
}

// ObserveBatch records the duration of one manager batch run
func (m *Metrics) ObserveBatch(manager string, start time.Time) {
	m.BatchDuration.WithLabelValues(manager).Observe(time.Since(start).Seconds())
}

// RecordDBPoolStats records database connection pool statistics
func (m *Metrics) RecordDBPoolStats(open, inUse, idle int, waitCount int64, waitDuration time.Duration) {
	m.DBConnPoolStats.WithLabelValues("open").Set(float64(open))
	m.DBConnPoolStats.WithLabelValues("in_use").Set(float64(inUse))
	m.DBConnPoolStats.WithLabelValues("idle").Set(float64(idle))
	m.DBConnPoolStats.WithLabelValues("wait_count").Set(float64(waitCount))
	m.DBConnPoolStats.WithLabelValues("wait_duration_ms").Set(float64(waitDuration.Milliseconds()))
}
