// Package metrics defines the Prometheus collectors exported by the daemon.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// Namespace prefixes every metric name.
	Namespace = "marketintel"
	// Subsystem groups the pipeline worker metrics.
	Subsystem = "pipeline"
)

// Outcome labels for ItemsProcessedTotal.
const (
	OutcomeCompleted = "completed"
	OutcomeRetry     = "retry"
	OutcomeFailed    = "failed"
	OutcomeConflict  = "conflict"
)

// Metrics holds the pipeline collectors. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	ItemsClaimedTotal    *prometheus.CounterVec
	ItemsProcessedTotal  *prometheus.CounterVec
	ItemsEnqueuedTotal   *prometheus.CounterVec
	FanoutFailuresTotal  *prometheus.CounterVec
	StoreErrorsTotal     *prometheus.CounterVec
	ExecuteDuration      *prometheus.HistogramVec
	WorkersRunning       prometheus.Gauge
	QueueDepth           *prometheus.GaugeVec
	SubmissionsTotal     prometheus.Counter
	SubmissionErrorTotal prometheus.Counter
}

// New creates and registers the collectors on reg, falling back to the
// default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	m := &Metrics{}
	m.initItemMetrics(factory)
	m.initWorkerMetrics(factory)
	return m
}

func (m *Metrics) initItemMetrics(factory promauto.Factory) {
	m.ItemsClaimedTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Subsystem,
			Name:      "items_claimed_total",
			Help:      "Work items moved to processing",
		},
		[]string{"stage"},
	)
	m.ItemsProcessedTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Subsystem,
			Name:      "items_processed_total",
			Help:      "Work item executions by outcome",
		},
		[]string{"stage", "outcome"},
	)
	m.ItemsEnqueuedTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Subsystem,
			Name:      "items_enqueued_total",
			Help:      "Successor items created by fan-out",
		},
		[]string{"stage"},
	)
	m.FanoutFailuresTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Subsystem,
			Name:      "fanout_failures_total",
			Help:      "Successor items that could not be created",
		},
		[]string{"stage"},
	)
	m.StoreErrorsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Subsystem,
			Name:      "store_errors_total",
			Help:      "Queue store operations that failed",
		},
		[]string{"stage", "operation"},
	)
	m.ExecuteDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: Subsystem,
			Name:      "execute_duration_seconds",
			Help:      "Stage handler execution time",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		},
		[]string{"stage"},
	)
	m.SubmissionsTotal = factory.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: Subsystem,
		Name:      "submissions_total",
		Help:      "Requests accepted at the ingress",
	})
	m.SubmissionErrorTotal = factory.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: Subsystem,
		Name:      "submission_errors_total",
		Help:      "Requests the ingress could not enqueue",
	})
}

func (m *Metrics) initWorkerMetrics(factory promauto.Factory) {
	m.WorkersRunning = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Subsystem: Subsystem,
		Name:      "workers_running",
		Help:      "Stage workers currently polling",
	})
	m.QueueDepth = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: Subsystem,
			Name:      "queue_depth",
			Help:      "Work items per stage and status at the last status poll",
		},
		[]string{"stage", "status"},
	)
}

// Claimed records a successful claim.
func (m *Metrics) Claimed(stage string) {
	if m == nil {
		return
	}
	m.ItemsClaimedTotal.WithLabelValues(stage).Inc()
}

// Processed records one execution outcome and its duration.
func (m *Metrics) Processed(stage, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.ItemsProcessedTotal.WithLabelValues(stage, outcome).Inc()
	m.ExecuteDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
}

// Enqueued records successors created for stage.
func (m *Metrics) Enqueued(stage string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ItemsEnqueuedTotal.WithLabelValues(stage).Add(float64(n))
}

// FanoutFailed records one successor that could not be created.
func (m *Metrics) FanoutFailed(stage string) {
	if m == nil {
		return
	}
	m.FanoutFailuresTotal.WithLabelValues(stage).Inc()
}

// StoreError records a failed store operation.
func (m *Metrics) StoreError(stage, operation string) {
	if m == nil {
		return
	}
	m.StoreErrorsTotal.WithLabelValues(stage, operation).Inc()
}

// WorkerStarted and WorkerStopped track running workers.
func (m *Metrics) WorkerStarted() {
	if m == nil {
		return
	}
	m.WorkersRunning.Inc()
}

func (m *Metrics) WorkerStopped() {
	if m == nil {
		return
	}
	m.WorkersRunning.Dec()
}

// Submitted records an ingress outcome.
func (m *Metrics) Submitted(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.SubmissionErrorTotal.Inc()
		return
	}
	m.SubmissionsTotal.Inc()
}

// SetDepth publishes per-stage status counts.
func (m *Metrics) SetDepth(stage, status string, count int) {
	if m == nil {
		return
	}
	m.QueueDepth.WithLabelValues(stage, status).Set(float64(count))
}
