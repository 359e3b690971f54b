// Package metrics exposes Prometheus instruments of the monitoring engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "watchtower"

// Metrics engine instruments. A nil *Metrics is a valid no-op.
type Metrics struct {
	taskRuns       *prometheus.CounterVec
	skippedTicks   *prometheus.CounterVec
	cycleDuration  *prometheus.HistogramVec
	events         *prometheus.CounterVec
	notifyFailures *prometheus.CounterVec
	openPositions  *prometheus.GaugeVec
}

// New registers the instruments on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		taskRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "task_runs_total",
				Help:      "Monitoring task cycles by outcome",
			},
			[]string{"task", "outcome"},
		),
		skippedTicks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "task_skipped_ticks_total",
				Help:      "Ticks skipped because the previous cycle was still running",
			},
			[]string{"task"},
		),
		cycleDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "task_cycle_duration_seconds",
				Help:      "Duration of monitoring task cycles",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"task"},
		),
		events: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_total",
				Help:      "Notification events emitted by kind",
			},
			[]string{"kind"},
		),
		notifyFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notification_failures_total",
				Help:      "Notifications that could not be delivered",
			},
			[]string{"kind"},
		),
		openPositions: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "open_positions",
				Help:      "Open positions per ledger scope",
			},
			[]string{"scope"},
		),
	}
}

func (m *Metrics) TaskFinished(task string, err error, took time.Duration) {
	if m == nil {
		return
	}
	outcome := "succeeded"
	if err != nil {
		outcome = "failed"
	}
	m.taskRuns.WithLabelValues(task, outcome).Inc()
	m.cycleDuration.WithLabelValues(task).Observe(took.Seconds())
}

func (m *Metrics) TickSkipped(task string) {
	if m == nil {
		return
	}
	m.skippedTicks.WithLabelValues(task).Inc()
}

func (m *Metrics) EventEmitted(kind string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(kind).Inc()
}

func (m *Metrics) NotificationFailed(kind string) {
	if m == nil {
		return
	}
	m.notifyFailures.WithLabelValues(kind).Inc()
}

func (m *Metrics) SetOpenPositions(scope string, n int) {
	if m == nil {
		return
	}
	m.openPositions.WithLabelValues(scope).Set(float64(n))
}
