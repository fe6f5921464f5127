/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package scheduler

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/acronis/go-slowrate/internal/libinfo"
)

// Attempt outcomes used as values of the "outcome" label.
const (
	AttemptOutcomeSuccess = "success"
	AttemptOutcomeError   = "error"
	AttemptOutcomePanic   = "panic"
)

const (
	metricsLabelOutcome = "outcome"
	metricsLabelState   = "state"
)

// DefaultAttemptDurationBuckets is default buckets for the attempt duration histogram.
var DefaultAttemptDurationBuckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}

// DefaultQueueWaitBuckets is default buckets for the queue wait histogram.
var DefaultQueueWaitBuckets = []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 150, 300, 600}

// MetricsCollector represents a collector of metrics to analyze how the scheduler dispatches requests.
type MetricsCollector interface {
	// IncSubmitted increments the total number of accepted requests.
	IncSubmitted()

	// SetQueueSize sets the current number of waiting requests.
	SetQueueSize(int)

	// ObserveAttempt observes the duration of a single operation execution.
	ObserveAttempt(outcome string, duration time.Duration)

	// IncCompleted increments the total number of requests that reached the given terminal state.
	IncCompleted(state State)

	// ObserveQueueWait observes how long a request stayed in the queue before it was taken for execution.
	ObserveQueueWait(duration time.Duration)
}

// PrometheusMetricsOpts represents options for PrometheusMetrics.
type PrometheusMetricsOpts struct {
	// Namespace is a namespace for metrics. It will be prepended to all metric names.
	Namespace string

	// ConstLabels is a set of labels that will be applied to all metrics.
	ConstLabels prometheus.Labels

	// CurriedLabelNames is a list of label names that will be curried with the provided labels.
	// See PrometheusMetrics.MustCurryWith method for more details.
	// Keep in mind that if this list is not empty,
	// PrometheusMetrics.MustCurryWith method must be called further with the same labels.
	// Otherwise, the collector will panic.
	CurriedLabelNames []string

	// AttemptDurationBuckets overrides DefaultAttemptDurationBuckets.
	AttemptDurationBuckets []float64

	// QueueWaitBuckets overrides DefaultQueueWaitBuckets.
	QueueWaitBuckets []float64
}

// PrometheusMetrics represents a Prometheus metrics for the scheduler.
type PrometheusMetrics struct {
	SubmittedTotal   *prometheus.CounterVec
	QueueSize        *prometheus.GaugeVec
	AttemptsTotal    *prometheus.CounterVec
	AttemptDurations *prometheus.HistogramVec
	CompletedTotal   *prometheus.CounterVec
	QueueWait        *prometheus.HistogramVec
}

// NewPrometheusMetrics creates a new instance of PrometheusMetrics with default options.
func NewPrometheusMetrics() *PrometheusMetrics {
	return NewPrometheusMetricsWithOpts(PrometheusMetricsOpts{})
}

// NewPrometheusMetricsWithOpts creates a new instance of PrometheusMetrics with the provided options.
func NewPrometheusMetricsWithOpts(opts PrometheusMetricsOpts) *PrometheusMetrics {
	attemptDurationBuckets := opts.AttemptDurationBuckets
	if attemptDurationBuckets == nil {
		attemptDurationBuckets = DefaultAttemptDurationBuckets
	}
	queueWaitBuckets := opts.QueueWaitBuckets
	if queueWaitBuckets == nil {
		queueWaitBuckets = DefaultQueueWaitBuckets
	}
	constLabels := libinfo.AddPrometheusLibVersionLabel(opts.ConstLabels)
	makeLabelNames := func(names ...string) []string {
		l := append(make([]string, 0, len(opts.CurriedLabelNames)+len(names)), opts.CurriedLabelNames...)
		return append(l, names...)
	}

	submittedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Name:        "slowrate_requests_submitted_total",
			Help:        "Number of requests accepted by the scheduler.",
			ConstLabels: constLabels,
		},
		makeLabelNames(),
	)

	queueSize := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace:   opts.Namespace,
			Name:        "slowrate_queue_size",
			Help:        "Current number of requests waiting for dispatch.",
			ConstLabels: constLabels,
		},
		makeLabelNames(),
	)

	attemptsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Name:        "slowrate_attempts_total",
			Help:        "Number of operation executions.",
			ConstLabels: constLabels,
		},
		makeLabelNames(metricsLabelOutcome),
	)

	attemptDurations := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   opts.Namespace,
			Name:        "slowrate_attempt_duration_seconds",
			Help:        "A histogram of the operation execution durations.",
			Buckets:     attemptDurationBuckets,
			ConstLabels: constLabels,
		},
		makeLabelNames(metricsLabelOutcome),
	)

	completedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Name:        "slowrate_requests_completed_total",
			Help:        "Number of requests that were resolved or rejected.",
			ConstLabels: constLabels,
		},
		makeLabelNames(metricsLabelState),
	)

	queueWait := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   opts.Namespace,
			Name:        "slowrate_queue_wait_seconds",
			Help:        "A histogram of the time requests spent in the queue before dispatch.",
			Buckets:     queueWaitBuckets,
			ConstLabels: constLabels,
		},
		makeLabelNames(),
	)

	return &PrometheusMetrics{
		SubmittedTotal:   submittedTotal,
		QueueSize:        queueSize,
		AttemptsTotal:    attemptsTotal,
		AttemptDurations: attemptDurations,
		CompletedTotal:   completedTotal,
		QueueWait:        queueWait,
	}
}

// MustCurryWith curries the metrics collector with the provided labels.
func (pm *PrometheusMetrics) MustCurryWith(labels prometheus.Labels) *PrometheusMetrics {
	return &PrometheusMetrics{
		SubmittedTotal:   pm.SubmittedTotal.MustCurryWith(labels),
		QueueSize:        pm.QueueSize.MustCurryWith(labels),
		AttemptsTotal:    pm.AttemptsTotal.MustCurryWith(labels),
		AttemptDurations: pm.AttemptDurations.MustCurryWith(labels).(*prometheus.HistogramVec),
		CompletedTotal:   pm.CompletedTotal.MustCurryWith(labels),
		QueueWait:        pm.QueueWait.MustCurryWith(labels).(*prometheus.HistogramVec),
	}
}

// MustRegister does registration of metrics collector in Prometheus and panics if any error occurs.
func (pm *PrometheusMetrics) MustRegister() {
	prometheus.MustRegister(
		pm.SubmittedTotal,
		pm.QueueSize,
		pm.AttemptsTotal,
		pm.AttemptDurations,
		pm.CompletedTotal,
		pm.QueueWait,
	)
}

// Unregister cancels registration of metrics collector in Prometheus.
func (pm *PrometheusMetrics) Unregister() {
	prometheus.Unregister(pm.SubmittedTotal)
	prometheus.Unregister(pm.QueueSize)
	prometheus.Unregister(pm.AttemptsTotal)
	prometheus.Unregister(pm.AttemptDurations)
	prometheus.Unregister(pm.CompletedTotal)
	prometheus.Unregister(pm.QueueWait)
}

// IncSubmitted increments the total number of accepted requests.
func (pm *PrometheusMetrics) IncSubmitted() {
	pm.SubmittedTotal.With(nil).Inc()
}

// SetQueueSize sets the current number of waiting requests.
func (pm *PrometheusMetrics) SetQueueSize(size int) {
	pm.QueueSize.With(nil).Set(float64(size))
}

// ObserveAttempt observes the duration of a single operation execution.
func (pm *PrometheusMetrics) ObserveAttempt(outcome string, duration time.Duration) {
	labels := prometheus.Labels{metricsLabelOutcome: outcome}
	pm.AttemptsTotal.With(labels).Inc()
	pm.AttemptDurations.With(labels).Observe(duration.Seconds())
}

// IncCompleted increments the total number of requests that reached the given terminal state.
func (pm *PrometheusMetrics) IncCompleted(state State) {
	pm.CompletedTotal.With(prometheus.Labels{metricsLabelState: state.String()}).Inc()
}

// ObserveQueueWait observes how long a request stayed in the queue before it was taken for execution.
func (pm *PrometheusMetrics) ObserveQueueWait(duration time.Duration) {
	pm.QueueWait.With(nil).Observe(duration.Seconds())
}

type disabledMetrics struct{}

func (disabledMetrics) IncSubmitted()                        {}
func (disabledMetrics) SetQueueSize(int)                     {}
func (disabledMetrics) ObserveAttempt(string, time.Duration) {}
func (disabledMetrics) IncCompleted(State)                   {}
func (disabledMetrics) ObserveQueueWait(time.Duration)       {}

var disabledMetricsCollector = disabledMetrics{}
