/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package throttlequeue

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// RetryKind represents a kind of execution retry.
type RetryKind string

// Supported retry kinds.
const (
	RetryKindPlain RetryKind = "plain"
	RetryKindPause RetryKind = "pause"
)

// MetricsCollector represents a collector of metrics to analyze how the queue is used.
type MetricsCollector interface {
	// SetPendingAmount sets the total number of executions waiting for admission.
	SetPendingAmount(int)

	// IncAdmitted increments the total number of admitted executions.
	IncAdmitted()

	// IncRetries increments the total number of retries of the given kind.
	IncRetries(RetryKind)

	// ObserveAdmissionWait observes the time an execution spent waiting for admission.
	ObserveAdmissionWait(time.Duration)
}

const metricsLabelRetryKind = "kind"

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

	// AdmissionWaitBuckets is a list of buckets for the admission wait histogram.
	// prometheus.DefBuckets are used by default.
	AdmissionWaitBuckets []float64
}

// PrometheusMetrics represents a Prometheus metrics for the queue.
type PrometheusMetrics struct {
	PendingAmount        *prometheus.GaugeVec
	AdmittedTotal        *prometheus.CounterVec
	RetriesTotal         *prometheus.CounterVec
	AdmissionWaitSeconds *prometheus.HistogramVec
}

// NewPrometheusMetrics creates a new instance of PrometheusMetrics with default options.
func NewPrometheusMetrics() *PrometheusMetrics {
	return NewPrometheusMetricsWithOpts(PrometheusMetricsOpts{})
}

// NewPrometheusMetricsWithOpts creates a new instance of PrometheusMetrics with the provided options.
func NewPrometheusMetricsWithOpts(opts PrometheusMetricsOpts) *PrometheusMetrics {
	admissionWaitBuckets := opts.AdmissionWaitBuckets
	if admissionWaitBuckets == nil {
		admissionWaitBuckets = prometheus.DefBuckets
	}

	pendingAmount := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace:   opts.Namespace,
			Name:        "throttle_queue_pending_amount",
			Help:        "Total number of executions waiting for admission.",
			ConstLabels: opts.ConstLabels,
		},
		opts.CurriedLabelNames,
	)

	admittedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Name:        "throttle_queue_admitted_total",
			Help:        "Number of admitted executions.",
			ConstLabels: opts.ConstLabels,
		},
		opts.CurriedLabelNames,
	)

	retriesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Name:        "throttle_queue_retries_total",
			Help:        "Number of execution retries by kind.",
			ConstLabels: opts.ConstLabels,
		},
		append([]string{metricsLabelRetryKind}, opts.CurriedLabelNames...),
	)

	admissionWaitSeconds := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   opts.Namespace,
			Name:        "throttle_queue_admission_wait_seconds",
			Help:        "Time executions spent waiting for admission.",
			ConstLabels: opts.ConstLabels,
			Buckets:     admissionWaitBuckets,
		},
		opts.CurriedLabelNames,
	)

	return &PrometheusMetrics{
		PendingAmount:        pendingAmount,
		AdmittedTotal:        admittedTotal,
		RetriesTotal:         retriesTotal,
		AdmissionWaitSeconds: admissionWaitSeconds,
	}
}

// MustCurryWith curries the metrics collector with the provided labels.
func (pm *PrometheusMetrics) MustCurryWith(labels prometheus.Labels) *PrometheusMetrics {
	return &PrometheusMetrics{
		PendingAmount:        pm.PendingAmount.MustCurryWith(labels),
		AdmittedTotal:        pm.AdmittedTotal.MustCurryWith(labels),
		RetriesTotal:         pm.RetriesTotal.MustCurryWith(labels),
		AdmissionWaitSeconds: pm.AdmissionWaitSeconds.MustCurryWith(labels).(*prometheus.HistogramVec),
	}
}

// MustRegister does registration of metrics collector in Prometheus and panics if any error occurs.
func (pm *PrometheusMetrics) MustRegister() {
	prometheus.MustRegister(
		pm.PendingAmount,
		pm.AdmittedTotal,
		pm.RetriesTotal,
		pm.AdmissionWaitSeconds,
	)
}

// Unregister cancels registration of metrics collector in Prometheus.
func (pm *PrometheusMetrics) Unregister() {
	prometheus.Unregister(pm.PendingAmount)
	prometheus.Unregister(pm.AdmittedTotal)
	prometheus.Unregister(pm.RetriesTotal)
	prometheus.Unregister(pm.AdmissionWaitSeconds)
}

// SetPendingAmount sets the total number of executions waiting for admission.
func (pm *PrometheusMetrics) SetPendingAmount(amount int) {
	pm.PendingAmount.With(nil).Set(float64(amount))
}

// IncAdmitted increments the total number of admitted executions.
func (pm *PrometheusMetrics) IncAdmitted() {
	pm.AdmittedTotal.With(nil).Inc()
}

// IncRetries increments the total number of retries of the given kind.
func (pm *PrometheusMetrics) IncRetries(kind RetryKind) {
	pm.RetriesTotal.With(prometheus.Labels{metricsLabelRetryKind: string(kind)}).Inc()
}

// ObserveAdmissionWait observes the time an execution spent waiting for admission.
func (pm *PrometheusMetrics) ObserveAdmissionWait(d time.Duration) {
	pm.AdmissionWaitSeconds.With(nil).Observe(d.Seconds())
}

type disabledMetrics struct{}

func (disabledMetrics) SetPendingAmount(int)               {}
func (disabledMetrics) IncAdmitted()                       {}
func (disabledMetrics) IncRetries(RetryKind)               {}
func (disabledMetrics) ObserveAdmissionWait(time.Duration) {}

var disabledMetricsCollector = disabledMetrics{}
