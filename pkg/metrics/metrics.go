// Package metrics provides Prometheus instrumentation for signing and
// verification. A CLI run has no scrape endpoint, so the registry is
// written to a node-exporter textfile when a path is configured.
package metrics

import (
	"fmt"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// Namespace is the Prometheus namespace for all metrics
	Namespace = "siliconsig"

	LabelOperation = "operation"
	LabelStatus    = "status"
	LabelVerdict   = "verdict"
	LabelReason    = "reason"
	LabelSource    = "source"

	StatusSuccess = "success"
	StatusError   = "error"

	OpSign      = "sign"
	OpEmbed     = "embed"
	OpVerify    = "verify"
	OpDamage    = "damage"
	OpCalibrate = "calibrate"
)

// Recorder owns a private registry and the collectors registered in it
type Recorder struct {
	registry *prometheus.Registry
	enabled  atomic.Bool

	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	VerdictsTotal     *prometheus.CounterVec
	CopiesRecovered   prometheus.Histogram
	CalibrationTries  prometheus.Histogram
	NonceLatency      *prometheus.HistogramVec
}

// New builds a Recorder with every collector registered
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),

		OperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "operations_total",
				Help:      "Total number of operations by type and status",
			},
			[]string{LabelOperation, LabelStatus},
		),

		OperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "operation_duration_seconds",
				Help:      "Duration of operations in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{LabelOperation},
		),

		VerdictsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "verdicts_total",
				Help:      "Verification verdicts by verdict and reason code",
			},
			[]string{LabelVerdict, LabelReason},
		),

		CopiesRecovered: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "copies_recovered",
				Help:      "Signature copies that passed the syndrome check per extraction",
				Buckets:   prometheus.LinearBuckets(0, 1, 8),
			},
		),

		CalibrationTries: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "calibration_profiles_tried",
				Help:      "Byte-order profiles tried before proof-of-work matched",
				Buckets:   []float64{1, 2, 4, 8, 12, 16, 24},
			},
		),

		NonceLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "nonce_latency_seconds",
				Help:      "Time to obtain a nonce by source",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
			[]string{LabelSource},
		),
	}

	r.registry.MustRegister(
		r.OperationsTotal,
		r.OperationDuration,
		r.VerdictsTotal,
		r.CopiesRecovered,
		r.CalibrationTries,
		r.NonceLatency,
	)
	r.enabled.Store(true)
	return r
}

// Registry exposes the underlying registry
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

func (r *Recorder) Enable()         { r.enabled.Store(true) }
func (r *Recorder) Disable()        { r.enabled.Store(false) }
func (r *Recorder) IsEnabled() bool { return r.enabled.Load() }

// RecordOperation counts an operation and observes its duration
func (r *Recorder) RecordOperation(operation string, err error, seconds float64) {
	if r == nil || !r.enabled.Load() {
		return
	}
	status := StatusSuccess
	if err != nil {
		status = StatusError
	}
	r.OperationsTotal.WithLabelValues(operation, status).Inc()
	r.OperationDuration.WithLabelValues(operation).Observe(seconds)
}

// RecordVerdict counts a verification outcome
func (r *Recorder) RecordVerdict(verdict, reason string, recovered int) {
	if r == nil || !r.enabled.Load() {
		return
	}
	r.VerdictsTotal.WithLabelValues(verdict, reason).Inc()
	r.CopiesRecovered.Observe(float64(recovered))
}

// RecordCalibration observes how many profiles were tried
func (r *Recorder) RecordCalibration(attempts int) {
	if r == nil || !r.enabled.Load() {
		return
	}
	r.CalibrationTries.Observe(float64(attempts))
}

// RecordNonce observes nonce acquisition latency
func (r *Recorder) RecordNonce(source string, seconds float64) {
	if r == nil || !r.enabled.Load() {
		return
	}
	r.NonceLatency.WithLabelValues(source).Observe(seconds)
}

// WriteTextfile writes the registry in text exposition format to path
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	return nil
}
