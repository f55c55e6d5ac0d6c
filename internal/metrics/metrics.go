// Package metrics exposes Prometheus instrumentation for the transcode
// pipeline and the optional HTTP endpoint that serves it.
//
// All recording methods are safe on a nil *Metrics so components can be
// built without instrumentation in tests and one-shot CLI commands.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "reel"

// Metrics owns a private registry and the pipeline collectors.
type Metrics struct {
	registry *prometheus.Registry

	eventsTotal            *prometheus.CounterVec
	filesTotal             *prometheus.CounterVec
	encodeAttemptsTotal    *prometheus.CounterVec
	encodeDuration         prometheus.Histogram
	lockWait               prometheus.Histogram
	statusPublishFailures  *prometheus.CounterVec
	reconcileAnnouncements *prometheus.CounterVec
	queueDepth             prometheus.Gauge
	jobsTotal              *prometheus.CounterVec
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		eventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rip_events_total",
			Help:      "Inbound rip-done announcements by result (accepted, rejected).",
		}, []string{"result", "reason"}),
		filesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_total",
			Help:      "Media files handled by the worker by outcome (done, failed, skipped).",
		}, []string{"outcome", "mode"}),
		encodeAttemptsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "encode_attempts_total",
			Help:      "Encode attempts by result (ok, transient, permanent).",
		}, []string{"result"}),
		encodeDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "encode_duration_seconds",
			Help:      "Wall time of successful encodes.",
			Buckets:   []float64{30, 60, 120, 300, 600, 1200, 1800, 3600, 7200},
		}),
		lockWait: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "hardware_lock_wait_seconds",
			Help:      "Time spent waiting for the hardware lock.",
			Buckets:   []float64{0.01, 0.1, 1, 10, 60, 300, 900, 1800, 3600},
		}),
		statusPublishFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "status_publish_failures_total",
			Help:      "Status events that could not be delivered to the broker.",
		}, []string{"phase"}),
		reconcileAnnouncements: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_announcements_total",
			Help:      "Directories re-announced by the reconciler.",
		}, []string{"mode"}),
		queueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_pending_jobs",
			Help:      "Jobs waiting for the worker.",
		}),
		jobsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Jobs drained by the worker by result (completed, failed).",
		}, []string{"result"}),
	}
}

// Registry returns the registry backing the HTTP handler.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// EventAccepted records an announcement that became a job.
func (m *Metrics) EventAccepted() {
	if m == nil {
		return
	}
	m.eventsTotal.WithLabelValues("accepted", "").Inc()
}

// EventRejected records an announcement dropped before queuing.
func (m *Metrics) EventRejected(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unknown"
	}
	m.eventsTotal.WithLabelValues("rejected", reason).Inc()
}

// FileHandled records the outcome of one media file.
func (m *Metrics) FileHandled(outcome, mode string) {
	if m == nil {
		return
	}
	m.filesTotal.WithLabelValues(outcome, mode).Inc()
}

// EncodeAttempt records one encode attempt result.
func (m *Metrics) EncodeAttempt(result string) {
	if m == nil {
		return
	}
	m.encodeAttemptsTotal.WithLabelValues(result).Inc()
}

// EncodeFinished records the duration of a successful encode.
func (m *Metrics) EncodeFinished(d time.Duration) {
	if m == nil {
		return
	}
	m.encodeDuration.Observe(d.Seconds())
}

// LockWaited records time spent waiting for the hardware lock.
func (m *Metrics) LockWaited(d time.Duration) {
	if m == nil {
		return
	}
	m.lockWait.Observe(d.Seconds())
}

// StatusPublishFailed records an undelivered status event.
func (m *Metrics) StatusPublishFailed(phase string) {
	if m == nil {
		return
	}
	m.statusPublishFailures.WithLabelValues(phase).Inc()
}

// Announced records a reconciler announcement.
func (m *Metrics) Announced(mode string) {
	if m == nil {
		return
	}
	m.reconcileAnnouncements.WithLabelValues(mode).Inc()
}

// SetQueueDepth updates the pending job gauge.
func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}

// JobFinished records a drained job.
func (m *Metrics) JobFinished(result string) {
	if m == nil {
		return
	}
	m.jobsTotal.WithLabelValues(result).Inc()
}
