package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the daemon's Prometheus collectors. A Metrics built with
// MetricsConfig.Enabled false is a valid no-op value: every Record*
// method checks for nil collectors before touching them, so callers never
// need to branch on whether metrics are enabled.
type Metrics struct {
	registry *prometheus.Registry
	server   *http.Server
	path     string

	runsStarted   *prometheus.CounterVec
	runsCompleted *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec
	activeRuns    prometheus.Gauge
	queuedPlans   prometheus.Gauge

	documentsEmitted *prometheus.CounterVec
	documentsDropped *prometheus.CounterVec

	ringBytesWritten prometheus.Counter
	ringOverflows    prometheus.Counter
	ringTapDrops     *prometheus.CounterVec

	archiveFlushDuration prometheus.Histogram
	archiveRecords       *prometheus.CounterVec
	archiveFlushErrors   prometheus.Counter

	devicesRegistered prometheus.Gauge
}

// NewMetrics builds the collector set. If cfg.Enabled is false, it
// returns a Metrics whose collectors are all nil and whose Record*
// methods are therefore no-ops.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{}, nil
	}

	ns := cfg.Namespace
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		path:     cfg.Path,

		runsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "runs_started_total", Help: "Total runs admitted to the engine.",
		}, []string{"plan_type"}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "runs_completed_total", Help: "Total runs that reached a terminal state.",
		}, []string{"status"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns, Name: "run_duration_seconds", Help: "Run wall-clock duration, Start to Stop.",
			Buckets: prometheus.DefBuckets,
		}, []string{"status"}),
		activeRuns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Name: "active_runs", Help: "1 if a run is currently executing, else 0.",
		}),
		queuedPlans: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Name: "queued_plans", Help: "Plans admitted but not yet started.",
		}),

		documentsEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "documents_emitted_total", Help: "Documents emitted on the document bus.",
		}, []string{"kind"}),
		documentsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "documents_dropped_total", Help: "Documents dropped because a subscriber channel was full.",
		}, []string{"kind"}),

		ringBytesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "ring_bytes_written_total", Help: "Framed bytes accepted by the ring buffer.",
		}),
		ringOverflows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "ring_overflow_total", Help: "Writes rejected because the ring had insufficient free space.",
		}),
		ringTapDrops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "ring_tap_drops_total", Help: "Records dropped by a tap because its channel was full.",
		}, []string{"tap_id"}),

		archiveFlushDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns, Name: "archive_flush_duration_seconds", Help: "Time to decode and persist one flush tick.",
			Buckets: prometheus.DefBuckets,
		}),
		archiveRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "archive_records_written_total", Help: "Records persisted to the archive store.",
		}, []string{"kind"}),
		archiveFlushErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "archive_flush_errors_total", Help: "Flush ticks that failed to persist at least one record.",
		}),

		devicesRegistered: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Name: "devices_registered", Help: "Devices currently present in the registry.",
		}),
	}

	registry.MustRegister(
		m.runsStarted, m.runsCompleted, m.runDuration, m.activeRuns, m.queuedPlans,
		m.documentsEmitted, m.documentsDropped,
		m.ringBytesWritten, m.ringOverflows, m.ringTapDrops,
		m.archiveFlushDuration, m.archiveRecords, m.archiveFlushErrors,
		m.devicesRegistered,
	)
	return m, nil
}

// RecordRunStarted increments the started-runs counter and marks the
// engine active.
func (m *Metrics) RecordRunStarted(planType string) {
	if m.runsStarted == nil {
		return
	}
	m.runsStarted.WithLabelValues(planType).Inc()
	m.activeRuns.Set(1)
}

// RecordRunCompleted records a terminal run status and its duration, and
// marks the engine idle.
func (m *Metrics) RecordRunCompleted(status string, d time.Duration) {
	if m.runsCompleted == nil {
		return
	}
	m.runsCompleted.WithLabelValues(status).Inc()
	m.runDuration.WithLabelValues(status).Observe(d.Seconds())
	m.activeRuns.Set(0)
}

// SetQueuedPlans reports the current queue depth.
func (m *Metrics) SetQueuedPlans(n int) {
	if m.queuedPlans == nil {
		return
	}
	m.queuedPlans.Set(float64(n))
}

// RecordDocumentEmitted increments the emitted-documents counter for kind
// (start, descriptor, event, stop).
func (m *Metrics) RecordDocumentEmitted(kind string) {
	if m.documentsEmitted == nil {
		return
	}
	m.documentsEmitted.WithLabelValues(kind).Inc()
}

// RecordDocumentDropped increments the dropped-documents counter for a
// subscriber whose channel was full.
func (m *Metrics) RecordDocumentDropped(kind string) {
	if m.documentsDropped == nil {
		return
	}
	m.documentsDropped.WithLabelValues(kind).Inc()
}

// RecordRingWrite records bytes accepted by a successful ring write.
func (m *Metrics) RecordRingWrite(n int) {
	if m.ringBytesWritten == nil {
		return
	}
	m.ringBytesWritten.Add(float64(n))
}

// RecordRingOverflow increments the ring-overflow counter.
func (m *Metrics) RecordRingOverflow() {
	if m.ringOverflows == nil {
		return
	}
	m.ringOverflows.Inc()
}

// RecordTapDrop increments the drop counter for one tap.
func (m *Metrics) RecordTapDrop(tapID string) {
	if m.ringTapDrops == nil {
		return
	}
	m.ringTapDrops.WithLabelValues(tapID).Inc()
}

// RecordFlush records one writer tick's duration and the per-kind record
// counts it persisted.
func (m *Metrics) RecordFlush(d time.Duration, recordsByKind map[string]int) {
	if m.archiveFlushDuration == nil {
		return
	}
	m.archiveFlushDuration.Observe(d.Seconds())
	for kind, n := range recordsByKind {
		m.archiveRecords.WithLabelValues(kind).Add(float64(n))
	}
}

// RecordFlushError increments the flush-error counter.
func (m *Metrics) RecordFlushError() {
	if m.archiveFlushErrors == nil {
		return
	}
	m.archiveFlushErrors.Inc()
}

// SetDevicesRegistered reports the current registry size.
func (m *Metrics) SetDevicesRegistered(n int) {
	if m.devicesRegistered == nil {
		return
	}
	m.devicesRegistered.Set(float64(n))
}

// Serve starts the metrics HTTP endpoint on addr and blocks until the
// server is shut down or fails. Callers typically run it in a goroutine.
func (m *Metrics) Serve(addr string) error {
	if m.registry == nil {
		return nil
	}
	mux := http.NewServeMux()
	path := m.path
	if path == "" {
		path = "/metrics"
	}
	mux.Handle(path, promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	m.server = &http.Server{Addr: addr, Handler: mux}
	if err := m.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("telemetry: metrics server: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the metrics HTTP endpoint, if running.
func (m *Metrics) Shutdown(ctx context.Context) error {
	if m.server == nil {
		return nil
	}
	return m.server.Shutdown(ctx)
}
