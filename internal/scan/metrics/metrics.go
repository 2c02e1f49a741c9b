package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the scan pipeline.
type Metrics struct {
	// Completed scans by decision
	ScansTotal *prometheus.CounterVec

	// Risk level distribution of completed scans
	RiskLevel *prometheus.CounterVec

	// Unattended approvals
	AutoApprovals prometheus.Counter

	// Tickets that ended failed
	ScanFailures prometheus.Counter

	// Full per-ticket processing latency
	ScanLatency prometheus.Histogram

	// Current queue-admitted but unfinished tickets
	InFlight prometheus.Gauge

	// Current size of the admitted set
	ApprovedManifests prometheus.Gauge
}

// New creates a Metrics instance with all scan pipeline metrics registered.
func New() *Metrics {
	return &Metrics{
		ScansTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "manifestgate_scans_total",
			Help: "Completed scans by governance decision",
		}, []string{"decision"}),

		RiskLevel: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "manifestgate_scan_risk_level_total",
			Help: "Completed scans by risk level",
		}, []string{"level"}),

		AutoApprovals: promauto.NewCounter(prometheus.CounterOpts{
			Name: "manifestgate_scan_auto_approvals_total",
			Help: "Scans approved without human review",
		}),

		ScanFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "manifestgate_scan_failures_total",
			Help: "Tickets that ended in the failed state",
		}),

		ScanLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "manifestgate_scan_duration_seconds",
			Help:    "Full per-ticket scan duration",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),

		InFlight: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "manifestgate_scan_in_flight",
			Help: "Tickets dequeued but not yet terminal",
		}),

		ApprovedManifests: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "manifestgate_approved_manifests",
			Help: "Manifests currently in the approved set",
		}),
	}
}

// ObserveScan records one completed scan.
func (m *Metrics) ObserveScan(decision, level string, autoApproved bool, d time.Duration) {
	if m == nil {
		return
	}
	m.ScansTotal.WithLabelValues(decision).Inc()
	m.RiskLevel.WithLabelValues(level).Inc()
	if autoApproved {
		m.AutoApprovals.Inc()
	}
	m.ScanLatency.Observe(d.Seconds())
}

// ObserveFailure records a ticket that ended failed.
func (m *Metrics) ObserveFailure() {
	if m != nil {
		m.ScanFailures.Inc()
	}
}

// TrackInFlight adjusts the in-flight gauge.
func (m *Metrics) TrackInFlight(delta float64) {
	if m != nil {
		m.InFlight.Add(delta)
	}
}

// SetApproved records the current admitted-set size.
func (m *Metrics) SetApproved(n int) {
	if m != nil {
		m.ApprovedManifests.Set(float64(n))
	}
}
