package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics counts engine transitions and scanner outcomes.
type Metrics struct {
	registry *prometheus.Registry

	transitionsTotal *prometheus.CounterVec
	scannerFlagged   prometheus.Counter
	scannerEscalated prometheus.Counter
	scannerFailures  prometheus.Counter
	scannerRuns      prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		transitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "approval_transitions_total",
				Help: "Approval actions by action and outcome",
			},
			[]string{"action", "outcome"},
		),
		scannerFlagged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "approval_scanner_flagged_total",
			Help: "Approvals flagged overdue by the scanner",
		}),
		scannerEscalated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "approval_scanner_escalated_total",
			Help: "Approvals escalated by the scanner",
		}),
		scannerFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "approval_scanner_failures_total",
			Help: "Approvals the scanner failed to process",
		}),
		scannerRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "approval_scanner_runs_total",
			Help: "Completed scanner sweeps",
		}),
	}
	m.registry.MustRegister(
		m.transitionsTotal,
		m.scannerFlagged,
		m.scannerEscalated,
		m.scannerFailures,
		m.scannerRuns,
		prometheus.NewGoCollector(),
	)
	return m
}

func (m *Metrics) ObserveTransition(action, outcome string) {
	m.transitionsTotal.WithLabelValues(action, outcome).Inc()
}

func (m *Metrics) ScanFlagged()   { m.scannerFlagged.Inc() }
func (m *Metrics) ScanEscalated() { m.scannerEscalated.Inc() }
func (m *Metrics) ScanFailed()    { m.scannerFailures.Inc() }
func (m *Metrics) ScanCompleted() { m.scannerRuns.Inc() }

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
