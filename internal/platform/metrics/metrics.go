package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	EvidenceIngested    prometheus.Counter
	EvidenceSealed      prometheus.Counter
	MutationsBlocked    prometheus.Counter
	AuditEventsAppended prometheus.Counter
	RequestLatency      *prometheus.HistogramVec
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		EvidenceIngested: promauto.NewCounter(prometheus.CounterOpts{
			Name: "attest_evidence_ingested_total",
			Help: "Total number of evidence records created through the gateway",
		}),
		EvidenceSealed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "attest_evidence_sealed_total",
			Help: "Total number of evidence records sealed",
		}),
		MutationsBlocked: promauto.NewCounter(prometheus.CounterOpts{
			Name: "attest_mutations_blocked_total",
			Help: "Total number of mutation attempts blocked by the state machine",
		}),
		AuditEventsAppended: promauto.NewCounter(prometheus.CounterOpts{
			Name: "attest_audit_events_appended_total",
			Help: "Total number of audit events appended to the stream",
		}),
		RequestLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "attest_http_request_duration_seconds",
			Help:    "HTTP request latency by route and status",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "status"}),
	}
}

// IncMutationsBlocked increments the blocked-mutation counter by 1.
func (m *Metrics) IncMutationsBlocked() {
	if m != nil {
		m.MutationsBlocked.Inc()
	}
}

// IncEvidenceIngested increments the ingested counter by 1.
func (m *Metrics) IncEvidenceIngested() {
	if m != nil {
		m.EvidenceIngested.Inc()
	}
}

// IncEvidenceSealed increments the sealed counter by 1.
func (m *Metrics) IncEvidenceSealed() {
	if m != nil {
		m.EvidenceSealed.Inc()
	}
}

// IncAuditEventsAppended increments the audit append counter by 1.
func (m *Metrics) IncAuditEventsAppended() {
	if m != nil {
		m.AuditEventsAppended.Inc()
	}
}
