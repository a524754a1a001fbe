package observability

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/offerlane/arbiter/internal/ports"
)

// Metrics implements ports.MetricsPort with prometheus collectors registered
// against a private registry, so embedding applications that run their own
// default registry never see duplicate-registration panics.
type Metrics struct {
	registry *prometheus.Registry

	operationsStarted    *prometheus.CounterVec
	operationsSucceeded  *prometheus.CounterVec
	operationsFailed     *prometheus.CounterVec
	operationsConflicted *prometheus.CounterVec
	staleLeasesEvicted   *prometheus.CounterVec

	versionsCreated       *prometheus.CounterVec
	versionsActivated     *prometheus.CounterVec
	activationsConflicted *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		operationsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arbiter_operations_started_total",
			Help: "Operations that acquired a lease and began work.",
		}, []string{"operation_kind"}),
		operationsSucceeded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arbiter_operations_succeeded_total",
			Help: "Operations that completed successfully.",
		}, []string{"operation_kind"}),
		operationsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arbiter_operations_failed_total",
			Help: "Operations that failed, by error kind.",
		}, []string{"operation_kind", "error_kind"}),
		operationsConflicted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arbiter_operations_conflicted_total",
			Help: "Operations rejected because a lease was already held.",
		}, []string{"operation_kind"}),
		staleLeasesEvicted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arbiter_stale_leases_evicted_total",
			Help: "Abandoned leases evicted during acquisition.",
		}, []string{"operation_kind"}),
		versionsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arbiter_versions_created_total",
			Help: "Versioned records inserted.",
		}, []string{"record_kind"}),
		versionsActivated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arbiter_versions_activated_total",
			Help: "Activations applied, via create or explicit activate.",
		}, []string{"record_kind"}),
		activationsConflicted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arbiter_activations_conflicted_total",
			Help: "Activations rejected by the uniqueness constraint.",
		}, []string{"record_kind"}),
	}

	m.registry.MustRegister(
		m.operationsStarted,
		m.operationsSucceeded,
		m.operationsFailed,
		m.operationsConflicted,
		m.staleLeasesEvicted,
		m.versionsCreated,
		m.versionsActivated,
		m.activationsConflicted,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) OperationStarted(operationKind string) {
	m.operationsStarted.WithLabelValues(operationKind).Inc()
}

func (m *Metrics) OperationSucceeded(operationKind string) {
	m.operationsSucceeded.WithLabelValues(operationKind).Inc()
}

func (m *Metrics) OperationFailed(operationKind, errorKind string) {
	m.operationsFailed.WithLabelValues(operationKind, errorKind).Inc()
}

func (m *Metrics) OperationConflicted(operationKind string) {
	m.operationsConflicted.WithLabelValues(operationKind).Inc()
}

func (m *Metrics) StaleLeaseEvicted(operationKind string) {
	m.staleLeasesEvicted.WithLabelValues(operationKind).Inc()
}

func (m *Metrics) VersionCreated(recordKind string) {
	m.versionsCreated.WithLabelValues(recordKind).Inc()
}

func (m *Metrics) VersionActivated(recordKind string) {
	m.versionsActivated.WithLabelValues(recordKind).Inc()
}

func (m *Metrics) ActivationConflicted(recordKind string) {
	m.activationsConflicted.WithLabelValues(recordKind).Inc()
}

var _ ports.MetricsPort = (*Metrics)(nil)
