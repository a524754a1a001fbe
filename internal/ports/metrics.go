package ports

// MetricsPort receives counter signals from the executor, the mutex adapters,
// and the version store. Implementations must be safe for concurrent use.
type MetricsPort interface {
	OperationStarted(operationKind string)
	OperationSucceeded(operationKind string)
	OperationFailed(operationKind, errorKind string)
	OperationConflicted(operationKind string)
	StaleLeaseEvicted(operationKind string)

	VersionCreated(recordKind string)
	VersionActivated(recordKind string)
	ActivationConflicted(recordKind string)
}

type noopMetrics struct{}

func (noopMetrics) OperationStarted(string)        {}
func (noopMetrics) OperationSucceeded(string)      {}
func (noopMetrics) OperationFailed(string, string) {}
func (noopMetrics) OperationConflicted(string)     {}
func (noopMetrics) StaleLeaseEvicted(string)       {}
func (noopMetrics) VersionCreated(string)          {}
func (noopMetrics) VersionActivated(string)        {}
func (noopMetrics) ActivationConflicted(string)    {}

// NoopMetrics is the fallback used when no collector is wired in.
func NoopMetrics() MetricsPort {
	return noopMetrics{}
}
