package mutex

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/offerlane/arbiter/internal/domain"
	"github.com/offerlane/arbiter/internal/ports"
)

// Memory is the in-process OperationMutex: a mutex-guarded map of lease key
// to live lease. It serializes operations within one process only; replicas
// do not see each other's leases (use Store for that).
type Memory struct {
	mu      sync.Mutex
	leases  map[string]*domain.OperationLease
	clock   ports.Clock
	logger  *slog.Logger
	metrics ports.MetricsPort
}

func NewMemory(clock ports.Clock, metrics ports.MetricsPort, logger *slog.Logger) *Memory {
	if clock == nil {
		clock = ports.SystemClock()
	}
	if metrics == nil {
		metrics = ports.NoopMetrics()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Memory{
		leases:  make(map[string]*domain.OperationLease),
		clock:   clock,
		logger:  logger.With("component", "mutex", "mode", "memory"),
		metrics: metrics,
	}
}

func (m *Memory) TryAcquire(ctx context.Context, subjectID, operationKind string, leaseTimeout time.Duration, metadata map[string]string) (*domain.OperationLease, error) {
	if subjectID == "" {
		return nil, domain.NewValidationError("mutex", "subject_id cannot be empty")
	}
	if operationKind == "" {
		return nil, domain.NewValidationError("mutex", "operation_kind cannot be empty")
	}
	if leaseTimeout <= 0 {
		return nil, domain.NewValidationError("mutex", "lease_timeout must be positive")
	}

	key := domain.LeaseKey(subjectID, operationKind)
	now := m.clock.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.leases[key]; ok {
		if existing.IsRunning(now) {
			m.logger.Debug("acquisition rejected, lease held",
				"subject_id", subjectID,
				"operation_kind", operationKind,
				"operation_id", existing.OperationID)
			return nil, domain.NewOperationInProgressError(subjectID, operationKind)
		}
		// Abandoned after a crash mid-operation; evict and proceed.
		delete(m.leases, key)
		m.metrics.StaleLeaseEvicted(operationKind)
		m.logger.Warn("evicted stale lease",
			"subject_id", subjectID,
			"operation_kind", operationKind,
			"operation_id", existing.OperationID,
			"started_at", existing.StartedAt)
	}

	lease := domain.NewLease(subjectID, operationKind, leaseTimeout, metadata, now)
	m.leases[key] = lease

	m.logger.Debug("lease acquired",
		"subject_id", subjectID,
		"operation_kind", operationKind,
		"operation_id", lease.OperationID,
		"expires_at", lease.ExpiresAt)
	return lease.Clone(), nil
}

func (m *Memory) Release(ctx context.Context, lease *domain.OperationLease, finalState domain.LeaseState) error {
	if lease == nil {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	held, ok := m.leases[lease.Key()]
	if !ok || held.OperationID != lease.OperationID {
		// Already released, or evicted and superseded. Not an error.
		return nil
	}

	held.Resolve(finalState)
	delete(m.leases, lease.Key())

	m.logger.Debug("lease released",
		"subject_id", lease.SubjectID,
		"operation_kind", lease.OperationKind,
		"operation_id", lease.OperationID,
		"final_state", finalState)
	return nil
}

func (m *Memory) Extend(ctx context.Context, lease *domain.OperationLease, leaseTimeout time.Duration) error {
	if lease == nil {
		return domain.NewValidationError("mutex", "lease cannot be nil")
	}

	now := m.clock.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	held, ok := m.leases[lease.Key()]
	if !ok || held.OperationID != lease.OperationID || !held.IsRunning(now) {
		return domain.NewConflictError("lease no longer held", map[string]interface{}{
			"subject_id":     lease.SubjectID,
			"operation_kind": lease.OperationKind,
			"operation_id":   lease.OperationID,
		})
	}

	held.Extend(leaseTimeout, now)
	lease.ExpiresAt = held.ExpiresAt
	return nil
}

func (m *Memory) Snapshot(ctx context.Context) ([]domain.OperationLease, error) {
	now := m.clock.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	leases := make([]domain.OperationLease, 0, len(m.leases))
	for _, lease := range m.leases {
		if lease.IsRunning(now) {
			leases = append(leases, *lease.Clone())
		}
	}
	return leases, nil
}
