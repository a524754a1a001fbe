package mutex

import (
	"context"
	"log/slog"
	"time"

	"github.com/offerlane/arbiter/internal/domain"
	"github.com/offerlane/arbiter/internal/ports"
	"github.com/offerlane/arbiter/internal/xjson"
)

// Store is the storage-backed OperationMutex: leases live as versioned rows
// in the shared key-value store, so single-flight holds across every replica
// pointing at the same store. Writes go through compare-and-swap; a lost race
// surfaces as the same conflict a held lease would.
type Store struct {
	storage ports.StoragePort
	clock   ports.Clock
	logger  *slog.Logger
	metrics ports.MetricsPort
}

func NewStore(storage ports.StoragePort, clock ports.Clock, metrics ports.MetricsPort, logger *slog.Logger) *Store {
	if clock == nil {
		clock = ports.SystemClock()
	}
	if metrics == nil {
		metrics = ports.NoopMetrics()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		storage: storage,
		clock:   clock,
		logger:  logger.With("component", "mutex", "mode", "storage"),
		metrics: metrics,
	}
}

func (s *Store) TryAcquire(ctx context.Context, subjectID, operationKind string, leaseTimeout time.Duration, metadata map[string]string) (*domain.OperationLease, error) {
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
	now := s.clock.Now()

	existing, version, exists, err := s.readLease(key)
	if err != nil {
		return nil, err
	}

	if exists && existing.IsRunning(now) {
		return nil, domain.NewOperationInProgressError(subjectID, operationKind)
	}
	if exists {
		s.metrics.StaleLeaseEvicted(operationKind)
		s.logger.Warn("evicting stale lease",
			"subject_id", subjectID,
			"operation_kind", operationKind,
			"operation_id", existing.OperationID,
			"started_at", existing.StartedAt)
	}

	lease := domain.NewLease(subjectID, operationKind, leaseTimeout, metadata, now)
	payload, err := xjson.Marshal(lease)
	if err != nil {
		return nil, domain.NewInternalError("marshaling lease", err)
	}

	newVersion := int64(1)
	if exists {
		newVersion = version + 1
	}

	// The row outlives leaseTimeout by a margin so Snapshot still sees
	// recently abandoned leases; expiry semantics come from ExpiresAt, the
	// TTL only keeps the store from accumulating garbage.
	if err := s.storage.PutWithTTL(key, payload, newVersion, 2*leaseTimeout); err != nil {
		if domain.IsVersionMismatch(err) {
			// Lost the check-and-insert race to a concurrent acquirer.
			return nil, domain.NewOperationInProgressError(subjectID, operationKind)
		}
		return nil, domain.NewTransientError("lease write", err)
	}

	s.logger.Debug("lease acquired",
		"subject_id", subjectID,
		"operation_kind", operationKind,
		"operation_id", lease.OperationID,
		"expires_at", lease.ExpiresAt)
	return lease, nil
}

func (s *Store) Release(ctx context.Context, lease *domain.OperationLease, finalState domain.LeaseState) error {
	if lease == nil {
		return nil
	}

	key := lease.Key()
	held, version, exists, err := s.readLease(key)
	if err != nil {
		return err
	}
	if !exists || held.OperationID != lease.OperationID {
		return nil
	}

	// Delete conditionally on the version just read: if a successor slipped
	// in after this lease expired, its row carries a higher version and an
	// unconditional delete would evict it.
	if err := s.storage.CompareAndDelete(key, version); err != nil {
		if domain.IsKeyNotFound(err) || domain.IsVersionMismatch(err) {
			return nil
		}
		return domain.NewTransientError("lease delete", err)
	}

	s.logger.Debug("lease released",
		"subject_id", lease.SubjectID,
		"operation_kind", lease.OperationKind,
		"operation_id", lease.OperationID,
		"final_state", finalState)
	return nil
}

func (s *Store) Extend(ctx context.Context, lease *domain.OperationLease, leaseTimeout time.Duration) error {
	if lease == nil {
		return domain.NewValidationError("mutex", "lease cannot be nil")
	}

	key := lease.Key()
	now := s.clock.Now()

	held, version, exists, err := s.readLease(key)
	if err != nil {
		return err
	}
	if !exists || held.OperationID != lease.OperationID || !held.IsRunning(now) {
		return domain.NewConflictError("lease no longer held", map[string]interface{}{
			"subject_id":     lease.SubjectID,
			"operation_kind": lease.OperationKind,
			"operation_id":   lease.OperationID,
		})
	}

	held.Extend(leaseTimeout, now)
	payload, err := xjson.Marshal(held)
	if err != nil {
		return domain.NewInternalError("marshaling lease", err)
	}

	if err := s.storage.PutWithTTL(key, payload, version+1, 2*leaseTimeout); err != nil {
		if domain.IsVersionMismatch(err) {
			return domain.NewConflictError("lease no longer held", nil)
		}
		return domain.NewTransientError("lease write", err)
	}

	lease.ExpiresAt = held.ExpiresAt
	return nil
}

func (s *Store) Snapshot(ctx context.Context) ([]domain.OperationLease, error) {
	rows, err := s.storage.ListByPrefix(domain.LeasePrefix)
	if err != nil {
		return nil, domain.NewTransientError("lease scan", err)
	}

	now := s.clock.Now()
	leases := make([]domain.OperationLease, 0, len(rows))
	for _, row := range rows {
		var lease domain.OperationLease
		if err := xjson.Unmarshal(row.Value, &lease); err != nil {
			s.logger.Error("skipping undecodable lease row", "key", row.Key, "error", err)
			continue
		}
		if lease.IsRunning(now) {
			leases = append(leases, lease)
		}
	}
	return leases, nil
}

func (s *Store) readLease(key string) (domain.OperationLease, int64, bool, error) {
	value, version, exists, err := s.storage.Get(key)
	if err != nil {
		if domain.IsKeyNotFound(err) {
			return domain.OperationLease{}, 0, false, nil
		}
		return domain.OperationLease{}, 0, false, domain.NewTransientError("lease read", err)
	}
	if !exists || len(value) == 0 {
		return domain.OperationLease{}, version, false, nil
	}

	var lease domain.OperationLease
	if err := xjson.Unmarshal(value, &lease); err != nil {
		// Treat a corrupt row as absent; the next CAS write replaces it.
		s.logger.Error("undecodable lease row", "key", key, "error", err)
		return domain.OperationLease{}, version, false, nil
	}
	return lease, version, true, nil
}
