package ports

import (
	"context"
	"time"

	"github.com/offerlane/arbiter/internal/domain"
)

// OperationMutex provides try-acquire / release semantics keyed by
// (subjectID, operationKind). Acquisition is a single atomic check-and-insert:
// two simultaneous TryAcquire calls for the same key never both succeed.
type OperationMutex interface {
	// TryAcquire returns a fresh running lease, or a conflict-typed error
	// when a live lease already exists for the key. A lease older than
	// leaseTimeout is treated as abandoned, evicted in-line, and the
	// acquisition proceeds as if no lease existed.
	TryAcquire(ctx context.Context, subjectID, operationKind string, leaseTimeout time.Duration, metadata map[string]string) (*domain.OperationLease, error)

	// Release removes the lease regardless of finalState. Idempotent:
	// releasing a missing, already-released, or superseded handle is a
	// no-op, not an error.
	Release(ctx context.Context, lease *domain.OperationLease, finalState domain.LeaseState) error

	// Extend pushes out the expiry of a lease the caller still holds.
	// Returns a conflict-typed error when the lease is no longer held.
	Extend(ctx context.Context, lease *domain.OperationLease, leaseTimeout time.Duration) error

	// Snapshot lists the live leases for diagnostics. The returned slice is
	// a copy; mutating it does not touch registry state.
	Snapshot(ctx context.Context) ([]domain.OperationLease, error)
}
