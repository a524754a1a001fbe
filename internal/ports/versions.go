package ports

import (
	"context"

	json "github.com/goccy/go-json"

	"github.com/offerlane/arbiter/internal/domain"
)

// VersionStorePort is the repository contract for versioned, optionally
// activatable records. Implementations guarantee at most one active record
// per (kind, scope) through a storage-level uniqueness constraint; the
// deactivate-then-activate sequence inside each operation only makes the
// common case race-free.
type VersionStorePort interface {
	// CreateVersion inserts a new version (never an update). With activate
	// set, the insert and the deactivation of every sibling happen in one
	// transaction. Losing a race surfaces a conflict-typed error; callers
	// retry the whole call once.
	CreateVersion(ctx context.Context, kind domain.RecordKind, scope domain.Scope, content json.RawMessage, activate bool) (*domain.VersionedRecord, error)

	// Activate flips an existing record to active, deactivating its
	// siblings in the same transaction. Returns a not-found-typed error
	// when targetID does not belong to (kind, scope).
	Activate(ctx context.Context, kind domain.RecordKind, scope domain.Scope, targetID string) error

	// Deactivate clears the active flag for the whole scope, leaving it
	// with zero actives. A scope with no active record is a no-op. Rejected
	// with a validation-typed error for kinds that must keep exactly one
	// active record (domain.KindRequiresActive).
	Deactivate(ctx context.Context, kind domain.RecordKind, scope domain.Scope) error

	// GetActive returns the active record, or exists=false when the scope
	// has none.
	GetActive(ctx context.Context, kind domain.RecordKind, scope domain.Scope) (*domain.VersionedRecord, bool, error)

	// GetVersion fetches one record by id within the scope.
	GetVersion(ctx context.Context, kind domain.RecordKind, scope domain.Scope, targetID string) (*domain.VersionedRecord, error)

	// ListVersions returns versions newest first. A non-positive limit
	// means no limit.
	ListVersions(ctx context.Context, kind domain.RecordKind, scope domain.Scope, limit, offset int) ([]domain.VersionedRecord, error)

	// CountVersions reports how many versions the scope holds.
	CountVersions(ctx context.Context, kind domain.RecordKind, scope domain.Scope) (int64, error)

	// DeleteVersion removes one record by explicit request. Deleting the
	// active record leaves the scope with no active; siblings are never
	// promoted implicitly. For exactly-one-active kinds, deleting the
	// active record while siblings remain is a conflict-typed error; the
	// last record of a scope may always be deleted.
	DeleteVersion(ctx context.Context, kind domain.RecordKind, scope domain.Scope, targetID string) error

	Close() error
}
