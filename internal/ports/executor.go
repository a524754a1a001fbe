package ports

import (
	"context"

	"github.com/offerlane/arbiter/internal/domain"
)

// Work is the unit of asynchronous work run under a lease. The operationID is
// the lease's correlation token for logging; work must not derive control
// flow from it.
type Work func(ctx context.Context, operationID string) (interface{}, error)

// ExecutorPort turns "acquire, run, release" into a single call with
// consistent error semantics. The lease is released in all paths, including
// panics, before the outcome is returned.
type ExecutorPort interface {
	Execute(ctx context.Context, subjectID, operationKind string, work Work, metadata map[string]string) *domain.OperationOutcome
}
