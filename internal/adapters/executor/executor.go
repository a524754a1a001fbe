package executor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/offerlane/arbiter/internal/domain"
	"github.com/offerlane/arbiter/internal/ports"
)

// Executor wraps a unit of asynchronous work with the operation mutex:
// acquire, run, release, with the release guaranteed on every path including
// a panicking work function. A held lease short-circuits to a conflict
// outcome without running the work.
type Executor struct {
	mutex        ports.OperationMutex
	leaseTimeout time.Duration
	logger       *slog.Logger
	metrics      ports.MetricsPort
}

func New(mutex ports.OperationMutex, leaseTimeout time.Duration, metrics ports.MetricsPort, logger *slog.Logger) *Executor {
	if metrics == nil {
		metrics = ports.NoopMetrics()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		mutex:        mutex,
		leaseTimeout: leaseTimeout,
		logger:       logger.With("component", "executor"),
		metrics:      metrics,
	}
}

func (e *Executor) Execute(ctx context.Context, subjectID, operationKind string, work ports.Work, metadata map[string]string) (outcome *domain.OperationOutcome) {
	lease, err := e.mutex.TryAcquire(ctx, subjectID, operationKind, e.leaseTimeout, metadata)
	if err != nil {
		if domain.IsConflict(err) {
			e.metrics.OperationConflicted(operationKind)
			e.logger.Info("operation rejected, already in progress",
				"subject_id", subjectID,
				"operation_kind", operationKind)
		} else {
			e.logger.Error("lease acquisition failed",
				"subject_id", subjectID,
				"operation_kind", operationKind,
				"error", err)
		}
		return domain.NewFailureOutcome(err)
	}

	e.metrics.OperationStarted(operationKind)
	e.logger.Info("operation started",
		"subject_id", subjectID,
		"operation_kind", operationKind,
		"operation_id", lease.OperationID)

	defer func() {
		finalState := domain.LeaseStateSucceeded
		if r := recover(); r != nil {
			err := domain.NewInternalError(fmt.Sprintf("operation panicked: %v", r), nil)
			outcome = domain.NewFailureOutcome(err)
			e.logger.Error("operation panicked",
				"subject_id", subjectID,
				"operation_kind", operationKind,
				"operation_id", lease.OperationID,
				"panic", r)
		}
		if outcome == nil || !outcome.Success {
			finalState = domain.LeaseStateFailed
		}

		if finalState == domain.LeaseStateSucceeded {
			e.metrics.OperationSucceeded(operationKind)
		} else {
			kind := domain.ErrorTypeInternal
			if outcome != nil && outcome.ErrorKind != "" {
				kind = outcome.ErrorKind
			}
			e.metrics.OperationFailed(operationKind, string(kind))
		}

		if rerr := e.mutex.Release(ctx, lease, finalState); rerr != nil {
			// The lease timeout bounds the damage if this ever happens.
			e.logger.Error("lease release failed",
				"subject_id", subjectID,
				"operation_kind", operationKind,
				"operation_id", lease.OperationID,
				"error", rerr)
		}
	}()

	data, err := work(ctx, lease.OperationID)
	if err != nil {
		e.logger.Warn("operation failed",
			"subject_id", subjectID,
			"operation_kind", operationKind,
			"operation_id", lease.OperationID,
			"error_kind", string(domain.Classify(err)),
			"error", err)
		return domain.NewFailureOutcome(err)
	}

	e.logger.Info("operation completed",
		"subject_id", subjectID,
		"operation_kind", operationKind,
		"operation_id", lease.OperationID)
	return domain.NewSuccessOutcome(data)
}
