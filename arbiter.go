// Package arbiter is the consistency-and-concurrency core shared by the
// surrounding backend's feature areas. It provides two primitives:
//
//   - single-flight execution of long per-user operations (file processing,
//     transcript uploads, content generation), keyed by subject and
//     operation kind, with lease expiry so a crashed operation never blocks
//     its key forever;
//   - a versioned record store that guarantees at most one active version
//     per owner and scope, backed by a storage-level uniqueness constraint
//     that holds even for writers racing across transactions.
//
// Basic usage:
//
//	m, err := arbiter.New(&arbiter.Config{DataDir: "./data"})
//	if err != nil { ... }
//	if err := m.Start(ctx); err != nil { ... }
//	defer m.Stop(ctx)
//
//	outcome := m.Executor().Execute(ctx, userID, arbiter.OperationFileProcessing,
//	    func(ctx context.Context, operationID string) (interface{}, error) {
//	        return processFile(ctx, upload)
//	    }, map[string]string{"file": upload.Name})
//	if outcome.IsConflict() {
//	    // surface as 409: another upload is in flight for this user
//	}
//
//	record, err := m.Versions().CreateVersion(ctx,
//	    arbiter.KindMessagingStrategy, arbiter.NewScope(userID, 1), payload, true)
package arbiter

import (
	"github.com/offerlane/arbiter/internal/core"
	"github.com/offerlane/arbiter/internal/domain"
	"github.com/offerlane/arbiter/internal/ports"
)

// Manager wires the mutex, executor, and version store per configuration.
type Manager = core.Manager

type (
	Config              = domain.Config
	MutexConfig         = domain.MutexConfig
	VersionsConfig      = domain.VersionsConfig
	ObservabilityConfig = domain.ObservabilityConfig
	MutexMode           = domain.MutexMode

	OperationLease   = domain.OperationLease
	OperationOutcome = domain.OperationOutcome
	VersionedRecord  = domain.VersionedRecord
	Scope            = domain.Scope
	RecordKind       = domain.RecordKind
	ErrorType        = domain.ErrorType
	Error            = domain.Error

	OperationMutex   = ports.OperationMutex
	ExecutorPort     = ports.ExecutorPort
	VersionStorePort = ports.VersionStorePort
	Work             = ports.Work
)

const (
	MutexModeMemory  = domain.MutexModeMemory
	MutexModeStorage = domain.MutexModeStorage

	KindMessagingStrategy = domain.KindMessagingStrategy
	KindOfferOutline      = domain.KindOfferOutline
	KindSalesPageDraft    = domain.KindSalesPageDraft
	KindContentPlan       = domain.KindContentPlan
	KindOfferWorkspace    = domain.KindOfferWorkspace

	OperationFileProcessing    = domain.OperationFileProcessing
	OperationTranscriptUpload  = domain.OperationTranscriptUpload
	OperationContentGeneration = domain.OperationContentGeneration

	ErrorTypeConflict   = domain.ErrorTypeConflict
	ErrorTypeNotFound   = domain.ErrorTypeNotFound
	ErrorTypeValidation = domain.ErrorTypeValidation
	ErrorTypeTransient  = domain.ErrorTypeTransient
	ErrorTypeInternal   = domain.ErrorTypeInternal

	DefaultScopeKey = domain.DefaultScopeKey
)

// New builds a Manager from the supplied configuration, applying defaults to
// every unset field. Call Start before use.
func New(config *Config) (*Manager, error) {
	return core.New(config)
}

// LoadConfig reads a YAML configuration file and overlays it onto the
// defaults.
func LoadConfig(path string) (*Config, error) {
	return domain.LoadConfig(path)
}

// NewScope builds a version scope, substituting the default scope key for
// non-positive values.
func NewScope(ownerID string, scopeKey int) Scope {
	return domain.NewScope(ownerID, scopeKey)
}

// Error classification helpers for handler-side response mapping, plus the
// constructors work functions use to report classified failures.
var (
	IsConflict   = domain.IsConflict
	IsNotFound   = domain.IsNotFound
	IsValidation = domain.IsValidation
	IsTransient  = domain.IsTransient
	Classify     = domain.Classify

	// KindRequiresActive reports whether a kind must keep exactly one active
	// record once any record exists; Deactivate and deleting the active
	// record are rejected for such kinds.
	KindRequiresActive = domain.KindRequiresActive

	NewConflictError   = domain.NewConflictError
	NewNotFoundError   = domain.NewNotFoundError
	NewValidationError = domain.NewValidationError
	NewTransientError  = domain.NewTransientError
	NewInternalError   = domain.NewInternalError
)
