package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type LeaseState string

const (
	LeaseStateRunning   LeaseState = "running"
	LeaseStateSucceeded LeaseState = "succeeded"
	LeaseStateFailed    LeaseState = "failed"
)

// Well-known operation kinds. The mutex accepts any non-empty string; these
// are the kinds the surrounding backend serializes today.
const (
	OperationFileProcessing    = "file_processing"
	OperationTranscriptUpload  = "transcript_upload"
	OperationContentGeneration = "content_generation"
)

// OperationLease is a time-bounded claim that one long operation is in flight
// for (SubjectID, OperationKind). It is a concurrency aid, not a business
// record: registries own it exclusively and drop it on release.
type OperationLease struct {
	SubjectID     string            `json:"subject_id"`
	OperationKind string            `json:"operation_kind"`
	OperationID   string            `json:"operation_id"`
	State         LeaseState        `json:"state"`
	StartedAt     time.Time         `json:"started_at"`
	ExpiresAt     time.Time         `json:"expires_at"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

func NewLease(subjectID, operationKind string, leaseTimeout time.Duration, metadata map[string]string, now time.Time) *OperationLease {
	return &OperationLease{
		SubjectID:     subjectID,
		OperationKind: operationKind,
		OperationID:   uuid.NewString(),
		State:         LeaseStateRunning,
		StartedAt:     now,
		ExpiresAt:     now.Add(leaseTimeout),
		Metadata:      cloneMetadata(metadata),
	}
}

func (l *OperationLease) IsExpired(now time.Time) bool {
	return now.After(l.ExpiresAt)
}

// IsRunning reports whether the lease still blocks a new acquisition. An
// expired lease is treated as abandoned regardless of its recorded state.
func (l *OperationLease) IsRunning(now time.Time) bool {
	return l.State == LeaseStateRunning && !l.IsExpired(now)
}

func (l *OperationLease) Resolve(state LeaseState) {
	if state == LeaseStateSucceeded || state == LeaseStateFailed {
		l.State = state
	}
}

func (l *OperationLease) Extend(leaseTimeout time.Duration, now time.Time) {
	if l.IsRunning(now) {
		l.ExpiresAt = now.Add(leaseTimeout)
	}
}

func (l *OperationLease) Validate() error {
	if l.SubjectID == "" {
		return NewValidationError("lease", "subject_id cannot be empty")
	}
	if l.OperationKind == "" {
		return NewValidationError("lease", "operation_kind cannot be empty")
	}
	if l.OperationID == "" {
		return NewValidationError("lease", "operation_id cannot be empty")
	}
	if l.StartedAt.IsZero() {
		return NewValidationError("lease", "started_at cannot be zero")
	}
	if l.ExpiresAt.IsZero() {
		return NewValidationError("lease", "expires_at cannot be zero")
	}
	if l.ExpiresAt.Before(l.StartedAt) {
		return NewValidationError("lease", "expires_at must be after started_at")
	}
	if l.State != LeaseStateRunning && l.State != LeaseStateSucceeded && l.State != LeaseStateFailed {
		return NewValidationError("lease", fmt.Sprintf("invalid state: %s", l.State))
	}
	return nil
}

func (l *OperationLease) Key() string {
	return LeaseKey(l.SubjectID, l.OperationKind)
}

func (l *OperationLease) Clone() *OperationLease {
	if l == nil {
		return nil
	}
	cloned := *l
	cloned.Metadata = cloneMetadata(l.Metadata)
	return &cloned
}

func cloneMetadata(metadata map[string]string) map[string]string {
	if len(metadata) == 0 {
		return nil
	}
	cloned := make(map[string]string, len(metadata))
	for k, v := range metadata {
		cloned[k] = v
	}
	return cloned
}
