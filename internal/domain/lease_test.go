package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewLease(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	lease := NewLease("u1", OperationFileProcessing, 10*time.Minute, map[string]string{"file": "call.vtt"}, now)

	require.NoError(t, lease.Validate())
	require.Equal(t, LeaseStateRunning, lease.State)
	require.NotEmpty(t, lease.OperationID)
	require.Equal(t, now, lease.StartedAt)
	require.Equal(t, now.Add(10*time.Minute), lease.ExpiresAt)
	require.Equal(t, "lease:u1:file_processing", lease.Key())
}

func TestLeaseOperationIDsAreUnique(t *testing.T) {
	now := time.Now()
	a := NewLease("u1", OperationFileProcessing, time.Minute, nil, now)
	b := NewLease("u1", OperationFileProcessing, time.Minute, nil, now)
	require.NotEqual(t, a.OperationID, b.OperationID)
}

func TestLeaseExpiry(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	lease := NewLease("u1", OperationTranscriptUpload, 10*time.Minute, nil, start)

	require.True(t, lease.IsRunning(start.Add(9*time.Minute)))
	require.False(t, lease.IsExpired(start.Add(9*time.Minute)))

	at := start.Add(11 * time.Minute)
	require.True(t, lease.IsExpired(at))
	require.False(t, lease.IsRunning(at))
}

func TestLeaseResolve(t *testing.T) {
	lease := NewLease("u1", OperationFileProcessing, time.Minute, nil, time.Now())

	lease.Resolve(LeaseStateRunning)
	require.Equal(t, LeaseStateRunning, lease.State)

	lease.Resolve(LeaseStateSucceeded)
	require.Equal(t, LeaseStateSucceeded, lease.State)
	require.False(t, lease.IsRunning(time.Now()))
}

func TestLeaseExtend(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	lease := NewLease("u1", OperationFileProcessing, time.Minute, nil, start)

	at := start.Add(30 * time.Second)
	lease.Extend(10*time.Minute, at)
	require.Equal(t, at.Add(10*time.Minute), lease.ExpiresAt)

	// An expired lease cannot be revived.
	expired := NewLease("u1", OperationFileProcessing, time.Minute, nil, start)
	expired.Extend(10*time.Minute, start.Add(2*time.Minute))
	require.Equal(t, start.Add(time.Minute), expired.ExpiresAt)
}

func TestLeaseValidate(t *testing.T) {
	now := time.Now()

	lease := NewLease("", OperationFileProcessing, time.Minute, nil, now)
	require.True(t, IsValidation(lease.Validate()))

	lease = NewLease("u1", "", time.Minute, nil, now)
	require.True(t, IsValidation(lease.Validate()))

	lease = NewLease("u1", OperationFileProcessing, time.Minute, nil, now)
	lease.State = LeaseState("bogus")
	require.True(t, IsValidation(lease.Validate()))
}

func TestLeaseCloneIsolatesMetadata(t *testing.T) {
	lease := NewLease("u1", OperationFileProcessing, time.Minute, map[string]string{"file": "a.docx"}, time.Now())
	cloned := lease.Clone()

	cloned.Metadata["file"] = "b.docx"
	require.Equal(t, "a.docx", lease.Metadata["file"])
}
