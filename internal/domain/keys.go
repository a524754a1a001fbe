package domain

import "fmt"

const LeasePrefix = "lease:"

// LeaseKey builds the canonical registry key for an operation lease.
func LeaseKey(subjectID, operationKind string) string {
	return fmt.Sprintf("%s%s:%s", LeasePrefix, subjectID, operationKind)
}
