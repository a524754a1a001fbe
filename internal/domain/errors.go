package domain

import (
	"context"
	"errors"
	"fmt"
)

type ErrorType string

const (
	ErrorTypeConflict   ErrorType = "conflict"
	ErrorTypeNotFound   ErrorType = "not_found"
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeTransient  ErrorType = "transient"
	ErrorTypeInternal   ErrorType = "internal"
)

// Error is the typed error surfaced by every arbiter component. Handlers map
// Type to a response class (conflict -> 409, validation -> 400, not_found ->
// 404, everything else -> 500) without parsing messages.
type Error struct {
	Type    ErrorType
	Message string
	Details map[string]interface{}
	Err     error
}

func (e Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e Error) Unwrap() error {
	return e.Err
}

func NewConflictError(message string, details map[string]interface{}) Error {
	return Error{
		Type:    ErrorTypeConflict,
		Message: message,
		Details: details,
	}
}

func NewNotFoundError(resource, id string) Error {
	return Error{
		Type:    ErrorTypeNotFound,
		Message: fmt.Sprintf("%s not found: %s", resource, id),
		Details: map[string]interface{}{
			"resource": resource,
			"id":       id,
		},
	}
}

func NewValidationError(entity, message string) Error {
	return Error{
		Type:    ErrorTypeValidation,
		Message: fmt.Sprintf("%s: %s", entity, message),
		Details: map[string]interface{}{
			"entity": entity,
		},
	}
}

func NewTransientError(op string, err error) Error {
	return Error{
		Type:    ErrorTypeTransient,
		Message: fmt.Sprintf("%s failed transiently", op),
		Details: map[string]interface{}{
			"operation": op,
		},
		Err: err,
	}
}

func NewInternalError(message string, err error) Error {
	return Error{
		Type:    ErrorTypeInternal,
		Message: message,
		Err:     err,
	}
}

// NewOperationInProgressError is the conflict returned when a live lease
// already exists for (subjectID, operationKind).
func NewOperationInProgressError(subjectID, operationKind string) Error {
	return Error{
		Type:    ErrorTypeConflict,
		Message: fmt.Sprintf("another %s operation is already in progress", operationKind),
		Details: map[string]interface{}{
			"subject_id":     subjectID,
			"operation_kind": operationKind,
		},
	}
}

// NewActivationConflictError is the conflict returned when the activation
// uniqueness constraint rejects a write that lost a race to a concurrent
// caller. Callers should retry the whole operation once.
func NewActivationConflictError(kind RecordKind, scope Scope) Error {
	return Error{
		Type:    ErrorTypeConflict,
		Message: fmt.Sprintf("activation conflict for %s, please retry", kind),
		Details: map[string]interface{}{
			"kind":      string(kind),
			"owner_id":  scope.OwnerID,
			"scope_key": scope.ScopeKey,
		},
	}
}

func IsConflict(err error) bool {
	return typeOf(err) == ErrorTypeConflict
}

func IsNotFound(err error) bool {
	return typeOf(err) == ErrorTypeNotFound
}

func IsValidation(err error) bool {
	return typeOf(err) == ErrorTypeValidation
}

func IsTransient(err error) bool {
	return typeOf(err) == ErrorTypeTransient
}

func typeOf(err error) ErrorType {
	var typed Error
	if errors.As(err, &typed) {
		return typed.Type
	}
	return ""
}

// Classify maps an arbitrary error to the taxonomy. Typed errors keep their
// type; context cancellation and deadline expiry count as transient because a
// retry on a fresh request is expected to succeed; anything else is internal.
func Classify(err error) ErrorType {
	if err == nil {
		return ""
	}
	if t := typeOf(err); t != "" {
		return t
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ErrorTypeTransient
	}
	return ErrorTypeInternal
}

// Storage-level sentinels used by the key-value adapter. They stay below the
// taxonomy: the mutex adapters translate them into typed errors before
// anything reaches callers.
var (
	ErrKeyNotFound     = errors.New("key not found")
	ErrVersionMismatch = errors.New("version mismatch")
	ErrStorageClosed   = errors.New("storage closed")
)

type StorageError struct {
	Op  string
	Key string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func NewStorageError(op, key string, err error) *StorageError {
	return &StorageError{Op: op, Key: key, Err: err}
}

func IsKeyNotFound(err error) bool {
	return errors.Is(err, ErrKeyNotFound)
}

func IsVersionMismatch(err error) bool {
	return errors.Is(err, ErrVersionMismatch)
}
