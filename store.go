package arbiter

import (
	"context"

	"github.com/offerlane/arbiter/internal/domain"
	"github.com/offerlane/arbiter/internal/ports"
	"github.com/offerlane/arbiter/internal/xjson"
)

// TypedStore binds one record kind to its content shape, marshaling T in and
// out of the generic version store. Each of the five entity kinds gets its
// own TypedStore in the surrounding backend.
type TypedStore[T any] struct {
	store ports.VersionStorePort
	kind  RecordKind
}

// TypedRecord pairs the stored row with its decoded content.
type TypedRecord[T any] struct {
	Record  VersionedRecord
	Content T
}

func NewTypedStore[T any](m *Manager, kind RecordKind) *TypedStore[T] {
	return &TypedStore[T]{
		store: m.Versions(),
		kind:  kind,
	}
}

func (s *TypedStore[T]) CreateVersion(ctx context.Context, scope Scope, content T, activate bool) (*TypedRecord[T], error) {
	payload, err := xjson.Marshal(content)
	if err != nil {
		return nil, domain.NewValidationError("record", err.Error())
	}

	record, err := s.store.CreateVersion(ctx, s.kind, scope, payload, activate)
	if err != nil {
		return nil, err
	}
	return &TypedRecord[T]{Record: *record, Content: content}, nil
}

func (s *TypedStore[T]) Activate(ctx context.Context, scope Scope, targetID string) error {
	return s.store.Activate(ctx, s.kind, scope, targetID)
}

func (s *TypedStore[T]) Deactivate(ctx context.Context, scope Scope) error {
	return s.store.Deactivate(ctx, s.kind, scope)
}

func (s *TypedStore[T]) GetActive(ctx context.Context, scope Scope) (*TypedRecord[T], bool, error) {
	record, exists, err := s.store.GetActive(ctx, s.kind, scope)
	if err != nil || !exists {
		return nil, false, err
	}
	typed, err := decodeRecord[T](record)
	if err != nil {
		return nil, false, err
	}
	return typed, true, nil
}

func (s *TypedStore[T]) GetVersion(ctx context.Context, scope Scope, targetID string) (*TypedRecord[T], error) {
	record, err := s.store.GetVersion(ctx, s.kind, scope, targetID)
	if err != nil {
		return nil, err
	}
	return decodeRecord[T](record)
}

func (s *TypedStore[T]) ListVersions(ctx context.Context, scope Scope, limit, offset int) ([]TypedRecord[T], error) {
	records, err := s.store.ListVersions(ctx, s.kind, scope, limit, offset)
	if err != nil {
		return nil, err
	}

	typed := make([]TypedRecord[T], 0, len(records))
	for i := range records {
		decoded, err := decodeRecord[T](&records[i])
		if err != nil {
			return nil, err
		}
		typed = append(typed, *decoded)
	}
	return typed, nil
}

func (s *TypedStore[T]) CountVersions(ctx context.Context, scope Scope) (int64, error) {
	return s.store.CountVersions(ctx, s.kind, scope)
}

func (s *TypedStore[T]) DeleteVersion(ctx context.Context, scope Scope, targetID string) error {
	return s.store.DeleteVersion(ctx, s.kind, scope, targetID)
}

func decodeRecord[T any](record *domain.VersionedRecord) (*TypedRecord[T], error) {
	var content T
	if err := xjson.Unmarshal(record.Content, &content); err != nil {
		return nil, domain.NewInternalError("decoding record content", err)
	}
	return &TypedRecord[T]{Record: *record, Content: content}, nil
}
