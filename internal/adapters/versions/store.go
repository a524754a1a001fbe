package versions

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/offerlane/arbiter/internal/domain"
	"github.com/offerlane/arbiter/internal/ports"
	"github.com/offerlane/arbiter/internal/xjson"
)

//go:embed schema.sql
var schemaSQL string

// Store implements ports.VersionStorePort over sqlite. One table covers all
// record kinds; the kind is part of the uniqueness scope. WAL mode with a
// single-writer pool avoids SQLITE_BUSY under concurrent writers; the partial
// unique index on (kind, owner_id, scope_key) WHERE is_active = 1 is what
// makes activation uniqueness hold even for callers racing across
// transactions.
type Store struct {
	db      *sql.DB
	clock   ports.Clock
	logger  *slog.Logger
	metrics ports.MetricsPort
}

func Open(path string, clock ports.Clock, metrics ports.MetricsPort, logger *slog.Logger) (*Store, error) {
	if clock == nil {
		clock = ports.SystemClock()
	}
	if metrics == nil {
		metrics = ports.NoopMetrics()
	}
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, domain.NewStorageError("open", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, domain.NewStorageError("open", path, err)
	}

	// sqlite supports one writer at a time; a single connection sidesteps
	// SQLITE_BUSY and serializes the deactivate-then-activate transactions.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, domain.NewStorageError("pragma", path, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, domain.NewStorageError("schema", path, err)
	}

	return &Store{
		db:      db,
		clock:   clock,
		logger:  logger.With("component", "versions"),
		metrics: metrics,
	}, nil
}

func (s *Store) CreateVersion(ctx context.Context, kind domain.RecordKind, scope domain.Scope, content json.RawMessage, activate bool) (*domain.VersionedRecord, error) {
	if kind == "" {
		return nil, domain.NewValidationError("record", "kind cannot be empty")
	}
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	if len(content) == 0 {
		return nil, domain.NewValidationError("record", "content cannot be empty")
	}
	if !xjson.Valid(content) {
		return nil, domain.NewValidationError("record", "content must be valid JSON")
	}

	now := s.clock.Now()
	record := &domain.VersionedRecord{
		ID:        uuid.NewString(),
		Kind:      kind,
		OwnerID:   scope.OwnerID,
		ScopeKey:  scope.ScopeKey,
		IsActive:  activate,
		Content:   append(json.RawMessage(nil), content...),
		CreatedAt: now,
		UpdatedAt: now,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, domain.NewTransientError("version insert", err)
	}
	defer tx.Rollback()

	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) + 1
		   FROM content_versions
		  WHERE kind = ? AND owner_id = ? AND scope_key = ?`,
		kind, scope.OwnerID, scope.ScopeKey,
	).Scan(&record.Version); err != nil {
		return nil, domain.NewTransientError("version insert", err)
	}

	if activate {
		// Deactivate first: inserting the new active row before clearing
		// siblings would trip the uniqueness index on every activation.
		if _, err := tx.ExecContext(ctx,
			`UPDATE content_versions
			    SET is_active = 0, updated_at = ?
			  WHERE kind = ? AND owner_id = ? AND scope_key = ? AND is_active = 1`,
			now, kind, scope.OwnerID, scope.ScopeKey,
		); err != nil {
			return nil, domain.NewTransientError("version insert", err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO content_versions
		        (id, kind, owner_id, scope_key, version, is_active, content, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID, record.Kind, record.OwnerID, record.ScopeKey,
		record.Version, boolToInt(record.IsActive), []byte(record.Content),
		record.CreatedAt, record.UpdatedAt,
	); err != nil {
		if isUniqueViolation(err) {
			s.metrics.ActivationConflicted(string(kind))
			return nil, domain.NewActivationConflictError(kind, scope)
		}
		return nil, domain.NewTransientError("version insert", err)
	}

	if err := tx.Commit(); err != nil {
		if isUniqueViolation(err) {
			s.metrics.ActivationConflicted(string(kind))
			return nil, domain.NewActivationConflictError(kind, scope)
		}
		return nil, domain.NewTransientError("version insert", err)
	}

	s.metrics.VersionCreated(string(kind))
	if activate {
		s.metrics.VersionActivated(string(kind))
	}
	s.logger.Debug("version created",
		"kind", string(kind),
		"owner_id", scope.OwnerID,
		"scope_key", scope.ScopeKey,
		"record_id", record.ID,
		"version", record.Version,
		"active", activate)
	return record, nil
}

func (s *Store) Activate(ctx context.Context, kind domain.RecordKind, scope domain.Scope, targetID string) error {
	if err := scope.Validate(); err != nil {
		return err
	}
	if targetID == "" {
		return domain.NewValidationError("record", "target id cannot be empty")
	}

	now := s.clock.Now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.NewTransientError("activation", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM content_versions
		  WHERE id = ? AND kind = ? AND owner_id = ? AND scope_key = ?`,
		targetID, kind, scope.OwnerID, scope.ScopeKey,
	).Scan(&exists); err != nil {
		return domain.NewTransientError("activation", err)
	}
	if exists == 0 {
		return domain.NewNotFoundError(string(kind), targetID)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE content_versions
		    SET is_active = 0, updated_at = ?
		  WHERE kind = ? AND owner_id = ? AND scope_key = ? AND is_active = 1 AND id != ?`,
		now, kind, scope.OwnerID, scope.ScopeKey, targetID,
	); err != nil {
		return domain.NewTransientError("activation", err)
	}

	// Only the flag and updated_at move; content is never touched.
	if _, err := tx.ExecContext(ctx,
		`UPDATE content_versions
		    SET is_active = 1, updated_at = ?
		  WHERE id = ?`,
		now, targetID,
	); err != nil {
		if isUniqueViolation(err) {
			s.metrics.ActivationConflicted(string(kind))
			return domain.NewActivationConflictError(kind, scope)
		}
		return domain.NewTransientError("activation", err)
	}

	if err := tx.Commit(); err != nil {
		if isUniqueViolation(err) {
			s.metrics.ActivationConflicted(string(kind))
			return domain.NewActivationConflictError(kind, scope)
		}
		return domain.NewTransientError("activation", err)
	}

	s.metrics.VersionActivated(string(kind))
	s.logger.Debug("version activated",
		"kind", string(kind),
		"owner_id", scope.OwnerID,
		"scope_key", scope.ScopeKey,
		"record_id", targetID)
	return nil
}

func (s *Store) Deactivate(ctx context.Context, kind domain.RecordKind, scope domain.Scope) error {
	if err := scope.Validate(); err != nil {
		return err
	}
	if domain.KindRequiresActive(kind) {
		return domain.NewValidationError("record",
			fmt.Sprintf("%s must keep an active record; activate another version instead", kind))
	}

	_, err := s.db.ExecContext(ctx,
		`UPDATE content_versions
		    SET is_active = 0, updated_at = ?
		  WHERE kind = ? AND owner_id = ? AND scope_key = ? AND is_active = 1`,
		s.clock.Now(), kind, scope.OwnerID, scope.ScopeKey,
	)
	if err != nil {
		return domain.NewTransientError("deactivation", err)
	}
	return nil
}

func (s *Store) GetActive(ctx context.Context, kind domain.RecordKind, scope domain.Scope) (*domain.VersionedRecord, bool, error) {
	if err := scope.Validate(); err != nil {
		return nil, false, err
	}

	rows, err := s.db.QueryContext(ctx,
		selectColumns+`
		  WHERE kind = ? AND owner_id = ? AND scope_key = ? AND is_active = 1
		  ORDER BY updated_at DESC, version DESC`,
		kind, scope.OwnerID, scope.ScopeKey,
	)
	if err != nil {
		return nil, false, domain.NewTransientError("active read", err)
	}
	defer rows.Close()

	records, err := scanRecords(rows)
	if err != nil {
		return nil, false, domain.NewTransientError("active read", err)
	}

	switch len(records) {
	case 0:
		return nil, false, nil
	case 1:
		return &records[0], true, nil
	default:
		// Unreachable through this store; a direct write bypassed the
		// uniqueness index. Surface it as the data-integrity bug it is and
		// return the most recently updated row.
		s.logger.Error("activation invariant violated, multiple active records",
			"kind", string(kind),
			"owner_id", scope.OwnerID,
			"scope_key", scope.ScopeKey,
			"active_count", len(records))
		return &records[0], true, nil
	}
}

func (s *Store) GetVersion(ctx context.Context, kind domain.RecordKind, scope domain.Scope, targetID string) (*domain.VersionedRecord, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		selectColumns+`
		  WHERE id = ? AND kind = ? AND owner_id = ? AND scope_key = ?`,
		targetID, kind, scope.OwnerID, scope.ScopeKey,
	)
	if err != nil {
		return nil, domain.NewTransientError("version read", err)
	}
	defer rows.Close()

	records, err := scanRecords(rows)
	if err != nil {
		return nil, domain.NewTransientError("version read", err)
	}
	if len(records) == 0 {
		return nil, domain.NewNotFoundError(string(kind), targetID)
	}
	return &records[0], nil
}

func (s *Store) ListVersions(ctx context.Context, kind domain.RecordKind, scope domain.Scope, limit, offset int) ([]domain.VersionedRecord, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = -1
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.QueryContext(ctx,
		selectColumns+`
		  WHERE kind = ? AND owner_id = ? AND scope_key = ?
		  ORDER BY version DESC
		  LIMIT ? OFFSET ?`,
		kind, scope.OwnerID, scope.ScopeKey, limit, offset,
	)
	if err != nil {
		return nil, domain.NewTransientError("version list", err)
	}
	defer rows.Close()

	records, err := scanRecords(rows)
	if err != nil {
		return nil, domain.NewTransientError("version list", err)
	}
	return records, nil
}

func (s *Store) CountVersions(ctx context.Context, kind domain.RecordKind, scope domain.Scope) (int64, error) {
	if err := scope.Validate(); err != nil {
		return 0, err
	}

	var count int64
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM content_versions
		  WHERE kind = ? AND owner_id = ? AND scope_key = ?`,
		kind, scope.OwnerID, scope.ScopeKey,
	).Scan(&count); err != nil {
		return 0, domain.NewTransientError("version count", err)
	}
	return count, nil
}

func (s *Store) DeleteVersion(ctx context.Context, kind domain.RecordKind, scope domain.Scope, targetID string) error {
	if err := scope.Validate(); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.NewTransientError("version delete", err)
	}
	defer tx.Rollback()

	var active, siblings int
	err = tx.QueryRowContext(ctx,
		`SELECT is_active,
		        (SELECT COUNT(1) FROM content_versions
		          WHERE kind = ? AND owner_id = ? AND scope_key = ? AND id != ?)
		   FROM content_versions
		  WHERE id = ? AND kind = ? AND owner_id = ? AND scope_key = ?`,
		kind, scope.OwnerID, scope.ScopeKey, targetID,
		targetID, kind, scope.OwnerID, scope.ScopeKey,
	).Scan(&active, &siblings)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.NewNotFoundError(string(kind), targetID)
	}
	if err != nil {
		return domain.NewTransientError("version delete", err)
	}

	// Deleting the active record of an exactly-one-active kind would strand
	// its siblings with no active; the last record may go, emptying the scope.
	if active == 1 && siblings > 0 && domain.KindRequiresActive(kind) {
		return domain.NewConflictError("cannot delete the active record, activate another version first",
			map[string]interface{}{
				"kind":      string(kind),
				"owner_id":  scope.OwnerID,
				"scope_key": scope.ScopeKey,
				"id":        targetID,
			})
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM content_versions WHERE id = ?`, targetID,
	); err != nil {
		return domain.NewTransientError("version delete", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.NewTransientError("version delete", err)
	}

	s.logger.Debug("version deleted",
		"kind", string(kind),
		"owner_id", scope.OwnerID,
		"scope_key", scope.ScopeKey,
		"record_id", targetID)
	return nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

const selectColumns = `SELECT id, kind, owner_id, scope_key, version, is_active, content, created_at, updated_at
		   FROM content_versions`

func scanRecords(rows *sql.Rows) ([]domain.VersionedRecord, error) {
	var records []domain.VersionedRecord
	for rows.Next() {
		var (
			record  domain.VersionedRecord
			active  int
			content []byte
		)
		if err := rows.Scan(
			&record.ID, &record.Kind, &record.OwnerID, &record.ScopeKey,
			&record.Version, &active, &content,
			&record.CreatedAt, &record.UpdatedAt,
		); err != nil {
			return nil, err
		}
		record.IsActive = active == 1
		record.Content = json.RawMessage(content)
		records = append(records, record)
	}
	return records, rows.Err()
}

func isUniqueViolation(err error) bool {
	var serr sqlite3.Error
	if errors.As(err, &serr) {
		return serr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			serr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
