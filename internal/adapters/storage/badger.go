package storage

import (
	"encoding/binary"
	"errors"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v3"

	"github.com/offerlane/arbiter/internal/domain"
	"github.com/offerlane/arbiter/internal/ports"
)

// Adapter implements ports.StoragePort over an embedded badger database.
// Each value is stored as an 8-byte big-endian version followed by the
// payload; Put succeeds only when the supplied version is exactly one above
// the stored version, which gives the check-and-insert atomicity the
// storage-backed mutex depends on.
type Adapter struct {
	db     *badger.DB
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
}

const versionHeaderSize = 8

func NewAdapter(dataDir string, logger *slog.Logger) (*Adapter, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, domain.NewStorageError("open", dataDir, err)
	}

	opts := badger.DefaultOptions(dataDir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, domain.NewStorageError("open", dataDir, err)
	}

	return &Adapter{
		db:     db,
		logger: logger.With("component", "storage", "backend", "badger"),
	}, nil
}

func (a *Adapter) Get(key string) ([]byte, int64, bool, error) {
	if err := a.ensureOpen(); err != nil {
		return nil, 0, false, err
	}

	var (
		value   []byte
		version int64
		exists  bool
	)
	err := a.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		raw, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		version, value = decodeVersioned(raw)
		exists = true
		return nil
	})
	if err != nil {
		return nil, 0, false, domain.NewStorageError("get", key, err)
	}
	return value, version, exists, nil
}

func (a *Adapter) Put(key string, value []byte, version int64) error {
	return a.put(key, value, version, 0)
}

func (a *Adapter) PutWithTTL(key string, value []byte, version int64, ttl time.Duration) error {
	return a.put(key, value, version, ttl)
}

func (a *Adapter) put(key string, value []byte, version int64, ttl time.Duration) error {
	if err := a.ensureOpen(); err != nil {
		return err
	}
	if version <= 0 {
		return domain.NewStorageError("put", key, domain.ErrVersionMismatch)
	}

	err := a.db.Update(func(txn *badger.Txn) error {
		current := int64(0)
		item, err := txn.Get([]byte(key))
		if err == nil {
			raw, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			current, _ = decodeVersioned(raw)
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		if version != current+1 {
			return domain.ErrVersionMismatch
		}

		entry := badger.NewEntry([]byte(key), encodeVersioned(version, value))
		if ttl > 0 {
			entry = entry.WithTTL(ttl)
		}
		return txn.SetEntry(entry)
	})
	if errors.Is(err, badger.ErrConflict) {
		// A concurrent writer committed first; same outcome as losing the
		// version check.
		err = domain.ErrVersionMismatch
	}
	if err != nil {
		return domain.NewStorageError("put", key, err)
	}
	return nil
}

func (a *Adapter) Delete(key string) error {
	if err := a.ensureOpen(); err != nil {
		return err
	}

	err := a.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return domain.ErrKeyNotFound
		}
		if err != nil {
			return err
		}
		return txn.Delete([]byte(key))
	})
	if err != nil {
		return domain.NewStorageError("delete", key, err)
	}
	return nil
}

func (a *Adapter) CompareAndDelete(key string, version int64) error {
	if err := a.ensureOpen(); err != nil {
		return err
	}

	err := a.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return domain.ErrKeyNotFound
		}
		if err != nil {
			return err
		}

		raw, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		if current, _ := decodeVersioned(raw); current != version {
			return domain.ErrVersionMismatch
		}
		return txn.Delete([]byte(key))
	})
	if errors.Is(err, badger.ErrConflict) {
		err = domain.ErrVersionMismatch
	}
	if err != nil {
		return domain.NewStorageError("delete", key, err)
	}
	return nil
}

func (a *Adapter) ListByPrefix(prefix string) ([]ports.KeyValueVersion, error) {
	if err := a.ensureOpen(); err != nil {
		return nil, err
	}

	var rows []ports.KeyValueVersion
	err := a.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			raw, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			version, value := decodeVersioned(raw)
			rows = append(rows, ports.KeyValueVersion{
				Key:     string(item.KeyCopy(nil)),
				Value:   value,
				Version: version,
			})
		}
		return nil
	})
	if err != nil {
		return nil, domain.NewStorageError("list", prefix, err)
	}
	return rows, nil
}

func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	return a.db.Close()
}

func (a *Adapter) ensureOpen() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return domain.ErrStorageClosed
	}
	return nil
}

func encodeVersioned(version int64, value []byte) []byte {
	buf := make([]byte, versionHeaderSize+len(value))
	binary.BigEndian.PutUint64(buf, uint64(version))
	copy(buf[versionHeaderSize:], value)
	return buf
}

func decodeVersioned(raw []byte) (int64, []byte) {
	if len(raw) < versionHeaderSize {
		return 0, nil
	}
	return int64(binary.BigEndian.Uint64(raw)), raw[versionHeaderSize:]
}
