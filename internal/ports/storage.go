package ports

import "time"

// StoragePort is the key-value contract behind the storage-backed mutex.
// Writes are compare-and-swap: Put succeeds only when the supplied version is
// exactly one above the stored version (or 1 for a missing key), so two
// racing writers cannot both win.
type StoragePort interface {
	Get(key string) (value []byte, version int64, exists bool, err error)
	Put(key string, value []byte, version int64) error
	PutWithTTL(key string, value []byte, version int64, ttl time.Duration) error
	Delete(key string) error
	// CompareAndDelete removes the key only while it still holds the given
	// version. A row rewritten since the caller's read survives; the caller
	// sees a version-mismatch error.
	CompareAndDelete(key string, version int64) error
	ListByPrefix(prefix string) ([]KeyValueVersion, error)
	Close() error
}

type KeyValueVersion struct {
	Key     string
	Value   []byte
	Version int64
}
