package domain

import (
	"log/slog"
	"time"
)

type MutexMode string

const (
	// MutexModeMemory serializes operations within a single process. Two
	// replicas running in this mode do not exclude each other.
	MutexModeMemory MutexMode = "memory"
	// MutexModeStorage serializes operations through the shared key-value
	// store, giving single-flight across replicas that share a data dir.
	MutexModeStorage MutexMode = "storage"
)

type Config struct {
	DataDir string       `json:"data_dir" yaml:"data_dir"`
	Logger  *slog.Logger `json:"-" yaml:"-"`

	Mutex         MutexConfig         `json:"mutex" yaml:"mutex"`
	Versions      VersionsConfig      `json:"versions" yaml:"versions"`
	Observability ObservabilityConfig `json:"observability" yaml:"observability"`
}

type MutexConfig struct {
	Mode MutexMode `json:"mode" yaml:"mode"`
	// LeaseTimeout bounds how long a crashed operation can block its key.
	LeaseTimeout time.Duration `json:"lease_timeout" yaml:"lease_timeout"`
}

type VersionsConfig struct {
	// Path of the sqlite database file. Empty means DataDir/versions.db.
	Path string `json:"path" yaml:"path"`
}

type ObservabilityConfig struct {
	Enabled      bool          `json:"enabled" yaml:"enabled"`
	Port         int           `json:"port" yaml:"port"`
	ReadTimeout  time.Duration `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout"`
}

func (c *Config) Validate() error {
	if c.DataDir == "" {
		return NewValidationError("config", "data_dir cannot be empty")
	}
	if c.Mutex.Mode != MutexModeMemory && c.Mutex.Mode != MutexModeStorage {
		return NewValidationError("config", "mutex.mode must be memory or storage")
	}
	if c.Mutex.LeaseTimeout <= 0 {
		return NewValidationError("config", "mutex.lease_timeout must be positive")
	}
	if c.Observability.Enabled && c.Observability.Port <= 0 {
		return NewValidationError("config", "observability.port must be positive when enabled")
	}
	return nil
}
