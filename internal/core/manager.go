package core

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/offerlane/arbiter/internal/adapters/executor"
	"github.com/offerlane/arbiter/internal/adapters/mutex"
	"github.com/offerlane/arbiter/internal/adapters/observability"
	"github.com/offerlane/arbiter/internal/adapters/storage"
	"github.com/offerlane/arbiter/internal/adapters/versions"
	"github.com/offerlane/arbiter/internal/domain"
	"github.com/offerlane/arbiter/internal/ports"
)

// Manager owns the wiring: config selects the mutex topology, the executor
// and version store hang off the shared clock and metrics, and Stop tears
// everything down in reverse order.
type Manager struct {
	config  *domain.Config
	logger  *slog.Logger
	clock   ports.Clock
	metrics *observability.Metrics

	kv       ports.StoragePort
	mutex    ports.OperationMutex
	executor *executor.Executor
	versions ports.VersionStorePort
	obs      *observability.Server

	mu      sync.Mutex
	started bool
}

func New(config *domain.Config) (*Manager, error) {
	if config == nil {
		config = &domain.Config{}
	}
	if err := config.ApplyDefaults(); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &Manager{
		config:  config,
		logger:  config.Logger,
		clock:   ports.SystemClock(),
		metrics: observability.NewMetrics(),
	}, nil
}

// SetClock swaps the wall clock before Start. Tests use it to drive lease
// expiry without sleeping.
func (m *Manager) SetClock(clock ports.Clock) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.started && clock != nil {
		m.clock = clock
	}
}

func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return domain.NewConflictError("manager already started", nil)
	}

	if err := os.MkdirAll(m.config.DataDir, 0o755); err != nil {
		return domain.NewInternalError("creating data dir", err)
	}

	switch m.config.Mutex.Mode {
	case domain.MutexModeStorage:
		kv, err := storage.NewAdapter(filepath.Join(m.config.DataDir, "kv"), m.logger)
		if err != nil {
			return err
		}
		m.kv = kv
		m.mutex = mutex.NewStore(kv, m.clock, m.metrics, m.logger)
	default:
		m.mutex = mutex.NewMemory(m.clock, m.metrics, m.logger)
	}

	store, err := versions.Open(m.config.Versions.Path, m.clock, m.metrics, m.logger)
	if err != nil {
		m.closeStorage()
		return err
	}
	m.versions = store

	m.executor = executor.New(m.mutex, m.config.Mutex.LeaseTimeout, m.metrics, m.logger)

	m.obs = observability.NewServer(m.config.Observability, m.metrics, m.mutex, m.logger)
	if err := m.obs.Start(ctx); err != nil {
		m.closeVersions()
		m.closeStorage()
		return err
	}

	m.started = true
	m.logger.Info("arbiter started",
		"mutex_mode", string(m.config.Mutex.Mode),
		"lease_timeout", m.config.Mutex.LeaseTimeout,
		"versions_path", m.config.Versions.Path)
	return nil
}

func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.started {
		return nil
	}
	m.started = false

	var firstErr error
	if m.obs != nil {
		if err := m.obs.Stop(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := m.closeVersions(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := m.closeStorage(); err != nil && firstErr == nil {
		firstErr = err
	}

	m.logger.Info("arbiter stopped")
	return firstErr
}

func (m *Manager) Executor() ports.ExecutorPort {
	return m.executor
}

func (m *Manager) Mutex() ports.OperationMutex {
	return m.mutex
}

func (m *Manager) Versions() ports.VersionStorePort {
	return m.versions
}

func (m *Manager) Metrics() ports.MetricsPort {
	return m.metrics
}

func (m *Manager) closeVersions() error {
	if m.versions == nil {
		return nil
	}
	err := m.versions.Close()
	m.versions = nil
	return err
}

func (m *Manager) closeStorage() error {
	if m.kv == nil {
		return nil
	}
	err := m.kv.Close()
	m.kv = nil
	return err
}
