package domain

import (
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

func DefaultConfig() *Config {
	return &Config{
		DataDir: "./data",
		Logger:  slog.Default(),
		Mutex: MutexConfig{
			Mode:         MutexModeMemory,
			LeaseTimeout: 10 * time.Minute,
		},
		Versions: VersionsConfig{},
		Observability: ObservabilityConfig{
			Enabled:      false,
			Port:         9090,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
	}
}

// ApplyDefaults fills every zero field from DefaultConfig, leaving explicit
// settings untouched.
func (c *Config) ApplyDefaults() error {
	if err := mergo.Merge(c, DefaultConfig()); err != nil {
		return NewInternalError("merging config defaults", err)
	}
	if c.Versions.Path == "" {
		c.Versions.Path = filepath.Join(c.DataDir, "versions.db")
	}
	return nil
}

// LoadConfig reads a YAML config file and overlays it onto the defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewInternalError("reading config file", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, NewValidationError("config", err.Error())
	}

	if err := cfg.ApplyDefaults(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
