// Package config resolves the process-wide RuntimeConfig: a YAML file
// merged with environment overrides, where an environment variable beats
// the file and the file beats the built-in default.
package config

import (
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// RuntimeConfig holds process-wide tunables for the loader host.
type RuntimeConfig struct {
	// MemoryBudgetFraction is the share of available memory (0,1] the
	// process may commit across all in-flight decoders.
	MemoryBudgetFraction float64 `yaml:"memory_budget_fraction,omitempty"`

	// InlineBlobThreshold is the byte size below which metadata blobs
	// (ICC profiles, Exif, XMP) are inlined in the IPC message body
	// instead of transferred via a sealed memfd.
	InlineBlobThreshold int `yaml:"inline_blob_threshold,omitempty"`

	// GraceKillTimeoutMS is how long a decoder gets between SIGTERM and
	// SIGKILL during teardown.
	GraceKillTimeoutMS int `yaml:"grace_kill_timeout_ms,omitempty"`

	// SealRetries bounds how many times a memfd seal race is retried
	// before the frame request fails.
	SealRetries int `yaml:"seal_retries,omitempty"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level,omitempty"`

	// LogFile, if set, additionally writes logs to this path.
	LogFile string `yaml:"log_file,omitempty"`
}

// Manager merges a user-level RuntimeConfig with environment overrides.
type Manager struct {
	base   *RuntimeConfig
	merged *RuntimeConfig
}

func NewManager() *Manager {
	return &Manager{base: &RuntimeConfig{}, merged: &RuntimeConfig{}}
}

// Load reads configDir/config.yaml (if present) and applies env overrides.
func (m *Manager) Load(configDir string) error {
	path := filepath.Join(configDir, "config.yaml")
	if err := m.loadFile(path); err != nil {
		return err
	}
	m.merge()
	return nil
}

func (m *Manager) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, m.base)
}

func (m *Manager) merge() {
	merged := *m.base
	if v := os.Getenv("GLYCIN_MEMORY_BUDGET_FRACTION"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			merged.MemoryBudgetFraction = f
		}
	}
	if v := os.Getenv("GLYCIN_LOG_LEVEL"); v != "" {
		merged.LogLevel = v
	}
	if merged.MemoryBudgetFraction <= 0 || merged.MemoryBudgetFraction > 1 {
		merged.MemoryBudgetFraction = 0.8
	}
	if merged.InlineBlobThreshold <= 0 {
		merged.InlineBlobThreshold = 4096
	}
	if merged.GraceKillTimeoutMS <= 0 {
		merged.GraceKillTimeoutMS = 2000
	}
	if merged.SealRetries <= 0 {
		merged.SealRetries = 3
	}
	if merged.LogLevel == "" {
		merged.LogLevel = "info"
	}
	m.merged = &merged
}

func (m *Manager) Get() *RuntimeConfig {
	return m.merged
}

// Save writes the base (pre-env-override) config back to disk.
func (m *Manager) Save(configDir string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return err
	}
	data, err := yaml.Marshal(m.base)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(configDir, "config.yaml"), data, 0644)
}
