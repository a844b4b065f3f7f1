// Package config provides configuration file support for the history engine.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wow-signal-dev/metadata-remote-sub000/pkg/errclass"
	"github.com/wow-signal-dev/metadata-remote-sub000/pkg/fsutil"
)

// DefaultMaxItems matches the original history capacity.
const DefaultMaxItems = 1000

// DefaultOrphanGrace is how long a stored blob may stay unreferenced by any
// recorded action before garbage collection may remove it.
const DefaultOrphanGrace = 10 * time.Minute

// Field-name policies for redo of field creation.
const (
	PolicyReverseMap = "reverse-map"
	PolicyStored     = "stored"
)

// Config represents the engine configuration.
type Config struct {
	History    HistoryConfig    `yaml:"history"`
	FieldNames FieldNamesConfig `yaml:"field_names"`
	Logging    LoggingConfig    `yaml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Audit      AuditConfig      `yaml:"audit"`
}

// HistoryConfig bounds the action log and locates blob storage.
type HistoryConfig struct {
	MaxItems int `yaml:"max_items"`
	// BlobDir holds artwork blobs. Empty means a private temp directory
	// that is removed on Close.
	BlobDir string `yaml:"blob_dir"`
	// OrphanGrace protects blobs stored for actions that are still being
	// built from garbage collection.
	OrphanGrace time.Duration `yaml:"orphan_grace"`
}

// FieldNamesConfig selects how redo of a field creation names the field.
type FieldNamesConfig struct {
	Policy string `yaml:"policy"`
}

// LoggingConfig configures logging behavior.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json, text
}

// MetricsConfig configures the prometheus registry.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
}

// AuditConfig configures the optional history journal.
type AuditConfig struct {
	Path string `yaml:"path"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		History: HistoryConfig{
			MaxItems:    DefaultMaxItems,
			OrphanGrace: DefaultOrphanGrace,
		},
		FieldNames: FieldNamesConfig{
			Policy: PolicyReverseMap,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "mdremote",
		},
	}
}

// Load reads configuration from path. An empty path or a missing file
// yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes configuration to path.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := fsutil.AtomicWrite(path, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	return nil
}

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	if c.History.MaxItems <= 0 {
		return errclass.ErrConfigInvalid.WithMessagef("history.max_items must be positive (got %d)", c.History.MaxItems)
	}
	if c.History.OrphanGrace < 0 {
		return errclass.ErrConfigInvalid.WithMessagef("history.orphan_grace must not be negative (got %s)", c.History.OrphanGrace)
	}
	switch c.FieldNames.Policy {
	case PolicyReverseMap, PolicyStored:
	default:
		return errclass.ErrConfigInvalid.WithMessagef("field_names.policy must be %q or %q (got %q)",
			PolicyReverseMap, PolicyStored, c.FieldNames.Policy)
	}
	switch c.Logging.Format {
	case "", "json", "text":
	default:
		return errclass.ErrConfigInvalid.WithMessagef("logging.format must be json or text (got %q)", c.Logging.Format)
	}
	return nil
}
