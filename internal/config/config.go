// Package config loads runtime settings from a YAML file with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds the ingestion settings. Precedence, lowest to highest:
// built-in defaults, YAML file, NFELEDGER_* environment variables,
// command-line flags (applied by the caller).
type Config struct {
	InboxDir   string `yaml:"inbox_dir"`
	ArchiveDir string `yaml:"archive_dir"` // empty = <inbox>/processed
	Workbook   string `yaml:"workbook"`
	LogLevel   string `yaml:"log_level"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		InboxDir: "notas",
		Workbook: "purchases.xlsx",
		LogLevel: "info",
	}
}

// Load reads the config file at path, if present, and applies environment
// overrides. A missing file is not an error; the defaults stand.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("failed to read config file %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

// EffectiveArchiveDir resolves the archive location, defaulting to a
// "processed" subdirectory of the inbox.
func (c Config) EffectiveArchiveDir() string {
	if c.ArchiveDir != "" {
		return c.ArchiveDir
	}
	return filepath.Join(c.InboxDir, "processed")
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("NFELEDGER_INBOX_DIR"); v != "" {
		cfg.InboxDir = v
	}
	if v := os.Getenv("NFELEDGER_ARCHIVE_DIR"); v != "" {
		cfg.ArchiveDir = v
	}
	if v := os.Getenv("NFELEDGER_WORKBOOK"); v != "" {
		cfg.Workbook = v
	}
	if v := os.Getenv("NFELEDGER_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
}
