// Package config loads project settings from codegraph.yml.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// ProjectConfig holds project-level settings loaded from codegraph.yml.
// Zero values fall back to the defaults below.
type ProjectConfig struct {
	RepoID           string   `yaml:"repoId,omitempty"`
	MaxFileSizeBytes int      `yaml:"maxFileSizeBytes,omitempty"`
	Exclude          []string `yaml:"exclude,omitempty"`
	DebounceMs       int      `yaml:"debounceMs,omitempty"`
	Workers          int      `yaml:"workers,omitempty"`
	TreeCacheSize    int      `yaml:"treeCacheSize,omitempty"`
	ApplyQueueSize   int      `yaml:"applyQueueSize,omitempty"`
	MaxParseMs       int      `yaml:"maxParseMs,omitempty"`
	DBPath           string   `yaml:"dbPath,omitempty"`
	Verbose          bool     `yaml:"verbose,omitempty"`
}

// Defaults applied by Load for unset fields.
const (
	DefaultMaxFileSize    = 2 << 20 // 2 MiB
	DefaultDebounceMs     = 50
	DefaultTreeCacheSize  = 4096
	DefaultApplyQueueSize = 256
	DefaultMaxParseMs     = 10_000
)

// Load reads codegraph.yml or codegraph.yaml from the given directory.
// Returns a default-filled config (not an error) if no config file exists.
func Load(dir string) (*ProjectConfig, error) {
	cfg := &ProjectConfig{}
	for _, name := range []string{"codegraph.yml", "codegraph.yaml"} {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", name, err)
		}
		break
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *ProjectConfig) applyDefaults() {
	if c.MaxFileSizeBytes <= 0 {
		c.MaxFileSizeBytes = DefaultMaxFileSize
	}
	if c.DebounceMs <= 0 {
		c.DebounceMs = DefaultDebounceMs
	}
	if c.Workers <= 0 {
		c.Workers = runtimeWorkers()
	}
	if c.TreeCacheSize <= 0 {
		c.TreeCacheSize = DefaultTreeCacheSize
	}
	if c.ApplyQueueSize <= 0 {
		c.ApplyQueueSize = DefaultApplyQueueSize
	}
	if c.MaxParseMs <= 0 {
		c.MaxParseMs = DefaultMaxParseMs
	}
}

// Debounce returns the debounce window as a duration.
func (c *ProjectConfig) Debounce() time.Duration {
	return time.Duration(c.DebounceMs) * time.Millisecond
}

// MaxParse returns the per-file parse ceiling as a duration.
func (c *ProjectConfig) MaxParse() time.Duration {
	return time.Duration(c.MaxParseMs) * time.Millisecond
}
