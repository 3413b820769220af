package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_MissingFileGivesDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MaxFileSizeBytes != DefaultMaxFileSize {
		t.Errorf("MaxFileSizeBytes = %d, want %d", cfg.MaxFileSizeBytes, DefaultMaxFileSize)
	}
	if cfg.DebounceMs != DefaultDebounceMs {
		t.Errorf("DebounceMs = %d, want %d", cfg.DebounceMs, DefaultDebounceMs)
	}
	if cfg.Workers < 1 {
		t.Errorf("Workers = %d, want at least 1", cfg.Workers)
	}
	if cfg.Debounce() != 50*time.Millisecond {
		t.Errorf("Debounce() = %s", cfg.Debounce())
	}
}

func TestLoad_ReadsYaml(t *testing.T) {
	dir := t.TempDir()
	yml := `repoId: myrepo
maxFileSizeBytes: 1024
exclude:
  - generated/
debounceMs: 100
workers: 3
dbPath: /tmp/graph.db
`
	if err := os.WriteFile(filepath.Join(dir, "codegraph.yml"), []byte(yml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.RepoID != "myrepo" {
		t.Errorf("RepoID = %q", cfg.RepoID)
	}
	if cfg.MaxFileSizeBytes != 1024 {
		t.Errorf("MaxFileSizeBytes = %d", cfg.MaxFileSizeBytes)
	}
	if len(cfg.Exclude) != 1 || cfg.Exclude[0] != "generated/" {
		t.Errorf("Exclude = %v", cfg.Exclude)
	}
	if cfg.Workers != 3 {
		t.Errorf("Workers = %d", cfg.Workers)
	}
	if cfg.DBPath != "/tmp/graph.db" {
		t.Errorf("DBPath = %q", cfg.DBPath)
	}
	// Unset fields still get defaults.
	if cfg.TreeCacheSize != DefaultTreeCacheSize {
		t.Errorf("TreeCacheSize = %d", cfg.TreeCacheSize)
	}
}

func TestLoad_MalformedYamlFails(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "codegraph.yml"), []byte(":{bad"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(dir); err == nil {
		t.Fatal("malformed yaml must fail loudly")
	}
}
