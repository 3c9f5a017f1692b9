package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoad_MissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("missing file must not be an error: %v", err)
	}
	if cfg.General.MaxTurns != DefaultMaxTurns {
		t.Fatalf("expected default max turns, got %d", cfg.General.MaxTurns)
	}
	if cfg.General.CompactionStrategy != DefaultCompactionStrategy {
		t.Fatalf("expected default compaction strategy, got %q", cfg.General.CompactionStrategy)
	}
}

func TestLoad_FileValuesWinOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	doc := `
general:
  default_model: fast
  max_turns: 12
  chunk_size: 500
models:
  fast:
    id: fast-model-v1
    api: local
    context_size: 4096
api:
  local:
    base_url: http://localhost:8080/v1
    api_key_env: LOCAL_KEY
source_adapters:
  docs:
    prefix: "local://"
    read_tool: local_read
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.General.MaxTurns != 12 || cfg.General.ChunkSize != 500 {
		t.Fatalf("file values not applied: %+v", cfg.General)
	}
	// Unset knobs still get defaults.
	if cfg.General.ChunkOverlap != DefaultChunkOverlap {
		t.Fatalf("expected default chunk overlap, got %d", cfg.General.ChunkOverlap)
	}

	m, ok := cfg.ResolveModel("")
	if !ok || m.ID != "fast-model-v1" {
		t.Fatalf("empty alias must resolve the default model, got %+v ok=%v", m, ok)
	}
	if _, ok := cfg.ResolveModel("absent"); ok {
		t.Fatalf("unknown alias must not resolve")
	}

	a, ok := cfg.ResolveAPI(m.API)
	if !ok || a.APIKeyEnv != "LOCAL_KEY" {
		t.Fatalf("api lookup failed: %+v ok=%v", a, ok)
	}

	if sa := cfg.SourceAdapters["docs"]; sa.Prefix != "local://" || sa.ReadTool != "local_read" {
		t.Fatalf("source adapter not parsed: %+v", sa)
	}
}

func TestLoad_InvalidYAMLIsError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	if err := os.WriteFile(path, []byte("general: ["), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestDBPath_ResolutionOrder(t *testing.T) {
	cfg := Defaults()
	cfg.General.DBPath = "/configured/history.db"

	// Env override wins.
	got, err := DBPath(cfg, func(name string) (string, bool) {
		if name == cfg.General.DBPathEnvVar {
			return "/from/env.db", true
		}
		return "", false
	})
	if err != nil || got != "/from/env.db" {
		t.Fatalf("expected env override, got %q err=%v", got, err)
	}

	// Configured path next.
	got, err = DBPath(cfg, nil)
	if err != nil || got != "/configured/history.db" {
		t.Fatalf("expected configured path, got %q err=%v", got, err)
	}

	// Per-user default last.
	cfg.General.DBPath = ""
	got, err = DBPath(cfg, nil)
	if err != nil {
		t.Fatalf("default path: %v", err)
	}
	if !strings.HasSuffix(got, filepath.Join(DefaultAppName, "history.db")) {
		t.Fatalf("expected per-user default path, got %q", got)
	}
}
