package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Name != "valet" {
		t.Errorf("default name = %q, want valet", cfg.Name)
	}
	if cfg.Assistant.PageSize != 50 {
		t.Errorf("default page size = %d, want 50", cfg.Assistant.PageSize)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Assistant.PageSize != 50 {
		t.Errorf("expected default page size, got %d", cfg.Assistant.PageSize)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
llm:
  provider: keyword
assistant:
  page_size: 25
logging:
  debug_mode: true
  level: debug
`
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.LLM.Provider != "keyword" {
		t.Errorf("provider = %q, want keyword", cfg.LLM.Provider)
	}
	if cfg.Assistant.PageSize != 25 {
		t.Errorf("page size = %d, want 25", cfg.Assistant.PageSize)
	}
	if !cfg.Logging.DebugMode {
		t.Error("debug_mode should be true")
	}
	// Unset fields keep defaults
	if cfg.Store.DatabasePath != ".valet/valet.db" {
		t.Errorf("database path = %q, want default", cfg.Store.DatabasePath)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "test-key")
	t.Setenv("VALET_DB", "/tmp/other.db")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.LLM.APIKey != "test-key" {
		t.Errorf("api key = %q, want env value", cfg.LLM.APIKey)
	}
	if cfg.Store.DatabasePath != "/tmp/other.db" {
		t.Errorf("db path = %q, want env value", cfg.Store.DatabasePath)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Assistant.PageSize = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for zero page size")
	}

	cfg = DefaultConfig()
	cfg.LLM.Provider = "carrier-pigeon"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for unknown provider")
	}
}
