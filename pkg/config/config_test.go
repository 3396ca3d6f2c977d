package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_EnvOverridesYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
env: "test"
log_level: "debug"
backend:
  host: "backend.example.com"
  port: 4000
mirror:
  database: "kering"
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	// Clear env vars that might interfere with the test
	os.Unsetenv("BACKEND_HOST")
	os.Unsetenv("BACKEND_PORT")
	os.Unsetenv("MIRROR_DATABASE")

	// Set env vars to override YAML values
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("BACKEND_PORT", "5000")

	cfg, err := Load(configPath, "test-version")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	// Env vars override YAML
	if cfg.Env != "production" {
		t.Errorf("expected Env=production (from env), got %s", cfg.Env)
	}
	if cfg.Backend.Port != 5000 {
		t.Errorf("expected Backend.Port=5000 (from env), got %d", cfg.Backend.Port)
	}

	// YAML value used where env is unset (proves YAML was read)
	if cfg.Backend.Host != "backend.example.com" {
		t.Errorf("expected Backend.Host=backend.example.com (from yaml), got %s", cfg.Backend.Host)
	}
	if cfg.Mirror.Database != "kering" {
		t.Errorf("expected Mirror.Database=kering (from yaml), got %s", cfg.Mirror.Database)
	}

	// Version was set
	if cfg.Version != "test-version" {
		t.Errorf("expected Version=test-version, got %s", cfg.Version)
	}

	// BaseURL derived from host and port
	if got := cfg.Backend.BaseURL(); got != "http://backend.example.com:5000" {
		t.Errorf("expected BaseURL=http://backend.example.com:5000, got %s", got)
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	os.Unsetenv("BACKEND_HOST")
	os.Unsetenv("DRY_RUN")

	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"), "dev")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Backend.Host != "localhost" {
		t.Errorf("expected default Backend.Host=localhost, got %s", cfg.Backend.Host)
	}
	if !cfg.DryRun {
		t.Error("expected DryRun to default to true")
	}
	if cfg.Extraction.Model == "" {
		t.Error("expected a default extraction model")
	}
	if cfg.Backend.TypeNamespace == "" {
		t.Error("expected a default backend type namespace")
	}
}

func TestLoad_SecretsOnlyFromEnv(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	// API keys carry yaml:"-" so a value in the file must be ignored.
	yamlContent := `
extraction:
  api_key: "leaked-from-yaml"
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	t.Setenv("OPENAI_API_KEY", "from-env")

	cfg, err := Load(configPath, "dev")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Extraction.APIKey != "from-env" {
		t.Errorf("expected APIKey=from-env, got %q", cfg.Extraction.APIKey)
	}
}

func TestTimeouts(t *testing.T) {
	cfg := &Config{
		Backend:      BackendConfig{TimeoutSeconds: 60},
		Mirror:       MirrorConfig{TimeoutSeconds: 5},
		CacheRefresh: CacheRefreshConfig{TimeoutSeconds: 120},
	}

	if got := cfg.Backend.Timeout(); got != 60*time.Second {
		t.Errorf("expected backend timeout 60s, got %v", got)
	}
	if got := cfg.Mirror.Timeout(); got != 5*time.Second {
		t.Errorf("expected mirror timeout 5s, got %v", got)
	}
	if got := cfg.CacheRefresh.Timeout(); got != 120*time.Second {
		t.Errorf("expected cache refresh timeout 120s, got %v", got)
	}
}
