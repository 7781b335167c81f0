package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestDefaultConfig verifies that DefaultConfig returns sensible defaults.
func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Mode != ModeFull {
		t.Errorf("expected mode %s, got %s", ModeFull, cfg.Mode)
	}
	if !cfg.AllowSpawn || !cfg.AllowAttach || !cfg.AllowModify || !cfg.AllowExecute {
		t.Error("expected every permission to be granted by default")
	}
	if cfg.MaxSessions != 10 {
		t.Errorf("expected MaxSessions 10, got %d", cfg.MaxSessions)
	}
	if cfg.RequestTimeout != 30*time.Second {
		t.Errorf("expected RequestTimeout 30s, got %v", cfg.RequestTimeout)
	}
	if cfg.Adapters.Go.Path != "dlv" {
		t.Errorf("expected Go adapter path 'dlv', got %s", cfg.Adapters.Go.Path)
	}
	if cfg.Adapters.Python.PythonPath != "python3" {
		t.Errorf("expected Python path 'python3', got %s", cfg.Adapters.Python.PythonPath)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

// TestLoadConfig_EmptyPath verifies that empty path returns defaults.
func TestLoadConfig_EmptyPath(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.MaxSessions != DefaultConfig().MaxSessions {
		t.Errorf("expected default MaxSessions, got %d", cfg.MaxSessions)
	}
}

// TestLoadConfig_JSON verifies loading configuration from a JSON file.
func TestLoadConfig_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{
		"mode": "readonly",
		"allowSpawn": false,
		"maxSessions": 3,
		"gadgetDir": "/opt/gadgets",
		"adapters": {"go": {"path": "/usr/local/bin/dlv"}}
	}`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Mode != ModeReadOnly {
		t.Errorf("expected readonly mode, got %s", cfg.Mode)
	}
	if cfg.CanSpawn() {
		t.Error("expected spawning to be disabled")
	}
	if cfg.CanUseControlTools() {
		t.Error("expected control tools to be disabled in readonly mode")
	}
	if cfg.MaxSessions != 3 {
		t.Errorf("expected MaxSessions 3, got %d", cfg.MaxSessions)
	}
	if cfg.GadgetDir != "/opt/gadgets" {
		t.Errorf("expected gadgetDir /opt/gadgets, got %s", cfg.GadgetDir)
	}
	if cfg.Adapters.Go.Path != "/usr/local/bin/dlv" {
		t.Errorf("expected custom dlv path, got %s", cfg.Adapters.Go.Path)
	}
	// untouched fields keep their defaults
	if cfg.Adapters.Python.PythonPath != "python3" {
		t.Errorf("expected default python path, got %s", cfg.Adapters.Python.PythonPath)
	}
}

// TestLoadConfig_YAML verifies YAML files are selected by extension.
func TestLoadConfig_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
mode: full
maxSessions: 2
requestTimeout: 5s
logLevel: debug
breakpointsFile: /tmp/bps.json
adapters:
  python:
    pythonPath: /venv/bin/python
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.RequestTimeout != 5*time.Second {
		t.Errorf("expected 5s timeout, got %v", cfg.RequestTimeout)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("expected debug log level, got %s", cfg.LogLevel)
	}
	if cfg.BreakpointsFile != "/tmp/bps.json" {
		t.Errorf("expected breakpoints file, got %s", cfg.BreakpointsFile)
	}
	if cfg.Adapters.Python.PythonPath != "/venv/bin/python" {
		t.Errorf("expected custom python path, got %s", cfg.Adapters.Python.PythonPath)
	}
}

// TestLoadConfig_Invalid verifies malformed and out-of-range files are rejected.
func TestLoadConfig_Invalid(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"broken.json":   `{invalid json`,
		"mode.json":     `{"mode": "sometimes"}`,
		"sessions.yaml": "maxSessions: 0\n",
	}
	for name, content := range cases {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("failed to write %s: %v", name, err)
		}
		if _, err := LoadConfig(path); err == nil {
			t.Errorf("%s: expected an error", name)
		}
	}

	if _, err := LoadConfig(filepath.Join(dir, "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
}
