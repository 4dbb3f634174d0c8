package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Orchestrator.Classifier != "keyword" {
		t.Errorf("expected default classifier 'keyword', got %q", cfg.Orchestrator.Classifier)
	}

	if cfg.Orchestrator.MaxParallel != 4 {
		t.Errorf("expected default max_parallel 4, got %d", cfg.Orchestrator.MaxParallel)
	}

	if cfg.Orchestrator.QualityRequirement != 0 {
		t.Errorf("expected default quality_requirement 0, got %v", cfg.Orchestrator.QualityRequirement)
	}

	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("expected default host 127.0.0.1, got %q", cfg.Server.Host)
	}

	if cfg.Server.Port != 8420 {
		t.Errorf("expected default port 8420, got %d", cfg.Server.Port)
	}

	if cfg.Bus.Enabled {
		t.Error("expected bus to be disabled by default")
	}

	if cfg.Storage.DataDir == "" {
		t.Error("expected a default data dir")
	}
}

func TestLoadFromPath(t *testing.T) {
	// Create a temporary config file
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
anthropic:
  api_key: sk-ant-test-key
  model: claude-sonnet-4-20250514
orchestrator:
  classifier: claude
  max_parallel: 8
  quality_requirement: 0.75
storage:
  data_dir: /var/lib/roundtable
  agents_file: /etc/roundtable/agents.yaml
server:
  host: 0.0.0.0
  port: 9000
bus:
  enabled: true
  port: 4222
  jetstream: true
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := LoadFromPath(configPath)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}

	if cfg.Anthropic.APIKey != "sk-ant-test-key" {
		t.Errorf("expected api_key 'sk-ant-test-key', got %q", cfg.Anthropic.APIKey)
	}

	if cfg.Anthropic.Model != "claude-sonnet-4-20250514" {
		t.Errorf("expected model override, got %q", cfg.Anthropic.Model)
	}

	if cfg.Orchestrator.Classifier != "claude" {
		t.Errorf("expected classifier 'claude', got %q", cfg.Orchestrator.Classifier)
	}

	if cfg.Orchestrator.MaxParallel != 8 {
		t.Errorf("expected max_parallel 8, got %d", cfg.Orchestrator.MaxParallel)
	}

	if cfg.Orchestrator.QualityRequirement != 0.75 {
		t.Errorf("expected quality_requirement 0.75, got %v", cfg.Orchestrator.QualityRequirement)
	}

	if cfg.Storage.DataDir != "/var/lib/roundtable" {
		t.Errorf("expected data_dir /var/lib/roundtable, got %q", cfg.Storage.DataDir)
	}

	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("expected host 0.0.0.0, got %q", cfg.Server.Host)
	}

	if cfg.Server.Port != 9000 {
		t.Errorf("expected port 9000, got %d", cfg.Server.Port)
	}

	if !cfg.Bus.Enabled {
		t.Error("expected bus to be enabled")
	}

	if cfg.Bus.Port != 4222 {
		t.Errorf("expected bus port 4222, got %d", cfg.Bus.Port)
	}

	if !cfg.Bus.JetStream {
		t.Error("expected jetstream to be enabled")
	}
}

func TestLoadFromPath_PartialFileKeepsDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
server:
  port: 9100
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := LoadFromPath(configPath)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}

	if cfg.Server.Port != 9100 {
		t.Errorf("expected port 9100, got %d", cfg.Server.Port)
	}

	// Everything the file does not mention stays at its default.
	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("expected default host, got %q", cfg.Server.Host)
	}
	if cfg.Orchestrator.Classifier != "keyword" {
		t.Errorf("expected default classifier, got %q", cfg.Orchestrator.Classifier)
	}
	if cfg.Orchestrator.MaxParallel != 4 {
		t.Errorf("expected default max_parallel, got %d", cfg.Orchestrator.MaxParallel)
	}
}

func TestLoadFromPath_MissingFile(t *testing.T) {
	if _, err := LoadFromPath(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected an error for a missing config file")
	}
}

func TestExpandEnv(t *testing.T) {
	// Set environment variable
	os.Setenv("TEST_VAR", "expanded-value")
	defer os.Unsetenv("TEST_VAR")

	result := expandEnv("${TEST_VAR}")
	if result != "expanded-value" {
		t.Errorf("expected 'expanded-value', got %q", result)
	}

	result = expandEnv("prefix-${TEST_VAR}-suffix")
	if result != "prefix-expanded-value-suffix" {
		t.Errorf("expected 'prefix-expanded-value-suffix', got %q", result)
	}
}

func TestGetUserConfigDir(t *testing.T) {
	// Test with XDG_CONFIG_HOME set
	os.Setenv("XDG_CONFIG_HOME", "/custom/config")
	defer os.Unsetenv("XDG_CONFIG_HOME")

	dir := getUserConfigDir()
	expected := "/custom/config/roundtable"
	if dir != expected {
		t.Errorf("expected %q, got %q", expected, dir)
	}
}

func TestGetUserDataDir(t *testing.T) {
	os.Setenv("XDG_DATA_HOME", "/custom/data")
	defer os.Unsetenv("XDG_DATA_HOME")

	dir := getUserDataDir()
	expected := "/custom/data/roundtable"
	if dir != expected {
		t.Errorf("expected %q, got %q", expected, dir)
	}
}

func TestPathHelpers(t *testing.T) {
	cfg := &Config{
		Storage: StorageConfig{DataDir: "/data/roundtable"},
	}

	if got := cfg.DBPath(); got != "/data/roundtable/roundtable.db" {
		t.Errorf("DBPath() = %q", got)
	}
	if got := cfg.DebugLogPath(); got != "/data/roundtable/debug.log" {
		t.Errorf("DebugLogPath() = %q", got)
	}
	if got := cfg.BusDir(); got != "/data/roundtable/bus" {
		t.Errorf("BusDir() = %q", got)
	}
}

func TestResolveAgentsFile(t *testing.T) {
	cfg := &Config{
		Storage: StorageConfig{AgentsFile: "/etc/roundtable/agents.yaml"},
	}
	if got := cfg.ResolveAgentsFile(); got != "/etc/roundtable/agents.yaml" {
		t.Errorf("explicit agents file = %q", got)
	}

	os.Setenv("XDG_CONFIG_HOME", "/custom/config")
	defer os.Unsetenv("XDG_CONFIG_HOME")

	cfg = &Config{}
	expected := "/custom/config/roundtable/agents.yaml"
	if got := cfg.ResolveAgentsFile(); got != expected {
		t.Errorf("default agents file = %q, want %q", got, expected)
	}
}

func TestResolvePolicyFile(t *testing.T) {
	cfg := &Config{
		Storage: StorageConfig{PolicyFile: "/etc/roundtable/policy.yaml"},
	}
	if got := cfg.ResolvePolicyFile(); got != "/etc/roundtable/policy.yaml" {
		t.Errorf("explicit policy file = %q", got)
	}

	os.Setenv("XDG_CONFIG_HOME", "/custom/config")
	defer os.Unsetenv("XDG_CONFIG_HOME")

	cfg = &Config{}
	expected := "/custom/config/roundtable/policy.yaml"
	if got := cfg.ResolvePolicyFile(); got != expected {
		t.Errorf("default policy file = %q, want %q", got, expected)
	}
}
