// Package config handles configuration loading and management for
// roundtable. It supports XDG config paths, project-level overrides, and
// environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for roundtable.
type Config struct {
	Anthropic    AnthropicConfig    `mapstructure:"anthropic"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	Storage      StorageConfig      `mapstructure:"storage"`
	Server       ServerConfig       `mapstructure:"server"`
	Bus          BusConfig          `mapstructure:"bus"`
}

// AnthropicConfig holds Anthropic API settings for the optional
// LLM-backed classifier and step executor.
type AnthropicConfig struct {
	APIKey string `mapstructure:"api_key"`
	// Model overrides per-step model selection when set.
	Model string `mapstructure:"model"`
}

// OrchestratorConfig holds planning and execution settings.
type OrchestratorConfig struct {
	// Classifier picks the domain classifier: "keyword" or "claude".
	Classifier string `mapstructure:"classifier"`
	// MaxParallel bounds how many steps of one task run concurrently.
	MaxParallel int `mapstructure:"max_parallel"`
	// QualityRequirement is the default quality bar for submitted
	// requests that do not set their own, in [0,1].
	QualityRequirement float64 `mapstructure:"quality_requirement"`
}

// StorageConfig holds filesystem locations.
type StorageConfig struct {
	// DataDir is where the task store, debug log, and bus state live.
	DataDir string `mapstructure:"data_dir"`
	// AgentsFile is the agent profile registry. Empty means agents.yaml
	// next to the user config.
	AgentsFile string `mapstructure:"agents_file"`
	// PolicyFile holds extra compliance rules loaded on top of the
	// built-in set. Empty means policy.yaml next to the user config,
	// which is optional.
	PolicyFile string `mapstructure:"policy_file"`
}

// ServerConfig holds the API server listen address.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// BusConfig holds embedded message broker settings.
type BusConfig struct {
	// Enabled starts the embedded broker alongside the serve command.
	Enabled bool `mapstructure:"enabled"`
	// Port for the broker. Zero picks a random free port.
	Port int `mapstructure:"port"`
	// JetStream enables persistent streams under the data dir.
	JetStream bool `mapstructure:"jetstream"`
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (ANTHROPIC_API_KEY, ROUNDTABLE_*)
// 2. Project config (.roundtable.yaml in current directory or parent)
// 3. User config (~/.config/roundtable/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	// Load user config from XDG path
	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	// Load project config if present
	projectConfig := findProjectConfig()
	if projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			// Merge project config (takes precedence)
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	// Environment variable overrides: ROUNDTABLE_SERVER_PORT overrides
	// server.port, and so on.
	v.SetEnvPrefix("ROUNDTABLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Map specific environment variables
	v.BindEnv("anthropic.api_key", "ANTHROPIC_API_KEY")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// Expand ${VAR} references
	cfg.Anthropic.APIKey = expandEnv(cfg.Anthropic.APIKey)

	return cfg, nil
}

// LoadFromPath loads configuration from a specific path (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = expandEnv(cfg.Anthropic.APIKey)

	return cfg, nil
}

// Save writes the current configuration to the user config file.
func Save(cfg *Config) error {
	userConfigDir := getUserConfigDir()
	if err := os.MkdirAll(userConfigDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	configPath := filepath.Join(userConfigDir, "config.yaml")

	v := viper.New()
	v.SetConfigFile(configPath)

	v.Set("anthropic.api_key", cfg.Anthropic.APIKey)
	v.Set("anthropic.model", cfg.Anthropic.Model)
	v.Set("orchestrator.classifier", cfg.Orchestrator.Classifier)
	v.Set("orchestrator.max_parallel", cfg.Orchestrator.MaxParallel)
	v.Set("orchestrator.quality_requirement", cfg.Orchestrator.QualityRequirement)
	v.Set("storage.data_dir", cfg.Storage.DataDir)
	v.Set("storage.agents_file", cfg.Storage.AgentsFile)
	v.Set("storage.policy_file", cfg.Storage.PolicyFile)
	v.Set("server.host", cfg.Server.Host)
	v.Set("server.port", cfg.Server.Port)
	v.Set("bus.enabled", cfg.Bus.Enabled)
	v.Set("bus.port", cfg.Bus.Port)
	v.Set("bus.jetstream", cfg.Bus.JetStream)

	return v.WriteConfig()
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// DBPath returns the sqlite store location under the data dir.
func (c *Config) DBPath() string {
	return filepath.Join(c.Storage.DataDir, "roundtable.db")
}

// DebugLogPath returns the orchestrator debug log location.
func (c *Config) DebugLogPath() string {
	return filepath.Join(c.Storage.DataDir, "debug.log")
}

// BusDir returns the embedded broker's store directory.
func (c *Config) BusDir() string {
	return filepath.Join(c.Storage.DataDir, "bus")
}

// ResolveAgentsFile returns the agent registry path, falling back to
// agents.yaml next to the user config when unset.
func (c *Config) ResolveAgentsFile() string {
	if c.Storage.AgentsFile != "" {
		return expandEnv(c.Storage.AgentsFile)
	}
	return filepath.Join(getUserConfigDir(), "agents.yaml")
}

// ResolvePolicyFile returns the compliance rule path, falling back to
// policy.yaml next to the user config when unset. The file does not have
// to exist; the built-in rules apply either way.
func (c *Config) ResolvePolicyFile() string {
	if c.Storage.PolicyFile != "" {
		return expandEnv(c.Storage.PolicyFile)
	}
	return filepath.Join(getUserConfigDir(), "policy.yaml")
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	// Anthropic defaults
	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.model", "")

	// Orchestrator defaults
	v.SetDefault("orchestrator.classifier", "keyword")
	v.SetDefault("orchestrator.max_parallel", 4)
	v.SetDefault("orchestrator.quality_requirement", 0.0)

	// Storage defaults
	v.SetDefault("storage.data_dir", getUserDataDir())
	v.SetDefault("storage.agents_file", "")
	v.SetDefault("storage.policy_file", "")

	// Server defaults
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8420)

	// Bus defaults
	v.SetDefault("bus.enabled", false)
	v.SetDefault("bus.port", 0)
	v.SetDefault("bus.jetstream", false)
}

// getUserConfigDir returns the XDG config directory for roundtable.
func getUserConfigDir() string {
	// Check XDG_CONFIG_HOME first
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "roundtable")
	}

	// Fall back to ~/.config/roundtable
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "roundtable")
	}
	return filepath.Join(home, ".config", "roundtable")
}

// getUserDataDir returns the XDG data directory for roundtable.
func getUserDataDir() string {
	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, "roundtable")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".local", "share", "roundtable")
	}
	return filepath.Join(home, ".local", "share", "roundtable")
}

// findProjectConfig searches for .roundtable.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".roundtable.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// expandEnv expands ${VAR} references in a string.
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Anthropic: AnthropicConfig{
			APIKey: "",
			Model:  "",
		},
		Orchestrator: OrchestratorConfig{
			Classifier:         "keyword",
			MaxParallel:        4,
			QualityRequirement: 0.0,
		},
		Storage: StorageConfig{
			DataDir:    getUserDataDir(),
			AgentsFile: "",
			PolicyFile: "",
		},
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8420,
		},
		Bus: BusConfig{
			Enabled:   false,
			Port:      0,
			JetStream: false,
		},
	}
}
