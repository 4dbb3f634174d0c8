package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wesheets/roundtable/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config [key] [value]",
	Short: "Manage configuration",
	Long: `View or modify roundtable configuration.

Without arguments, displays current configuration.
With one argument (key), displays the value for that key.
With two arguments (key value), sets the configuration value.

Configuration is stored at ~/.config/roundtable/config.yaml
Project-specific overrides can be placed in .roundtable.yaml`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}

		switch len(args) {
		case 0:
			displayAllConfig(cfg)
		case 1:
			displayConfigKey(cfg, args[0])
		default:
			setConfigKey(cfg, args[0], args[1])
		}
	},
}

// displayAllConfig prints all configuration values. The API key line
// shows the resolved key and where it came from, since the environment
// overrides the file.
func displayAllConfig(cfg *config.Config) {
	if key, source := config.APIKey(cfg); source == config.KeySourceNone {
		fmt.Printf("anthropic.api_key: (not set)\n")
	} else {
		fmt.Printf("anthropic.api_key: %s (from %s)\n", config.MaskAPIKey(key), source)
	}
	fmt.Printf("anthropic.model: %s\n", cfg.Anthropic.Model)
	fmt.Printf("orchestrator.classifier: %s\n", cfg.Orchestrator.Classifier)
	fmt.Printf("orchestrator.max_parallel: %d\n", cfg.Orchestrator.MaxParallel)
	fmt.Printf("orchestrator.quality_requirement: %g\n", cfg.Orchestrator.QualityRequirement)
	fmt.Printf("storage.data_dir: %s\n", cfg.Storage.DataDir)
	fmt.Printf("storage.agents_file: %s\n", cfg.Storage.AgentsFile)
	fmt.Printf("storage.policy_file: %s\n", cfg.Storage.PolicyFile)
	fmt.Printf("server.host: %s\n", cfg.Server.Host)
	fmt.Printf("server.port: %d\n", cfg.Server.Port)
	fmt.Printf("bus.enabled: %t\n", cfg.Bus.Enabled)
	fmt.Printf("bus.port: %d\n", cfg.Bus.Port)
	fmt.Printf("bus.jetstream: %t\n", cfg.Bus.JetStream)
}

// displayConfigKey prints a single configuration value.
func displayConfigKey(cfg *config.Config, key string) {
	value, err := getConfigValue(cfg, key)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(value)
}

// setConfigKey sets a configuration value and saves the config.
func setConfigKey(cfg *config.Config, key, value string) {
	if err := setConfigValue(cfg, key, value); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := config.Save(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Set %s = %s\n", key, value)
}

// getConfigValue retrieves a configuration value by dot-notation key.
func getConfigValue(cfg *config.Config, key string) (string, error) {
	switch strings.ToLower(key) {
	case "anthropic.api_key":
		return config.MaskAPIKey(cfg.Anthropic.APIKey), nil
	case "anthropic.model":
		return cfg.Anthropic.Model, nil
	case "orchestrator.classifier":
		return cfg.Orchestrator.Classifier, nil
	case "orchestrator.max_parallel":
		return strconv.Itoa(cfg.Orchestrator.MaxParallel), nil
	case "orchestrator.quality_requirement":
		return strconv.FormatFloat(cfg.Orchestrator.QualityRequirement, 'g', -1, 64), nil
	case "storage.data_dir":
		return cfg.Storage.DataDir, nil
	case "storage.agents_file":
		return cfg.Storage.AgentsFile, nil
	case "storage.policy_file":
		return cfg.Storage.PolicyFile, nil
	case "server.host":
		return cfg.Server.Host, nil
	case "server.port":
		return strconv.Itoa(cfg.Server.Port), nil
	case "bus.enabled":
		return strconv.FormatBool(cfg.Bus.Enabled), nil
	case "bus.port":
		return strconv.Itoa(cfg.Bus.Port), nil
	case "bus.jetstream":
		return strconv.FormatBool(cfg.Bus.JetStream), nil
	default:
		return "", fmt.Errorf("unknown configuration key: %s", key)
	}
}

// setConfigValue sets a configuration value by dot-notation key.
func setConfigValue(cfg *config.Config, key, value string) error {
	switch strings.ToLower(key) {
	case "anthropic.api_key":
		if err := config.ValidateAPIKey(value); err != nil {
			return err
		}
		cfg.Anthropic.APIKey = value
	case "anthropic.model":
		cfg.Anthropic.Model = value
	case "orchestrator.classifier":
		if value != "keyword" && value != "claude" {
			return fmt.Errorf("invalid classifier %q: must be keyword or claude", value)
		}
		cfg.Orchestrator.Classifier = value
	case "orchestrator.max_parallel":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for max_parallel: %w", err)
		}
		if n < 1 {
			return fmt.Errorf("max_parallel must be at least 1")
		}
		cfg.Orchestrator.MaxParallel = n
	case "orchestrator.quality_requirement":
		q, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid value for quality_requirement: %w", err)
		}
		if q < 0 || q > 1 {
			return fmt.Errorf("quality_requirement must be in [0,1]")
		}
		cfg.Orchestrator.QualityRequirement = q
	case "storage.data_dir":
		cfg.Storage.DataDir = value
	case "storage.agents_file":
		cfg.Storage.AgentsFile = value
	case "storage.policy_file":
		cfg.Storage.PolicyFile = value
	case "server.host":
		cfg.Server.Host = value
	case "server.port":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for server.port: %w", err)
		}
		cfg.Server.Port = n
	case "bus.enabled":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean for bus.enabled: %w", err)
		}
		cfg.Bus.Enabled = b
	case "bus.port":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for bus.port: %w", err)
		}
		cfg.Bus.Port = n
	case "bus.jetstream":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean for bus.jetstream: %w", err)
		}
		cfg.Bus.JetStream = b
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	return nil
}
