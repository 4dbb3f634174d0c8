package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/wesheets/roundtable/internal/config"
	"github.com/wesheets/roundtable/internal/registry"
)

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "List registered agent profiles",
	Long: `List the agents available for team composition.

Profiles come from the agents.yaml registry file, created with a
starter roster on first use. Edit the file to add or retire agents; a
running orchestrator reloads it on save.`,
	RunE: runAgents,
}

func runAgents(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	agentsFile := cfg.ResolveAgentsFile()
	if err := ensureAgentsFile(agentsFile); err != nil {
		return fmt.Errorf("seed agent registry: %w", err)
	}
	reg, err := registry.New(agentsFile)
	if err != nil {
		return fmt.Errorf("open agent registry: %w", err)
	}
	defer reg.Close()

	profiles := reg.Profiles()
	if len(profiles) == 0 {
		fmt.Printf("No agents registered. Add profiles to %s\n", agentsFile)
		return nil
	}

	fmt.Printf("Registry: %s\n\n", agentsFile)
	for _, p := range profiles {
		name := p.Name
		if name == "" {
			name = p.AgentID
		}
		fmt.Printf("%s  %s\n", color.CyanString(p.AgentID), name)
		fmt.Printf("  role: %s, response relevance: %.2f\n", p.Role, p.ResponseRelevance)
		fmt.Printf("  specializations: %s\n", strings.Join(p.Specializations, ", "))
	}
	return nil
}
