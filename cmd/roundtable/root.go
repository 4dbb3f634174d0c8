package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "roundtable",
	Short: "Collaborative task orchestration for agent teams",
	Long: `Roundtable decomposes requests into a graph of reasoning steps,
composes an agent team for the required capabilities, and executes the
steps in dependency order with structured messaging between agents.

Core capabilities:
- Decomposes requests into analysis, delegation, synthesis, and validation steps
- Composes deterministic teams from the agent capability registry
- Schedules independent steps in parallel along the critical path
- Routes @mentions with escalation timers and read receipts
- Resolves group decisions through consensus voting
- Aggregates conversation threads with quality-weighted scoring

Plan a task with 'roundtable plan', execute it with 'roundtable run',
or start the HTTP API with 'roundtable serve'.`,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(agentsCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(restoreCmd)
	rootCmd.AddCommand(versionCmd)
}
