package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/wesheets/roundtable/internal/config"
	"github.com/wesheets/roundtable/pkg/models"
)

var (
	planBudget  float64
	planMaxTime int
	planQuality float64
)

var planCmd = &cobra.Command{
	Use:   "plan <request>",
	Short: "Decompose a request into a task plan",
	Long: `Decompose a request into reasoning steps and compose an agent team.

The request is classified into domains, expanded into analysis,
delegation, synthesis, and validation steps, and matched against the
agent registry. The plan is stored; nothing executes until
'roundtable run <task-id>'.

Examples:
  roundtable plan "Evaluate the platform budget and recommend a path forward"
  roundtable plan --budget 500 --max-time 120 "Review the launch plan"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runPlan,
}

func init() {
	planCmd.Flags().Float64Var(&planBudget, "budget", 0, "Maximum budget constraint (0 for none)")
	planCmd.Flags().IntVar(&planMaxTime, "max-time", 0, "Maximum time constraint in minutes (0 for none)")
	planCmd.Flags().Float64Var(&planQuality, "quality", 0, "Required quality score in [0,1] (0 for none)")
}

func runPlan(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	orc, cleanup, err := buildOrchestrator(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	request := strings.Join(args, " ")
	task, err := orc.Submit(context.Background(), request, models.Constraints{
		MaxBudget:          planBudget,
		MaxTime:            planMaxTime,
		QualityRequirement: planQuality,
	})
	if err != nil {
		return fmt.Errorf("plan request: %w", err)
	}

	displayPlan(task)
	return nil
}

func displayPlan(task *models.CollaborativeTask) {
	fmt.Printf("Task: %s\n", color.CyanString(task.ID))
	fmt.Printf("Request: %s\n\n", task.Request)

	if team := task.Team; team != nil {
		fmt.Println("Team:")
		for _, m := range team.Members {
			marker := " "
			if m.Role == models.RoleLead {
				marker = color.GreenString("*")
			}
			fmt.Printf("  %s %s (%s): %s\n", marker, m.AgentID, m.Role, strings.Join(m.Responsibilities, ", "))
		}
		if len(team.BlockedRequirements) > 0 {
			printStatus("⚠", fmt.Sprintf("No agent covers: %s", strings.Join(team.BlockedRequirements, ", ")), color.FgYellow)
		}
		fmt.Println()
	}

	fmt.Printf("Steps (%d):\n", len(task.Steps))
	for _, step := range task.Steps {
		after := ""
		if len(step.Dependencies) > 0 {
			after = fmt.Sprintf(", after %s", strings.Join(sequenceLabels(task, step.Dependencies), ","))
		}
		agents := strings.Join(step.AssignedAgents, ", ")
		if agents == "" {
			agents = "(unassigned)"
		}
		fmt.Printf("  %d. [%s] %s\n", step.SequenceNumber, step.Kind, step.Description)
		fmt.Printf("     agents: %s, ~%dm%s\n", agents, step.EstimatedDuration, after)
	}

	if warnings := task.Workspace.Context["qualityWarnings"]; warnings != "" {
		for _, w := range strings.Split(warnings, "; ") {
			printStatus("⚠", w, color.FgYellow)
		}
	}

	if len(task.CriticalPath) > 0 {
		fmt.Printf("\nCritical path: %s\n", strings.Join(sequenceLabels(task, task.CriticalPath), " -> "))
	}
	for i, group := range task.ParallelGroups {
		if i == 0 {
			fmt.Println("Parallel groups:")
		}
		fmt.Printf("  wave %d: %s\n", i+1, strings.Join(sequenceLabels(task, group), ", "))
	}

	fmt.Printf("\nRun it with: roundtable run %s\n", task.ID)
}

// sequenceLabels maps step ids to their display sequence numbers. Ids
// that are not in the task pass through unchanged.
func sequenceLabels(task *models.CollaborativeTask, ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if step := task.Step(id); step != nil {
			out = append(out, fmt.Sprintf("#%d", step.SequenceNumber))
			continue
		}
		out = append(out, id)
	}
	return out
}
