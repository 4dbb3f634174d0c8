package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/wesheets/roundtable/internal/config"
	"github.com/wesheets/roundtable/internal/orchestrator"
	"github.com/wesheets/roundtable/internal/scheduler"
	"github.com/wesheets/roundtable/pkg/models"
)

var runCmd = &cobra.Command{
	Use:   "run <task-id>",
	Short: "Execute a planned task",
	Long: `Execute the steps of a planned task in dependency order.

Independent steps run in parallel up to orchestrator.max_parallel.
Failed steps walk a retry ladder with escalating strategies; exhausted
retries escalate to the team lead. Interrupting the run leaves the
task resumable by a later 'roundtable run' or by 'roundtable serve'.`,
	Args: cobra.ExactArgs(1),
	RunE: runTask,
}

func runTask(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	orc, cleanup, err := buildOrchestrator(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	taskID := args[0]
	task, err := orc.Load(ctx, taskID)
	if err != nil {
		return fmt.Errorf("load task: %w", err)
	}

	fmt.Printf("Running task %s (%d steps)\n", color.CyanString(task.ID), len(task.Steps))
	if task.Team != nil {
		fmt.Printf("  Lead: %s, team of %d\n", task.Team.LeadAgent, len(task.Team.Members))
	}
	fmt.Println()

	events := orc.Events()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range events {
			printEvent(ev)
		}
	}()

	runErr := orc.Run(ctx, taskID)
	final, stateErr := orc.Task(context.Background(), taskID)

	// Closing the orchestrator ends the event stream; wait for the
	// printer to drain before the summary.
	cleanup()
	<-done

	if runErr != nil {
		if errors.Is(runErr, context.Canceled) {
			fmt.Println("\nInterrupted. The task can be resumed by 'roundtable run' or 'roundtable serve'.")
			return nil
		}
		if stateErr == nil {
			displayOutcome(final)
		}
		return fmt.Errorf("run task: %w", runErr)
	}

	if stateErr != nil {
		return fmt.Errorf("load final task state: %w", stateErr)
	}
	displayOutcome(final)
	return nil
}

// printEvent renders one orchestrator event as a progress line.
func printEvent(ev orchestrator.Event) {
	switch ev.Type {
	case orchestrator.EventStepStarted:
		fmt.Printf("  %s step %s (%s)\n", color.CyanString("▸"), ev.StepID, ev.AgentID)
	case orchestrator.EventStepCompleted:
		fmt.Printf("  %s step %s\n", color.GreenString("✓"), ev.StepID)
	case orchestrator.EventStepFailed:
		fmt.Printf("  %s step %s: %s\n", color.RedString("✗"), ev.StepID, ev.Err)
	case orchestrator.EventStepRetried:
		fmt.Printf("  %s step %s retrying (%s)\n", color.YellowString("↻"), ev.StepID, ev.Message)
	case orchestrator.EventStepEscalated:
		fmt.Printf("  %s step %s escalated to the team lead\n", color.YellowString("⚠"), ev.StepID)
	case orchestrator.EventEscalationFired:
		fmt.Printf("  %s unacknowledged: %s\n", color.YellowString("⚠"), ev.Message)
	case orchestrator.EventDecisionResolved:
		fmt.Printf("  %s decision %s resolved\n", color.GreenString("✓"), ev.DecisionID)
	}
}

func displayOutcome(task *models.CollaborativeTask) {
	fmt.Println()
	switch task.Status {
	case models.TaskStatusCompleted:
		printStatus("✓", fmt.Sprintf("Task %s completed", task.ID), color.FgGreen)
	case models.TaskStatusFailed:
		printStatus("✗", fmt.Sprintf("Task %s failed", task.ID), color.FgRed)
		if reason, ok := scheduler.CancelReason(task); ok {
			fmt.Printf("  Cancelled: %s\n", reason)
		}
		for _, step := range task.Steps {
			if step.Status == models.StepStatusFailed {
				fmt.Printf("  Step %d failed: %s\n", step.SequenceNumber, step.Error)
			}
		}
	default:
		printStatus("⚠", fmt.Sprintf("Task %s stopped while %s", task.ID, task.Status), color.FgYellow)
	}

	for _, step := range task.Steps {
		if step.Kind == models.StepKindSynthesis && step.Output != nil && step.Output.Result != "" {
			fmt.Printf("\nRecommendation:\n  %s\n", step.Output.Result)
		}
	}
}
