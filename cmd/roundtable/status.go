package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/wesheets/roundtable/internal/config"
	"github.com/wesheets/roundtable/internal/scheduler"
	"github.com/wesheets/roundtable/internal/state"
	"github.com/wesheets/roundtable/pkg/models"
)

var statusCmd = &cobra.Command{
	Use:   "status [task-id]",
	Short: "Show stored tasks and their progress",
	Long: `Display stored tasks and their progress.

Without arguments, lists every task with its status, completion, and
age. With a task id, shows step-level detail for that task.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	dbPath := cfg.DBPath()
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		fmt.Println("No tasks yet. Run 'roundtable plan <request>' to start.")
		return nil
	}

	db, err := state.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open state database: %w", err)
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	ctx := context.Background()
	if len(args) == 1 {
		task, err := db.LoadTask(ctx, args[0])
		if err != nil {
			return fmt.Errorf("load task: %w", err)
		}
		displayTaskDetail(task)
		return nil
	}

	tasks, err := db.ListTasks(ctx)
	if err != nil {
		return fmt.Errorf("list tasks: %w", err)
	}
	if len(tasks) == 0 {
		fmt.Println("No tasks yet. Run 'roundtable plan <request>' to start.")
		return nil
	}

	for _, task := range tasks {
		excerpt := task.Request
		if len(excerpt) > 60 {
			excerpt = excerpt[:57] + "..."
		}
		fmt.Printf("%s  %-10s  %3.0f%%  %s ago  %q\n",
			task.ID,
			coloredStatus(task.Status),
			task.Progress.OverallProgress*100,
			formatDuration(time.Since(task.CreatedAt)),
			excerpt)
	}
	return nil
}

func displayTaskDetail(task *models.CollaborativeTask) {
	fmt.Printf("Task: %s\n", color.CyanString(task.ID))
	fmt.Printf("Request: %s\n", task.Request)
	fmt.Printf("Status: %s, %3.0f%% complete, created %s ago\n",
		coloredStatus(task.Status),
		task.Progress.OverallProgress*100,
		formatDuration(time.Since(task.CreatedAt)))
	if task.Team != nil {
		fmt.Printf("Team: lead %s, %d members\n", task.Team.LeadAgent, len(task.Team.Members))
	}
	if reason, ok := scheduler.CancelReason(task); ok {
		fmt.Printf("Cancelled: %s\n", reason)
	}

	fmt.Println("\nSteps:")
	for _, step := range task.Steps {
		fmt.Printf("  %s %d. [%s] %s\n", stepSymbol(step.Status), step.SequenceNumber, step.Kind, step.Description)
		if step.Error != "" {
			fmt.Printf("      error: %s\n", step.Error)
		}
	}
}

// coloredStatus renders a task status in its conventional color.
func coloredStatus(status models.TaskStatus) string {
	switch status {
	case models.TaskStatusCompleted:
		return color.GreenString(string(status))
	case models.TaskStatusFailed:
		return color.RedString(string(status))
	case models.TaskStatusExecuting, models.TaskStatusReviewing:
		return color.YellowString(string(status))
	default:
		return string(status)
	}
}

func stepSymbol(status models.StepStatus) string {
	switch status {
	case models.StepStatusCompleted:
		return color.GreenString("✓")
	case models.StepStatusFailed:
		return color.RedString("✗")
	case models.StepStatusInProgress:
		return color.YellowString("▸")
	case models.StepStatusBlocked:
		return color.RedString("■")
	default:
		return "·"
	}
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		h := int(d.Hours())
		m := int(d.Minutes()) % 60
		if m > 0 {
			return fmt.Sprintf("%dh%dm", h, m)
		}
		return fmt.Sprintf("%dh", h)
	}
	days := int(d.Hours()) / 24
	return fmt.Sprintf("%dd", days)
}
