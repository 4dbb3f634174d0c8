// Package agent provides the step executor strategies the orchestrator
// runs reasoning steps with. The local executor is deterministic and
// in-process, so a task completes end to end with no external calls;
// the Claude executor is an optional drop-in backed by the API.
package agent

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/wesheets/roundtable/pkg/models"
)

// Executor runs one reasoning step of a task and produces its output.
// The task snapshot carries the request, the team, and the outputs of
// completed dependencies; implementations must not mutate it.
type Executor interface {
	ExecuteStep(ctx context.Context, task *models.CollaborativeTask, step *models.ReasoningStep) (*models.StepOutput, error)
}

// LocalExecutor produces step outputs deterministically from the step
// kind, its capabilities, and the outputs of its dependencies. The same
// task and step always yield the same output.
type LocalExecutor struct{}

// NewLocalExecutor returns the deterministic in-process executor.
func NewLocalExecutor() *LocalExecutor {
	return &LocalExecutor{}
}

// ExecuteStep builds a deterministic output for the step. It fails only
// on invalid input or a cancelled context.
func (e *LocalExecutor) ExecuteStep(ctx context.Context, task *models.CollaborativeTask, step *models.ReasoningStep) (*models.StepOutput, error) {
	if task == nil || step == nil {
		return nil, fmt.Errorf("%w: executor needs a task and a step", models.ErrInvalidRequest)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := &models.StepOutput{
		Result:     resultFor(task, step),
		Confidence: stepConfidence(step),
		Reasoning:  reasoningFor(step),
		NextSteps:  dependentDescriptions(task, step),
	}
	return out, nil
}

// resultFor renders the step's artifact. Synthesis and validation read
// the dependency outputs so the result actually reflects upstream work.
func resultFor(task *models.CollaborativeTask, step *models.ReasoningStep) string {
	switch step.Kind {
	case models.StepKindAnalysis:
		return fmt.Sprintf("Framed the request %q into %d workstreams covering %s.",
			shorten(task.Request, 80), countKind(task, models.StepKindDelegation),
			capabilityList(task.RequiredCapabilities()))
	case models.StepKindDelegation:
		return fmt.Sprintf("%s: findings prepared against %s.",
			step.Description, capabilityList(step.RequiredCapabilities))
	case models.StepKindSynthesis:
		inputs := dependencyResults(task, step)
		if len(inputs) == 0 {
			return fmt.Sprintf("%s: no upstream findings to combine.", step.Description)
		}
		return fmt.Sprintf("Combined %d findings into a recommendation: %s",
			len(inputs), strings.Join(inputs, " | "))
	case models.StepKindValidation:
		inputs := dependencyResults(task, step)
		return fmt.Sprintf("Checked %d upstream results for consistency; no contradictions found.", len(inputs))
	case models.StepKindCoordination:
		return fmt.Sprintf("%s: checkpoint reached, position recorded for the team.", step.Description)
	default:
		return step.Description
	}
}

// stepConfidence derives a confidence from the step kind, discounted by
// how many distinct capabilities the step demands. Validation is the
// most certain kind of work, coordination the least.
func stepConfidence(step *models.ReasoningStep) float64 {
	var base float64
	switch step.Kind {
	case models.StepKindValidation:
		base = 0.88
	case models.StepKindAnalysis:
		base = 0.82
	case models.StepKindDelegation:
		base = 0.78
	case models.StepKindSynthesis:
		base = 0.74
	case models.StepKindCoordination:
		base = 0.70
	default:
		base = 0.70
	}
	if extra := len(step.RequiredCapabilities) - 1; extra > 0 {
		base -= 0.02 * float64(extra)
	}
	if base < 0.55 {
		base = 0.55
	}
	return base
}

func reasoningFor(step *models.ReasoningStep) string {
	switch step.Kind {
	case models.StepKindAnalysis:
		return "Scoped the request against the detected domains before any domain work started."
	case models.StepKindDelegation:
		return fmt.Sprintf("Applied %s expertise to the assigned slice of the task.",
			capabilityList(step.RequiredCapabilities))
	case models.StepKindSynthesis:
		return "Weighed each upstream finding and folded them into one recommendation."
	case models.StepKindValidation:
		return "Cross-checked upstream results against each other and the original request."
	case models.StepKindCoordination:
		return "Recorded the checkpoint so dependent steps start from an agreed position."
	default:
		return ""
	}
}

// dependencyResults collects the outputs of completed dependencies in
// dependency order.
func dependencyResults(task *models.CollaborativeTask, step *models.ReasoningStep) []string {
	var results []string
	for _, depID := range step.Dependencies {
		dep := task.Step(depID)
		if dep == nil || dep.Output == nil || dep.Output.Result == "" {
			continue
		}
		results = append(results, shorten(dep.Output.Result, 120))
	}
	return results
}

// dependentDescriptions suggests the steps unblocked by this one, up to
// three, in sequence order.
func dependentDescriptions(task *models.CollaborativeTask, step *models.ReasoningStep) []string {
	var dependents []*models.ReasoningStep
	for _, s := range task.Steps {
		if s.DependsOn(step.ID) {
			dependents = append(dependents, s)
		}
	}
	sort.Slice(dependents, func(i, j int) bool {
		return dependents[i].SequenceNumber < dependents[j].SequenceNumber
	})
	var next []string
	for _, s := range dependents {
		next = append(next, s.Description)
		if len(next) == 3 {
			break
		}
	}
	return next
}

func countKind(task *models.CollaborativeTask, kind models.StepKind) int {
	n := 0
	for _, s := range task.Steps {
		if s.Kind == kind {
			n++
		}
	}
	return n
}

func capabilityList(caps []string) string {
	if len(caps) == 0 {
		return "general expertise"
	}
	return strings.Join(caps, ", ")
}

func shorten(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	return strings.TrimSpace(s[:max]) + "..."
}
