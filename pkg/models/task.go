package models

import (
	"sort"
	"time"
)

// TaskStatus represents the lifecycle state of a collaborative task.
type TaskStatus string

const (
	// TaskStatusPlanning indicates the task graph exists but no step has started.
	TaskStatusPlanning TaskStatus = "planning"
	// TaskStatusExecuting indicates at least one step has started.
	TaskStatusExecuting TaskStatus = "executing"
	// TaskStatusReviewing indicates only validation steps remain.
	TaskStatusReviewing TaskStatus = "reviewing"
	// TaskStatusCompleted indicates every step completed.
	TaskStatusCompleted TaskStatus = "completed"
	// TaskStatusFailed indicates the task can no longer complete.
	TaskStatusFailed TaskStatus = "failed"
)

// Valid returns true if the status is a known value.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPlanning, TaskStatusExecuting, TaskStatusReviewing, TaskStatusCompleted, TaskStatusFailed:
		return true
	default:
		return false
	}
}

// Terminal returns true if the status is an end state for a task.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// Constraints bound a decomposition request.
type Constraints struct {
	// MaxBudget caps the spend for the task, in the caller's currency unit.
	MaxBudget float64 `json:"maxBudget,omitempty"`
	// MaxTime caps the total estimated duration, in minutes.
	MaxTime int `json:"maxTime,omitempty"`
	// QualityRequirement in [0,1] raises validation effort when high.
	QualityRequirement float64 `json:"qualityRequirement,omitempty"`
}

// WorkspaceNote is one entry in a task's append-only collaborative notes.
type WorkspaceNote struct {
	// Author is the agent id that wrote the note.
	Author string `json:"author"`
	// Text is the note body.
	Text string `json:"text"`
	// At is when the note was appended.
	At time.Time `json:"at"`
}

// ConflictEntry records a disagreement between agents over a step.
type ConflictEntry struct {
	// StepID is the step the conflict concerns, if any.
	StepID string `json:"stepId,omitempty"`
	// Agents lists the agent ids involved.
	Agents []string `json:"agents"`
	// Description summarizes the disagreement.
	Description string `json:"description"`
	// At is when the conflict was logged.
	At time.Time `json:"at"`
	// Resolved marks whether the conflict has been settled.
	Resolved bool `json:"resolved"`
}

// SharedWorkspace is the mutable scratch space agents share on a task.
// All mutation goes through the task's single writer.
type SharedWorkspace struct {
	// Context holds free-form key-value context for the task.
	Context map[string]string `json:"context,omitempty"`
	// Notes is the append-only collaborative note log.
	Notes []WorkspaceNote `json:"notes,omitempty"`
	// Conflicts is the conflict log.
	Conflicts []ConflictEntry `json:"conflicts,omitempty"`
}

// TaskProgress is a snapshot of step-set membership and overall completion.
// The three id lists plus the remaining pending steps partition the task's
// steps; no id appears in two lists.
type TaskProgress struct {
	// CompletedSteps lists ids of completed steps.
	CompletedSteps []string `json:"completedSteps"`
	// CurrentSteps lists ids of steps that are in progress or ready to start.
	CurrentSteps []string `json:"currentSteps"`
	// BlockedSteps lists ids of steps blocked by a failed dependency.
	BlockedSteps []string `json:"blockedSteps"`
	// OverallProgress is completed steps over all steps, in [0,1].
	OverallProgress float64 `json:"overallProgress"`
}

// CollaborativeTask is a decomposed request: a DAG of reasoning steps plus
// the team, workspace, and progress state that orchestration maintains.
type CollaborativeTask struct {
	// ID is the unique identifier for this task.
	ID string `json:"id"`
	// Request is the original natural-language request.
	Request string `json:"request"`
	// Constraints are the bounds the request was decomposed under.
	Constraints Constraints `json:"constraints,omitempty"`
	// Steps is the ordered list of reasoning steps.
	Steps []*ReasoningStep `json:"steps"`
	// CriticalPath is the dependency chain of step ids estimated to
	// determine total task duration.
	CriticalPath []string `json:"criticalPath"`
	// ParallelGroups lists groups of step ids that share an identical
	// dependency set and may run concurrently. Only groups of two or
	// more steps are recorded.
	ParallelGroups [][]string `json:"parallelGroups"`
	// Team is the agent assignment produced by the composer.
	Team *TeamComposition `json:"team,omitempty"`
	// Workspace is the shared scratch space for the task.
	Workspace SharedWorkspace `json:"workspace"`
	// Progress is the latest progress snapshot.
	Progress TaskProgress `json:"progress"`
	// Status is the task lifecycle state.
	Status TaskStatus `json:"status"`
	// CreatedAt is when the task was decomposed.
	CreatedAt time.Time `json:"createdAt"`
	// CompletedAt is when the task reached a terminal state, if it has.
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// Step returns the step with the given id, or nil.
func (t *CollaborativeTask) Step(id string) *ReasoningStep {
	for _, s := range t.Steps {
		if s.ID == id {
			return s
		}
	}
	return nil
}

// StepIDs returns the ids of all steps in step order.
func (t *CollaborativeTask) StepIDs() []string {
	ids := make([]string, len(t.Steps))
	for i, s := range t.Steps {
		ids[i] = s.ID
	}
	return ids
}

// RequiredCapabilities returns the sorted union of every step's
// required capabilities.
func (t *CollaborativeTask) RequiredCapabilities() []string {
	seen := make(map[string]bool)
	for _, s := range t.Steps {
		for _, c := range s.RequiredCapabilities {
			seen[c] = true
		}
	}
	caps := make([]string, 0, len(seen))
	for c := range seen {
		caps = append(caps, c)
	}
	sort.Strings(caps)
	return caps
}
