package models

import "time"

// StepKind classifies the work a reasoning step performs.
type StepKind string

const (
	// StepKindAnalysis breaks the request down and frames the problem.
	StepKindAnalysis StepKind = "analysis"
	// StepKindSynthesis combines domain results into a recommendation.
	StepKindSynthesis StepKind = "synthesis"
	// StepKindValidation checks the combined result before completion.
	StepKindValidation StepKind = "validation"
	// StepKindDelegation is domain work handed to a specialist agent.
	StepKindDelegation StepKind = "delegation"
	// StepKindCoordination is a checkpoint step attached to a decision point.
	StepKindCoordination StepKind = "coordination"
)

// Valid returns true if the kind is a known value.
func (k StepKind) Valid() bool {
	switch k {
	case StepKindAnalysis, StepKindSynthesis, StepKindValidation, StepKindDelegation, StepKindCoordination:
		return true
	default:
		return false
	}
}

// StepStatus represents the current state of a reasoning step.
type StepStatus string

const (
	// StepStatusPending indicates the step has not started.
	StepStatusPending StepStatus = "pending"
	// StepStatusInProgress indicates the step is being worked on.
	// A step only enters this state once every dependency is completed.
	StepStatusInProgress StepStatus = "in_progress"
	// StepStatusCompleted indicates the step finished successfully.
	StepStatusCompleted StepStatus = "completed"
	// StepStatusFailed indicates the step failed. Failed steps stay in the
	// graph and may be retried back to pending.
	StepStatusFailed StepStatus = "failed"
	// StepStatusBlocked indicates a dependency of the step failed.
	StepStatusBlocked StepStatus = "blocked"
)

// Valid returns true if the status is a known value.
func (s StepStatus) Valid() bool {
	switch s {
	case StepStatusPending, StepStatusInProgress, StepStatusCompleted, StepStatusFailed, StepStatusBlocked:
		return true
	default:
		return false
	}
}

// Terminal returns true if the status is an end state for a step.
func (s StepStatus) Terminal() bool {
	return s == StepStatusCompleted || s == StepStatusFailed
}

// StepOutput holds the result an agent produced for a completed step.
type StepOutput struct {
	// Result is the produced artifact or answer.
	Result string `json:"result"`
	// Confidence is the agent's self-assessed confidence in [0,1].
	Confidence float64 `json:"confidence"`
	// Reasoning explains how the result was reached.
	Reasoning string `json:"reasoning,omitempty"`
	// NextSteps lists follow-up work the agent suggests.
	NextSteps []string `json:"nextSteps,omitempty"`
}

// ReasoningStep is one unit of work in a task's dependency graph.
type ReasoningStep struct {
	// ID is the unique identifier for this step.
	ID string `json:"id"`
	// SequenceNumber orders steps for presentation; execution order is
	// governed by Dependencies, not this number.
	SequenceNumber int `json:"sequenceNumber"`
	// Description is the human-readable summary of the work.
	Description string `json:"description"`
	// Kind classifies the step.
	Kind StepKind `json:"kind"`
	// RequiredCapabilities lists the capabilities an assigned agent needs.
	// Kept sorted so comparisons and serialization stay deterministic.
	RequiredCapabilities []string `json:"requiredCapabilities"`
	// AssignedAgents lists agent ids working this step, in assignment order.
	AssignedAgents []string `json:"assignedAgents,omitempty"`
	// Dependencies lists step ids that must complete before this step.
	// Only ids of steps in the same task are valid. Kept sorted.
	Dependencies []string `json:"dependencies,omitempty"`
	// EstimatedDuration is the expected effort in minutes.
	EstimatedDuration int `json:"estimatedDuration"`
	// Status is the current state of the step.
	Status StepStatus `json:"status"`
	// Output is set when the step completes.
	Output *StepOutput `json:"output,omitempty"`
	// StartedAt is when the step entered in_progress, if it has.
	StartedAt *time.Time `json:"startedAt,omitempty"`
	// CompletedAt is when the step reached a terminal state, if it has.
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	// Error contains the failure reason if the step failed.
	Error string `json:"error,omitempty"`
}

// DependsOn reports whether the step lists id as a dependency.
func (s *ReasoningStep) DependsOn(id string) bool {
	for _, d := range s.Dependencies {
		if d == id {
			return true
		}
	}
	return false
}
