package models

import (
	"errors"
	"fmt"
	"strings"
)

// Orchestration error taxonomy. Construction-time errors (ErrInvalidRequest,
// ErrCyclicDependency) fail fast; the rest are recorded on the affected
// entity and surfaced in return values.
var (
	// ErrInvalidRequest rejects malformed decomposition input.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrUnknownAgent flags a mention or assignment of an unregistered agent.
	ErrUnknownAgent = errors.New("unknown agent")
	// ErrCyclicDependency rejects a step graph that is not a DAG.
	ErrCyclicDependency = errors.New("cyclic dependency")
	// ErrPolicyDenied is returned when the policy collaborator vetoes an action.
	ErrPolicyDenied = errors.New("policy denied")
	// ErrDeliveryFailed marks a per-recipient delivery failure.
	ErrDeliveryFailed = errors.New("delivery failed")
	// ErrConsensusTimeout marks a decision that hit its deadline.
	ErrConsensusTimeout = errors.New("consensus timeout")
	// ErrNotFound is returned by storage lookups that match nothing.
	ErrNotFound = errors.New("not found")
)

// PolicyError carries the policy engine's verdict for a denied action.
// It unwraps to ErrPolicyDenied so callers can match on the taxonomy.
type PolicyError struct {
	// AgentID is the agent whose action was denied.
	AgentID string
	// Action is the denied action.
	Action string
	// Violations lists the rules the action broke.
	Violations []string
	// Warnings lists non-blocking findings.
	Warnings []string
	// RequiredActions lists remediations the policy engine demands.
	RequiredActions []string
}

func (e *PolicyError) Error() string {
	return fmt.Sprintf("policy denied %s for agent %s: %s",
		e.Action, e.AgentID, strings.Join(e.Violations, "; "))
}

func (e *PolicyError) Unwrap() error { return ErrPolicyDenied }
