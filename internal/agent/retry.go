package agent

import (
	"fmt"
	"sync"
)

// RetryDecision is the verdict after evaluating a step failure.
type RetryDecision int

const (
	// Retry means the step should be retried with the suggested strategy.
	Retry RetryDecision = iota
	// Escalate means the failure should be raised to the team lead.
	Escalate
	// Abort means the step should stay failed without escalation.
	Abort
)

func (d RetryDecision) String() string {
	switch d {
	case Retry:
		return "retry"
	case Escalate:
		return "escalate"
	case Abort:
		return "abort"
	default:
		return "unknown"
	}
}

// FailureContext describes a step failure and the strategy to try next.
type FailureContext struct {
	TaskID string
	StepID string
	// Err is the failure message.
	Err string
	// Attempt is the failure count for this step, 1-indexed.
	Attempt int
	// Strategy names the approach for the next attempt.
	Strategy string
}

// RetryPolicy tracks failures per step and applies a tiered strategy:
// first a plain retry, then retries that change the approach, and
// finally escalation once the attempt budget is spent. A completed step
// should be Reset so later failures start a fresh ladder.
type RetryPolicy struct {
	mu          sync.Mutex
	maxAttempts int
	attempts    map[string]int
	failures    map[string][]string
	debugLog    func(format string, args ...any)
}

// Strategies for attempts after the first, in order.
var retryStrategies = []string{
	"retry_with_workspace_context",
	"reassign_to_specialist",
	"simplify_scope",
}

// NewRetryPolicy returns a policy that escalates after three failures.
func NewRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		maxAttempts: 3,
		attempts:    make(map[string]int),
		failures:    make(map[string][]string),
	}
}

// SetMaxAttempts changes the attempt budget. Values below one clamp to one.
func (p *RetryPolicy) SetMaxAttempts(max int) {
	if max < 1 {
		max = 1
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.maxAttempts = max
}

// SetDebugLog attaches a debug logger.
func (p *RetryPolicy) SetDebugLog(fn func(format string, args ...any)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.debugLog = fn
}

// HandleFailure records a step failure and decides what happens next.
func (p *RetryPolicy) HandleFailure(taskID, stepID, errMsg string) (*FailureContext, RetryDecision) {
	key := stepKey(taskID, stepID)

	p.mu.Lock()
	p.attempts[key]++
	attempt := p.attempts[key]
	p.failures[key] = append(p.failures[key], errMsg)
	max := p.maxAttempts
	logf := p.debugLog
	p.mu.Unlock()

	fc := &FailureContext{
		TaskID:  taskID,
		StepID:  stepID,
		Err:     errMsg,
		Attempt: attempt,
	}

	switch {
	case attempt >= max:
		fc.Strategy = "escalate_to_lead"
		if logf != nil {
			logf("step %s: attempt budget spent (%d), escalating", key, attempt)
		}
		return fc, Escalate
	case attempt == 1:
		fc.Strategy = "retry_original"
	default:
		fc.Strategy = retryStrategies[min(attempt-2, len(retryStrategies)-1)]
	}
	if logf != nil {
		logf("step %s: attempt %d failed, next strategy %s", key, attempt, fc.Strategy)
	}
	return fc, Retry
}

// Reset clears the failure history for a step.
func (p *RetryPolicy) Reset(taskID, stepID string) {
	key := stepKey(taskID, stepID)
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.attempts, key)
	delete(p.failures, key)
}

// Attempts returns the recorded failure count for a step.
func (p *RetryPolicy) Attempts(taskID, stepID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.attempts[stepKey(taskID, stepID)]
}

// Failures returns the recorded failure messages for a step, oldest first.
func (p *RetryPolicy) Failures(taskID, stepID string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	stored := p.failures[stepKey(taskID, stepID)]
	out := make([]string, len(stored))
	copy(out, stored)
	return out
}

func stepKey(taskID, stepID string) string {
	return fmt.Sprintf("%s/%s", taskID, stepID)
}
