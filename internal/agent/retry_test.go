package agent

import "testing"

func TestRetryPolicy_TieredStrategies(t *testing.T) {
	p := NewRetryPolicy()
	p.SetMaxAttempts(4)

	fc, decision := p.HandleFailure("task-1", "step-2", "timeout")
	if decision != Retry || fc.Strategy != "retry_original" {
		t.Errorf("attempt 1: decision %v strategy %q, want retry/retry_original", decision, fc.Strategy)
	}

	fc, decision = p.HandleFailure("task-1", "step-2", "timeout again")
	if decision != Retry || fc.Strategy != "retry_with_workspace_context" {
		t.Errorf("attempt 2: decision %v strategy %q", decision, fc.Strategy)
	}

	fc, decision = p.HandleFailure("task-1", "step-2", "still failing")
	if decision != Retry || fc.Strategy != "reassign_to_specialist" {
		t.Errorf("attempt 3: decision %v strategy %q", decision, fc.Strategy)
	}

	fc, decision = p.HandleFailure("task-1", "step-2", "gave up")
	if decision != Escalate {
		t.Errorf("attempt 4: decision %v, want Escalate", decision)
	}
	if fc.Attempt != 4 {
		t.Errorf("attempt counter = %d, want 4", fc.Attempt)
	}
}

func TestRetryPolicy_StepsFailIndependently(t *testing.T) {
	p := NewRetryPolicy()

	p.HandleFailure("task-1", "step-2", "boom")
	p.HandleFailure("task-1", "step-2", "boom")
	if _, decision := p.HandleFailure("task-1", "step-3", "other"); decision != Retry {
		t.Errorf("fresh step inherited another step's attempts: %v", decision)
	}
	if got := p.Attempts("task-1", "step-2"); got != 2 {
		t.Errorf("attempts for step-2 = %d, want 2", got)
	}
	if got := p.Attempts("task-1", "step-3"); got != 1 {
		t.Errorf("attempts for step-3 = %d, want 1", got)
	}
}

func TestRetryPolicy_EscalatesAtBudget(t *testing.T) {
	p := NewRetryPolicy()
	p.SetMaxAttempts(1)

	if _, decision := p.HandleFailure("task-1", "step-2", "boom"); decision != Escalate {
		t.Errorf("budget of one: decision %v, want Escalate on first failure", decision)
	}
}

func TestRetryPolicy_ResetClearsHistory(t *testing.T) {
	p := NewRetryPolicy()

	p.HandleFailure("task-1", "step-2", "first")
	p.HandleFailure("task-1", "step-2", "second")
	if got := p.Failures("task-1", "step-2"); len(got) != 2 || got[0] != "first" {
		t.Errorf("failures = %v, want [first second]", got)
	}

	p.Reset("task-1", "step-2")
	if got := p.Attempts("task-1", "step-2"); got != 0 {
		t.Errorf("attempts after reset = %d, want 0", got)
	}
	if _, decision := p.HandleFailure("task-1", "step-2", "fresh"); decision != Retry {
		t.Errorf("after reset: decision %v, want Retry", decision)
	}
}
