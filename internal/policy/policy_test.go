package policy

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/wesheets/roundtable/pkg/models"
)

func TestEnforce_DenyRule(t *testing.T) {
	engine := New()
	decision := engine.Enforce(context.Background(), "agent-a", "task.cancel", "task/t1", map[string]string{"role": "agent"})

	if decision.Allowed {
		t.Fatal("expected plain agent task.cancel to be denied")
	}
	if len(decision.Violations) != 1 {
		t.Errorf("violations = %v, want one entry", decision.Violations)
	}

	err := decision.Err("agent-a", "task.cancel")
	if !errors.Is(err, models.ErrPolicyDenied) {
		t.Errorf("Err() = %v, want ErrPolicyDenied", err)
	}
}

func TestEnforce_LeadMayCancel(t *testing.T) {
	engine := New()
	decision := engine.Enforce(context.Background(), "agent-a", "task.cancel", "task/t1", map[string]string{"role": "lead"})

	if !decision.Allowed {
		t.Errorf("lead cancellation denied: %v", decision.Violations)
	}
	if decision.Err("agent-a", "task.cancel") != nil {
		t.Error("allowed decision should convert to nil error")
	}
}

func TestEnforce_RequireAndWarnAccumulate(t *testing.T) {
	engine := New()

	decision := engine.Enforce(context.Background(), "agent-b", "message.send", "channel/ops",
		map[string]string{"priority": "critical"})
	if !decision.Allowed {
		t.Fatalf("critical send should be allowed, got violations %v", decision.Violations)
	}
	if len(decision.RequiredActions) != 1 || decision.RequiredActions[0] != "track-acknowledgement" {
		t.Errorf("required actions = %v, want [track-acknowledgement]", decision.RequiredActions)
	}

	decision = engine.Enforce(context.Background(), "agent-b", "step.complete", "task/t1/step/s1",
		map[string]string{"confidence": "low"})
	if len(decision.Warnings) != 1 {
		t.Errorf("warnings = %v, want one entry", decision.Warnings)
	}
}

func TestEnforce_ResourceGlob(t *testing.T) {
	engine := NewEmpty()
	engine.Add(Rule{
		Name:      "freeze-validation-steps",
		Effect:    EffectDeny,
		Actions:   []string{"step.start"},
		Resources: []string{"task/*/step/validate-*"},
		Reason:    "validation steps are frozen during review",
	})

	tests := []struct {
		name     string
		resource string
		allowed  bool
	}{
		{"matching validation step", "task/t1/step/validate-final", false},
		{"other step", "task/t1/step/analyze", true},
		{"different depth", "task/t1/validate-final", true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			decision := engine.Enforce(context.Background(), "agent-a", "step.start", tc.resource, nil)
			if decision.Allowed != tc.allowed {
				t.Errorf("Enforce(%q) allowed = %v, expected %v", tc.resource, decision.Allowed, tc.allowed)
			}
		})
	}
}

func TestEnforce_AgentWildcard(t *testing.T) {
	engine := NewEmpty()
	engine.Add(Rule{
		Name:    "quarantine-probation-agents",
		Effect:  EffectDeny,
		Agents:  []string{"probation-*"},
		Actions: []string{"vote.cast"},
		Reason:  "agents on probation may not vote",
	})

	if engine.Enforce(context.Background(), "probation-7", "vote.cast", "decision/d1", nil).Allowed {
		t.Error("probation agent vote should be denied")
	}
	if !engine.Enforce(context.Background(), "agent-7", "vote.cast", "decision/d1", nil).Allowed {
		t.Error("regular agent vote should be allowed")
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	config := `rules:
  - name: block-external-channel
    effect: deny
    actions: [message.send]
    resources: ["channel/external"]
    reason: external channel is disabled
`
	if err := os.WriteFile(path, []byte(config), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	engine := NewEmpty()
	if err := engine.LoadConfig(path); err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if engine.Enforce(context.Background(), "agent-a", "message.send", "channel/external", nil).Allowed {
		t.Error("configured deny rule not applied")
	}
	if len(engine.Rules()) != 1 {
		t.Errorf("rules = %d, want 1", len(engine.Rules()))
	}
}
