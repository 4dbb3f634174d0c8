// Package policy decides whether agent actions may proceed. The scheduler
// and the communication router consult it before starting steps, sending
// messages, and casting votes; a denial is a recoverable error surfaced to
// the caller, never a crash.
//
// Actions use dotted names ("step.start", "message.send", "vote.cast",
// "task.cancel"); resources use slash paths ("task/<id>/step/<id>",
// "channel/<id>", "decision/<id>") so rules can target them with glob
// patterns.
package policy

import (
	"context"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/wesheets/roundtable/pkg/models"
)

// Effect is what a matching rule contributes to the decision.
type Effect string

const (
	// EffectDeny blocks the action and records a violation.
	EffectDeny Effect = "deny"
	// EffectWarn lets the action proceed but records a warning.
	EffectWarn Effect = "warn"
	// EffectRequire lets the action proceed and records follow-up actions
	// the caller must perform.
	EffectRequire Effect = "require"
)

// Rule matches an (agent, action, resource, context) tuple. Empty selector
// lists match anything; agent ids, action names, and resource segments all
// accept * wildcards. Match entries must equal the caller-supplied context
// values exactly.
type Rule struct {
	Name            string            `yaml:"name"`
	Effect          Effect            `yaml:"effect"`
	Agents          []string          `yaml:"agents"`
	Actions         []string          `yaml:"actions"`
	Resources       []string          `yaml:"resources"`
	Match           map[string]string `yaml:"match"`
	Reason          string            `yaml:"reason"`
	RequiredActions []string          `yaml:"requiredActions"`
}

func (r Rule) applies(agentID, action, resource string, meta map[string]string) bool {
	if !matchAny(agentID, r.Agents) || !matchAny(action, r.Actions) {
		return false
	}
	if len(r.Resources) > 0 {
		hit := false
		for _, pattern := range r.Resources {
			if matchResource(resource, pattern) {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}
	for key, want := range r.Match {
		if meta[key] != want {
			return false
		}
	}
	return true
}

func matchAny(token string, patterns []string) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, pattern := range patterns {
		if matchToken(token, pattern) {
			return true
		}
	}
	return false
}

// Decision is the outcome of an enforcement check.
type Decision struct {
	Allowed         bool
	Violations      []string
	Warnings        []string
	RequiredActions []string
}

// Err converts a denial into a PolicyError carrying the full decision.
// Allowed decisions return nil.
func (d Decision) Err(agentID, action string) error {
	if d.Allowed {
		return nil
	}
	return &models.PolicyError{
		AgentID:         agentID,
		Action:          action,
		Violations:      append([]string(nil), d.Violations...),
		Warnings:        append([]string(nil), d.Warnings...),
		RequiredActions: append([]string(nil), d.RequiredActions...),
	}
}

// Enforcer is the compliance collaborator contract.
type Enforcer interface {
	Enforce(ctx context.Context, agentID, action, resource string, meta map[string]string) Decision
}

// Engine evaluates an ordered rule list. Every matching rule contributes;
// the action is allowed only when no deny rule matched.
type Engine struct {
	mu       sync.RWMutex
	rules    []Rule
	debugLog func(format string, args ...interface{})
}

// New creates an engine preloaded with the default rule set.
func New() *Engine {
	return &Engine{rules: append([]Rule{}, DefaultRules...)}
}

// NewEmpty creates an engine with no rules; every action is allowed until
// rules are added.
func NewEmpty() *Engine {
	return &Engine{}
}

// SetDebugLog installs an optional logging hook for rule hits.
func (e *Engine) SetDebugLog(fn func(format string, args ...interface{})) {
	e.debugLog = fn
}

// Add appends a rule to the evaluation order.
func (e *Engine) Add(rule Rule) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules = append(e.rules, rule)
}

// Rules returns a copy of the current rule list.
func (e *Engine) Rules() []Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]Rule{}, e.rules...)
}

// Enforce evaluates every rule against the action. Deny rules record
// violations, warn rules record warnings, require rules record follow-up
// actions. Allowed is true only when no deny rule matched.
func (e *Engine) Enforce(ctx context.Context, agentID, action, resource string, meta map[string]string) Decision {
	_ = ctx

	e.mu.RLock()
	defer e.mu.RUnlock()

	decision := Decision{Allowed: true}
	for _, rule := range e.rules {
		if !rule.applies(agentID, action, resource, meta) {
			continue
		}
		if e.debugLog != nil {
			e.debugLog("policy: rule %q (%s) matched %s %s %s", rule.Name, rule.Effect, agentID, action, resource)
		}
		switch rule.Effect {
		case EffectDeny:
			decision.Allowed = false
			decision.Violations = append(decision.Violations, rule.Reason)
		case EffectWarn:
			decision.Warnings = append(decision.Warnings, rule.Reason)
		case EffectRequire:
			decision.RequiredActions = append(decision.RequiredActions, rule.RequiredActions...)
		}
	}
	return decision
}

type policyConfig struct {
	Rules []Rule `yaml:"rules"`
}

// LoadConfig appends rules from a YAML file to the evaluation order.
func (e *Engine) LoadConfig(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var config policyConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules = append(e.rules, config.Rules...)
	return nil
}
