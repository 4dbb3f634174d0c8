package policy

// DefaultRules is the baseline rule set loaded by New. Deployments extend
// it through policy.yaml; the defaults only guard actions that are unsafe
// for any plain agent regardless of configuration.
var DefaultRules = []Rule{
	{
		Name:    "plain-agents-cannot-cancel-tasks",
		Effect:  EffectDeny,
		Actions: []string{"task.cancel"},
		Match:   map[string]string{"role": "agent"},
		Reason:  "task cancellation requires the lead agent or an operator",
	},
	{
		Name:            "critical-messages-need-acknowledgement",
		Effect:          EffectRequire,
		Actions:         []string{"message.send"},
		Match:           map[string]string{"priority": "critical"},
		Reason:          "critical traffic is tracked until acknowledged",
		RequiredActions: []string{"track-acknowledgement"},
	},
	{
		Name:    "flag-low-confidence-completions",
		Effect:  EffectWarn,
		Actions: []string{"step.complete"},
		Match:   map[string]string{"confidence": "low"},
		Reason:  "step completed with low declared confidence",
	},
}
