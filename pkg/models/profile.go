package models

// AgentProfile is a capability registry entry for one agent.
type AgentProfile struct {
	// AgentID is the agent the profile describes.
	AgentID string `json:"agentId" yaml:"agentId"`
	// Name is the display name, matched by quoted mentions.
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
	// Role selects the agent's escalation path.
	Role string `json:"role,omitempty" yaml:"role,omitempty"`
	// Specializations is the agent's declared capability set.
	Specializations []string `json:"specializations" yaml:"specializations"`
	// ResponseRelevance in [0,1] weights the agent's responses in
	// quality scoring.
	ResponseRelevance float64 `json:"responseRelevance" yaml:"responseRelevance"`
}

// DefaultRole is the escalation role assumed for unprofiled agents.
const DefaultRole = "agent"

// DefaultProfile is the degraded profile used when the registry has no
// entry for an agent. Lookups never fail on a missing profile.
func DefaultProfile(agentID string) AgentProfile {
	return AgentProfile{
		AgentID:           agentID,
		Role:              DefaultRole,
		Specializations:   []string{"general"},
		ResponseRelevance: 0.5,
	}
}
