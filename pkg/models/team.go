package models

// Team member roles.
const (
	RoleLead       = "lead"
	RoleSpecialist = "specialist"
)

// TeamMember is one agent's seat on a task team.
type TeamMember struct {
	// AgentID is the agent occupying the seat.
	AgentID string `json:"agentId"`
	// Role is the seat's role, lead or specialist.
	Role string `json:"role"`
	// Responsibilities lists the required capabilities this member covers.
	Responsibilities []string `json:"responsibilities,omitempty"`
	// Expertise is the member's declared specialization set.
	Expertise []string `json:"expertise,omitempty"`
}

// TeamComposition is the deterministic agent assignment for a task.
type TeamComposition struct {
	// LeadAgent is the id of the lead member.
	LeadAgent string `json:"leadAgent"`
	// Members lists every seat, lead first, specialists in capability order.
	Members []TeamMember `json:"members"`
	// BlockedRequirements lists required capabilities no available agent
	// covers. Surfaced to the caller rather than silently dropped.
	BlockedRequirements []string `json:"blockedRequirements,omitempty"`
	// DynamicRecruitment indicates additional agents may be added mid-task.
	DynamicRecruitment bool `json:"dynamicRecruitment"`
}

// Member returns the seat for the given agent id, or nil.
func (tc *TeamComposition) Member(agentID string) *TeamMember {
	for i := range tc.Members {
		if tc.Members[i].AgentID == agentID {
			return &tc.Members[i]
		}
	}
	return nil
}

// AgentIDs returns every member's agent id in seat order.
func (tc *TeamComposition) AgentIDs() []string {
	ids := make([]string, len(tc.Members))
	for i, m := range tc.Members {
		ids[i] = m.AgentID
	}
	return ids
}

// Specialists returns the agent ids of non-lead members in seat order.
func (tc *TeamComposition) Specialists() []string {
	var ids []string
	for _, m := range tc.Members {
		if m.Role != RoleLead {
			ids = append(ids, m.AgentID)
		}
	}
	return ids
}
