// Package team matches available agents to the capabilities a task
// requires, producing a TeamComposition with a lead agent, specialist
// assignments, and any requirements no agent can cover.
package team

import (
	"sort"

	"github.com/wesheets/roundtable/pkg/models"
)

// Composer assigns agents to required capabilities. Selection is
// deterministic: given the same agents and capability set, repeated
// calls return the same composition regardless of input order.
type Composer struct {
	debugLog func(format string, args ...interface{})
}

func New() *Composer {
	return &Composer{}
}

// SetDebugLog installs an optional logging hook for selection decisions.
func (c *Composer) SetDebugLog(fn func(format string, args ...interface{})) {
	c.debugLog = fn
}

func (c *Composer) logf(format string, args ...interface{}) {
	if c.debugLog != nil {
		c.debugLog(format, args...)
	}
}

// Compose builds a team for the required capability set from the
// available agent profiles. The lead is the agent whose specializations
// overlap the requirements most, ties broken by agent id. Each remaining
// capability is assigned to the best-matching agent not already on the
// team. Capabilities nobody covers are surfaced as blocked requirements
// and switch on dynamic recruitment; they are never silently dropped.
func (c *Composer) Compose(required []string, agents []models.AgentProfile) *models.TeamComposition {
	caps := normalizeCapabilities(required)
	comp := &models.TeamComposition{}

	if len(agents) == 0 {
		comp.BlockedRequirements = append(comp.BlockedRequirements, caps...)
		comp.DynamicRecruitment = len(comp.BlockedRequirements) > 0
		c.logf("team: no agents available, %d requirements blocked", len(comp.BlockedRequirements))
		return comp
	}

	pool := make([]models.AgentProfile, len(agents))
	copy(pool, agents)
	sort.Slice(pool, func(i, j int) bool { return pool[i].AgentID < pool[j].AgentID })

	lead := pickLead(pool, caps)
	covered := make(map[string]bool)
	for _, capability := range caps {
		if hasSpecialization(lead, capability) {
			covered[capability] = true
		}
	}
	assigned := map[string]bool{lead.AgentID: true}

	comp.LeadAgent = lead.AgentID
	comp.Members = append(comp.Members, models.TeamMember{
		AgentID:          lead.AgentID,
		Role:             models.RoleLead,
		Responsibilities: leadResponsibilities(lead, caps),
		Expertise:        append([]string(nil), lead.Specializations...),
	})
	c.logf("team: lead %s covers %d/%d requirements", lead.AgentID, len(covered), len(caps))

	for _, capability := range caps {
		if covered[capability] {
			continue
		}
		specialist, ok := pickSpecialist(pool, assigned, caps, capability)
		if !ok {
			comp.BlockedRequirements = append(comp.BlockedRequirements, capability)
			c.logf("team: no agent covers %q", capability)
			continue
		}
		assigned[specialist.AgentID] = true
		var duties []string
		for _, other := range caps {
			if !covered[other] && hasSpecialization(specialist, other) {
				covered[other] = true
				duties = append(duties, other)
			}
		}
		comp.Members = append(comp.Members, models.TeamMember{
			AgentID:          specialist.AgentID,
			Role:             models.RoleSpecialist,
			Responsibilities: duties,
			Expertise:        append([]string(nil), specialist.Specializations...),
		})
		c.logf("team: %s assigned for %v", specialist.AgentID, duties)
	}

	comp.DynamicRecruitment = len(comp.BlockedRequirements) > 0
	return comp
}

// pickLead returns the agent with the largest specialization overlap.
// The pool is sorted by agent id, so the first maximum wins ties.
func pickLead(pool []models.AgentProfile, caps []string) models.AgentProfile {
	best := pool[0]
	bestOverlap := overlap(pool[0], caps)
	for _, agent := range pool[1:] {
		if n := overlap(agent, caps); n > bestOverlap {
			best = agent
			bestOverlap = n
		}
	}
	return best
}

// pickSpecialist returns the best unassigned agent covering capability. Agents
// are ranked by overall requirement overlap, then declared response
// relevance, then agent id.
func pickSpecialist(pool []models.AgentProfile, assigned map[string]bool, caps []string, capability string) (models.AgentProfile, bool) {
	var best models.AgentProfile
	found := false
	bestOverlap := -1
	for _, agent := range pool {
		if assigned[agent.AgentID] || !hasSpecialization(agent, capability) {
			continue
		}
		n := overlap(agent, caps)
		if !found || n > bestOverlap || (n == bestOverlap && agent.ResponseRelevance > best.ResponseRelevance) {
			best = agent
			bestOverlap = n
			found = true
		}
	}
	return best, found
}

func leadResponsibilities(lead models.AgentProfile, caps []string) []string {
	duties := []string{"coordination"}
	for _, capability := range caps {
		if hasSpecialization(lead, capability) {
			duties = append(duties, capability)
		}
	}
	return duties
}

func normalizeCapabilities(required []string) []string {
	seen := make(map[string]bool, len(required))
	var caps []string
	for _, capability := range required {
		if capability == "" || seen[capability] {
			continue
		}
		seen[capability] = true
		caps = append(caps, capability)
	}
	sort.Strings(caps)
	return caps
}

func hasSpecialization(agent models.AgentProfile, capability string) bool {
	for _, spec := range agent.Specializations {
		if spec == capability {
			return true
		}
	}
	return false
}

func overlap(agent models.AgentProfile, caps []string) int {
	n := 0
	for _, capability := range caps {
		if hasSpecialization(agent, capability) {
			n++
		}
	}
	return n
}
