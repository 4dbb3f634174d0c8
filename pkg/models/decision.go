package models

import (
	"sort"
	"time"
)

// DecisionStatus is the lifecycle state of a consensus decision.
type DecisionStatus string

const (
	// DecisionOpen indicates voting is in progress.
	DecisionOpen DecisionStatus = "open"
	// DecisionResolved indicates the decision reached an outcome.
	DecisionResolved DecisionStatus = "resolved"
	// DecisionCancelled indicates the decision was torn down before
	// resolution, usually because its task was cancelled.
	DecisionCancelled DecisionStatus = "cancelled"
)

// DecisionOutcome records how a resolved decision was settled.
type DecisionOutcome string

const (
	// OutcomeConsensus means the leading option reached the threshold
	// among cast votes.
	OutcomeConsensus DecisionOutcome = "consensus"
	// OutcomePlurality means the deadline passed and the leading option
	// won without reaching the threshold.
	OutcomePlurality DecisionOutcome = "plurality"
	// OutcomeDisputed means the deadline passed with the lead tied.
	OutcomeDisputed DecisionOutcome = "disputed"
)

// ConsensusDecision is a multi-agent vote on a decision point.
type ConsensusDecision struct {
	// ID is the unique identifier for this decision.
	ID string `json:"id"`
	// Question is what is being decided.
	Question string `json:"question"`
	// Options is the ordered list of choices.
	Options []string `json:"options"`
	// RequiredParticipants lists the agents asked to vote. Kept sorted.
	RequiredParticipants []string `json:"requiredParticipants"`
	// Votes maps agent id to the option they chose.
	Votes map[string]string `json:"votes"`
	// ConsensusThreshold is the minimum share of the participant panel the
	// leading option needs to resolve early. In (0,1].
	ConsensusThreshold float64 `json:"consensusThreshold"`
	// Deadline bounds the vote, if set.
	Deadline *time.Time `json:"deadline,omitempty"`
	// ConsensusOption is the winning option once resolved. Empty for
	// disputed outcomes.
	ConsensusOption string `json:"consensusOption,omitempty"`
	// Status is the decision lifecycle state.
	Status DecisionStatus `json:"status"`
	// Outcome records how a resolved decision was settled.
	Outcome DecisionOutcome `json:"outcome,omitempty"`
	// ThreadID is the conversation thread the decision belongs to.
	ThreadID string `json:"threadId,omitempty"`
	// TaskID is the task the decision belongs to, if any.
	TaskID string `json:"taskId,omitempty"`
	// CreatedAt is when voting opened.
	CreatedAt time.Time `json:"createdAt"`
	// ResolvedAt is when the decision left the open state, if it has.
	ResolvedAt *time.Time `json:"resolvedAt,omitempty"`
}

// IsParticipant reports whether the agent is a required participant.
func (d *ConsensusDecision) IsParticipant(agentID string) bool {
	for _, p := range d.RequiredParticipants {
		if p == agentID {
			return true
		}
	}
	return false
}

// HasOption reports whether option is one of the decision's choices.
func (d *ConsensusDecision) HasOption(option string) bool {
	for _, o := range d.Options {
		if o == option {
			return true
		}
	}
	return false
}

// VoteCounts tallies cast votes per option. Options with no votes are
// omitted.
func (d *ConsensusDecision) VoteCounts() map[string]int {
	counts := make(map[string]int)
	for _, option := range d.Votes {
		counts[option]++
	}
	return counts
}

// Leaders returns the options with the highest vote count, sorted, plus
// that count. An empty vote set returns no leaders.
func (d *ConsensusDecision) Leaders() ([]string, int) {
	counts := d.VoteCounts()
	best := 0
	for _, n := range counts {
		if n > best {
			best = n
		}
	}
	if best == 0 {
		return nil, 0
	}
	var leaders []string
	for option, n := range counts {
		if n == best {
			leaders = append(leaders, option)
		}
	}
	sort.Strings(leaders)
	return leaders, best
}
