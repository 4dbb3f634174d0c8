package bus

import (
	"fmt"
	"strings"
)

// Subject patterns for agent traffic. Identifiers are sanitized because
// NATS subjects treat '.', '*' and '>' as structure.

func SubjectAgentInbox(agentID string) string {
	return fmt.Sprintf("agent.%s.inbox", sanitize(agentID))
}

func SubjectChannel(channelID string) string {
	return fmt.Sprintf("channel.%s.messages", sanitize(channelID))
}

func SubjectTaskEvents(taskID string) string {
	return fmt.Sprintf("task.%s.events", sanitize(taskID))
}

func SubjectDecisionVotes(decisionID string) string {
	return fmt.Sprintf("decision.%s.votes", sanitize(decisionID))
}

const (
	SubjectAllAgentInboxes = "agent.*.inbox"
	SubjectAllChannels     = "channel.*.messages"
	SubjectAllTaskEvents   = "task.*.events"
	SubjectAllVotes        = "decision.*.votes"
	SubjectEscalations     = "escalations"
)

// sanitize maps an identifier onto a single NATS subject token.
func sanitize(id string) string {
	if id == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, id)
}
