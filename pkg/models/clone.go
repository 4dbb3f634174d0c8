package models

import "time"

// Clone returns a deep copy of the step. The copy shares nothing with the
// original, so callers can hand it out without holding task locks.
func (s *ReasoningStep) Clone() *ReasoningStep {
	if s == nil {
		return nil
	}
	out := *s
	out.RequiredCapabilities = append([]string(nil), s.RequiredCapabilities...)
	out.AssignedAgents = append([]string(nil), s.AssignedAgents...)
	out.Dependencies = append([]string(nil), s.Dependencies...)
	if s.Output != nil {
		output := *s.Output
		output.NextSteps = append([]string(nil), s.Output.NextSteps...)
		out.Output = &output
	}
	if s.StartedAt != nil {
		at := *s.StartedAt
		out.StartedAt = &at
	}
	if s.CompletedAt != nil {
		at := *s.CompletedAt
		out.CompletedAt = &at
	}
	return &out
}

// Clone returns a deep copy of the composition.
func (c *TeamComposition) Clone() *TeamComposition {
	if c == nil {
		return nil
	}
	out := *c
	out.Members = make([]TeamMember, len(c.Members))
	for i, m := range c.Members {
		m.Responsibilities = append([]string(nil), m.Responsibilities...)
		m.Expertise = append([]string(nil), m.Expertise...)
		out.Members[i] = m
	}
	out.BlockedRequirements = append([]string(nil), c.BlockedRequirements...)
	return &out
}

func (w SharedWorkspace) clone() SharedWorkspace {
	out := w
	if w.Context != nil {
		out.Context = make(map[string]string, len(w.Context))
		for k, v := range w.Context {
			out.Context[k] = v
		}
	}
	out.Notes = append([]WorkspaceNote(nil), w.Notes...)
	if w.Conflicts != nil {
		out.Conflicts = make([]ConflictEntry, len(w.Conflicts))
		for i, c := range w.Conflicts {
			c.Agents = append([]string(nil), c.Agents...)
			out.Conflicts[i] = c
		}
	}
	return out
}

// Clone returns a copy of the progress snapshot with its own id lists.
func (p TaskProgress) Clone() TaskProgress {
	out := p
	out.CompletedSteps = append([]string(nil), p.CompletedSteps...)
	out.CurrentSteps = append([]string(nil), p.CurrentSteps...)
	out.BlockedSteps = append([]string(nil), p.BlockedSteps...)
	return out
}

// Clone returns a deep copy of the thread.
func (t *ConversationThread) Clone() *ConversationThread {
	if t == nil {
		return nil
	}
	out := *t
	out.MessageIDs = append([]string(nil), t.MessageIDs...)
	out.ResponseIDs = append([]string(nil), t.ResponseIDs...)
	out.DecisionIDs = append([]string(nil), t.DecisionIDs...)
	if t.Metrics.ParticipationRate != nil {
		out.Metrics.ParticipationRate = make(map[string]int, len(t.Metrics.ParticipationRate))
		for k, v := range t.Metrics.ParticipationRate {
			out.Metrics.ParticipationRate[k] = v
		}
	}
	return &out
}

// Clone returns a deep copy of the decision.
func (d *ConsensusDecision) Clone() *ConsensusDecision {
	if d == nil {
		return nil
	}
	out := *d
	out.Options = append([]string(nil), d.Options...)
	out.RequiredParticipants = append([]string(nil), d.RequiredParticipants...)
	if d.Votes != nil {
		out.Votes = make(map[string]string, len(d.Votes))
		for k, v := range d.Votes {
			out.Votes[k] = v
		}
	}
	if d.Deadline != nil {
		at := *d.Deadline
		out.Deadline = &at
	}
	if d.ResolvedAt != nil {
		at := *d.ResolvedAt
		out.ResolvedAt = &at
	}
	return &out
}

// Clone returns a deep copy of the message, including the delivery envelope.
// The router hands clones to mailboxes and readers so later delivery updates
// never race a consumer.
func (m *AgentMessage) Clone() *AgentMessage {
	if m == nil {
		return nil
	}
	out := *m
	out.ToAgents = append([]Recipient(nil), m.ToAgents...)
	out.Content.Tags = append([]string(nil), m.Content.Tags...)
	out.Content.Attachments = append([]Attachment(nil), m.Content.Attachments...)
	if m.Delivery.PerRecipientStatus != nil {
		out.Delivery.PerRecipientStatus = make(map[string]DeliveryStatus, len(m.Delivery.PerRecipientStatus))
		for k, v := range m.Delivery.PerRecipientStatus {
			out.Delivery.PerRecipientStatus[k] = v
		}
	}
	if m.Delivery.ReadReceipts != nil {
		out.Delivery.ReadReceipts = make(map[string]time.Time, len(m.Delivery.ReadReceipts))
		for k, v := range m.Delivery.ReadReceipts {
			out.Delivery.ReadReceipts[k] = v
		}
	}
	if m.Delivery.FailureReasons != nil {
		out.Delivery.FailureReasons = make(map[string]string, len(m.Delivery.FailureReasons))
		for k, v := range m.Delivery.FailureReasons {
			out.Delivery.FailureReasons[k] = v
		}
	}
	if m.Delivery.Escalation != nil {
		esc := *m.Delivery.Escalation
		esc.Path = append([]string(nil), m.Delivery.Escalation.Path...)
		if m.Delivery.Escalation.FiredAt != nil {
			at := *m.Delivery.Escalation.FiredAt
			esc.FiredAt = &at
		}
		out.Delivery.Escalation = &esc
	}
	return &out
}

// Clone returns a deep copy of the task, including steps, team, workspace,
// and progress. Schedulers hand clones to readers so concurrent step
// completions never race a caller iterating the snapshot.
func (t *CollaborativeTask) Clone() *CollaborativeTask {
	if t == nil {
		return nil
	}
	out := *t
	out.Steps = make([]*ReasoningStep, len(t.Steps))
	for i, s := range t.Steps {
		out.Steps[i] = s.Clone()
	}
	out.CriticalPath = append([]string(nil), t.CriticalPath...)
	if t.ParallelGroups != nil {
		out.ParallelGroups = make([][]string, len(t.ParallelGroups))
		for i, g := range t.ParallelGroups {
			out.ParallelGroups[i] = append([]string(nil), g...)
		}
	}
	out.Team = t.Team.Clone()
	out.Workspace = t.Workspace.clone()
	out.Progress = t.Progress.Clone()
	if t.CompletedAt != nil {
		at := *t.CompletedAt
		out.CompletedAt = &at
	}
	return &out
}
