package router

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wesheets/roundtable/internal/bus"
	"github.com/wesheets/roundtable/pkg/models"
)

// defaultEscalationPath is the chain used when no configured path covers
// the recipient's role.
var defaultEscalationPath = []string{"supervisor", "admin", "human"}

// DefaultEscalationPaths returns the built-in role to escalation chain
// mapping: an unanswered agent escalates to supervisor, then admin, then
// a human operator.
func DefaultEscalationPaths() map[string][]string {
	return map[string][]string{
		models.DefaultRole: append([]string(nil), defaultEscalationPath...),
	}
}

// armEscalation starts the no-response timer for high and critical
// messages. The timer is armed before Send returns, so advancing a mock
// clock immediately afterwards is race-free. Escalation notices never
// re-arm. Caller holds the router lock.
func (r *Router) armEscalation(msg *models.AgentMessage) {
	if msg.Content.MessageType == models.MessageEscalation {
		return
	}
	timeout, ok := msg.Content.Priority.EscalationTimeout()
	if !ok {
		return
	}
	path := r.pathFor(msg.ToAgents[0].AgentID)
	msg.Delivery.Escalation = &models.EscalationState{
		TimeoutMinutes: int(timeout / time.Minute),
		Deadline:       r.clock.Now().Add(timeout),
		Path:           append([]string(nil), path...),
	}
	id := msg.ID
	r.timers[id] = r.clock.AfterFunc(timeout, func() {
		r.fireEscalation(id)
	})
}

// pathFor returns the escalation chain for the recipient's role, falling
// back to the default role's chain and then the built-in path.
func (r *Router) pathFor(agentID string) []string {
	role := r.roleOf(agentID)
	if p, ok := r.paths[role]; ok {
		return p
	}
	if p, ok := r.paths[models.DefaultRole]; ok {
		return p
	}
	return defaultEscalationPath
}

// disarm stops the escalation timer for a message if one is pending.
// Caller holds the router lock.
func (r *Router) disarm(messageID string) {
	if t, ok := r.timers[messageID]; ok {
		t.Stop()
		delete(r.timers, messageID)
	}
}

// fireEscalation runs when a message's no-response window elapses. It
// marks the escalation fired, delivers a notice to the escalation path,
// and publishes the notice on the escalations subject. An escalation
// fires at most once per message; a response that landed between the
// timer firing and this call suppresses it.
func (r *Router) fireEscalation(messageID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.timers, messageID)
	msg, ok := r.messages[messageID]
	if !ok || msg.Delivery.Escalation == nil || msg.Delivery.Escalation.Fired {
		return
	}
	for _, status := range msg.Delivery.PerRecipientStatus {
		if status == models.DeliveryResponded {
			return
		}
	}

	now := r.clock.Now()
	esc := msg.Delivery.Escalation
	esc.Fired = true
	esc.FiredAt = &now
	r.metrics.IncEscalation(string(msg.Content.Priority))
	r.logf("escalating %s after %dm without a response", msg.ID, esc.TimeoutMinutes)

	notice := r.escalationNotice(msg, esc, now)
	r.deliver(notice)
	r.messages[notice.ID] = notice

	ctx := context.Background()
	r.persist(ctx, msg)
	r.persist(ctx, notice)
	r.publish(bus.SubjectEscalations, notice)
	if r.onEscalation != nil {
		r.onEscalation(msg.Clone(), notice.Clone())
	}
}

// escalationNotice builds the message sent to the escalation path when a
// window elapses. The notice reuses the original sender, channel, and
// thread so the escalation lands in the same conversation.
func (r *Router) escalationNotice(msg *models.AgentMessage, esc *models.EscalationState, now time.Time) *models.AgentMessage {
	recipients := make([]models.Recipient, 0, len(esc.Path))
	status := make(map[string]models.DeliveryStatus, len(esc.Path))
	for _, target := range esc.Path {
		if target == msg.FromAgent {
			continue
		}
		recipients = append(recipients, models.Recipient{
			AgentID:        target,
			MentionType:    models.MentionUrgent,
			ExpectedAction: models.ActionAcknowledge,
		})
		status[target] = models.DeliverySent
	}

	subject := msg.Content.Subject
	if subject == "" {
		subject = msg.ID
	}
	noticeContext := msg.Context
	noticeContext.DecisionPoint = false

	return &models.AgentMessage{
		ID:        uuid.NewString(),
		ChannelID: msg.ChannelID,
		FromAgent: msg.FromAgent,
		ToAgents:  recipients,
		Content: models.MessageContent{
			MessageType: models.MessageEscalation,
			Subject:     "escalation: " + subject,
			Body:        fmt.Sprintf("no response to message %s within %d minutes", msg.ID, esc.TimeoutMinutes),
			Priority:    models.PriorityCritical,
		},
		Context: noticeContext,
		Delivery: models.DeliveryInfo{
			Timestamp:          now,
			PerRecipientStatus: status,
		},
	}
}
