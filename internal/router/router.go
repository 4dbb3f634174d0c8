// Package router delivers structured messages between agents. It parses
// @mentions into recipients, enqueues per-agent mailbox copies, tracks
// per-recipient delivery status, and escalates unanswered high and
// critical messages along configurable role paths. Timers run on an
// injected clock so escalation windows are logical minutes, not
// wall-clock sleeps.
package router

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/wesheets/roundtable/internal/bus"
	"github.com/wesheets/roundtable/internal/metrics"
	"github.com/wesheets/roundtable/internal/policy"
	"github.com/wesheets/roundtable/pkg/models"
)

const defaultMailboxSize = 64

// Directory resolves agent ids and display names. The capability registry
// implements it; a nil directory accepts every agent id.
type Directory interface {
	Known(agentID string) bool
	Profile(agentID string) models.AgentProfile
	Profiles() []models.AgentProfile
}

// Archive persists accepted messages and recorded responses. The router
// re-saves a message whenever its delivery envelope changes.
type Archive interface {
	SaveMessage(ctx context.Context, msg *models.AgentMessage) error
	SaveResponse(ctx context.Context, resp *models.AgentResponse) error
}

// SendRequest is the input to Send. Recipients come from the explicit To
// list plus any @mentions parsed from the body. Team scopes @all
// expansion; without one @all expands to nobody.
type SendRequest struct {
	FromAgent string
	ChannelID string
	To        []models.Recipient
	Content   models.MessageContent
	Context   models.MessageContext
	Semantics models.MessageSemantics
	Team      *models.TeamComposition
}

// Router owns message delivery state: the message log, per-agent
// mailboxes, and pending escalation timers.
type Router struct {
	mu           sync.Mutex
	clock        clock.Clock
	dir          Directory
	enforcer     policy.Enforcer
	archive      Archive
	bus          *bus.Client
	metrics      *metrics.Metrics
	messages     map[string]*models.AgentMessage
	mailboxes    map[string]chan *models.AgentMessage
	timers       map[string]*clock.Timer
	paths        map[string][]string
	mailboxSize  int
	onEscalation func(original, notice *models.AgentMessage)
	debugLog     func(format string, args ...interface{})
}

// New creates a router backed by the given directory, with a real clock
// and the default escalation paths.
func New(dir Directory) *Router {
	return &Router{
		clock:       clock.New(),
		dir:         dir,
		messages:    make(map[string]*models.AgentMessage),
		mailboxes:   make(map[string]chan *models.AgentMessage),
		timers:      make(map[string]*clock.Timer),
		paths:       DefaultEscalationPaths(),
		mailboxSize: defaultMailboxSize,
	}
}

// SetClock replaces the router's clock. Tests install a mock so logical
// minutes can be advanced deterministically.
func (r *Router) SetClock(c clock.Clock) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clock = c
}

// SetPolicy installs the policy collaborator consulted before a send.
func (r *Router) SetPolicy(e policy.Enforcer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enforcer = e
}

// SetArchive installs the persistence collaborator.
func (r *Router) SetArchive(a Archive) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.archive = a
}

// SetBus mirrors deliveries onto the message bus.
func (r *Router) SetBus(c *bus.Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bus = c
}

// SetMetrics installs delivery and escalation counters.
func (r *Router) SetMetrics(m *metrics.Metrics) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metrics = m
}

// SetEscalationPaths replaces the role to escalation chain mapping.
func (r *Router) SetEscalationPaths(paths map[string][]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := make(map[string][]string, len(paths))
	for role, chain := range paths {
		copied[role] = append([]string(nil), chain...)
	}
	r.paths = copied
}

// SetMailboxSize changes the capacity of mailboxes created after the
// call. Existing mailboxes keep their capacity.
func (r *Router) SetMailboxSize(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n > 0 {
		r.mailboxSize = n
	}
}

// OnEscalation registers a hook invoked with clones of the original
// message and the escalation notice each time an escalation fires.
func (r *Router) OnEscalation(fn func(original, notice *models.AgentMessage)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onEscalation = fn
}

// SetDebugLog sets a logger for delivery tracing.
func (r *Router) SetDebugLog(fn func(format string, args ...interface{})) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.debugLog = fn
}

func (r *Router) logf(format string, args ...interface{}) {
	if r.debugLog != nil {
		r.debugLog(format, args...)
	}
}

// Send validates, addresses, and delivers a message. Recipients are the
// explicit To list plus parsed mentions, deduplicated in address order.
// Delivery is per-recipient and non-transactional: an unknown agent id
// marks that recipient failed and the rest still receive the message.
// High and critical messages arm an escalation timer before Send returns.
// The returned message is a deep copy of the accepted record.
func (r *Router) Send(ctx context.Context, req SendRequest) (*models.AgentMessage, error) {
	if req.FromAgent == "" {
		return nil, fmt.Errorf("%w: message needs a sender", models.ErrInvalidRequest)
	}
	if strings.TrimSpace(req.Content.Subject) == "" && strings.TrimSpace(req.Content.Body) == "" {
		return nil, fmt.Errorf("%w: message needs a subject or body", models.ErrInvalidRequest)
	}
	content := req.Content
	if content.MessageType == "" {
		content.MessageType = models.MessageRequest
	}
	if content.Priority == "" {
		content.Priority = models.PriorityNormal
	}
	if !content.Priority.Valid() {
		return nil, fmt.Errorf("%w: unknown priority %q", models.ErrInvalidRequest, content.Priority)
	}
	channelID := req.ChannelID
	if channelID == "" {
		channelID = "direct"
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.enforcer != nil {
		meta := map[string]string{
			"priority": string(content.Priority),
			"type":     string(content.MessageType),
			"role":     r.roleOf(req.FromAgent),
		}
		decision := r.enforcer.Enforce(ctx, req.FromAgent, "message.send", "channel/"+channelID, meta)
		for _, warning := range decision.Warnings {
			r.logf("policy warning for %s: %s", req.FromAgent, warning)
		}
		if len(decision.RequiredActions) > 0 {
			tags := append([]string(nil), content.Tags...)
			for _, action := range decision.RequiredActions {
				tags = append(tags, "require:"+action)
			}
			content.Tags = tags
		}
		if err := decision.Err(req.FromAgent, "message.send"); err != nil {
			return nil, err
		}
	}

	mentions := ParseMentions(content.Body, req.FromAgent, req.Team, r.dir)
	recipients := make([]models.Recipient, 0, len(req.To)+len(mentions))
	seen := make(map[string]bool, len(req.To)+len(mentions))
	for _, rc := range req.To {
		if rc.AgentID == "" || seen[rc.AgentID] {
			continue
		}
		if rc.MentionType == "" {
			rc.MentionType = models.MentionDirect
		}
		if rc.ExpectedAction == "" {
			rc.ExpectedAction = models.ActionRespond
		}
		seen[rc.AgentID] = true
		recipients = append(recipients, rc)
	}
	for _, m := range mentions {
		if m.AgentID == "" {
			r.logf("mention %q resolved to no agent", m.Token)
			continue
		}
		if m.AgentID == req.FromAgent || seen[m.AgentID] {
			continue
		}
		seen[m.AgentID] = true
		recipients = append(recipients, recipientForMention(m, content.Priority))
	}
	if len(recipients) == 0 {
		return nil, fmt.Errorf("%w: message has no recipients", models.ErrInvalidRequest)
	}

	msgContext := req.Context
	if msgContext.ConversationThread == "" {
		msgContext.ConversationThread = uuid.NewString()
	}

	msg := &models.AgentMessage{
		ID:        uuid.NewString(),
		ChannelID: channelID,
		FromAgent: req.FromAgent,
		ToAgents:  recipients,
		Content:   content,
		Context:   msgContext,
		Semantics: req.Semantics,
		Delivery: models.DeliveryInfo{
			Timestamp:          r.clock.Now(),
			PerRecipientStatus: make(map[string]models.DeliveryStatus, len(recipients)),
		},
	}
	for _, rc := range recipients {
		msg.Delivery.PerRecipientStatus[rc.AgentID] = models.DeliverySent
	}

	r.deliver(msg)
	r.armEscalation(msg)
	r.messages[msg.ID] = msg
	r.persist(ctx, msg)
	r.publish(bus.SubjectChannel(channelID), msg)
	return msg.Clone(), nil
}

// recipientForMention turns a parsed mention into a recipient seat.
func recipientForMention(m models.Mention, priority models.Priority) models.Recipient {
	mentionType := models.MentionDirect
	if m.Token == "all" {
		mentionType = models.MentionCC
	} else if priority == models.PriorityCritical {
		mentionType = models.MentionUrgent
	}
	return models.Recipient{
		AgentID:        m.AgentID,
		MentionType:    mentionType,
		ExpectedAction: actionForReason(m.Reason),
	}
}

// deliver enqueues mailbox copies for each recipient in address order.
// One recipient failing never stops delivery to the rest. Caller holds
// the router lock.
func (r *Router) deliver(msg *models.AgentMessage) {
	for _, rc := range msg.ToAgents {
		if !r.known(rc.AgentID) {
			r.fail(msg, rc.AgentID, models.ErrUnknownAgent.Error())
			continue
		}
		select {
		case r.mailbox(rc.AgentID) <- msg.Clone():
			msg.Delivery.PerRecipientStatus[rc.AgentID] = models.DeliveryDelivered
			r.metrics.IncDelivery(string(models.DeliveryDelivered))
			r.publish(bus.SubjectAgentInbox(rc.AgentID), msg)
		default:
			r.fail(msg, rc.AgentID, "mailbox full")
		}
	}
}

func (r *Router) fail(msg *models.AgentMessage, agentID, reason string) {
	msg.Delivery.PerRecipientStatus[agentID] = models.DeliveryFailed
	if msg.Delivery.FailureReasons == nil {
		msg.Delivery.FailureReasons = make(map[string]string)
	}
	msg.Delivery.FailureReasons[agentID] = reason
	r.metrics.IncDelivery(string(models.DeliveryFailed))
	r.logf("delivery of %s to %s failed: %s", msg.ID, agentID, reason)
}

func (r *Router) known(agentID string) bool {
	return r.dir == nil || r.dir.Known(agentID)
}

func (r *Router) roleOf(agentID string) string {
	if r.dir == nil {
		return models.DefaultRole
	}
	return r.dir.Profile(agentID).Role
}

// RecordResponse records an agent's reply to a routed message. When the
// responder is a recipient, their delivery status becomes responded and
// the message's escalation timer, if still pending, is disarmed. Replies
// from non-recipients are archived but do not change delivery state.
// Latency is measured on the router's clock unless the response already
// carries one.
func (r *Router) RecordResponse(ctx context.Context, resp *models.AgentResponse) error {
	if resp == nil || resp.OriginalMessageID == "" || resp.FromAgent == "" {
		return fmt.Errorf("%w: response needs a message id and sender", models.ErrInvalidRequest)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	msg, ok := r.messages[resp.OriginalMessageID]
	if !ok {
		return fmt.Errorf("%w: message %s", models.ErrNotFound, resp.OriginalMessageID)
	}
	if resp.ID == "" {
		resp.ID = uuid.NewString()
	}
	if resp.CreatedAt.IsZero() {
		resp.CreatedAt = r.clock.Now()
	}
	if resp.Metadata.LatencyMinutes == 0 {
		resp.Metadata.LatencyMinutes = resp.CreatedAt.Sub(msg.Delivery.Timestamp).Minutes()
	}
	if msg.Recipient(resp.FromAgent) != nil {
		msg.Delivery.PerRecipientStatus[resp.FromAgent] = models.DeliveryResponded
		r.disarm(msg.ID)
		r.persist(ctx, msg)
	}
	if r.archive != nil {
		if err := r.archive.SaveResponse(ctx, resp); err != nil {
			r.logf("saving response %s: %v", resp.ID, err)
		}
	}
	r.publish(bus.SubjectChannel(msg.ChannelID), resp)
	return nil
}

// MarkRead records a read receipt for a recipient. Responded and failed
// recipients keep their status.
func (r *Router) MarkRead(ctx context.Context, messageID, agentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	msg, ok := r.messages[messageID]
	if !ok {
		return fmt.Errorf("%w: message %s", models.ErrNotFound, messageID)
	}
	if msg.Recipient(agentID) == nil {
		return fmt.Errorf("%w: %s is not a recipient of %s", models.ErrInvalidRequest, agentID, messageID)
	}
	switch msg.Delivery.PerRecipientStatus[agentID] {
	case models.DeliveryResponded, models.DeliveryFailed:
		return nil
	}
	msg.Delivery.PerRecipientStatus[agentID] = models.DeliveryRead
	if msg.Delivery.ReadReceipts == nil {
		msg.Delivery.ReadReceipts = make(map[string]time.Time)
	}
	msg.Delivery.ReadReceipts[agentID] = r.clock.Now()
	r.persist(ctx, msg)
	return nil
}

// Message returns a deep copy of an accepted message.
func (r *Router) Message(id string) (*models.AgentMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	msg, ok := r.messages[id]
	if !ok {
		return nil, fmt.Errorf("%w: message %s", models.ErrNotFound, id)
	}
	return msg.Clone(), nil
}

// Mailbox returns the agent's inbound queue, creating it if needed. The
// consumer owns every message it receives.
func (r *Router) Mailbox(agentID string) <-chan *models.AgentMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mailbox(agentID)
}

func (r *Router) mailbox(agentID string) chan *models.AgentMessage {
	box, ok := r.mailboxes[agentID]
	if !ok {
		box = make(chan *models.AgentMessage, r.mailboxSize)
		r.mailboxes[agentID] = box
	}
	return box
}

// CancelTask disarms pending escalation timers for every message tied to
// the task. Returns how many timers were stopped.
func (r *Router) CancelTask(taskID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	cancelled := 0
	for id, msg := range r.messages {
		if msg.Context.TaskID != taskID {
			continue
		}
		if _, ok := r.timers[id]; ok {
			r.disarm(id)
			cancelled++
		}
	}
	return cancelled
}

// Close stops every pending escalation timer and closes all mailboxes.
func (r *Router) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, t := range r.timers {
		t.Stop()
		delete(r.timers, id)
	}
	for id, box := range r.mailboxes {
		close(box)
		delete(r.mailboxes, id)
	}
}

func (r *Router) persist(ctx context.Context, msg *models.AgentMessage) {
	if r.archive == nil {
		return
	}
	if err := r.archive.SaveMessage(ctx, msg); err != nil {
		r.logf("saving message %s: %v", msg.ID, err)
	}
}

func (r *Router) publish(subject string, v any) {
	if r.bus == nil {
		return
	}
	if err := r.bus.PublishJSON(subject, v); err != nil {
		r.logf("publishing to %s: %v", subject, err)
	}
}
