package models

import "time"

// MentionType describes how a recipient was addressed.
type MentionType string

const (
	MentionDirect MentionType = "direct"
	MentionCC     MentionType = "cc"
	MentionFYI    MentionType = "fyi"
	MentionUrgent MentionType = "urgent"
)

// ExpectedAction describes what the sender expects of a recipient.
type ExpectedAction string

const (
	ActionRespond     ExpectedAction = "respond"
	ActionAcknowledge ExpectedAction = "acknowledge"
	ActionCollaborate ExpectedAction = "collaborate"
	ActionReview      ExpectedAction = "review"
)

// MessageType classifies a message's purpose.
type MessageType string

const (
	MessageRequest    MessageType = "request"
	MessageResponse   MessageType = "response"
	MessageUpdate     MessageType = "update"
	MessageQuestion   MessageType = "question"
	MessageDecision   MessageType = "decision"
	MessageEscalation MessageType = "escalation"
)

// Priority orders messages and selects escalation behavior.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityNormal   Priority = "normal"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Valid returns true if the priority is a known value.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityCritical:
		return true
	default:
		return false
	}
}

// EscalationTimeout returns the no-response window that arms an escalation
// timer, and whether this priority escalates at all. The windows are logical
// minutes measured on the router's clock.
func (p Priority) EscalationTimeout() (time.Duration, bool) {
	switch p {
	case PriorityCritical:
		return 5 * time.Minute, true
	case PriorityHigh:
		return 15 * time.Minute, true
	default:
		return 0, false
	}
}

// ExpectedResponseMinutes returns the response window quality scoring
// measures latency against.
func (p Priority) ExpectedResponseMinutes() float64 {
	switch p {
	case PriorityCritical:
		return 5
	case PriorityHigh:
		return 15
	case PriorityLow:
		return 240
	default:
		return 60
	}
}

// Recipient is one addressee of a message.
type Recipient struct {
	// AgentID is the addressee.
	AgentID string `json:"agentId"`
	// MentionType is how the addressee was addressed.
	MentionType MentionType `json:"mentionType"`
	// ExpectedAction is what the sender expects of the addressee.
	ExpectedAction ExpectedAction `json:"expectedAction"`
}

// Attachment references content carried with a message.
type Attachment struct {
	Name      string `json:"name"`
	MediaType string `json:"mediaType,omitempty"`
	URI       string `json:"uri,omitempty"`
}

// MessageContent is the payload of a message.
type MessageContent struct {
	MessageType MessageType  `json:"messageType"`
	Subject     string       `json:"subject"`
	Body        string       `json:"body"`
	Priority    Priority     `json:"priority"`
	Tags        []string     `json:"tags,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// MessageContext ties a message to orchestration state.
type MessageContext struct {
	// TaskID is the task the message concerns, if any.
	TaskID string `json:"taskId,omitempty"`
	// StepID is the step the message concerns, if any.
	StepID string `json:"stepId,omitempty"`
	// ConversationThread keys the thread this message belongs to.
	ConversationThread string `json:"conversationThread"`
	// DecisionPoint marks messages that open a consensus decision.
	DecisionPoint bool `json:"decisionPoint,omitempty"`
}

// MessageSemantics carries the sender's declared communicative stance.
// All ratio fields are in [0,1].
type MessageSemantics struct {
	Intent            string  `json:"intent,omitempty"`
	Emotion           string  `json:"emotion,omitempty"`
	Confidence        float64 `json:"confidence"`
	Expertise         float64 `json:"expertise"`
	CollaborationTone float64 `json:"collaborationTone"`
}

// DeliveryStatus is the per-recipient delivery state of a message.
type DeliveryStatus string

const (
	DeliverySent      DeliveryStatus = "sent"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryRead      DeliveryStatus = "read"
	DeliveryResponded DeliveryStatus = "responded"
	DeliveryFailed    DeliveryStatus = "failed"
)

// EscalationState tracks the escalation timer armed for a message.
type EscalationState struct {
	// TimeoutMinutes is the no-response window in logical minutes.
	TimeoutMinutes int `json:"timeoutMinutes"`
	// Deadline is the logical instant the timer fires.
	Deadline time.Time `json:"deadline"`
	// Path is the ordered chain of escalation targets for the recipient.
	Path []string `json:"path"`
	// Fired marks whether the escalation has fired. It fires at most once.
	Fired bool `json:"fired"`
	// FiredAt is when it fired, if it did.
	FiredAt *time.Time `json:"firedAt,omitempty"`
}

// DeliveryInfo is the mutable delivery envelope of a message. It is the
// only part of a message the router updates after creation.
type DeliveryInfo struct {
	// Timestamp is when the router accepted the message.
	Timestamp time.Time `json:"timestamp"`
	// PerRecipientStatus maps recipient agent id to delivery state.
	PerRecipientStatus map[string]DeliveryStatus `json:"perRecipientStatus"`
	// ReadReceipts maps recipient agent id to read time.
	ReadReceipts map[string]time.Time `json:"readReceipts,omitempty"`
	// FailureReasons maps recipient agent id to a delivery failure reason.
	FailureReasons map[string]string `json:"failureReasons,omitempty"`
	// Escalation is the armed escalation timer, if any.
	Escalation *EscalationState `json:"escalation,omitempty"`
}

// AgentMessage is a structured message between agents. Once the router
// accepts a message it owns it; everything outside Delivery is immutable.
type AgentMessage struct {
	// ID is the unique identifier for this message.
	ID string `json:"id"`
	// ChannelID names the channel the message was sent on.
	ChannelID string `json:"channelId"`
	// FromAgent is the sending agent.
	FromAgent string `json:"fromAgent"`
	// ToAgents lists the recipients in address order.
	ToAgents []Recipient `json:"toAgents"`
	// Content is the message payload.
	Content MessageContent `json:"content"`
	// Context ties the message to orchestration state.
	Context MessageContext `json:"context"`
	// Semantics is the sender's declared stance.
	Semantics MessageSemantics `json:"semantics"`
	// Delivery is the router-owned delivery envelope.
	Delivery DeliveryInfo `json:"delivery"`
}

// Recipient returns the recipient entry for the given agent id, or nil.
func (m *AgentMessage) Recipient(agentID string) *Recipient {
	for i := range m.ToAgents {
		if m.ToAgents[i].AgentID == agentID {
			return &m.ToAgents[i]
		}
	}
	return nil
}

// Mention reasons inferred from the text surrounding a mention.
const (
	MentionReasonHelp        = "help_requested"
	MentionReasonReview      = "review_requested"
	MentionReasonOpinion     = "opinion_requested"
	MentionReasonInformation = "information"
)

// Mention is one parsed @-reference from a message body.
type Mention struct {
	// AgentID is the resolved agent, empty if the token resolved to no one.
	AgentID string `json:"agentId"`
	// Token is the raw text between @ and the end of the mention.
	Token string `json:"token"`
	// Reason is inferred from the surrounding text.
	Reason string `json:"reason"`
}
