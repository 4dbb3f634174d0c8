package models

import "time"

// ThreadMetrics is the derived view of one conversation thread.
type ThreadMetrics struct {
	// DurationMinutes spans first to last activity.
	DurationMinutes float64 `json:"durationMinutes"`
	// MessageCount counts messages, not responses.
	MessageCount int `json:"messageCount"`
	// ParticipationRate counts contributions per agent, messages and
	// responses both.
	ParticipationRate map[string]int `json:"participationRate"`
	// ConsensusRate is resolved decisions over all decisions in the
	// thread, in [0,1]. Zero when the thread has no decisions.
	ConsensusRate float64 `json:"consensusRate"`
}

// ConversationThread groups the messages, responses, and decisions of one
// logical discussion. Threads are created lazily on first reference and
// are archived, never deleted.
type ConversationThread struct {
	// ThreadID keys the thread.
	ThreadID string `json:"threadId"`
	// ChannelID is the channel the first message arrived on.
	ChannelID string `json:"channelId,omitempty"`
	// MessageIDs lists member messages in arrival order.
	MessageIDs []string `json:"messageIds"`
	// ResponseIDs lists member responses in arrival order.
	ResponseIDs []string `json:"responseIds,omitempty"`
	// DecisionIDs lists member decisions in arrival order.
	DecisionIDs []string `json:"decisionIds,omitempty"`
	// FirstActivity is the timestamp of the first recorded item.
	FirstActivity time.Time `json:"firstActivity"`
	// LastActivity is the timestamp of the most recent item.
	LastActivity time.Time `json:"lastActivity"`
	// Metrics is the derived view, recomputed on every append.
	Metrics ThreadMetrics `json:"metrics"`
	// Archived marks a closed thread.
	Archived bool `json:"archived,omitempty"`
}
