package models

import "time"

// ResponseType classifies how a response relates to its message.
type ResponseType string

const (
	ResponseAnswer        ResponseType = "answer"
	ResponseQuestion      ResponseType = "question"
	ResponseClarification ResponseType = "clarification"
	ResponseAgreement     ResponseType = "agreement"
	ResponseDisagreement  ResponseType = "disagreement"
	ResponseDelegation    ResponseType = "delegation"
)

// ResponseContent is the payload of a response.
type ResponseContent struct {
	// Text is the response body.
	Text string `json:"text"`
	// Confidence is the responder's self-assessed confidence in [0,1].
	Confidence float64 `json:"confidence"`
	// Reasoning explains the response, if given.
	Reasoning string `json:"reasoning,omitempty"`
	// Alternatives lists other options the responder considered.
	Alternatives []string `json:"alternatives,omitempty"`
	// NextSteps lists follow-up work the responder suggests.
	NextSteps []string `json:"nextSteps,omitempty"`
}

// ResponseMetadata carries derived measurements about a response.
// Scores are on a 1-10 scale.
type ResponseMetadata struct {
	// LatencyMinutes is how long after the message the response arrived,
	// in logical minutes.
	LatencyMinutes float64 `json:"responseLatency"`
	// QualityScore is the aggregator's quality rating.
	QualityScore float64 `json:"qualityScore"`
	// RelevanceScore rates how on-topic the response is.
	RelevanceScore float64 `json:"relevanceScore"`
	// Helpfulness rates how actionable the response is.
	Helpfulness float64 `json:"helpfulness"`
}

// AgentResponse is an agent's reply to a routed message. It back-references
// the original message by id; it does not own it.
type AgentResponse struct {
	// ID is the unique identifier for this response.
	ID string `json:"id"`
	// OriginalMessageID is the message being answered.
	OriginalMessageID string `json:"originalMessageId"`
	// FromAgent is the responding agent.
	FromAgent string `json:"fromAgent"`
	// ResponseType classifies the reply.
	ResponseType ResponseType `json:"responseType"`
	// Content is the response payload.
	Content ResponseContent `json:"content"`
	// Metadata holds derived measurements, filled by the aggregator.
	Metadata ResponseMetadata `json:"metadata"`
	// CreatedAt is when the response was recorded.
	CreatedAt time.Time `json:"createdAt"`
}
