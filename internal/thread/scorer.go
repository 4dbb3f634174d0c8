package thread

import (
	"strings"

	"github.com/wesheets/roundtable/pkg/models"
)

// ResponseScores rates one response on a 1-10 scale.
type ResponseScores struct {
	// Quality is the overall rating.
	Quality float64
	// Relevance rates how on-topic the response is for its message.
	Relevance float64
	// Helpfulness rates how actionable the response is.
	Helpfulness float64
}

// ScoreResponse rates a response against the message it answers. It is a
// pure function of the pair: the same message and response always yield
// the same scores, so analytics can recompute them offline and tests can
// pin exact values. Confidence, reasoning, alternatives, next steps, and
// latency against the priority's expected response window all contribute.
func ScoreResponse(msg *models.AgentMessage, resp *models.AgentResponse) ResponseScores {
	hasReasoning := strings.TrimSpace(resp.Content.Reasoning) != ""
	timeliness := latencyFactor(msg, resp)

	quality := 5.0
	quality += (resp.Content.Confidence - 0.5) * 4
	if hasReasoning {
		quality += 1.5
	}
	quality += capped(float64(len(resp.Content.Alternatives))*0.5, 1.0)
	quality += capped(float64(len(resp.Content.NextSteps))*0.5, 1.0)
	quality += timeliness

	relevance := 5.0
	relevance += typeAffinity(msg.Content.MessageType, resp.ResponseType)
	relevance += (resp.Content.Confidence - 0.5) * 2
	if hasReasoning {
		relevance += 1.0
	}

	helpfulness := 5.0
	helpfulness += capped(float64(len(resp.Content.NextSteps)), 2.0)
	helpfulness += capped(float64(len(resp.Content.Alternatives))*0.75, 1.5)
	if hasReasoning {
		helpfulness += 1.0
	}
	helpfulness += (resp.Content.Confidence - 0.5) * 2
	if timeliness > 0 {
		helpfulness += 0.5
	}

	return ResponseScores{
		Quality:     clampScore(quality),
		Relevance:   clampScore(relevance),
		Helpfulness: clampScore(helpfulness),
	}
}

// latencyFactor rewards responses inside the expected window for the
// message's priority and penalizes responses slower than twice the
// window. The factor is in [-1, 1].
func latencyFactor(msg *models.AgentMessage, resp *models.AgentResponse) float64 {
	expected := msg.Content.Priority.ExpectedResponseMinutes()
	latency := resp.Metadata.LatencyMinutes
	if latency < 0 {
		latency = 0
	}
	ratio := latency / expected
	switch {
	case ratio <= 0.5:
		return 1.0
	case ratio <= 1.0:
		return 0.5
	case ratio <= 2.0:
		return 0.0
	default:
		return -1.0
	}
}

// typeAffinity scores how well the response type fits the message type.
// An answer to a question is on point; delegating a direct request away
// is not.
func typeAffinity(mt models.MessageType, rt models.ResponseType) float64 {
	switch mt {
	case models.MessageQuestion:
		switch rt {
		case models.ResponseAnswer:
			return 2.0
		case models.ResponseClarification:
			return 1.0
		case models.ResponseQuestion:
			return 0.5
		case models.ResponseDelegation:
			return -1.0
		}
	case models.MessageRequest:
		switch rt {
		case models.ResponseAnswer:
			return 1.5
		case models.ResponseAgreement:
			return 1.0
		case models.ResponseDelegation:
			return -1.0
		}
	case models.MessageDecision:
		switch rt {
		case models.ResponseAgreement, models.ResponseDisagreement:
			return 2.0
		case models.ResponseAnswer:
			return 1.0
		}
	default:
		if rt == models.ResponseAnswer {
			return 1.0
		}
	}
	return 0.0
}

func capped(v, max float64) float64 {
	if v > max {
		return max
	}
	return v
}

func clampScore(v float64) float64 {
	if v < 1.0 {
		return 1.0
	}
	if v > 10.0 {
		return 10.0
	}
	return v
}
