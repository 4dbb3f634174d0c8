package router

import (
	"regexp"
	"strings"

	"github.com/wesheets/roundtable/pkg/models"
)

// mentionPattern matches the two mention forms: @identifier and
// @"quoted display name".
var mentionPattern = regexp.MustCompile(`@(?:"([^"]+)"|([A-Za-z0-9][A-Za-z0-9_-]*))`)

// reasonWindow is how many characters on each side of a mention are
// searched for intent keywords.
const reasonWindow = 80

// ParseMentions extracts @-references from free text. Bare identifiers
// address agents directly, whether or not they are registered; delivery
// decides what an unknown id means. Quoted tokens are resolved against
// profile display names and yield an empty AgentID when nothing matches.
// The literal token "all" expands to every team specialist except the
// sender. Each mention carries a reason inferred from the surrounding
// text.
func ParseMentions(body, fromAgent string, team *models.TeamComposition, dir Directory) []models.Mention {
	matches := mentionPattern.FindAllStringSubmatchIndex(body, -1)
	if len(matches) == 0 {
		return nil
	}
	mentions := make([]models.Mention, 0, len(matches))
	for _, m := range matches {
		reason := inferReason(body, m[0], m[1])
		if m[4] >= 0 {
			token := body[m[4]:m[5]]
			if token == "all" {
				if team == nil {
					continue
				}
				for _, id := range team.Specialists() {
					if id == fromAgent {
						continue
					}
					mentions = append(mentions, models.Mention{AgentID: id, Token: token, Reason: reason})
				}
				continue
			}
			mentions = append(mentions, models.Mention{AgentID: token, Token: token, Reason: reason})
			continue
		}
		name := body[m[2]:m[3]]
		mentions = append(mentions, models.Mention{AgentID: resolveName(name, dir), Token: name, Reason: reason})
	}
	return mentions
}

// resolveName finds the registered agent whose display name matches the
// quoted token, ignoring case. Returns empty when no profile matches.
func resolveName(name string, dir Directory) string {
	if dir == nil {
		return ""
	}
	for _, p := range dir.Profiles() {
		if p.Name != "" && strings.EqualFold(p.Name, name) {
			return p.AgentID
		}
	}
	return ""
}

// inferReason scans the text around a mention for intent keywords. The
// first keyword found wins, in the order help, review, opinion.
func inferReason(body string, start, end int) string {
	lo := start - reasonWindow
	if lo < 0 {
		lo = 0
	}
	hi := end + reasonWindow
	if hi > len(body) {
		hi = len(body)
	}
	window := strings.ToLower(body[lo:hi])
	switch {
	case strings.Contains(window, "help"):
		return models.MentionReasonHelp
	case strings.Contains(window, "review"):
		return models.MentionReasonReview
	case strings.Contains(window, "opinion"):
		return models.MentionReasonOpinion
	default:
		return models.MentionReasonInformation
	}
}

// actionForReason maps an inferred mention reason to the action the sender
// expects of the mentioned agent.
func actionForReason(reason string) models.ExpectedAction {
	switch reason {
	case models.MentionReasonHelp:
		return models.ActionCollaborate
	case models.MentionReasonReview:
		return models.ActionReview
	case models.MentionReasonOpinion:
		return models.ActionRespond
	default:
		return models.ActionAcknowledge
	}
}
