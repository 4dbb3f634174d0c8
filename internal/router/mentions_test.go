package router

import (
	"strings"
	"testing"

	"github.com/wesheets/roundtable/pkg/models"
)

type fakeDirectory struct {
	profiles map[string]models.AgentProfile
}

func (d *fakeDirectory) Known(agentID string) bool {
	_, ok := d.profiles[agentID]
	return ok
}

func (d *fakeDirectory) Profile(agentID string) models.AgentProfile {
	if p, ok := d.profiles[agentID]; ok {
		return p
	}
	return models.DefaultProfile(agentID)
}

func (d *fakeDirectory) Profiles() []models.AgentProfile {
	out := make([]models.AgentProfile, 0, len(d.profiles))
	for _, p := range d.profiles {
		out = append(out, p)
	}
	return out
}

func newFakeDirectory(profiles ...models.AgentProfile) *fakeDirectory {
	d := &fakeDirectory{profiles: make(map[string]models.AgentProfile)}
	for _, p := range profiles {
		d.profiles[p.AgentID] = p
	}
	return d
}

func TestParseMentions_BareIdentifier(t *testing.T) {
	dir := newFakeDirectory(models.AgentProfile{AgentID: "agent-a"})
	mentions := ParseMentions("can you review the analysis @agent-a", "sender", nil, dir)
	if len(mentions) != 1 {
		t.Fatalf("expected 1 mention, got %d", len(mentions))
	}
	m := mentions[0]
	if m.AgentID != "agent-a" || m.Token != "agent-a" {
		t.Errorf("mention = %+v, want agent-a", m)
	}
	if m.Reason != models.MentionReasonReview {
		t.Errorf("reason = %q, want %q", m.Reason, models.MentionReasonReview)
	}
}

func TestParseMentions_UnregisteredIdentifierKeepsID(t *testing.T) {
	mentions := ParseMentions("@ghost-agent take a look", "sender", nil, newFakeDirectory())
	if len(mentions) != 1 {
		t.Fatalf("expected 1 mention, got %d", len(mentions))
	}
	if mentions[0].AgentID != "ghost-agent" {
		t.Errorf("agent id = %q, want ghost-agent (delivery decides what unknown means)", mentions[0].AgentID)
	}
}

func TestParseMentions_QuotedName(t *testing.T) {
	dir := newFakeDirectory(models.AgentProfile{AgentID: "agent-d", Name: "Data Lead"})
	mentions := ParseMentions(`@"Data Lead" what is your opinion on the schema`, "sender", nil, dir)
	if len(mentions) != 1 {
		t.Fatalf("expected 1 mention, got %d", len(mentions))
	}
	m := mentions[0]
	if m.AgentID != "agent-d" {
		t.Errorf("agent id = %q, want agent-d", m.AgentID)
	}
	if m.Token != "Data Lead" {
		t.Errorf("token = %q, want Data Lead", m.Token)
	}
	if m.Reason != models.MentionReasonOpinion {
		t.Errorf("reason = %q, want %q", m.Reason, models.MentionReasonOpinion)
	}
}

func TestParseMentions_QuotedNameWithoutMatchResolvesToNobody(t *testing.T) {
	dir := newFakeDirectory(models.AgentProfile{AgentID: "agent-d", Name: "Data Lead"})
	mentions := ParseMentions(`@"Nobody Here" see above`, "sender", nil, dir)
	if len(mentions) != 1 {
		t.Fatalf("expected 1 mention, got %d", len(mentions))
	}
	if mentions[0].AgentID != "" {
		t.Errorf("agent id = %q, want empty for an unresolvable display name", mentions[0].AgentID)
	}
}

func TestParseMentions_AllExpandsToSpecialistsExceptSender(t *testing.T) {
	team := &models.TeamComposition{
		LeadAgent: "agent-a",
		Members: []models.TeamMember{
			{AgentID: "agent-a", Role: models.RoleLead},
			{AgentID: "agent-b", Role: models.RoleSpecialist},
			{AgentID: "agent-c", Role: models.RoleSpecialist},
		},
	}
	mentions := ParseMentions("@all I need help with the rollout", "agent-b", team, newFakeDirectory())
	if len(mentions) != 1 {
		t.Fatalf("expected 1 mention after excluding the sender, got %d", len(mentions))
	}
	m := mentions[0]
	if m.AgentID != "agent-c" || m.Token != "all" {
		t.Errorf("mention = %+v, want agent-c expanded from all", m)
	}
	if m.Reason != models.MentionReasonHelp {
		t.Errorf("reason = %q, want %q", m.Reason, models.MentionReasonHelp)
	}
}

func TestParseMentions_AllWithoutTeamExpandsToNobody(t *testing.T) {
	mentions := ParseMentions("@all sync when you can", "sender", nil, newFakeDirectory())
	if len(mentions) != 0 {
		t.Fatalf("expected no mentions without a team, got %d", len(mentions))
	}
}

func TestParseMentions_ReasonDefaultsToInformation(t *testing.T) {
	mentions := ParseMentions("fyi @agent-a the dashboard is updated", "sender", nil, newFakeDirectory())
	if len(mentions) != 1 {
		t.Fatalf("expected 1 mention, got %d", len(mentions))
	}
	if mentions[0].Reason != models.MentionReasonInformation {
		t.Errorf("reason = %q, want %q", mentions[0].Reason, models.MentionReasonInformation)
	}
}

func TestParseMentions_ReasonUsesNearbyTextOnly(t *testing.T) {
	filler := strings.Repeat("the nightly numbers look flat today. ", 4)
	body := "please help me with the cluster issue. " + filler + "@agent-a the report is attached"
	mentions := ParseMentions(body, "sender", nil, newFakeDirectory())
	if len(mentions) != 1 {
		t.Fatalf("expected 1 mention, got %d", len(mentions))
	}
	if mentions[0].Reason != models.MentionReasonInformation {
		t.Errorf("reason = %q, want %q (keyword outside the window)", mentions[0].Reason, models.MentionReasonInformation)
	}
}

func TestParseMentions_MultipleInOneBody(t *testing.T) {
	dir := newFakeDirectory(
		models.AgentProfile{AgentID: "agent-a"},
		models.AgentProfile{AgentID: "agent-b"},
	)
	body := "@agent-a please start. " + strings.Repeat("the export pipeline is unchanged. ", 4) + "@agent-b review the output when it lands."
	mentions := ParseMentions(body, "sender", nil, dir)
	if len(mentions) != 2 {
		t.Fatalf("expected 2 mentions, got %d", len(mentions))
	}
	if mentions[0].AgentID != "agent-a" || mentions[1].AgentID != "agent-b" {
		t.Errorf("mentions out of order: %+v", mentions)
	}
	if mentions[0].Reason != models.MentionReasonInformation {
		t.Errorf("first reason = %q, want %q", mentions[0].Reason, models.MentionReasonInformation)
	}
	if mentions[1].Reason != models.MentionReasonReview {
		t.Errorf("second reason = %q, want %q", mentions[1].Reason, models.MentionReasonReview)
	}
}
