package orchestrator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/wesheets/roundtable/internal/consensus"
	"github.com/wesheets/roundtable/internal/registry"
	"github.com/wesheets/roundtable/internal/router"
	"github.com/wesheets/roundtable/internal/scheduler"
	"github.com/wesheets/roundtable/internal/state"
	"github.com/wesheets/roundtable/pkg/models"
)

const testAgents = `agents:
  - agentId: lead-1
    name: Lead
    role: lead
    specializations: [analytical-reasoning, synthesis, coordination]
  - agentId: tech-1
    name: Tech Analyst
    role: specialist
    specializations: [technology, infrastructure]
  - agentId: fin-1
    name: Budget Analyst
    role: specialist
    specializations: [finance, budget-analysis]
  - agentId: qa-1
    name: Reviewer
    role: reviewer
    specializations: [validation]
`

// multiDomainRequest decomposes into five steps: analysis, technology and
// finance delegations, synthesis, and validation.
const multiDomainRequest = "Evaluate the technology platform budget and recommend a path forward"

func writeAgents(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "agents.yaml")
	if err := os.WriteFile(path, []byte(testAgents), 0o644); err != nil {
		t.Fatalf("write agents: %v", err)
	}
	return path
}

func newTestOrchestratorAt(t *testing.T, dir string, opts ...Option) (*Orchestrator, *clock.Mock) {
	t.Helper()
	db, err := state.Open(filepath.Join(dir, "state.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	reg, err := registry.New(writeAgents(t, dir))
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	t.Cleanup(func() { reg.Close() })

	mock := clock.NewMock()
	mock.Set(time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC))
	orc, err := New(Config{Store: db, Registry: reg}, append([]Option{WithClock(mock)}, opts...)...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { orc.Close() })
	return orc, mock
}

func newTestOrchestrator(t *testing.T, opts ...Option) (*Orchestrator, *clock.Mock) {
	t.Helper()
	return newTestOrchestratorAt(t, t.TempDir(), opts...)
}

func TestNew_RequiresStoreAndRegistry(t *testing.T) {
	if _, err := New(Config{}); !errors.Is(err, models.ErrInvalidRequest) {
		t.Errorf("empty config: err = %v, want ErrInvalidRequest", err)
	}
}

func TestSubmit_ComposesTeamAndPersists(t *testing.T) {
	orc, _ := newTestOrchestrator(t)
	ctx := context.Background()

	task, err := orc.Submit(ctx, multiDomainRequest, models.Constraints{})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if len(task.Steps) != 5 {
		t.Fatalf("steps = %d, want 5", len(task.Steps))
	}
	if task.Status != models.TaskStatusPlanning {
		t.Errorf("status = %s, want planning", task.Status)
	}
	if len(task.CriticalPath) != 4 {
		t.Errorf("critical path = %v, want 4 entries", task.CriticalPath)
	}
	if len(task.ParallelGroups) != 1 || len(task.ParallelGroups[0]) != 2 {
		t.Errorf("parallel groups = %v, want one group of two", task.ParallelGroups)
	}

	if task.Team == nil {
		t.Fatal("no team composed")
	}
	if task.Team.LeadAgent != "lead-1" {
		t.Errorf("lead = %s, want lead-1", task.Team.LeadAgent)
	}
	if len(task.Team.BlockedRequirements) != 0 {
		t.Errorf("blocked requirements = %v, want none", task.Team.BlockedRequirements)
	}
	assignments := make(map[models.StepKind]string)
	for _, step := range task.Steps {
		if len(step.AssignedAgents) == 0 {
			t.Fatalf("step %s has no assigned agent", step.ID)
		}
		if step.Kind == models.StepKindDelegation {
			continue
		}
		assignments[step.Kind] = step.AssignedAgents[0]
	}
	if assignments[models.StepKindAnalysis] != "lead-1" {
		t.Errorf("analysis assigned to %s, want lead-1", assignments[models.StepKindAnalysis])
	}
	if assignments[models.StepKindValidation] != "qa-1" {
		t.Errorf("validation assigned to %s, want qa-1", assignments[models.StepKindValidation])
	}

	stored, err := orc.Store().LoadTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("LoadTask: %v", err)
	}
	if stored.Status != models.TaskStatusPlanning {
		t.Errorf("stored status = %s, want planning", stored.Status)
	}
	if stored.Team == nil || stored.Team.LeadAgent != "lead-1" {
		t.Error("stored task lost its team")
	}
}

func TestSubmit_UncoverableCapabilityBlocksAndRecruits(t *testing.T) {
	orc, _ := newTestOrchestrator(t)

	task, err := orc.Submit(context.Background(), "Review the contract compliance obligations", models.Constraints{})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	team := task.Team
	if team == nil {
		t.Fatal("no team composed")
	}
	if len(team.BlockedRequirements) != 1 || team.BlockedRequirements[0] != "legal" {
		t.Errorf("blocked = %v, want [legal]", team.BlockedRequirements)
	}
	if !team.DynamicRecruitment {
		t.Error("dynamic recruitment should switch on")
	}
	// The uncovered step still gets an owner: the lead picks it up.
	for _, step := range task.Steps {
		if step.Kind == models.StepKindDelegation && step.AssignedAgents[0] != "lead-1" {
			t.Errorf("legal step assigned to %s, want lead-1", step.AssignedAgents[0])
		}
	}
}

func TestSendMessage_FoldsIntoThread(t *testing.T) {
	orc, _ := newTestOrchestrator(t)
	ctx := context.Background()

	msg, err := orc.SendMessage(ctx, router.SendRequest{
		FromAgent: "tech-1",
		ChannelID: "engineering",
		To:        []models.Recipient{{AgentID: "lead-1"}},
		Content: models.MessageContent{
			MessageType: models.MessageQuestion,
			Subject:     "Capacity for the migration?",
			Body:        "Can we fit the migration into this quarter?",
		},
		Context: models.MessageContext{ConversationThread: "th-chat"},
	})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	th, err := orc.Thread("th-chat")
	if err != nil {
		t.Fatalf("Thread: %v", err)
	}
	if th.Metrics.MessageCount != 1 || th.MessageIDs[0] != msg.ID {
		t.Errorf("thread = %+v, want the sent message", th)
	}

	stored, err := orc.Store().MessagesByThread(ctx, "th-chat")
	if err != nil {
		t.Fatalf("MessagesByThread: %v", err)
	}
	if len(stored) != 1 {
		t.Errorf("stored messages = %d, want 1", len(stored))
	}
}

func TestRecordResponse_ScoresAndPersists(t *testing.T) {
	orc, _ := newTestOrchestrator(t)
	ctx := context.Background()

	msg, err := orc.SendMessage(ctx, router.SendRequest{
		FromAgent: "tech-1",
		To:        []models.Recipient{{AgentID: "lead-1"}},
		Content: models.MessageContent{
			MessageType: models.MessageQuestion,
			Subject:     "Rollout order",
			Body:        "Which service moves first?",
		},
		Context: models.MessageContext{ConversationThread: "th-resp"},
	})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	resp := &models.AgentResponse{
		OriginalMessageID: msg.ID,
		FromAgent:         "lead-1",
		ResponseType:      models.ResponseAnswer,
		Content: models.ResponseContent{
			Text:       "Start with the billing service.",
			Confidence: 0.8,
			Reasoning:  "Smallest dependency surface.",
		},
	}
	if err := orc.RecordResponse(ctx, resp); err != nil {
		t.Fatalf("RecordResponse: %v", err)
	}
	if resp.Metadata.QualityScore <= 0 || resp.Metadata.RelevanceScore <= 0 {
		t.Fatalf("response was not scored: %+v", resp.Metadata)
	}

	th, err := orc.Thread("th-resp")
	if err != nil {
		t.Fatalf("Thread: %v", err)
	}
	if len(th.ResponseIDs) != 1 {
		t.Errorf("response ids = %v, want one", th.ResponseIDs)
	}
	if th.Metrics.ParticipationRate["lead-1"] != 1 {
		t.Errorf("participation = %v, want lead-1 counted", th.Metrics.ParticipationRate)
	}

	stored, err := orc.Store().ResponsesByMessage(ctx, msg.ID)
	if err != nil {
		t.Fatalf("ResponsesByMessage: %v", err)
	}
	if len(stored) != 1 {
		t.Fatalf("stored responses = %d, want 1", len(stored))
	}
	if stored[0].Metadata.QualityScore != resp.Metadata.QualityScore {
		t.Errorf("persisted quality = %v, want %v", stored[0].Metadata.QualityScore, resp.Metadata.QualityScore)
	}
}

func TestOpenDecision_ResolvesIntoThread(t *testing.T) {
	orc, _ := newTestOrchestrator(t)
	ctx := context.Background()

	d, err := orc.OpenDecision(ctx, consensus.OpenRequest{
		FromAgent:    "lead-1",
		Question:     "Adopt the phased rollout?",
		Options:      []string{"yes", "no"},
		Participants: []string{"lead-1", "tech-1"},
		Threshold:    0.5,
		ChannelID:    "engineering",
		ThreadID:     "th-dec",
	})
	if err != nil {
		t.Fatalf("OpenDecision: %v", err)
	}

	th, err := orc.Thread("th-dec")
	if err != nil {
		t.Fatalf("Thread: %v", err)
	}
	if len(th.DecisionIDs) != 1 || th.Metrics.ConsensusRate != 0 {
		t.Errorf("open decision: ids = %v, rate = %v", th.DecisionIDs, th.Metrics.ConsensusRate)
	}

	// One vote out of two participants meets the 0.5 threshold.
	voted, err := orc.CastVote(ctx, d.ID, "lead-1", "yes")
	if err != nil {
		t.Fatalf("CastVote: %v", err)
	}
	if voted.Status != models.DecisionResolved || voted.Outcome != models.OutcomeConsensus {
		t.Fatalf("decision = %s/%s, want resolved consensus", voted.Status, voted.Outcome)
	}

	th, err = orc.Thread("th-dec")
	if err != nil {
		t.Fatalf("Thread after resolve: %v", err)
	}
	if th.Metrics.ConsensusRate != 1.0 {
		t.Errorf("consensus rate = %v, want 1.0", th.Metrics.ConsensusRate)
	}
}

func TestCancelTask_TearsDownDecisionsAndFreezesTask(t *testing.T) {
	orc, _ := newTestOrchestrator(t)
	ctx := context.Background()

	task, err := orc.Submit(ctx, multiDomainRequest, models.Constraints{})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	d, err := orc.OpenDecision(ctx, consensus.OpenRequest{
		FromAgent:    "lead-1",
		Question:     "Scope the budget review down?",
		Options:      []string{"yes", "no"},
		Participants: []string{"lead-1", "fin-1"},
		Threshold:    0.6,
		ThreadID:     "th-cancel",
		TaskID:       task.ID,
	})
	if err != nil {
		t.Fatalf("OpenDecision: %v", err)
	}

	if err := orc.CancelTask(ctx, task.ID, "lead-1", "requirements changed"); err != nil {
		t.Fatalf("CancelTask: %v", err)
	}

	got, err := orc.Task(ctx, task.ID)
	if err != nil {
		t.Fatalf("Task: %v", err)
	}
	if got.Status != models.TaskStatusFailed {
		t.Errorf("status = %s, want failed", got.Status)
	}
	if reason, ok := scheduler.CancelReason(got); !ok || reason != "requirements changed" {
		t.Errorf("cancel reason = %q/%v", reason, ok)
	}

	cancelled, err := orc.Decision(d.ID)
	if err != nil {
		t.Fatalf("Decision: %v", err)
	}
	if cancelled.Status != models.DecisionCancelled {
		t.Errorf("decision status = %s, want cancelled", cancelled.Status)
	}

	th, err := orc.Thread("th-cancel")
	if err != nil {
		t.Fatalf("Thread: %v", err)
	}
	if th.Metrics.ConsensusRate != 0 {
		t.Errorf("consensus rate = %v, want 0 after cancellation", th.Metrics.ConsensusRate)
	}

	if err := orc.Run(ctx, task.ID); !errors.Is(err, models.ErrInvalidRequest) {
		t.Errorf("Run after cancel: err = %v, want ErrInvalidRequest", err)
	}
}

func TestResume_ReattachesInterruptedTasks(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	first, _ := newTestOrchestratorAt(t, dir)
	task, err := first.Submit(ctx, multiDomainRequest, models.Constraints{})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, err := first.SendMessage(ctx, router.SendRequest{
		FromAgent: "lead-1",
		To:        []models.Recipient{{AgentID: "tech-1"}},
		Content:   models.MessageContent{Subject: "Kickoff", Body: "Starting the review."},
		Context:   models.MessageContext{TaskID: task.ID, ConversationThread: "th-resume"},
	}); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	decision, err := first.OpenDecision(ctx, consensus.OpenRequest{
		FromAgent:    "lead-1",
		Question:     "Hold the rollout until the review lands?",
		Options:      []string{"hold", "proceed"},
		Participants: []string{"lead-1", "tech-1"},
		Threshold:    0.5,
		ThreadID:     "th-resume",
		TaskID:       task.ID,
	})
	if err != nil {
		t.Fatalf("OpenDecision: %v", err)
	}
	// Put the analysis step in flight, then stop the process mid-task.
	analysisID := task.Steps[0].ID
	if err := first.scheduler.StartStep(ctx, task.ID, analysisID, "lead-1"); err != nil {
		t.Fatalf("StartStep: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	second, _ := newTestOrchestratorAt(t, dir)
	resumed, err := second.Resume(ctx)
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if len(resumed) != 1 || resumed[0] != task.ID {
		t.Fatalf("resumed = %v, want [%s]", resumed, task.ID)
	}

	got, err := second.Task(ctx, task.ID)
	if err != nil {
		t.Fatalf("Task: %v", err)
	}
	if step := got.Step(analysisID); step == nil || step.Status != models.StepStatusPending {
		t.Errorf("interrupted step should reset to pending, got %+v", step)
	}

	if th, err := second.Thread("th-resume"); err != nil || th.Metrics.MessageCount != 1 || len(th.DecisionIDs) != 1 {
		t.Errorf("restored thread = %+v, err = %v", th, err)
	}
	restored, err := second.Decision(decision.ID)
	if err != nil {
		t.Fatalf("Decision after resume: %v", err)
	}
	if restored.Status != models.DecisionOpen {
		t.Errorf("restored decision status = %s, want open", restored.Status)
	}
	if voted, err := second.CastVote(ctx, decision.ID, "tech-1", "hold"); err != nil || voted.Status != models.DecisionResolved {
		t.Errorf("vote after resume = %+v, err = %v", voted, err)
	}

	if err := second.Run(ctx, task.ID); err != nil {
		t.Fatalf("Run after resume: %v", err)
	}
	final, err := second.Task(ctx, task.ID)
	if err != nil {
		t.Fatalf("Task after run: %v", err)
	}
	if final.Status != models.TaskStatusCompleted {
		t.Errorf("status = %s, want completed", final.Status)
	}
}

func TestLoad_AttachesStoredTaskForExecution(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	first, _ := newTestOrchestratorAt(t, dir)
	task, err := first.Submit(ctx, multiDomainRequest, models.Constraints{})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	second, _ := newTestOrchestratorAt(t, dir)
	if _, err := second.Progress(task.ID); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("fresh process should not have the task attached, err = %v", err)
	}
	loaded, err := second.Load(ctx, task.ID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.ID != task.ID || len(loaded.Steps) != len(task.Steps) {
		t.Errorf("loaded task = %s with %d steps, want %s with %d", loaded.ID, len(loaded.Steps), task.ID, len(task.Steps))
	}
	// A second Load finds the task already attached.
	if _, err := second.Load(ctx, task.ID); err != nil {
		t.Errorf("repeat Load: %v", err)
	}

	if err := second.Run(ctx, task.ID); err != nil {
		t.Fatalf("Run after Load: %v", err)
	}
	final, err := second.Task(ctx, task.ID)
	if err != nil {
		t.Fatalf("Task: %v", err)
	}
	if final.Status != models.TaskStatusCompleted {
		t.Errorf("status = %s, want completed", final.Status)
	}
	if err := second.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	third, _ := newTestOrchestratorAt(t, dir)
	if _, err := third.Load(ctx, task.ID); !errors.Is(err, models.ErrInvalidRequest) {
		t.Errorf("loading a completed task: err = %v, want ErrInvalidRequest", err)
	}
	if _, err := third.Load(ctx, "task-missing"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("loading an unknown task: err = %v, want ErrNotFound", err)
	}
}

func TestClose_IsIdempotentAndEndsEventStream(t *testing.T) {
	orc, _ := newTestOrchestrator(t)
	if err := orc.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := orc.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if _, ok := <-orc.Events(); ok {
		t.Error("event channel should be closed")
	}
}
