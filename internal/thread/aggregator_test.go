package thread

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/wesheets/roundtable/pkg/models"
)

var threadEpoch = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

func threadMessage(id, from, threadID string, at time.Time) *models.AgentMessage {
	return &models.AgentMessage{
		ID:        id,
		FromAgent: from,
		ChannelID: "engineering",
		Content: models.MessageContent{
			MessageType: models.MessageQuestion,
			Subject:     "rollout plan",
			Body:        "are we ready to ship?",
			Priority:    models.PriorityNormal,
		},
		Context:  models.MessageContext{ConversationThread: threadID},
		Delivery: models.DeliveryInfo{Timestamp: at},
	}
}

func threadResponse(id, from string, at time.Time, latency float64) *models.AgentResponse {
	return &models.AgentResponse{
		ID:           id,
		FromAgent:    from,
		ResponseType: models.ResponseAnswer,
		Content: models.ResponseContent{
			Text:       "yes, the canary is clean",
			Confidence: 0.8,
		},
		Metadata:  models.ResponseMetadata{LatencyMinutes: latency},
		CreatedAt: at,
	}
}

type fakeThreadArchive struct {
	saves int
	last  *models.ConversationThread
}

func (f *fakeThreadArchive) SaveThread(_ context.Context, th *models.ConversationThread) error {
	f.saves++
	f.last = th.Clone()
	return nil
}

type fakeProfileDirectory struct {
	profiles map[string]models.AgentProfile
}

func (f *fakeProfileDirectory) Profile(agentID string) models.AgentProfile {
	if p, ok := f.profiles[agentID]; ok {
		return p
	}
	return models.DefaultProfile(agentID)
}

func TestRecordMessage_CreatesThreadLazily(t *testing.T) {
	a := NewAggregator()
	archive := &fakeThreadArchive{}
	a.SetArchive(archive)

	th, err := a.RecordMessage(context.Background(), threadMessage("m-1", "agent-a", "thread-1", threadEpoch))
	if err != nil {
		t.Fatalf("RecordMessage: %v", err)
	}
	if th.ThreadID != "thread-1" {
		t.Errorf("ThreadID = %q, want thread-1", th.ThreadID)
	}
	if th.ChannelID != "engineering" {
		t.Errorf("ChannelID = %q, want engineering", th.ChannelID)
	}
	if len(th.MessageIDs) != 1 || th.MessageIDs[0] != "m-1" {
		t.Errorf("MessageIDs = %v, want [m-1]", th.MessageIDs)
	}
	if th.Metrics.MessageCount != 1 {
		t.Errorf("MessageCount = %d, want 1", th.Metrics.MessageCount)
	}
	if th.Metrics.ParticipationRate["agent-a"] != 1 {
		t.Errorf("participation for agent-a = %d, want 1", th.Metrics.ParticipationRate["agent-a"])
	}
	if !th.FirstActivity.Equal(threadEpoch) || !th.LastActivity.Equal(threadEpoch) {
		t.Errorf("activity window = %v..%v, want %v..%v", th.FirstActivity, th.LastActivity, threadEpoch, threadEpoch)
	}
	if archive.saves != 1 {
		t.Errorf("archive saves = %d, want 1", archive.saves)
	}
}

func TestRecordMessage_RejectsMessageWithoutThread(t *testing.T) {
	a := NewAggregator()

	msg := threadMessage("m-1", "agent-a", "", threadEpoch)
	if _, err := a.RecordMessage(context.Background(), msg); !errors.Is(err, models.ErrInvalidRequest) {
		t.Errorf("missing thread id: err = %v, want ErrInvalidRequest", err)
	}
	if _, err := a.RecordMessage(context.Background(), nil); !errors.Is(err, models.ErrInvalidRequest) {
		t.Errorf("nil message: err = %v, want ErrInvalidRequest", err)
	}
}

func TestRecordMessage_DuplicateIsIgnored(t *testing.T) {
	a := NewAggregator()
	msg := threadMessage("m-1", "agent-a", "thread-1", threadEpoch)

	if _, err := a.RecordMessage(context.Background(), msg); err != nil {
		t.Fatalf("first RecordMessage: %v", err)
	}
	th, err := a.RecordMessage(context.Background(), msg)
	if err != nil {
		t.Fatalf("second RecordMessage: %v", err)
	}
	if th.Metrics.MessageCount != 1 {
		t.Errorf("MessageCount after duplicate = %d, want 1", th.Metrics.MessageCount)
	}
	if th.Metrics.ParticipationRate["agent-a"] != 1 {
		t.Errorf("participation after duplicate = %d, want 1", th.Metrics.ParticipationRate["agent-a"])
	}
}

func TestRecordActivity_TracksParticipationAndDuration(t *testing.T) {
	a := NewAggregator()
	ctx := context.Background()

	first := threadMessage("m-1", "agent-a", "thread-1", threadEpoch)
	second := threadMessage("m-2", "agent-b", "thread-1", threadEpoch.Add(30*time.Minute))
	if _, err := a.RecordMessage(ctx, first); err != nil {
		t.Fatalf("RecordMessage m-1: %v", err)
	}
	if _, err := a.RecordMessage(ctx, second); err != nil {
		t.Fatalf("RecordMessage m-2: %v", err)
	}

	resp := threadResponse("r-1", "agent-a", threadEpoch.Add(10*time.Minute), 10)
	resp.OriginalMessageID = "m-1"
	th, err := a.RecordResponse(ctx, first, resp)
	if err != nil {
		t.Fatalf("RecordResponse: %v", err)
	}

	if th.Metrics.MessageCount != 2 {
		t.Errorf("MessageCount = %d, want 2 (responses are not messages)", th.Metrics.MessageCount)
	}
	if got := th.Metrics.ParticipationRate["agent-a"]; got != 2 {
		t.Errorf("participation for agent-a = %d, want 2", got)
	}
	if got := th.Metrics.ParticipationRate["agent-b"]; got != 1 {
		t.Errorf("participation for agent-b = %d, want 1", got)
	}
	if math.Abs(th.Metrics.DurationMinutes-30) > 0.001 {
		t.Errorf("DurationMinutes = %.3f, want 30 (response inside the window)", th.Metrics.DurationMinutes)
	}
	if len(th.ResponseIDs) != 1 || th.ResponseIDs[0] != "r-1" {
		t.Errorf("ResponseIDs = %v, want [r-1]", th.ResponseIDs)
	}
}

func TestRecordResponse_WritesScoresIntoMetadata(t *testing.T) {
	a := NewAggregator()
	ctx := context.Background()

	msg := threadMessage("m-1", "agent-a", "thread-1", threadEpoch)
	if _, err := a.RecordMessage(ctx, msg); err != nil {
		t.Fatalf("RecordMessage: %v", err)
	}

	resp := threadResponse("r-1", "agent-b", threadEpoch.Add(10*time.Minute), 10)
	resp.Content.Reasoning = "the canary ran clean for two days"
	if _, err := a.RecordResponse(ctx, msg, resp); err != nil {
		t.Fatalf("RecordResponse: %v", err)
	}

	want := ScoreResponse(msg, resp)
	if math.Abs(resp.Metadata.QualityScore-want.Quality) > 0.001 {
		t.Errorf("QualityScore = %.3f, want %.3f", resp.Metadata.QualityScore, want.Quality)
	}
	if math.Abs(resp.Metadata.RelevanceScore-want.Relevance) > 0.001 {
		t.Errorf("RelevanceScore = %.3f, want %.3f", resp.Metadata.RelevanceScore, want.Relevance)
	}
	if math.Abs(resp.Metadata.Helpfulness-want.Helpfulness) > 0.001 {
		t.Errorf("Helpfulness = %.3f, want %.3f", resp.Metadata.Helpfulness, want.Helpfulness)
	}
	if resp.Metadata.QualityScore < 1 || resp.Metadata.QualityScore > 10 {
		t.Errorf("QualityScore %.2f outside [1,10]", resp.Metadata.QualityScore)
	}
}

func TestRecordResponse_DirectoryWeightsRelevance(t *testing.T) {
	ctx := context.Background()
	msg := threadMessage("m-1", "agent-a", "thread-1", threadEpoch)

	plain := NewAggregator()
	respPlain := threadResponse("r-1", "agent-b", threadEpoch.Add(5*time.Minute), 5)
	if _, err := plain.RecordResponse(ctx, msg, respPlain); err != nil {
		t.Fatalf("RecordResponse without directory: %v", err)
	}

	weighted := NewAggregator()
	weighted.SetDirectory(&fakeProfileDirectory{profiles: map[string]models.AgentProfile{
		"agent-b": {AgentID: "agent-b", ResponseRelevance: 1.0},
	}})
	respWeighted := threadResponse("r-2", "agent-b", threadEpoch.Add(5*time.Minute), 5)
	if _, err := weighted.RecordResponse(ctx, msg, respWeighted); err != nil {
		t.Fatalf("RecordResponse with directory: %v", err)
	}

	if respWeighted.Metadata.RelevanceScore <= respPlain.Metadata.RelevanceScore {
		t.Errorf("weighted relevance %.2f <= unweighted %.2f",
			respWeighted.Metadata.RelevanceScore, respPlain.Metadata.RelevanceScore)
	}
	if math.Abs(respWeighted.Metadata.QualityScore-respPlain.Metadata.QualityScore) > 0.001 {
		t.Errorf("quality changed with directory: %.3f vs %.3f",
			respWeighted.Metadata.QualityScore, respPlain.Metadata.QualityScore)
	}
}

func TestRecordDecision_TracksConsensusRate(t *testing.T) {
	a := NewAggregator()
	ctx := context.Background()

	open := &models.ConsensusDecision{
		ID:        "d-1",
		ThreadID:  "thread-1",
		Status:    models.DecisionOpen,
		CreatedAt: threadEpoch,
	}
	th, err := a.RecordDecision(ctx, open)
	if err != nil {
		t.Fatalf("RecordDecision open: %v", err)
	}
	if th.Metrics.ConsensusRate != 0 {
		t.Errorf("rate with one open decision = %.2f, want 0", th.Metrics.ConsensusRate)
	}

	resolvedAt := threadEpoch.Add(20 * time.Minute)
	resolved := &models.ConsensusDecision{
		ID:         "d-1",
		ThreadID:   "thread-1",
		Status:     models.DecisionResolved,
		Outcome:    models.OutcomeConsensus,
		CreatedAt:  threadEpoch,
		ResolvedAt: &resolvedAt,
	}
	th, err = a.RecordDecision(ctx, resolved)
	if err != nil {
		t.Fatalf("RecordDecision resolved: %v", err)
	}
	if len(th.DecisionIDs) != 1 {
		t.Errorf("DecisionIDs = %v, want the decision listed once", th.DecisionIDs)
	}
	if th.Metrics.ConsensusRate != 1 {
		t.Errorf("rate after resolution = %.2f, want 1", th.Metrics.ConsensusRate)
	}
	if math.Abs(th.Metrics.DurationMinutes-20) > 0.001 {
		t.Errorf("DurationMinutes = %.3f, want 20 (resolution extends the window)", th.Metrics.DurationMinutes)
	}

	second := &models.ConsensusDecision{
		ID:        "d-2",
		ThreadID:  "thread-1",
		Status:    models.DecisionOpen,
		CreatedAt: threadEpoch.Add(25 * time.Minute),
	}
	th, err = a.RecordDecision(ctx, second)
	if err != nil {
		t.Fatalf("RecordDecision second: %v", err)
	}
	if math.Abs(th.Metrics.ConsensusRate-0.5) > 0.001 {
		t.Errorf("rate with one of two resolved = %.3f, want 0.5", th.Metrics.ConsensusRate)
	}

	second.Status = models.DecisionCancelled
	th, err = a.RecordDecision(ctx, second)
	if err != nil {
		t.Fatalf("RecordDecision cancelled: %v", err)
	}
	if math.Abs(th.Metrics.ConsensusRate-0.5) > 0.001 {
		t.Errorf("rate after cancellation = %.3f, want 0.5 (cancelled is not resolved)", th.Metrics.ConsensusRate)
	}
}

func TestRecordDecision_RequiresThread(t *testing.T) {
	a := NewAggregator()
	d := &models.ConsensusDecision{ID: "d-1", Status: models.DecisionOpen, CreatedAt: threadEpoch}
	if _, err := a.RecordDecision(context.Background(), d); !errors.Is(err, models.ErrInvalidRequest) {
		t.Errorf("decision without thread: err = %v, want ErrInvalidRequest", err)
	}
}

func TestArchiveThread_MarksAndKeeps(t *testing.T) {
	a := NewAggregator()
	ctx := context.Background()
	if _, err := a.RecordMessage(ctx, threadMessage("m-1", "agent-a", "thread-1", threadEpoch)); err != nil {
		t.Fatalf("RecordMessage: %v", err)
	}

	if err := a.ArchiveThread(ctx, "thread-1"); err != nil {
		t.Fatalf("ArchiveThread: %v", err)
	}
	if err := a.ArchiveThread(ctx, "thread-1"); err != nil {
		t.Errorf("second ArchiveThread: %v, want nil", err)
	}

	th, err := a.Thread("thread-1")
	if err != nil {
		t.Fatalf("Thread after archive: %v", err)
	}
	if !th.Archived {
		t.Error("thread not marked archived")
	}
	if th.Metrics.MessageCount != 1 {
		t.Errorf("archived thread lost history: MessageCount = %d", th.Metrics.MessageCount)
	}

	if err := a.ArchiveThread(ctx, "thread-9"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("archiving unknown thread: err = %v, want ErrNotFound", err)
	}
}

func TestThreads_SortedByFirstActivity(t *testing.T) {
	a := NewAggregator()
	ctx := context.Background()

	if _, err := a.RecordMessage(ctx, threadMessage("m-2", "agent-a", "thread-late", threadEpoch.Add(time.Hour))); err != nil {
		t.Fatalf("RecordMessage late: %v", err)
	}
	if _, err := a.RecordMessage(ctx, threadMessage("m-1", "agent-a", "thread-early", threadEpoch)); err != nil {
		t.Fatalf("RecordMessage early: %v", err)
	}

	threads := a.Threads()
	if len(threads) != 2 {
		t.Fatalf("Threads returned %d, want 2", len(threads))
	}
	if threads[0].ThreadID != "thread-early" || threads[1].ThreadID != "thread-late" {
		t.Errorf("order = [%s %s], want oldest first", threads[0].ThreadID, threads[1].ThreadID)
	}
}

func TestRestore_LoadsPersistedThreads(t *testing.T) {
	a := NewAggregator()

	saved := &models.ConversationThread{
		ThreadID:      "thread-1",
		MessageIDs:    []string{"m-1", "m-2"},
		FirstActivity: threadEpoch,
		LastActivity:  threadEpoch.Add(15 * time.Minute),
		Metrics: models.ThreadMetrics{
			MessageCount:      2,
			DurationMinutes:   15,
			ParticipationRate: map[string]int{"agent-a": 2},
		},
	}
	archived := &models.ConversationThread{ThreadID: "thread-0", Archived: true}
	a.Restore([]*models.ConversationThread{saved, archived, nil})

	th, err := a.Thread("thread-1")
	if err != nil {
		t.Fatalf("Thread after restore: %v", err)
	}
	if th.Metrics.MessageCount != 2 {
		t.Errorf("restored MessageCount = %d, want 2", th.Metrics.MessageCount)
	}

	th, err = a.Thread("thread-0")
	if err != nil {
		t.Fatalf("archived thread after restore: %v", err)
	}
	if !th.Archived {
		t.Error("restored thread lost its archived flag")
	}

	// Restoring again must not clobber live state.
	msg := threadMessage("m-3", "agent-b", "thread-1", threadEpoch.Add(20*time.Minute))
	if _, err := a.RecordMessage(context.Background(), msg); err != nil {
		t.Fatalf("RecordMessage after restore: %v", err)
	}
	a.Restore([]*models.ConversationThread{saved})
	th, err = a.Thread("thread-1")
	if err != nil {
		t.Fatalf("Thread after second restore: %v", err)
	}
	if th.Metrics.MessageCount != 3 {
		t.Errorf("MessageCount after second restore = %d, want 3", th.Metrics.MessageCount)
	}
}
