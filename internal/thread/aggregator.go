// Package thread aggregates routed messages, responses, and consensus
// decisions into conversation threads and keeps per-thread metrics
// current: participation counts, duration, consensus rate, and quality
// scores for every response.
package thread

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/wesheets/roundtable/internal/metrics"
	"github.com/wesheets/roundtable/pkg/models"
)

// Directory resolves agent profiles. The aggregator uses it to weight
// response relevance by the responder's profile; a nil directory leaves
// the pure scores untouched.
type Directory interface {
	Profile(agentID string) models.AgentProfile
}

// Archive persists thread snapshots.
type Archive interface {
	SaveThread(ctx context.Context, th *models.ConversationThread) error
}

// Aggregator maintains conversation threads keyed by the conversation
// thread id messages carry in their context. Threads are created lazily
// on first reference and live until archived.
type Aggregator struct {
	mu       sync.Mutex
	threads  map[string]*models.ConversationThread
	statuses map[string]map[string]models.DecisionStatus
	dir      Directory
	archive  Archive
	metrics  *metrics.Metrics
	debugLog func(format string, args ...any)
}

// NewAggregator returns an aggregator with no collaborators attached.
func NewAggregator() *Aggregator {
	return &Aggregator{
		threads:  make(map[string]*models.ConversationThread),
		statuses: make(map[string]map[string]models.DecisionStatus),
	}
}

// SetDirectory attaches an agent directory for relevance weighting.
func (a *Aggregator) SetDirectory(dir Directory) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.dir = dir
}

// SetArchive attaches persistent storage for thread snapshots.
func (a *Aggregator) SetArchive(archive Archive) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.archive = archive
}

// SetMetrics attaches a metrics sink.
func (a *Aggregator) SetMetrics(m *metrics.Metrics) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.metrics = m
}

// SetDebugLog attaches a debug logger.
func (a *Aggregator) SetDebugLog(fn func(format string, args ...any)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.debugLog = fn
}

// RecordMessage appends a routed message to its conversation thread,
// creating the thread if this is its first item. It returns the updated
// thread snapshot.
func (a *Aggregator) RecordMessage(ctx context.Context, msg *models.AgentMessage) (*models.ConversationThread, error) {
	if msg == nil || msg.ID == "" {
		return nil, fmt.Errorf("%w: message is empty", models.ErrInvalidRequest)
	}
	threadID := msg.Context.ConversationThread
	if threadID == "" {
		return nil, fmt.Errorf("%w: message %s has no conversation thread", models.ErrInvalidRequest, msg.ID)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	th := a.threadFor(threadID)
	if th.ChannelID == "" {
		th.ChannelID = msg.ChannelID
	}
	if containsID(th.MessageIDs, msg.ID) {
		return th.Clone(), nil
	}
	th.MessageIDs = append(th.MessageIDs, msg.ID)
	th.Metrics.MessageCount = len(th.MessageIDs)
	th.Metrics.ParticipationRate[msg.FromAgent]++
	a.touch(th, msg.Delivery.Timestamp)
	a.persist(ctx, th)
	return th.Clone(), nil
}

// RecordResponse appends a response to the thread of the message it
// answers, scores it, and writes the scores into the response metadata.
// The scores come from ScoreResponse; when a directory is attached, the
// relevance score is additionally weighted by the responder's profile.
func (a *Aggregator) RecordResponse(ctx context.Context, msg *models.AgentMessage, resp *models.AgentResponse) (*models.ConversationThread, error) {
	if msg == nil || resp == nil || resp.ID == "" {
		return nil, fmt.Errorf("%w: response is empty", models.ErrInvalidRequest)
	}
	threadID := msg.Context.ConversationThread
	if threadID == "" {
		return nil, fmt.Errorf("%w: message %s has no conversation thread", models.ErrInvalidRequest, msg.ID)
	}

	scores := ScoreResponse(msg, resp)

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.dir != nil {
		profile := a.dir.Profile(resp.FromAgent)
		scores.Relevance = clampScore(scores.Relevance * (0.5 + profile.ResponseRelevance))
	}
	resp.Metadata.QualityScore = scores.Quality
	resp.Metadata.RelevanceScore = scores.Relevance
	resp.Metadata.Helpfulness = scores.Helpfulness

	th := a.threadFor(threadID)
	if th.ChannelID == "" {
		th.ChannelID = msg.ChannelID
	}
	if !containsID(th.ResponseIDs, resp.ID) {
		th.ResponseIDs = append(th.ResponseIDs, resp.ID)
		th.Metrics.ParticipationRate[resp.FromAgent]++
	}
	a.touch(th, resp.CreatedAt)
	a.persist(ctx, th)
	return th.Clone(), nil
}

// RecordDecision notes a consensus decision in its thread and recomputes
// the thread's consensus rate. Call it on every lifecycle change; the
// decision is listed once and its latest status wins.
func (a *Aggregator) RecordDecision(ctx context.Context, d *models.ConsensusDecision) (*models.ConversationThread, error) {
	if d == nil || d.ID == "" {
		return nil, fmt.Errorf("%w: decision is empty", models.ErrInvalidRequest)
	}
	if d.ThreadID == "" {
		return nil, fmt.Errorf("%w: decision %s has no conversation thread", models.ErrInvalidRequest, d.ID)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	th := a.threadFor(d.ThreadID)
	if !containsID(th.DecisionIDs, d.ID) {
		th.DecisionIDs = append(th.DecisionIDs, d.ID)
	}
	statuses := a.statuses[d.ThreadID]
	if statuses == nil {
		statuses = make(map[string]models.DecisionStatus)
		a.statuses[d.ThreadID] = statuses
	}
	statuses[d.ID] = d.Status

	resolved := 0
	for _, status := range statuses {
		if status == models.DecisionResolved {
			resolved++
		}
	}
	th.Metrics.ConsensusRate = float64(resolved) / float64(len(th.DecisionIDs))

	a.touch(th, d.CreatedAt)
	if d.ResolvedAt != nil {
		a.touch(th, *d.ResolvedAt)
	}
	a.persist(ctx, th)
	return th.Clone(), nil
}

// Thread returns a snapshot of one thread.
func (a *Aggregator) Thread(threadID string) (*models.ConversationThread, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	th, ok := a.threads[threadID]
	if !ok {
		return nil, fmt.Errorf("%w: thread %s", models.ErrNotFound, threadID)
	}
	return th.Clone(), nil
}

// Threads returns snapshots of every thread, oldest first.
func (a *Aggregator) Threads() []*models.ConversationThread {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]*models.ConversationThread, 0, len(a.threads))
	for _, th := range a.threads {
		out = append(out, th.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].FirstActivity.Equal(out[j].FirstActivity) {
			return out[i].FirstActivity.Before(out[j].FirstActivity)
		}
		return out[i].ThreadID < out[j].ThreadID
	})
	return out
}

// ArchiveThread marks a thread closed. Archived threads keep their
// history and metrics but no longer count as active.
func (a *Aggregator) ArchiveThread(ctx context.Context, threadID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	th, ok := a.threads[threadID]
	if !ok {
		return fmt.Errorf("%w: thread %s", models.ErrNotFound, threadID)
	}
	if th.Archived {
		return nil
	}
	th.Archived = true
	a.metrics.DecActiveThreads()
	a.persist(ctx, th)
	return nil
}

// Restore loads previously persisted threads into the aggregator,
// typically at startup. Archived threads are restored but stay inactive.
func (a *Aggregator) Restore(threads []*models.ConversationThread) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, th := range threads {
		if th == nil || th.ThreadID == "" {
			continue
		}
		if _, ok := a.threads[th.ThreadID]; ok {
			continue
		}
		a.threads[th.ThreadID] = th.Clone()
		if !th.Archived {
			a.metrics.IncActiveThreads()
		}
	}
}

// threadFor returns the live thread for an id, creating it when absent.
// Callers must hold the lock.
func (a *Aggregator) threadFor(threadID string) *models.ConversationThread {
	th, ok := a.threads[threadID]
	if ok {
		return th
	}
	th = &models.ConversationThread{
		ThreadID: threadID,
		Metrics: models.ThreadMetrics{
			ParticipationRate: make(map[string]int),
		},
	}
	a.threads[threadID] = th
	a.metrics.IncActiveThreads()
	a.logf("thread %s created", threadID)
	return th
}

// touch widens the thread's activity window to include a timestamp and
// recomputes the duration. Zero timestamps are ignored.
func (a *Aggregator) touch(th *models.ConversationThread, at time.Time) {
	if at.IsZero() {
		return
	}
	if th.FirstActivity.IsZero() || at.Before(th.FirstActivity) {
		th.FirstActivity = at
	}
	if at.After(th.LastActivity) {
		th.LastActivity = at
	}
	th.Metrics.DurationMinutes = th.LastActivity.Sub(th.FirstActivity).Minutes()
}

func (a *Aggregator) persist(ctx context.Context, th *models.ConversationThread) {
	if a.archive == nil {
		return
	}
	if err := a.archive.SaveThread(ctx, th); err != nil {
		a.logf("persist thread %s: %v", th.ThreadID, err)
	}
}

func (a *Aggregator) logf(format string, args ...any) {
	if a.debugLog != nil {
		a.debugLog(format, args...)
	}
}

func containsID(ids []string, id string) bool {
	for _, existing := range ids {
		if existing == id {
			return true
		}
	}
	return false
}
