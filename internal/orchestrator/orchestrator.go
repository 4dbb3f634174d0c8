// Package orchestrator ties the collaboration pipeline together. It turns
// requests into task DAGs, composes teams from the capability registry,
// drives step execution through the scheduler, and keeps messaging,
// consensus, and conversation threads in sync with task progress.
package orchestrator

import (
	"context"
	"fmt"
	"sync"

	"github.com/benbjohnson/clock"

	"github.com/wesheets/roundtable/internal/agent"
	"github.com/wesheets/roundtable/internal/bus"
	"github.com/wesheets/roundtable/internal/classify"
	"github.com/wesheets/roundtable/internal/consensus"
	"github.com/wesheets/roundtable/internal/decompose"
	"github.com/wesheets/roundtable/internal/metrics"
	"github.com/wesheets/roundtable/internal/registry"
	"github.com/wesheets/roundtable/internal/router"
	"github.com/wesheets/roundtable/internal/scheduler"
	"github.com/wesheets/roundtable/internal/state"
	"github.com/wesheets/roundtable/internal/team"
	"github.com/wesheets/roundtable/internal/thread"
	"github.com/wesheets/roundtable/pkg/models"
)

const defaultMaxParallel = 4

// Orchestrator owns the wired pipeline. All cross-component bookkeeping
// (thread updates on messages and decisions, persistence after task
// mutations, lifecycle events) happens here so the components themselves
// stay independent.
type Orchestrator struct {
	store      *state.DB
	registry   *registry.Registry
	decomposer *decompose.Decomposer
	composer   *team.Composer
	scheduler  *scheduler.Scheduler
	router     *router.Router
	consensus  *consensus.Coordinator
	threads    *thread.Aggregator

	executor agent.Executor
	retry    *agent.RetryPolicy

	metrics     *metrics.Metrics
	clock       clock.Clock
	emitter     *Emitter
	logger      *DebugLogger
	busClient   *bus.Client
	maxParallel int

	closeMu sync.Mutex
	closed  bool
}

// New wires an orchestrator from the required collaborators in cfg plus
// any options. The caller keeps ownership of the store, registry, and bus
// client; Close does not close them.
func New(cfg Config, opts ...Option) (*Orchestrator, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("%w: nil store", models.ErrInvalidRequest)
	}
	if cfg.Registry == nil {
		return nil, fmt.Errorf("%w: nil registry", models.ErrInvalidRequest)
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.clock == nil {
		o.clock = clock.New()
	}
	if o.executor == nil {
		o.executor = agent.NewLocalExecutor()
	}
	if o.retry == nil {
		o.retry = agent.NewRetryPolicy()
	}
	if o.decomposer == nil {
		kc := classify.NewKeywordClassifier()
		o.decomposer = decompose.New(kc, kc)
	}
	if o.maxParallel < 1 {
		o.maxParallel = defaultMaxParallel
	}
	if o.logger == nil {
		o.logger = NopLogger()
	}

	orc := &Orchestrator{
		store:       cfg.Store,
		registry:    cfg.Registry,
		decomposer:  o.decomposer,
		composer:    team.New(),
		scheduler:   scheduler.New(),
		router:      router.New(cfg.Registry),
		consensus:   consensus.New(),
		threads:     thread.NewAggregator(),
		executor:    o.executor,
		retry:       o.retry,
		metrics:     o.metrics,
		clock:       o.clock,
		emitter:     NewEmitter(o.eventBuffer),
		logger:      o.logger,
		busClient:   o.busClient,
		maxParallel: o.maxParallel,
	}

	logf := orc.logger.Log
	orc.decomposer.SetDebugLog(logf)
	orc.decomposer.SetNow(orc.clock.Now)
	orc.composer.SetDebugLog(logf)
	orc.retry.SetDebugLog(logf)

	orc.scheduler.SetNow(orc.clock.Now)
	orc.scheduler.SetDebugLog(logf)

	orc.router.SetClock(orc.clock)
	orc.router.SetArchive(cfg.Store)
	orc.router.SetDebugLog(logf)
	orc.router.OnEscalation(orc.onEscalation)

	orc.consensus.SetClock(orc.clock)
	orc.consensus.SetBroadcaster(orc.router)
	orc.consensus.SetArchive(cfg.Store)
	orc.consensus.OnResolve(orc.onDecisionResolved)
	orc.consensus.SetDebugLog(logf)

	orc.threads.SetDirectory(cfg.Registry)
	orc.threads.SetArchive(cfg.Store)
	orc.threads.SetDebugLog(logf)

	if o.enforcer != nil {
		orc.scheduler.SetPolicy(o.enforcer)
		orc.router.SetPolicy(o.enforcer)
		orc.consensus.SetPolicy(o.enforcer)
	}
	if o.metrics != nil {
		orc.router.SetMetrics(o.metrics)
		orc.consensus.SetMetrics(o.metrics)
		orc.threads.SetMetrics(o.metrics)
	}
	if o.busClient != nil {
		orc.router.SetBus(o.busClient)
		orc.consensus.SetBus(o.busClient)
	}
	return orc, nil
}

// Submit decomposes a request, composes a team for it, and attaches the
// resulting task to the scheduler. The task comes back in planning status;
// call Run to execute it.
func (o *Orchestrator) Submit(ctx context.Context, request string, constraints models.Constraints) (*models.CollaborativeTask, error) {
	task, err := o.decomposer.Decompose(ctx, request, constraints)
	if err != nil {
		return nil, err
	}
	comp := o.composer.Compose(task.RequiredCapabilities(), o.registry.Profiles())
	if err := o.scheduler.Attach(task); err != nil {
		return nil, err
	}
	if err := o.scheduler.AssignTeam(task.ID, comp); err != nil {
		return nil, err
	}
	snap, err := o.scheduler.Snapshot(task.ID)
	if err != nil {
		return nil, err
	}
	if err := o.store.SaveTask(ctx, snap); err != nil {
		return nil, fmt.Errorf("persist task %s: %w", task.ID, err)
	}
	if o.metrics != nil {
		o.metrics.IncActiveTasks()
	}
	o.logf("orchestrator: task %s planned, %d steps, lead %s", task.ID, len(snap.Steps), comp.LeadAgent)
	o.emit(Event{
		Type:    EventTaskPlanned,
		TaskID:  task.ID,
		AgentID: comp.LeadAgent,
		Message: fmt.Sprintf("%d steps across %d parallel groups", len(snap.Steps), len(snap.ParallelGroups)),
	})
	return snap, nil
}

// Resume reloads persisted threads and decisions and re-attaches tasks
// that were executing when the previous process stopped. Open decisions
// re-arm their deadline timers; steps caught in_progress are reset to
// pending so Run can pick them up again. Returns the ids of the resumed
// tasks.
func (o *Orchestrator) Resume(ctx context.Context) ([]string, error) {
	if threads, err := o.store.ListThreads(ctx); err != nil {
		o.logf("orchestrator: resume threads: %v", err)
	} else {
		o.threads.Restore(threads)
	}
	if decisions, err := o.store.ListDecisions(ctx); err != nil {
		o.logf("orchestrator: resume decisions: %v", err)
	} else {
		o.consensus.Restore(decisions)
		// Replaying through the aggregator reseeds per-decision status,
		// so consensus rates stay right when later decisions arrive.
		for _, d := range decisions {
			if d.ThreadID == "" {
				continue
			}
			if _, err := o.threads.RecordDecision(ctx, d); err != nil {
				o.logf("orchestrator: resume decision %s: %v", d.ID, err)
			}
		}
	}

	tasks, err := o.store.InterruptedTasks(ctx)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, task := range tasks {
		resetInFlightSteps(task)
		if err := o.scheduler.Attach(task); err != nil {
			o.logf("orchestrator: resume %s: %v", task.ID, err)
			continue
		}
		if o.metrics != nil {
			o.metrics.IncActiveTasks()
		}
		ids = append(ids, task.ID)
		o.emit(Event{Type: EventTaskResumed, TaskID: task.ID})
	}
	return ids, nil
}

// Load attaches a stored task to the live scheduler so Run can execute
// it. Tasks already attached are returned as they are; terminal tasks
// refuse to load. Steps caught in_progress by a previous process are
// reset to pending.
func (o *Orchestrator) Load(ctx context.Context, taskID string) (*models.CollaborativeTask, error) {
	if snap, err := o.scheduler.Snapshot(taskID); err == nil {
		return snap, nil
	}
	task, err := o.store.LoadTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.Status == models.TaskStatusCompleted || task.Status == models.TaskStatusFailed {
		return nil, fmt.Errorf("%w: task %s is already %s", models.ErrInvalidRequest, taskID, task.Status)
	}
	resetInFlightSteps(task)
	if err := o.scheduler.Attach(task); err != nil {
		return nil, err
	}
	if o.metrics != nil {
		o.metrics.IncActiveTasks()
	}
	o.logf("orchestrator: task %s loaded from store", taskID)
	return o.scheduler.Snapshot(taskID)
}

// resetInFlightSteps returns in_progress steps to pending. Work from a
// previous process cannot be observed, so it has to start over.
func resetInFlightSteps(task *models.CollaborativeTask) {
	for _, step := range task.Steps {
		if step.Status == models.StepStatusInProgress {
			step.Status = models.StepStatusPending
			step.StartedAt = nil
		}
	}
}

// CancelTask cancels a task and everything in flight for it: pending
// steps, undelivered messages and escalation timers, and open decisions.
func (o *Orchestrator) CancelTask(ctx context.Context, taskID, agentID, reason string) error {
	if err := o.scheduler.Cancel(ctx, taskID, agentID, reason); err != nil {
		return err
	}
	dropped := o.router.CancelTask(taskID)
	cancelled := o.consensus.CancelTask(ctx, taskID)
	for _, d := range o.consensus.Decisions() {
		if d.TaskID == taskID && d.Status == models.DecisionCancelled && d.ThreadID != "" {
			if _, err := o.threads.RecordDecision(ctx, d); err != nil {
				o.logf("orchestrator: thread update for decision %s: %v", d.ID, err)
			}
		}
	}
	o.persistTask(ctx, taskID)
	if o.metrics != nil {
		o.metrics.DecActiveTasks()
	}
	o.logf("orchestrator: task %s cancelled (%d messages dropped, %d decisions cancelled)", taskID, dropped, cancelled)
	o.emit(Event{Type: EventTaskCancelled, TaskID: taskID, AgentID: agentID, Message: reason})
	return nil
}

// SendMessage routes a message and folds it into its conversation thread.
func (o *Orchestrator) SendMessage(ctx context.Context, req router.SendRequest) (*models.AgentMessage, error) {
	msg, err := o.router.Send(ctx, req)
	if err != nil {
		return nil, err
	}
	if msg.Context.ConversationThread != "" {
		if _, err := o.threads.RecordMessage(ctx, msg); err != nil {
			o.logf("orchestrator: thread update for message %s: %v", msg.ID, err)
		}
	}
	o.emit(Event{
		Type:      EventMessageSent,
		TaskID:    msg.Context.TaskID,
		AgentID:   msg.FromAgent,
		MessageID: msg.ID,
		Message:   msg.Content.Subject,
	})
	return msg, nil
}

// RecordResponse records a response with the router, scores it against
// its thread, and persists the scored metadata.
func (o *Orchestrator) RecordResponse(ctx context.Context, resp *models.AgentResponse) error {
	if err := o.router.RecordResponse(ctx, resp); err != nil {
		return err
	}
	msg, err := o.router.Message(resp.OriginalMessageID)
	if err != nil || msg.Context.ConversationThread == "" {
		return nil
	}
	if _, err := o.threads.RecordResponse(ctx, msg, resp); err != nil {
		o.logf("orchestrator: thread update for response %s: %v", resp.ID, err)
		return nil
	}
	// The router saved the response before scoring; save again so the
	// quality scores land in the archive.
	if err := o.store.SaveResponse(ctx, resp); err != nil {
		o.logf("orchestrator: persist scored response %s: %v", resp.ID, err)
	}
	return nil
}

// MarkRead acknowledges delivery of a message to one recipient.
func (o *Orchestrator) MarkRead(ctx context.Context, messageID, agentID string) error {
	return o.router.MarkRead(ctx, messageID, agentID)
}

// OpenDecision puts a question to a vote and ties it into its thread.
func (o *Orchestrator) OpenDecision(ctx context.Context, req consensus.OpenRequest) (*models.ConsensusDecision, error) {
	d, err := o.consensus.Open(ctx, req)
	if err != nil {
		return nil, err
	}
	if d.ThreadID != "" {
		if _, err := o.threads.RecordDecision(ctx, d); err != nil {
			o.logf("orchestrator: thread update for decision %s: %v", d.ID, err)
		}
	}
	o.emit(Event{Type: EventDecisionOpened, TaskID: d.TaskID, DecisionID: d.ID, Message: d.Question})
	return d, nil
}

// CastVote records one agent's vote on an open decision.
func (o *Orchestrator) CastVote(ctx context.Context, decisionID, agentID, option string) (*models.ConsensusDecision, error) {
	return o.consensus.CastVote(ctx, decisionID, agentID, option)
}

// Task returns the live snapshot of an attached task, falling back to the
// archive for detached ones.
func (o *Orchestrator) Task(ctx context.Context, taskID string) (*models.CollaborativeTask, error) {
	if snap, err := o.scheduler.Snapshot(taskID); err == nil {
		return snap, nil
	}
	return o.store.LoadTask(ctx, taskID)
}

// Tasks lists every archived task.
func (o *Orchestrator) Tasks(ctx context.Context) ([]*models.CollaborativeTask, error) {
	return o.store.ListTasks(ctx)
}

// Progress reports step-set membership and completion for an attached task.
func (o *Orchestrator) Progress(taskID string) (models.TaskProgress, error) {
	return o.scheduler.Progress(taskID)
}

// Thread returns one conversation thread.
func (o *Orchestrator) Thread(threadID string) (*models.ConversationThread, error) {
	return o.threads.Thread(threadID)
}

// Threads lists tracked threads ordered by first activity.
func (o *Orchestrator) Threads() []*models.ConversationThread {
	return o.threads.Threads()
}

// ArchiveThread marks a thread inactive and persists it.
func (o *Orchestrator) ArchiveThread(ctx context.Context, threadID string) error {
	return o.threads.ArchiveThread(ctx, threadID)
}

// Decision returns one consensus decision.
func (o *Orchestrator) Decision(id string) (*models.ConsensusDecision, error) {
	return o.consensus.Decision(id)
}

// Decisions lists decisions ordered by creation time.
func (o *Orchestrator) Decisions() []*models.ConsensusDecision {
	return o.consensus.Decisions()
}

// Mailbox returns the delivery channel for one agent.
func (o *Orchestrator) Mailbox(agentID string) <-chan *models.AgentMessage {
	return o.router.Mailbox(agentID)
}

// Events exposes the lifecycle event stream.
func (o *Orchestrator) Events() <-chan Event {
	return o.emitter.Events()
}

// Store exposes the archive for read-side consumers such as the web API.
func (o *Orchestrator) Store() *state.DB {
	return o.store
}

// Registry exposes the capability registry.
func (o *Orchestrator) Registry() *registry.Registry {
	return o.registry
}

// Close persists attached task snapshots and stops the routing and
// consensus timers, then the event stream. The store, registry, and bus
// client stay open; their owner closes them.
func (o *Orchestrator) Close() error {
	o.closeMu.Lock()
	if o.closed {
		o.closeMu.Unlock()
		return nil
	}
	o.closed = true
	o.closeMu.Unlock()

	ctx := context.Background()
	for _, id := range o.scheduler.TaskIDs() {
		o.persistTask(ctx, id)
	}
	// Timers can emit events from their callbacks, so they stop first.
	o.router.Close()
	o.consensus.Close()
	o.emitter.Close()
	return o.logger.Close()
}

// onEscalation runs when a message misses its acknowledgement window. The
// router already delivered the escalation notice; fold it into the thread
// and surface the event.
func (o *Orchestrator) onEscalation(original, notice *models.AgentMessage) {
	if notice.Context.ConversationThread != "" {
		if _, err := o.threads.RecordMessage(context.Background(), notice); err != nil {
			o.logf("orchestrator: thread update for escalation %s: %v", notice.ID, err)
		}
	}
	o.emit(Event{
		Type:      EventEscalationFired,
		TaskID:    original.Context.TaskID,
		AgentID:   original.FromAgent,
		MessageID: original.ID,
		Message:   notice.Content.Subject,
	})
}

// onDecisionResolved runs for every decision that reaches resolved status.
func (o *Orchestrator) onDecisionResolved(d *models.ConsensusDecision) {
	if d.ThreadID != "" {
		if _, err := o.threads.RecordDecision(context.Background(), d); err != nil {
			o.logf("orchestrator: thread update for decision %s: %v", d.ID, err)
		}
	}
	o.emit(Event{
		Type:       EventDecisionResolved,
		TaskID:     d.TaskID,
		DecisionID: d.ID,
		Message:    string(d.Outcome),
	})
}

// persistTask saves the scheduler's current snapshot of a task, logging
// rather than failing on archive errors.
func (o *Orchestrator) persistTask(ctx context.Context, taskID string) {
	snap, err := o.scheduler.Snapshot(taskID)
	if err != nil {
		return
	}
	if err := o.store.SaveTask(ctx, snap); err != nil {
		o.logf("orchestrator: persist task %s: %v", taskID, err)
	}
}

// emit stamps and publishes a lifecycle event. Task-scoped events are
// mirrored onto the bus; the router and coordinator mirror their own.
func (o *Orchestrator) emit(ev Event) {
	ev.Timestamp = o.clock.Now().UTC()
	o.emitter.Emit(ev)
	if o.busClient != nil && ev.TaskID != "" {
		if err := o.busClient.PublishJSON(bus.SubjectTaskEvents(ev.TaskID), ev); err != nil {
			o.logf("orchestrator: bus publish %s: %v", ev.Type, err)
		}
	}
}

func (o *Orchestrator) logf(format string, args ...interface{}) {
	o.logger.Log(format, args...)
}
