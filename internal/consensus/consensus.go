// Package consensus coordinates multi-agent votes on decision points. A
// decision is broadcast to its required participants as a decision-type
// message, votes are tallied as they arrive, and the decision resolves as
// soon as one option's share of the participant panel reaches the
// threshold, without waiting for the remaining voters. Deadlines run on
// an injected clock and settle unresolved decisions by plurality, or as
// disputed when the lead is tied.
package consensus

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/wesheets/roundtable/internal/bus"
	"github.com/wesheets/roundtable/internal/metrics"
	"github.com/wesheets/roundtable/internal/policy"
	"github.com/wesheets/roundtable/internal/router"
	"github.com/wesheets/roundtable/pkg/models"
)

// Broadcaster delivers the decision question to its participants. The
// message router implements it.
type Broadcaster interface {
	Send(ctx context.Context, req router.SendRequest) (*models.AgentMessage, error)
}

// Archive persists decisions across their lifecycle.
type Archive interface {
	SaveDecision(ctx context.Context, d *models.ConsensusDecision) error
}

// VoteEvent is published on the decision's vote subject for each vote and
// lifecycle change.
type VoteEvent struct {
	Kind       string `json:"kind"`
	DecisionID string `json:"decisionId"`
	AgentID    string `json:"agentId,omitempty"`
	Option     string `json:"option,omitempty"`
	Outcome    string `json:"outcome,omitempty"`
}

// OpenRequest describes a decision to put to a vote.
type OpenRequest struct {
	// FromAgent is the agent opening the decision, usually the team lead.
	FromAgent string
	// Question is what is being decided.
	Question string
	// Options is the ordered list of choices. At least two.
	Options []string
	// Participants is the voting panel. Deduplicated and sorted.
	Participants []string
	// Threshold is the leading-option share of the panel required to
	// resolve early. In (0,1].
	Threshold float64
	// Deadline bounds the vote when positive; zero means no deadline.
	Deadline time.Duration
	// ChannelID, ThreadID, and TaskID tie the decision to its
	// conversation and task.
	ChannelID string
	ThreadID  string
	TaskID    string
}

// Coordinator owns the decision ledger and its deadline timers.
type Coordinator struct {
	mu        sync.Mutex
	clock     clock.Clock
	sender    Broadcaster
	enforcer  policy.Enforcer
	archive   Archive
	bus       *bus.Client
	metrics   *metrics.Metrics
	decisions map[string]*models.ConsensusDecision
	timers    map[string]*clock.Timer
	onResolve func(*models.ConsensusDecision)
	debugLog  func(format string, args ...interface{})
}

// New creates a coordinator with a real clock and no collaborators.
func New() *Coordinator {
	return &Coordinator{
		clock:     clock.New(),
		decisions: make(map[string]*models.ConsensusDecision),
		timers:    make(map[string]*clock.Timer),
	}
}

// SetClock replaces the coordinator's clock. Tests install a mock.
func (c *Coordinator) SetClock(cl clock.Clock) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clock = cl
}

// SetBroadcaster installs the messenger used to announce new decisions.
func (c *Coordinator) SetBroadcaster(b Broadcaster) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sender = b
}

// SetPolicy installs the policy collaborator consulted on open and vote.
func (c *Coordinator) SetPolicy(e policy.Enforcer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enforcer = e
}

// SetArchive installs the persistence collaborator.
func (c *Coordinator) SetArchive(a Archive) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.archive = a
}

// SetBus publishes vote events on the decision's vote subject.
func (c *Coordinator) SetBus(client *bus.Client) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bus = client
}

// SetMetrics installs decision outcome counters.
func (c *Coordinator) SetMetrics(m *metrics.Metrics) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metrics = m
}

// OnResolve registers a hook invoked with a clone of each decision that
// leaves the open state.
func (c *Coordinator) OnResolve(fn func(*models.ConsensusDecision)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onResolve = fn
}

// SetDebugLog sets a logger for vote tracing.
func (c *Coordinator) SetDebugLog(fn func(format string, args ...interface{})) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.debugLog = fn
}

func (c *Coordinator) logf(format string, args ...interface{}) {
	if c.debugLog != nil {
		c.debugLog(format, args...)
	}
}

// Open validates and opens a decision, broadcasts the question to the
// panel, and arms the deadline timer. The returned decision is a deep
// copy.
func (c *Coordinator) Open(ctx context.Context, req OpenRequest) (*models.ConsensusDecision, error) {
	if strings.TrimSpace(req.Question) == "" {
		return nil, fmt.Errorf("%w: decision needs a question", models.ErrInvalidRequest)
	}
	options := dedupe(req.Options)
	if len(options) < 2 {
		return nil, fmt.Errorf("%w: decision needs at least two options", models.ErrInvalidRequest)
	}
	participants := dedupe(req.Participants)
	sort.Strings(participants)
	if len(participants) == 0 {
		return nil, fmt.Errorf("%w: decision needs participants", models.ErrInvalidRequest)
	}
	if req.Threshold <= 0 || req.Threshold > 1 {
		return nil, fmt.Errorf("%w: threshold %v outside (0,1]", models.ErrInvalidRequest, req.Threshold)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	id := uuid.NewString()
	if c.enforcer != nil {
		decision := c.enforcer.Enforce(ctx, req.FromAgent, "decision.open", "decision/"+id, nil)
		if err := decision.Err(req.FromAgent, "decision.open"); err != nil {
			return nil, err
		}
	}

	now := c.clock.Now()
	d := &models.ConsensusDecision{
		ID:                   id,
		Question:             req.Question,
		Options:              options,
		RequiredParticipants: participants,
		Votes:                make(map[string]string),
		ConsensusThreshold:   req.Threshold,
		Status:               models.DecisionOpen,
		ThreadID:             req.ThreadID,
		TaskID:               req.TaskID,
		CreatedAt:            now,
	}
	if req.Deadline > 0 {
		deadline := now.Add(req.Deadline)
		d.Deadline = &deadline
	}

	c.broadcast(ctx, d, req)
	if req.Deadline > 0 {
		c.timers[id] = c.clock.AfterFunc(req.Deadline, func() {
			c.expire(id)
		})
	}

	c.decisions[id] = d
	c.persist(ctx, d)
	c.publish(d.ID, VoteEvent{Kind: "opened", DecisionID: d.ID})
	c.logf("opened decision %s with %d participants, threshold %.2f", d.ID, len(participants), req.Threshold)
	return d.Clone(), nil
}

// broadcast announces the question to the panel as a decision-type
// message. A missing broadcaster or a failed send leaves the decision
// open; voting does not depend on the announcement. Caller holds the
// coordinator lock.
func (c *Coordinator) broadcast(ctx context.Context, d *models.ConsensusDecision, req OpenRequest) {
	if c.sender == nil {
		return
	}
	recipients := make([]models.Recipient, 0, len(d.RequiredParticipants))
	for _, p := range d.RequiredParticipants {
		if p == req.FromAgent {
			continue
		}
		recipients = append(recipients, models.Recipient{
			AgentID:        p,
			MentionType:    models.MentionDirect,
			ExpectedAction: models.ActionRespond,
		})
	}
	if len(recipients) == 0 {
		return
	}
	msg, err := c.sender.Send(ctx, router.SendRequest{
		FromAgent: req.FromAgent,
		ChannelID: req.ChannelID,
		To:        recipients,
		Content: models.MessageContent{
			MessageType: models.MessageDecision,
			Subject:     "decision: " + d.Question,
			Body:        fmt.Sprintf("%s options: %s", d.Question, strings.Join(d.Options, ", ")),
			Priority:    models.PriorityNormal,
		},
		Context: models.MessageContext{
			TaskID:             d.TaskID,
			ConversationThread: d.ThreadID,
			DecisionPoint:      true,
		},
	})
	if err != nil {
		c.logf("broadcasting decision %s: %v", d.ID, err)
		return
	}
	if d.ThreadID == "" {
		d.ThreadID = msg.Context.ConversationThread
	}
}

// CastVote records a participant's vote and re-evaluates the decision.
// While the decision is open a participant may change their vote; the
// latest one counts. The returned decision is a deep copy reflecting any
// resolution the vote triggered.
func (c *Coordinator) CastVote(ctx context.Context, decisionID, agentID, option string) (*models.ConsensusDecision, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	d, ok := c.decisions[decisionID]
	if !ok {
		return nil, fmt.Errorf("%w: decision %s", models.ErrNotFound, decisionID)
	}
	if d.Status != models.DecisionOpen {
		return nil, fmt.Errorf("%w: decision %s is %s", models.ErrInvalidRequest, decisionID, d.Status)
	}
	if !d.IsParticipant(agentID) {
		return nil, fmt.Errorf("%w: %s is not on the decision panel", models.ErrInvalidRequest, agentID)
	}
	if !d.HasOption(option) {
		return nil, fmt.Errorf("%w: %q is not an option of decision %s", models.ErrInvalidRequest, option, decisionID)
	}
	if c.enforcer != nil {
		decision := c.enforcer.Enforce(ctx, agentID, "vote.cast", "decision/"+decisionID, nil)
		if err := decision.Err(agentID, "vote.cast"); err != nil {
			return nil, err
		}
	}

	d.Votes[agentID] = option
	c.publish(d.ID, VoteEvent{Kind: "vote", DecisionID: d.ID, AgentID: agentID, Option: option})
	c.logf("vote on %s: %s -> %s (%d/%d cast)", d.ID, agentID, option, len(d.Votes), len(d.RequiredParticipants))

	c.evaluate(ctx, d)
	c.persist(ctx, d)
	return d.Clone(), nil
}

// evaluate runs the consensus check after a vote. The leading option's
// share is measured against the whole participant panel, so a threshold
// can be met while some participants have yet to vote; the decision then
// resolves without them. When every participant has voted and no option
// reached the threshold, the decision settles by plurality, or disputed
// on a tie, since only revotes could change the tally. Caller holds the
// coordinator lock.
func (c *Coordinator) evaluate(ctx context.Context, d *models.ConsensusDecision) {
	leaders, best := d.Leaders()
	panel := len(d.RequiredParticipants)
	if len(leaders) == 1 && float64(best)/float64(panel) >= d.ConsensusThreshold {
		c.resolve(ctx, d, models.OutcomeConsensus, leaders[0])
		return
	}
	if len(d.Votes) == panel {
		if len(leaders) == 1 {
			c.resolve(ctx, d, models.OutcomePlurality, leaders[0])
		} else {
			c.resolve(ctx, d, models.OutcomeDisputed, "")
		}
	}
}

// resolve settles a decision and tears down its deadline timer. Caller
// holds the coordinator lock.
func (c *Coordinator) resolve(ctx context.Context, d *models.ConsensusDecision, outcome models.DecisionOutcome, option string) {
	now := c.clock.Now()
	d.Status = models.DecisionResolved
	d.Outcome = outcome
	d.ConsensusOption = option
	d.ResolvedAt = &now
	c.disarm(d.ID)
	c.metrics.IncDecision(string(outcome))
	c.publish(d.ID, VoteEvent{Kind: "resolved", DecisionID: d.ID, Option: option, Outcome: string(outcome)})
	c.logf("decision %s resolved %s (%q)", d.ID, outcome, option)
	if c.onResolve != nil {
		c.onResolve(d.Clone())
	}
}

// expire settles a decision whose deadline passed without consensus. The
// timeout is recorded as the decision's outcome, not raised as an error:
// the leading option wins by plurality, a tied lead is disputed, and an
// empty ballot is disputed with no option.
func (c *Coordinator) expire(decisionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.timers, decisionID)
	d, ok := c.decisions[decisionID]
	if !ok || d.Status != models.DecisionOpen {
		return
	}
	c.logf("decision %s hit its deadline with %d/%d votes", d.ID, len(d.Votes), len(d.RequiredParticipants))

	ctx := context.Background()
	leaders, _ := d.Leaders()
	if len(leaders) == 1 {
		c.resolve(ctx, d, models.OutcomePlurality, leaders[0])
	} else {
		c.resolve(ctx, d, models.OutcomeDisputed, "")
	}
	c.persist(ctx, d)
}

// Restore loads previously persisted decisions into the ledger,
// typically at startup. Open decisions with a deadline re-arm their
// timer with the time remaining; a deadline that passed while no
// process was running settles as soon as the timer service runs.
func (c *Coordinator) Restore(decisions []*models.ConsensusDecision) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, d := range decisions {
		if d == nil || d.ID == "" {
			continue
		}
		if _, ok := c.decisions[d.ID]; ok {
			continue
		}
		restored := d.Clone()
		c.decisions[restored.ID] = restored
		if restored.Status != models.DecisionOpen || restored.Deadline == nil {
			continue
		}
		remaining := restored.Deadline.Sub(c.clock.Now())
		if remaining < 0 {
			remaining = 0
		}
		id := restored.ID
		c.timers[id] = c.clock.AfterFunc(remaining, func() {
			c.expire(id)
		})
		c.logf("restored open decision %s, deadline in %s", id, remaining)
	}
}

// Decision returns a deep copy of a decision by id.
func (c *Coordinator) Decision(id string) (*models.ConsensusDecision, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.decisions[id]
	if !ok {
		return nil, fmt.Errorf("%w: decision %s", models.ErrNotFound, id)
	}
	return d.Clone(), nil
}

// Decisions returns deep copies of every tracked decision, ordered by
// creation time and then id.
func (c *Coordinator) Decisions() []*models.ConsensusDecision {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*models.ConsensusDecision, 0, len(c.decisions))
	for _, d := range c.decisions {
		out = append(out, d.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// CancelTask cancels every open decision belonging to the task and stops
// their deadline timers. Returns how many decisions were cancelled.
func (c *Coordinator) CancelTask(ctx context.Context, taskID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	cancelled := 0
	for _, d := range c.decisions {
		if d.TaskID != taskID || d.Status != models.DecisionOpen {
			continue
		}
		c.cancel(ctx, d)
		cancelled++
	}
	return cancelled
}

// Cancel cancels a single open decision.
func (c *Coordinator) Cancel(ctx context.Context, decisionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.decisions[decisionID]
	if !ok {
		return fmt.Errorf("%w: decision %s", models.ErrNotFound, decisionID)
	}
	if d.Status != models.DecisionOpen {
		return fmt.Errorf("%w: decision %s is %s", models.ErrInvalidRequest, decisionID, d.Status)
	}
	c.cancel(ctx, d)
	return nil
}

func (c *Coordinator) cancel(ctx context.Context, d *models.ConsensusDecision) {
	now := c.clock.Now()
	d.Status = models.DecisionCancelled
	d.ResolvedAt = &now
	c.disarm(d.ID)
	c.persist(ctx, d)
	c.publish(d.ID, VoteEvent{Kind: "cancelled", DecisionID: d.ID})
	c.logf("decision %s cancelled", d.ID)
}

// Close stops every pending deadline timer.
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, t := range c.timers {
		t.Stop()
		delete(c.timers, id)
	}
}

func (c *Coordinator) disarm(decisionID string) {
	if t, ok := c.timers[decisionID]; ok {
		t.Stop()
		delete(c.timers, decisionID)
	}
}

func (c *Coordinator) persist(ctx context.Context, d *models.ConsensusDecision) {
	if c.archive == nil {
		return
	}
	if err := c.archive.SaveDecision(ctx, d); err != nil {
		c.logf("saving decision %s: %v", d.ID, err)
	}
}

func (c *Coordinator) publish(decisionID string, event VoteEvent) {
	if c.bus == nil {
		return
	}
	if err := c.bus.PublishJSON(bus.SubjectDecisionVotes(decisionID), event); err != nil {
		c.logf("publishing vote event for %s: %v", decisionID, err)
	}
}

// dedupe drops empty and repeated entries, keeping first-seen order.
func dedupe(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
