// Package scheduler owns the mutable state of collaborative tasks. It
// enforces the step lifecycle (pending, in_progress, completed, failed,
// blocked), keeps progress snapshots current, and derives task status
// from step state. Each task has a single writer: every mutation runs
// under that task's lock, while readers receive deep-copied snapshots.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/wesheets/roundtable/internal/graph"
	"github.com/wesheets/roundtable/internal/policy"
	"github.com/wesheets/roundtable/pkg/models"
)

// cancelReasonKey marks a cancelled task in its workspace context so the
// cancellation survives serialization and blocks later retries.
const cancelReasonKey = "cancelReason"

// Scheduler tracks attached tasks and applies step transitions.
type Scheduler struct {
	mu       sync.RWMutex
	tasks    map[string]*entry
	enforcer policy.Enforcer
	now      func() time.Time
	debugLog func(format string, args ...interface{})
}

type entry struct {
	mu    sync.Mutex
	task  *models.CollaborativeTask
	graph *graph.StepGraph
}

func New() *Scheduler {
	return &Scheduler{
		tasks: make(map[string]*entry),
		now:   time.Now,
	}
}

// SetPolicy installs a compliance collaborator consulted before step
// transitions and cancellation. Without one, every action is allowed.
func (s *Scheduler) SetPolicy(enforcer policy.Enforcer) {
	s.enforcer = enforcer
}

// SetNow overrides the clock, for tests.
func (s *Scheduler) SetNow(now func() time.Time) {
	s.now = now
}

// SetDebugLog installs an optional logging hook for transitions.
func (s *Scheduler) SetDebugLog(fn func(format string, args ...interface{})) {
	s.debugLog = fn
}

func (s *Scheduler) logf(format string, args ...interface{}) {
	if s.debugLog != nil {
		s.debugLog(format, args...)
	}
}

// Attach registers a task and recomputes its derived state: dependency
// validation, critical path, parallel groups, blocked markers, and the
// progress snapshot. Attaching a freshly decomposed task is a no-op
// beyond registration; attaching a restored task rebuilds exactly the
// derived state the original scheduler held, so persistence round-trips
// do not drift. Construction-time validation failures reject the task.
func (s *Scheduler) Attach(task *models.CollaborativeTask) error {
	if task == nil || task.ID == "" {
		return fmt.Errorf("%w: task missing id", models.ErrInvalidRequest)
	}
	if len(task.Steps) == 0 {
		return fmt.Errorf("%w: task %s has no steps", models.ErrInvalidRequest, task.ID)
	}

	g, err := graph.Build(task.Steps)
	if err != nil {
		return err
	}
	if s.debugLog != nil {
		g.SetDebugLog(s.debugLog)
	}

	for _, step := range task.Steps {
		if step.Status == models.StepStatusInProgress && !dependenciesCompleted(task, step) {
			return fmt.Errorf("%w: step %s is in_progress with incomplete dependencies", models.ErrInvalidRequest, step.ID)
		}
	}

	task.CriticalPath = g.CriticalPath()
	task.ParallelGroups = g.ParallelGroups()
	recomputeBlocked(task, g)
	recomputeProgress(task)
	if !task.Status.Valid() {
		task.Status = models.TaskStatusPlanning
	}
	if task.Status != models.TaskStatusPlanning && !task.Status.Terminal() {
		s.recomputeStatus(task, g)
	}

	s.mu.Lock()
	s.tasks[task.ID] = &entry{task: task, graph: g}
	s.mu.Unlock()

	s.logf("scheduler: attached task %s with %d steps", task.ID, len(task.Steps))
	return nil
}

// Remove forgets an attached task. State already persisted elsewhere is
// unaffected.
func (s *Scheduler) Remove(taskID string) {
	s.mu.Lock()
	delete(s.tasks, taskID)
	s.mu.Unlock()
}

// TaskIDs returns the ids of all attached tasks, sorted.
func (s *Scheduler) TaskIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.tasks))
	for id := range s.tasks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s *Scheduler) entryFor(taskID string) (*entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.tasks[taskID]
	if !ok {
		return nil, fmt.Errorf("%w: task %s", models.ErrNotFound, taskID)
	}
	return e, nil
}

// StartStep moves a pending step to in_progress on behalf of agentID.
// The transition is refused unless every dependency is completed. The
// agent is recorded on the step's assignment list.
func (s *Scheduler) StartStep(ctx context.Context, taskID, stepID, agentID string) error {
	e, err := s.entryFor(taskID)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	task := e.task
	if task.Status.Terminal() {
		return fmt.Errorf("%w: task %s is %s", models.ErrInvalidRequest, taskID, task.Status)
	}
	step := task.Step(stepID)
	if step == nil {
		return fmt.Errorf("%w: step %s", models.ErrNotFound, stepID)
	}
	if step.Status != models.StepStatusPending {
		return fmt.Errorf("%w: step %s is %s, not pending", models.ErrInvalidRequest, stepID, step.Status)
	}
	if !dependenciesCompleted(task, step) {
		return fmt.Errorf("%w: step %s has incomplete dependencies", models.ErrInvalidRequest, stepID)
	}

	if err := s.checkPolicy(ctx, task, agentID, "step.start", stepResource(taskID, stepID), map[string]string{
		"kind": string(step.Kind),
	}); err != nil {
		return err
	}

	now := s.now()
	step.Status = models.StepStatusInProgress
	step.StartedAt = &now
	if agentID != "" && !contains(step.AssignedAgents, agentID) {
		step.AssignedAgents = append(step.AssignedAgents, agentID)
	}
	if task.Status == models.TaskStatusPlanning {
		task.Status = models.TaskStatusExecuting
	}
	recomputeProgress(task)
	s.recomputeStatus(task, e.graph)
	s.logf("scheduler: step %s started by %s on task %s", stepID, agentID, taskID)
	return nil
}

// CompleteStep moves an in_progress step to completed and records its
// output. It returns the ids of steps whose dependencies became fully
// satisfied by this completion, in step order.
func (s *Scheduler) CompleteStep(ctx context.Context, taskID, stepID string, output *models.StepOutput) ([]string, error) {
	e, err := s.entryFor(taskID)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	task := e.task
	if task.Status.Terminal() {
		return nil, fmt.Errorf("%w: task %s is %s", models.ErrInvalidRequest, taskID, task.Status)
	}
	step := task.Step(stepID)
	if step == nil {
		return nil, fmt.Errorf("%w: step %s", models.ErrNotFound, stepID)
	}
	if step.Status != models.StepStatusInProgress {
		return nil, fmt.Errorf("%w: step %s is %s, not in_progress", models.ErrInvalidRequest, stepID, step.Status)
	}

	meta := map[string]string{"kind": string(step.Kind)}
	if output != nil && output.Confidence < 0.5 {
		meta["confidence"] = "low"
	}
	agentID := firstAssigned(step)
	if err := s.checkPolicy(ctx, task, agentID, "step.complete", stepResource(taskID, stepID), meta); err != nil {
		return nil, err
	}

	wasReady := readySet(e.graph)
	now := s.now()
	step.Status = models.StepStatusCompleted
	step.CompletedAt = &now
	step.Output = output

	var unlocked []string
	for _, id := range e.graph.Ready() {
		if !wasReady[id] {
			unlocked = append(unlocked, id)
		}
	}

	recomputeProgress(task)
	s.recomputeStatus(task, e.graph)
	s.logf("scheduler: step %s completed on task %s, unlocked %v", stepID, taskID, unlocked)
	return unlocked, nil
}

// FailStep moves an in_progress step to failed and blocks every step
// that transitively depends on it. The failed step stays in the graph;
// nothing is skipped or dropped.
func (s *Scheduler) FailStep(ctx context.Context, taskID, stepID, reason string) error {
	e, err := s.entryFor(taskID)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	task := e.task
	if task.Status.Terminal() {
		return fmt.Errorf("%w: task %s is %s", models.ErrInvalidRequest, taskID, task.Status)
	}
	step := task.Step(stepID)
	if step == nil {
		return fmt.Errorf("%w: step %s", models.ErrNotFound, stepID)
	}
	if step.Status != models.StepStatusInProgress {
		return fmt.Errorf("%w: step %s is %s, not in_progress", models.ErrInvalidRequest, stepID, step.Status)
	}

	now := s.now()
	step.Status = models.StepStatusFailed
	step.Error = reason
	step.CompletedAt = &now
	recomputeBlocked(task, e.graph)
	recomputeProgress(task)
	s.recomputeStatus(task, e.graph)
	s.logf("scheduler: step %s failed on task %s: %s", stepID, taskID, reason)
	return nil
}

// RetryStep resets a failed step to pending and unblocks dependents that
// no longer have a failed ancestor. Retrying may revive a task that dead
// ended in failed status; cancelled tasks stay down.
func (s *Scheduler) RetryStep(ctx context.Context, taskID, stepID, agentID string) error {
	e, err := s.entryFor(taskID)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	task := e.task
	if task.Status == models.TaskStatusCompleted {
		return fmt.Errorf("%w: task %s is completed", models.ErrInvalidRequest, taskID)
	}
	if _, cancelled := task.Workspace.Context[cancelReasonKey]; cancelled {
		return fmt.Errorf("%w: task %s was cancelled", models.ErrInvalidRequest, taskID)
	}
	step := task.Step(stepID)
	if step == nil {
		return fmt.Errorf("%w: step %s", models.ErrNotFound, stepID)
	}
	if step.Status != models.StepStatusFailed {
		return fmt.Errorf("%w: step %s is %s, not failed", models.ErrInvalidRequest, stepID, step.Status)
	}

	if err := s.checkPolicy(ctx, task, agentID, "step.retry", stepResource(taskID, stepID), map[string]string{
		"kind": string(step.Kind),
	}); err != nil {
		return err
	}

	step.Status = models.StepStatusPending
	step.Error = ""
	step.StartedAt = nil
	step.CompletedAt = nil
	step.Output = nil
	task.CompletedAt = nil
	recomputeBlocked(task, e.graph)
	recomputeProgress(task)
	if task.Status == models.TaskStatusFailed {
		task.Status = models.TaskStatusExecuting
	}
	s.recomputeStatus(task, e.graph)
	s.logf("scheduler: step %s retried on task %s", stepID, taskID)
	return nil
}

// Cancel marks a task failed and records the reason in its workspace.
// Escalation timers and votes attached to the task are the caller's to
// tear down; the scheduler only freezes task state. Cancellation is
// policy checked when an agent id is given.
func (s *Scheduler) Cancel(ctx context.Context, taskID, agentID, reason string) error {
	e, err := s.entryFor(taskID)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	task := e.task
	if task.Status.Terminal() {
		return fmt.Errorf("%w: task %s is %s", models.ErrInvalidRequest, taskID, task.Status)
	}
	if agentID != "" {
		if err := s.checkPolicy(ctx, task, agentID, "task.cancel", "task/"+taskID, nil); err != nil {
			return err
		}
	}

	now := s.now()
	if task.Workspace.Context == nil {
		task.Workspace.Context = make(map[string]string)
	}
	task.Workspace.Context[cancelReasonKey] = reason
	task.Workspace.Notes = append(task.Workspace.Notes, models.WorkspaceNote{
		Author: authorOr(agentID, "operator"),
		Text:   "task cancelled: " + reason,
		At:     now,
	})
	task.Status = models.TaskStatusFailed
	task.CompletedAt = &now
	s.logf("scheduler: task %s cancelled: %s", taskID, reason)
	return nil
}

// CancelReason reports the recorded cancellation reason for a task, if it
// was cancelled. Cancelled tasks read as failed in status; this is how
// callers tell the two apart.
func CancelReason(task *models.CollaborativeTask) (string, bool) {
	if task == nil {
		return "", false
	}
	reason, ok := task.Workspace.Context[cancelReasonKey]
	return reason, ok
}

// Progress returns a copy of the task's progress snapshot.
func (s *Scheduler) Progress(taskID string) (models.TaskProgress, error) {
	e, err := s.entryFor(taskID)
	if err != nil {
		return models.TaskProgress{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.task.Progress.Clone(), nil
}

// Snapshot returns a deep copy of the task for readers. Mutations to the
// copy never touch scheduler state.
func (s *Scheduler) Snapshot(taskID string) (*models.CollaborativeTask, error) {
	e, err := s.entryFor(taskID)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.task.Clone(), nil
}

// Runnable returns the ids of steps that are pending with every
// dependency completed, in step order.
func (s *Scheduler) Runnable(taskID string) ([]string, error) {
	e, err := s.entryFor(taskID)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.graph.Ready(), nil
}

// AssignTeam attaches a team composition to the task and mirrors member
// assignments onto steps whose required capabilities match a member's
// expertise.
func (s *Scheduler) AssignTeam(taskID string, team *models.TeamComposition) error {
	e, err := s.entryFor(taskID)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	task := e.task
	if task.Status.Terminal() {
		return fmt.Errorf("%w: task %s is %s", models.ErrInvalidRequest, taskID, task.Status)
	}
	task.Team = team
	if team == nil {
		return nil
	}
	for _, step := range task.Steps {
		if step.Status != models.StepStatusPending || len(step.AssignedAgents) > 0 {
			continue
		}
		for _, member := range team.Members {
			if expertiseCovers(member, step.RequiredCapabilities) {
				step.AssignedAgents = append(step.AssignedAgents, member.AgentID)
				break
			}
		}
		if len(step.AssignedAgents) == 0 && team.LeadAgent != "" {
			step.AssignedAgents = append(step.AssignedAgents, team.LeadAgent)
		}
	}
	s.logf("scheduler: team assigned on task %s, lead %s", taskID, team.LeadAgent)
	return nil
}

// SetContext writes a key into the task's shared workspace context.
func (s *Scheduler) SetContext(taskID, key, value string) error {
	e, err := s.entryFor(taskID)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if key == "" {
		return fmt.Errorf("%w: context key is empty", models.ErrInvalidRequest)
	}
	if e.task.Status.Terminal() {
		return fmt.Errorf("%w: task %s is %s", models.ErrInvalidRequest, taskID, e.task.Status)
	}
	if e.task.Workspace.Context == nil {
		e.task.Workspace.Context = make(map[string]string)
	}
	e.task.Workspace.Context[key] = value
	return nil
}

// AddNote appends to the task's collaborative note log.
func (s *Scheduler) AddNote(taskID, author, text string) error {
	e, err := s.entryFor(taskID)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if text == "" {
		return fmt.Errorf("%w: note text is empty", models.ErrInvalidRequest)
	}
	e.task.Workspace.Notes = append(e.task.Workspace.Notes, models.WorkspaceNote{
		Author: authorOr(author, "orchestrator"),
		Text:   text,
		At:     s.now(),
	})
	return nil
}

// LogConflict records a disagreement between agents over a step. It
// returns the index of the new entry for later resolution.
func (s *Scheduler) LogConflict(taskID, stepID, description string, agents []string) (int, error) {
	e, err := s.entryFor(taskID)
	if err != nil {
		return 0, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if description == "" {
		return 0, fmt.Errorf("%w: conflict description is empty", models.ErrInvalidRequest)
	}
	if stepID != "" && e.task.Step(stepID) == nil {
		return 0, fmt.Errorf("%w: step %s", models.ErrNotFound, stepID)
	}
	e.task.Workspace.Conflicts = append(e.task.Workspace.Conflicts, models.ConflictEntry{
		StepID:      stepID,
		Agents:      append([]string(nil), agents...),
		Description: description,
		At:          s.now(),
	})
	s.logf("scheduler: conflict logged on task %s step %s: %s", taskID, stepID, description)
	return len(e.task.Workspace.Conflicts) - 1, nil
}

// ResolveConflict marks a logged conflict settled.
func (s *Scheduler) ResolveConflict(taskID string, index int) error {
	e, err := s.entryFor(taskID)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if index < 0 || index >= len(e.task.Workspace.Conflicts) {
		return fmt.Errorf("%w: conflict %d on task %s", models.ErrNotFound, index, taskID)
	}
	e.task.Workspace.Conflicts[index].Resolved = true
	return nil
}

func (s *Scheduler) checkPolicy(ctx context.Context, task *models.CollaborativeTask, agentID, action, resource string, meta map[string]string) error {
	if s.enforcer == nil {
		return nil
	}
	if meta == nil {
		meta = map[string]string{}
	}
	meta["role"] = roleFor(task, agentID)
	decision := s.enforcer.Enforce(ctx, agentID, action, resource, meta)
	for _, warning := range decision.Warnings {
		task.Workspace.Notes = append(task.Workspace.Notes, models.WorkspaceNote{
			Author: "policy",
			Text:   warning,
			At:     s.now(),
		})
	}
	for _, required := range decision.RequiredActions {
		task.Workspace.Notes = append(task.Workspace.Notes, models.WorkspaceNote{
			Author: "policy",
			Text:   "required: " + required,
			At:     s.now(),
		})
	}
	return decision.Err(agentID, action)
}

// recomputeStatus derives the task status from step state. Planning is
// left alone (StartStep exits it) and terminal states set by Cancel are
// never revisited here because mutations are refused on terminal tasks.
func (s *Scheduler) recomputeStatus(task *models.CollaborativeTask, g *graph.StepGraph) {
	if task.Status == models.TaskStatusPlanning {
		return
	}

	total := len(task.Steps)
	completed, failed, inProgress := 0, 0, 0
	nonValidationRemaining := false
	for _, step := range task.Steps {
		switch step.Status {
		case models.StepStatusCompleted:
			completed++
		case models.StepStatusFailed:
			failed++
		case models.StepStatusInProgress:
			inProgress++
		}
		if step.Status != models.StepStatusCompleted && step.Kind != models.StepKindValidation {
			nonValidationRemaining = true
		}
	}

	switch {
	case completed == total:
		task.Status = models.TaskStatusCompleted
		if task.CompletedAt == nil {
			at := s.now()
			task.CompletedAt = &at
		}
	case failed > 0 && inProgress == 0 && len(g.Ready()) == 0:
		task.Status = models.TaskStatusFailed
		if task.CompletedAt == nil {
			at := s.now()
			task.CompletedAt = &at
		}
	case !nonValidationRemaining:
		task.Status = models.TaskStatusReviewing
		task.CompletedAt = nil
	default:
		task.Status = models.TaskStatusExecuting
		task.CompletedAt = nil
	}
}

// recomputeProgress rebuilds the progress id lists from step status, in
// step order. Failed steps belong to none of the three lists; they are
// visible through their own status and through blocked dependents.
func recomputeProgress(task *models.CollaborativeTask) {
	var completed, current, blocked []string
	for _, step := range task.Steps {
		switch step.Status {
		case models.StepStatusCompleted:
			completed = append(completed, step.ID)
		case models.StepStatusInProgress:
			current = append(current, step.ID)
		case models.StepStatusPending:
			if dependenciesCompleted(task, step) {
				current = append(current, step.ID)
			}
		case models.StepStatusBlocked:
			blocked = append(blocked, step.ID)
		}
	}
	task.Progress = models.TaskProgress{
		CompletedSteps:  completed,
		CurrentSteps:    current,
		BlockedSteps:    blocked,
		OverallProgress: float64(len(completed)) / float64(len(task.Steps)),
	}
}

// recomputeBlocked rewrites the pending/blocked split: a step is blocked
// exactly when some transitive dependency is failed. Completed, failed,
// and in_progress steps keep their status.
func recomputeBlocked(task *models.CollaborativeTask, g *graph.StepGraph) {
	failed := make(map[string]bool)
	for _, step := range task.Steps {
		if step.Status == models.StepStatusFailed {
			failed[step.ID] = true
		}
	}
	for _, step := range task.Steps {
		if step.Status != models.StepStatusPending && step.Status != models.StepStatusBlocked {
			continue
		}
		if hasFailedAncestor(task, g, step.ID, failed) {
			step.Status = models.StepStatusBlocked
		} else {
			step.Status = models.StepStatusPending
		}
	}
}

func hasFailedAncestor(task *models.CollaborativeTask, g *graph.StepGraph, id string, failed map[string]bool) bool {
	seen := make(map[string]bool)
	stack := append([]string(nil), g.Dependencies(id)...)
	for len(stack) > 0 {
		dep := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[dep] {
			continue
		}
		seen[dep] = true
		if failed[dep] {
			return true
		}
		stack = append(stack, g.Dependencies(dep)...)
	}
	return false
}

func dependenciesCompleted(task *models.CollaborativeTask, step *models.ReasoningStep) bool {
	for _, dep := range step.Dependencies {
		depStep := task.Step(dep)
		if depStep == nil || depStep.Status != models.StepStatusCompleted {
			return false
		}
	}
	return true
}

func readySet(g *graph.StepGraph) map[string]bool {
	set := make(map[string]bool)
	for _, id := range g.Ready() {
		set[id] = true
	}
	return set
}

func stepResource(taskID, stepID string) string {
	return "task/" + taskID + "/step/" + stepID
}

func roleFor(task *models.CollaborativeTask, agentID string) string {
	switch {
	case agentID == "":
		return "system"
	case task.Team != nil && task.Team.LeadAgent == agentID:
		return "lead"
	default:
		return "agent"
	}
}

func firstAssigned(step *models.ReasoningStep) string {
	if len(step.AssignedAgents) == 0 {
		return ""
	}
	return step.AssignedAgents[0]
}

func authorOr(agentID, fallback string) string {
	if agentID != "" {
		return agentID
	}
	return fallback
}

func contains(list []string, want string) bool {
	for _, item := range list {
		if item == want {
			return true
		}
	}
	return false
}

func expertiseCovers(member models.TeamMember, capabilities []string) bool {
	if len(capabilities) == 0 {
		return false
	}
	for _, capability := range capabilities {
		for _, expertise := range member.Expertise {
			if capability == expertise {
				return true
			}
		}
	}
	return false
}
