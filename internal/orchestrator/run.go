package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/wesheets/roundtable/internal/agent"
	"github.com/wesheets/roundtable/internal/router"
	"github.com/wesheets/roundtable/internal/scheduler"
	"github.com/wesheets/roundtable/pkg/models"
)

// Run executes an attached task until it reaches a terminal status. Ready
// steps run in waves of at most maxParallel; a wave must finish before the
// next one is derived from the graph. Failed steps walk the retry ladder
// and land back in the ready set, so a retried step simply rejoins a later
// wave. Run returns nil only for a completed task.
func (o *Orchestrator) Run(ctx context.Context, taskID string) error {
	snap, err := o.scheduler.Snapshot(taskID)
	if err != nil {
		return err
	}
	if snap.Status.Terminal() {
		return fmt.Errorf("%w: task %s is %s", models.ErrInvalidRequest, taskID, snap.Status)
	}
	o.logf("orchestrator: running task %s (%d steps)", taskID, len(snap.Steps))
	o.emit(Event{Type: EventTaskStarted, TaskID: taskID})

	// Steps vetoed by policy stay pending in the graph. They are kept out
	// of later waves so a fully vetoed frontier reads as a stall instead
	// of a busy loop.
	denied := make(map[string]bool)

	for {
		if err := ctx.Err(); err != nil {
			o.persistTask(context.Background(), taskID)
			return err
		}
		snap, err := o.scheduler.Snapshot(taskID)
		if err != nil {
			return err
		}
		if snap.Status.Terminal() {
			break
		}
		runnable, err := o.scheduler.Runnable(taskID)
		if err != nil {
			return err
		}
		var wave []string
		for _, id := range runnable {
			if !denied[id] {
				wave = append(wave, id)
			}
		}
		if len(wave) == 0 {
			o.persistTask(ctx, taskID)
			return fmt.Errorf("task %s stalled: %d ready steps, none startable", taskID, len(runnable))
		}

		var g errgroup.Group
		g.SetLimit(o.maxParallel)
		started := 0
		for _, stepID := range wave {
			agentID := stepAgent(snap, stepID)
			if err := o.scheduler.StartStep(ctx, taskID, stepID, agentID); err != nil {
				if errors.Is(err, models.ErrPolicyDenied) {
					denied[stepID] = true
					o.logf("orchestrator: step %s on task %s denied: %v", stepID, taskID, err)
					continue
				}
				o.logf("orchestrator: start step %s on task %s: %v", stepID, taskID, err)
				continue
			}
			started++
			if o.metrics != nil {
				o.metrics.IncStepEvent("started")
			}
			o.emit(Event{Type: EventStepStarted, TaskID: taskID, StepID: stepID, AgentID: agentID})
			g.Go(func() error {
				o.executeStep(ctx, taskID, stepID, agentID)
				return nil
			})
		}
		if started == 0 {
			o.persistTask(ctx, taskID)
			return fmt.Errorf("task %s stalled: no ready step could start", taskID)
		}
		if err := g.Wait(); err != nil {
			return err
		}
		o.persistTask(ctx, taskID)
	}

	final, err := o.scheduler.Snapshot(taskID)
	if err != nil {
		return err
	}
	o.persistTask(ctx, taskID)
	if reason, cancelled := scheduler.CancelReason(final); cancelled {
		// CancelTask already emitted the event and settled the gauge.
		return fmt.Errorf("task %s cancelled: %s", taskID, reason)
	}
	if o.metrics != nil {
		o.metrics.DecActiveTasks()
	}
	if final.Status == models.TaskStatusCompleted {
		o.logf("orchestrator: task %s completed", taskID)
		o.emit(Event{Type: EventTaskCompleted, TaskID: taskID, Message: fmt.Sprintf("%d steps completed", len(final.Steps))})
		return nil
	}
	failed := failedSteps(final)
	o.logf("orchestrator: task %s failed, steps %v", taskID, failed)
	o.emit(Event{Type: EventTaskFailed, TaskID: taskID, Err: "failed steps: " + strings.Join(failed, ", ")})
	return fmt.Errorf("task %s failed, steps: %s", taskID, strings.Join(failed, ", "))
}

// executeStep runs one started step to completion or failure. It runs in
// a wave goroutine; everything it touches locks for itself.
func (o *Orchestrator) executeStep(ctx context.Context, taskID, stepID, agentID string) {
	snap, err := o.scheduler.Snapshot(taskID)
	if err != nil {
		return
	}
	step := snap.Step(stepID)
	if step == nil {
		return
	}

	start := o.clock.Now()
	output, execErr := o.executor.ExecuteStep(ctx, snap, step)
	if o.metrics != nil {
		o.metrics.ObserveStepDuration(string(step.Kind), o.clock.Since(start))
	}

	if execErr == nil {
		unlocked, err := o.scheduler.CompleteStep(ctx, taskID, stepID, output)
		if err == nil {
			o.retry.Reset(taskID, stepID)
			if o.metrics != nil {
				o.metrics.IncStepEvent("completed")
			}
			msg := ""
			if len(unlocked) > 0 {
				msg = "unlocked " + strings.Join(unlocked, ", ")
			}
			o.emit(Event{Type: EventStepCompleted, TaskID: taskID, StepID: stepID, AgentID: agentID, Message: msg})
			return
		}
		execErr = err
	}
	if ctx.Err() != nil {
		// Interrupted, not failed. The step stays in_progress so Resume
		// can pick it up after a restart.
		return
	}
	o.failStep(ctx, taskID, stepID, agentID, execErr)
}

// failStep records a step failure and applies the retry verdict. Retried
// steps go back to pending and rejoin the ready set; exhausted ones
// escalate to the team lead and stay failed.
func (o *Orchestrator) failStep(ctx context.Context, taskID, stepID, agentID string, cause error) {
	if err := o.scheduler.FailStep(ctx, taskID, stepID, cause.Error()); err != nil {
		o.logf("orchestrator: fail step %s on task %s: %v", stepID, taskID, err)
		return
	}
	if o.metrics != nil {
		o.metrics.IncStepEvent("failed")
	}
	o.emit(Event{Type: EventStepFailed, TaskID: taskID, StepID: stepID, AgentID: agentID, Err: cause.Error()})

	fc, verdict := o.retry.HandleFailure(taskID, stepID, cause.Error())
	switch verdict {
	case agent.Retry:
		if err := o.scheduler.RetryStep(ctx, taskID, stepID, agentID); err != nil {
			o.logf("orchestrator: retry step %s on task %s: %v", stepID, taskID, err)
			return
		}
		if o.metrics != nil {
			o.metrics.IncStepEvent("retried")
		}
		o.emit(Event{Type: EventStepRetried, TaskID: taskID, StepID: stepID, AgentID: agentID, Message: fc.Strategy})
	case agent.Escalate:
		o.escalateStep(ctx, taskID, stepID, agentID, fc)
	}
}

// escalateStep hands a step that spent its attempt budget to the team
// lead: a workspace note for the record and a critical escalation message
// carrying the failure history.
func (o *Orchestrator) escalateStep(ctx context.Context, taskID, stepID, agentID string, fc *agent.FailureContext) {
	note := fmt.Sprintf("step %s escalated after %d failed attempts: %s", stepID, fc.Attempt, fc.Err)
	if err := o.scheduler.AddNote(taskID, agentID, note); err != nil {
		o.logf("orchestrator: note on task %s: %v", taskID, err)
	}

	snap, err := o.scheduler.Snapshot(taskID)
	if err != nil {
		return
	}
	lead := ""
	if snap.Team != nil {
		lead = snap.Team.LeadAgent
	}
	if lead != "" && lead != agentID {
		history := o.retry.Failures(taskID, stepID)
		_, sendErr := o.SendMessage(ctx, router.SendRequest{
			FromAgent: agentID,
			ChannelID: "orchestration",
			To: []models.Recipient{{
				AgentID:        lead,
				MentionType:    models.MentionUrgent,
				ExpectedAction: models.ActionRespond,
			}},
			Content: models.MessageContent{
				MessageType: models.MessageEscalation,
				Subject:     fmt.Sprintf("Step %s blocked on task %s", stepID, taskID),
				Body: fmt.Sprintf("Step %s has failed %d times and needs your call. Last error: %s. Attempts: %s.",
					stepID, fc.Attempt, fc.Err, strings.Join(history, "; ")),
				Priority: models.PriorityCritical,
			},
			Context: models.MessageContext{TaskID: taskID, StepID: stepID},
			Team:    snap.Team,
		})
		if sendErr != nil {
			o.logf("orchestrator: escalation message for step %s on task %s: %v", stepID, taskID, sendErr)
		}
	}
	if o.metrics != nil {
		o.metrics.IncStepEvent("escalated")
	}
	o.emit(Event{Type: EventStepEscalated, TaskID: taskID, StepID: stepID, AgentID: agentID, Err: fc.Err, Message: fc.Strategy})
}

// stepAgent picks who runs a step: its first assigned agent, then the
// team lead, then the orchestrator itself.
func stepAgent(task *models.CollaborativeTask, stepID string) string {
	if step := task.Step(stepID); step != nil && len(step.AssignedAgents) > 0 {
		return step.AssignedAgents[0]
	}
	if task.Team != nil && task.Team.LeadAgent != "" {
		return task.Team.LeadAgent
	}
	return "orchestrator"
}

func failedSteps(task *models.CollaborativeTask) []string {
	var ids []string
	for _, step := range task.Steps {
		if step.Status == models.StepStatusFailed {
			ids = append(ids, step.ID)
		}
	}
	return ids
}
