package orchestrator

import (
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// EventType classifies an orchestrator event.
type EventType string

const (
	// EventTaskPlanned fires when a request has been decomposed and a
	// team composed.
	EventTaskPlanned EventType = "task_planned"
	// EventTaskStarted fires when a task's run loop begins.
	EventTaskStarted EventType = "task_started"
	// EventTaskCompleted fires when every step of a task completed.
	EventTaskCompleted EventType = "task_completed"
	// EventTaskFailed fires when a task can no longer complete.
	EventTaskFailed EventType = "task_failed"
	// EventTaskCancelled fires when a task is cancelled and its timers
	// and votes are torn down.
	EventTaskCancelled EventType = "task_cancelled"
	// EventTaskResumed fires when an interrupted task is reloaded.
	EventTaskResumed EventType = "task_resumed"
	// EventStepStarted fires when a step enters in_progress.
	EventStepStarted EventType = "step_started"
	// EventStepCompleted fires when a step completes.
	EventStepCompleted EventType = "step_completed"
	// EventStepFailed fires when a step fails.
	EventStepFailed EventType = "step_failed"
	// EventStepRetried fires when a failed step is reset to pending.
	EventStepRetried EventType = "step_retried"
	// EventStepEscalated fires when a step's failures exhausted the
	// retry budget and the team lead was notified.
	EventStepEscalated EventType = "step_escalated"
	// EventMessageSent fires when the router accepts a message.
	EventMessageSent EventType = "message_sent"
	// EventEscalationFired fires when a message escalation timer expires.
	EventEscalationFired EventType = "escalation_fired"
	// EventDecisionOpened fires when a consensus decision opens.
	EventDecisionOpened EventType = "decision_opened"
	// EventDecisionResolved fires when a decision leaves the open state.
	EventDecisionResolved EventType = "decision_resolved"
)

// Event is one orchestrator occurrence, consumed by the CLI and the
// websocket stream.
type Event struct {
	// Type is the kind of event.
	Type EventType `json:"type"`
	// TaskID is the related task, if any.
	TaskID string `json:"taskId,omitempty"`
	// StepID is the related step, if any.
	StepID string `json:"stepId,omitempty"`
	// AgentID is the related agent, if any.
	AgentID string `json:"agentId,omitempty"`
	// MessageID is the related message, if any.
	MessageID string `json:"messageId,omitempty"`
	// DecisionID is the related decision, if any.
	DecisionID string `json:"decisionId,omitempty"`
	// Message is human-readable context.
	Message string `json:"message,omitempty"`
	// Err carries failure details for failure events.
	Err string `json:"error,omitempty"`
	// Timestamp is when the event occurred, on the orchestrator clock.
	Timestamp time.Time `json:"timestamp"`
}

// Emitter fans orchestrator events out to one consumer channel. Emission
// never blocks the run loop: a full channel drops the event after a
// short grace period.
type Emitter struct {
	events    chan Event
	dropped   atomic.Uint64
	closeOnce sync.Once
}

// NewEmitter creates an emitter with the given buffer size.
func NewEmitter(bufferSize int) *Emitter {
	if bufferSize < 1 {
		bufferSize = 64
	}
	return &Emitter{events: make(chan Event, bufferSize)}
}

// Emit sends an event. If the channel stays full past a short wait, the
// event is dropped and counted.
func (e *Emitter) Emit(event Event) {
	select {
	case e.events <- event:
		return
	default:
	}

	select {
	case e.events <- event:
	case <-time.After(100 * time.Millisecond):
		count := e.dropped.Add(1)
		if count%10 == 1 {
			log.Printf("[orchestrator] event channel full, dropped %s (total dropped %d)", event.Type, count)
		}
	}
}

// Events returns the consumer side of the event stream.
func (e *Emitter) Events() <-chan Event {
	return e.events
}

// Close closes the event stream. Call only after the last Emit.
func (e *Emitter) Close() {
	e.closeOnce.Do(func() { close(e.events) })
}
