package orchestrator

import (
	"github.com/benbjohnson/clock"

	"github.com/wesheets/roundtable/internal/agent"
	"github.com/wesheets/roundtable/internal/bus"
	"github.com/wesheets/roundtable/internal/classify"
	"github.com/wesheets/roundtable/internal/decompose"
	"github.com/wesheets/roundtable/internal/metrics"
	"github.com/wesheets/roundtable/internal/policy"
	"github.com/wesheets/roundtable/internal/registry"
	"github.com/wesheets/roundtable/internal/state"
)

// Config carries the required collaborators for an Orchestrator.
type Config struct {
	// Store persists tasks, messages, decisions, and threads.
	Store *state.DB
	// Registry resolves agent profiles for routing and team composition.
	Registry *registry.Registry
}

// Option configures an Orchestrator. Use the With* functions.
type Option func(*options)

type options struct {
	executor    agent.Executor
	retry       *agent.RetryPolicy
	enforcer    policy.Enforcer
	busClient   *bus.Client
	metrics     *metrics.Metrics
	logger      *DebugLogger
	clock       clock.Clock
	decomposer  *decompose.Decomposer
	maxParallel int
	eventBuffer int
}

// WithExecutor sets the step executor. The default is the deterministic
// local executor.
func WithExecutor(e agent.Executor) Option {
	return func(o *options) { o.executor = e }
}

// WithRetryPolicy sets the step retry policy.
func WithRetryPolicy(p *agent.RetryPolicy) Option {
	return func(o *options) { o.retry = p }
}

// WithPolicy sets the compliance enforcer consulted by the scheduler,
// router, and consensus coordinator.
func WithPolicy(e policy.Enforcer) Option {
	return func(o *options) { o.enforcer = e }
}

// WithBus mirrors messages, task events, votes, and escalations onto the
// message bus.
func WithBus(c *bus.Client) Option {
	return func(o *options) { o.busClient = c }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithLogger sets the debug logger.
func WithLogger(l *DebugLogger) Option {
	return func(o *options) { o.logger = l }
}

// WithClock overrides the clock, for tests.
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithDecomposer sets a custom decomposer, mainly for tests or for
// swapping in the LLM-backed classifier.
func WithDecomposer(d *decompose.Decomposer) Option {
	return func(o *options) { o.decomposer = d }
}

// WithClassifier builds the decomposer around a specific classifier
// strategy. Ignored when WithDecomposer is also given.
func WithClassifier(dc classify.DomainClassifier, ci classify.CapabilityInferrer) Option {
	return func(o *options) {
		if o.decomposer == nil {
			o.decomposer = decompose.New(dc, ci)
		}
	}
}

// WithMaxParallel bounds concurrent step execution within a task. The
// default is four.
func WithMaxParallel(n int) Option {
	return func(o *options) { o.maxParallel = n }
}

// WithEventBuffer sets the event channel buffer size.
func WithEventBuffer(n int) Option {
	return func(o *options) { o.eventBuffer = n }
}
