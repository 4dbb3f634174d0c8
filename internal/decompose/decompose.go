// Package decompose turns a natural-language request into a collaborative
// task: a DAG of reasoning steps with estimated durations and required
// capabilities, plus the derived critical path and parallel groups.
package decompose

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wesheets/roundtable/internal/classify"
	"github.com/wesheets/roundtable/internal/graph"
	"github.com/wesheets/roundtable/pkg/models"
)

// Default step durations in minutes, by step kind.
const (
	analysisDuration   = 15
	domainDuration     = 30
	synthesisDuration  = 20
	validationDuration = 10
)

// qualityGateThreshold is the quality requirement above which validation
// gets double effort.
const qualityGateThreshold = 0.8

// Decomposer builds collaborative tasks from requests. Domain detection
// and capability inference are pluggable; graph construction is not.
type Decomposer struct {
	classifier classify.DomainClassifier
	inferrer   classify.CapabilityInferrer
	now        func() time.Time
	debugLog   func(format string, args ...interface{})
}

// New creates a Decomposer with the given classifier strategies.
func New(classifier classify.DomainClassifier, inferrer classify.CapabilityInferrer) *Decomposer {
	return &Decomposer{
		classifier: classifier,
		inferrer:   inferrer,
		now:        time.Now,
		debugLog:   func(format string, args ...interface{}) {},
	}
}

// SetDebugLog sets the debug logging function.
func (d *Decomposer) SetDebugLog(fn func(format string, args ...interface{})) {
	if fn != nil {
		d.debugLog = fn
	}
}

// SetNow overrides the clock used for creation timestamps.
func (d *Decomposer) SetNow(now func() time.Time) {
	if now != nil {
		d.now = now
	}
}

// Decompose builds a task graph for the request: an initial analysis step,
// one delegation step per detected domain, a synthesis step when the
// request spans more than one domain or asks for synthesis itself, and a
// terminal validation step. Construction fails fast on malformed input or
// a cyclic graph.
func (d *Decomposer) Decompose(ctx context.Context, request string, constraints models.Constraints) (*models.CollaborativeTask, error) {
	if strings.TrimSpace(request) == "" {
		return nil, fmt.Errorf("%w: empty request", models.ErrInvalidRequest)
	}

	domains, err := d.classifier.Domains(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("domain classification: %w", err)
	}
	d.debugLog("[decompose] request %q -> domains %v", request, domains)

	// A detected synthesis domain becomes the task's synthesis step
	// rather than a domain step of its own.
	wantSynthesis := false
	var domainNames []string
	for _, domain := range domains {
		if domain == classify.DomainSynthesis {
			wantSynthesis = true
			continue
		}
		domainNames = append(domainNames, domain)
	}

	seq := 1
	analysis := &models.ReasoningStep{
		ID:                   uuid.NewString(),
		SequenceNumber:       seq,
		Description:          "Analyze the request and frame the problem",
		Kind:                 models.StepKindAnalysis,
		RequiredCapabilities: []string{"analytical-reasoning"},
		EstimatedDuration:    analysisDuration,
		Status:               models.StepStatusPending,
	}
	steps := []*models.ReasoningStep{analysis}

	var domainSteps []*models.ReasoningStep
	for _, domain := range domainNames {
		seq++
		step := &models.ReasoningStep{
			ID:                   uuid.NewString(),
			SequenceNumber:       seq,
			Description:          fmt.Sprintf("Work the %s aspects of the request", domain),
			Kind:                 models.StepKindDelegation,
			RequiredCapabilities: d.inferrer.Capabilities(domain),
			Dependencies:         []string{analysis.ID},
			EstimatedDuration:    domainDuration,
			Status:               models.StepStatusPending,
		}
		domainSteps = append(domainSteps, step)
		steps = append(steps, step)
	}

	var synthesis *models.ReasoningStep
	if wantSynthesis || len(domainSteps) > 1 {
		deps := make([]string, 0, len(domainSteps))
		for _, step := range domainSteps {
			deps = append(deps, step.ID)
		}
		if len(deps) == 0 {
			deps = []string{analysis.ID}
		}
		seq++
		synthesis = &models.ReasoningStep{
			ID:                   uuid.NewString(),
			SequenceNumber:       seq,
			Description:          "Synthesize domain results into a recommendation",
			Kind:                 models.StepKindSynthesis,
			RequiredCapabilities: []string{"synthesis"},
			Dependencies:         deps,
			EstimatedDuration:    synthesisDuration,
			Status:               models.StepStatusPending,
		}
		steps = append(steps, synthesis)
	}

	// Validation depends on the prior terminal step.
	terminal := analysis
	if synthesis != nil {
		terminal = synthesis
	} else if len(domainSteps) == 1 {
		terminal = domainSteps[0]
	}
	validationEffort := validationDuration
	if constraints.QualityRequirement >= qualityGateThreshold {
		validationEffort *= 2
	}
	seq++
	validation := &models.ReasoningStep{
		ID:                   uuid.NewString(),
		SequenceNumber:       seq,
		Description:          "Validate the result against the request",
		Kind:                 models.StepKindValidation,
		RequiredCapabilities: []string{"validation"},
		Dependencies:         []string{terminal.ID},
		EstimatedDuration:    validationEffort,
		Status:               models.StepStatusPending,
	}
	steps = append(steps, validation)

	g, err := graph.Build(steps)
	if err != nil {
		return nil, err
	}

	task := &models.CollaborativeTask{
		ID:             uuid.NewString(),
		Request:        request,
		Constraints:    constraints,
		Steps:          steps,
		CriticalPath:   g.CriticalPath(),
		ParallelGroups: g.ParallelGroups(),
		Workspace: models.SharedWorkspace{
			Context: map[string]string{
				"request": request,
				"domains": strings.Join(domains, ","),
			},
		},
		Progress: models.TaskProgress{
			CompletedSteps: []string{},
			CurrentSteps:   g.Ready(),
			BlockedSteps:   []string{},
		},
		Status:    models.TaskStatusPlanning,
		CreatedAt: d.now(),
	}

	if constraints.MaxTime > 0 {
		total := 0
		for _, id := range task.CriticalPath {
			total += task.Step(id).EstimatedDuration
		}
		if total > constraints.MaxTime {
			task.Workspace.Context["timeConstraint"] = fmt.Sprintf(
				"critical path %dm exceeds limit %dm", total, constraints.MaxTime)
		}
	}

	quality := ScoreDecomposition(task)
	if len(quality.Warnings) > 0 {
		task.Workspace.Context["qualityWarnings"] = strings.Join(quality.Warnings, "; ")
	}

	d.debugLog("[decompose] task %s: %d steps, critical path %v, quality %.2f",
		task.ID, len(steps), task.CriticalPath, quality.OverallConfidence)
	return task, nil
}
