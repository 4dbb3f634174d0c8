package agent

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/wesheets/roundtable/pkg/models"
)

// Model identifiers for the three capability levels steps run on.
const (
	// ModelFast handles validation and other light steps.
	ModelFast anthropic.Model = "claude-3-5-haiku-20241022"
	// ModelBalanced is the default for domain work.
	ModelBalanced anthropic.Model = "claude-sonnet-4-20250514"
	// ModelDeep handles synthesis and steps flagged as complex.
	ModelDeep anthropic.Model = "claude-opus-4-5-20251101"
)

// Keywords in a step description that pull the model choice down or up
// regardless of the step kind.
var (
	fastKeywords = []string{"simple", "boilerplate", "trivial", "formatting", "checklist"}
	deepKeywords = []string{"architecture", "design", "redesign", "complex", "strategy"}
)

// SelectModel chooses the model for a step. Description keywords win;
// otherwise the step kind sets the default: validation runs fast,
// synthesis runs deep, everything else balanced.
func SelectModel(step *models.ReasoningStep) anthropic.Model {
	if step == nil {
		return ModelBalanced
	}
	text := strings.ToLower(step.Description)
	for _, kw := range fastKeywords {
		if strings.Contains(text, kw) {
			return ModelFast
		}
	}
	for _, kw := range deepKeywords {
		if strings.Contains(text, kw) {
			return ModelDeep
		}
	}
	switch step.Kind {
	case models.StepKindValidation, models.StepKindCoordination:
		return ModelFast
	case models.StepKindSynthesis:
		return ModelDeep
	default:
		return ModelBalanced
	}
}

// ClaudeExecutor runs steps against the Anthropic API. Any API or parse
// failure degrades to the local executor so a task never stalls on the
// network.
type ClaudeExecutor struct {
	client   anthropic.Client
	override anthropic.Model
	fallback *LocalExecutor
}

// ClaudeExecutorConfig configures a ClaudeExecutor.
type ClaudeExecutorConfig struct {
	// APIKey is the Anthropic API key. If empty, uses ANTHROPIC_API_KEY.
	APIKey string
	// Model, when set, overrides per-step model selection.
	Model anthropic.Model
}

// NewClaudeExecutor creates an API-backed step executor.
func NewClaudeExecutor(cfg ClaudeExecutorConfig) (*ClaudeExecutor, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY environment variable is not set")
	}
	return &ClaudeExecutor{
		client:   anthropic.NewClient(option.WithAPIKey(apiKey)),
		override: cfg.Model,
		fallback: NewLocalExecutor(),
	}, nil
}

// ExecuteStep asks the model to work the step and parses its reply into
// a StepOutput. The reply format is three labeled lines; anything the
// parser cannot place becomes part of the result text.
func (e *ClaudeExecutor) ExecuteStep(ctx context.Context, task *models.CollaborativeTask, step *models.ReasoningStep) (*models.StepOutput, error) {
	if task == nil || step == nil {
		return nil, fmt.Errorf("%w: executor needs a task and a step", models.ErrInvalidRequest)
	}

	model := e.override
	if model == "" {
		model = SelectModel(step)
	}

	system := "You are one agent on a collaborative reasoning team. Work exactly the step you are given. " +
		"Reply with three lines: RESULT: <your answer>, CONFIDENCE: <0.0-1.0>, REASONING: <one sentence>."

	resp, err := e.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     model,
		MaxTokens: 1024,
		System: []anthropic.TextBlockParam{
			{Text: system},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(stepPrompt(task, step))),
		},
	})
	if err != nil {
		return e.fallback.ExecuteStep(ctx, task, step)
	}

	var text string
	for _, block := range resp.Content {
		if variant, ok := block.AsAny().(anthropic.TextBlock); ok {
			text += variant.Text
		}
	}

	out := parseStepReply(text)
	if out == nil || out.Result == "" {
		return e.fallback.ExecuteStep(ctx, task, step)
	}
	if out.Confidence == 0 {
		out.Confidence = stepConfidence(step)
	}
	return out, nil
}

// stepPrompt assembles the request, the step, and the upstream findings
// the step may build on.
func stepPrompt(task *models.CollaborativeTask, step *models.ReasoningStep) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Task: %s\n", task.Request)
	fmt.Fprintf(&b, "Your step (%s): %s\n", step.Kind, step.Description)
	if len(step.RequiredCapabilities) > 0 {
		fmt.Fprintf(&b, "Apply these capabilities: %s\n", strings.Join(step.RequiredCapabilities, ", "))
	}
	if inputs := dependencyResults(task, step); len(inputs) > 0 {
		b.WriteString("Upstream findings:\n")
		for _, in := range inputs {
			fmt.Fprintf(&b, "- %s\n", in)
		}
	}
	return b.String()
}

// parseStepReply reads the three labeled lines back out of the model's
// reply. Unlabeled text is treated as the result.
func parseStepReply(text string) *models.StepOutput {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	out := &models.StepOutput{}
	var unlabeled []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case line == "":
		case strings.HasPrefix(line, "RESULT:"):
			out.Result = strings.TrimSpace(strings.TrimPrefix(line, "RESULT:"))
		case strings.HasPrefix(line, "CONFIDENCE:"):
			raw := strings.TrimSpace(strings.TrimPrefix(line, "CONFIDENCE:"))
			if v, err := strconv.ParseFloat(raw, 64); err == nil && v >= 0 && v <= 1 {
				out.Confidence = v
			}
		case strings.HasPrefix(line, "REASONING:"):
			out.Reasoning = strings.TrimSpace(strings.TrimPrefix(line, "REASONING:"))
		default:
			unlabeled = append(unlabeled, line)
		}
	}
	if out.Result == "" && len(unlabeled) > 0 {
		out.Result = strings.Join(unlabeled, " ")
	}
	return out
}
