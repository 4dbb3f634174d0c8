package classify

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// ClaudeClassifier detects domains with a Claude model. It is an optional
// drop-in for the keyword classifier; graph construction is identical
// either way. Responses are constrained to the keyword classifier's domain
// vocabulary so downstream capability matching stays stable.
type ClaudeClassifier struct {
	client   anthropic.Client
	model    anthropic.Model
	fallback *KeywordClassifier
}

// ClaudeConfig configures a ClaudeClassifier.
type ClaudeConfig struct {
	// APIKey is the Anthropic API key. If empty, uses ANTHROPIC_API_KEY.
	APIKey string
	// Model defaults to Claude Sonnet.
	Model anthropic.Model
}

// NewClaudeClassifier creates an LLM-backed domain classifier.
func NewClaudeClassifier(cfg ClaudeConfig) (*ClaudeClassifier, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY environment variable is not set")
	}

	model := cfg.Model
	if model == "" {
		model = anthropic.ModelClaudeSonnet4_20250514
	}

	return &ClaudeClassifier{
		client:   anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:    model,
		fallback: NewKeywordClassifier(),
	}, nil
}

// Domains asks the model to tag the request with known domains. The model's
// answer is filtered against the known vocabulary; an unusable answer falls
// back to keyword classification rather than failing decomposition.
func (c *ClaudeClassifier) Domains(ctx context.Context, request string) ([]string, error) {
	system := "You label work requests with domains. Reply with a comma-separated subset of: " +
		strings.Join(c.fallback.order, ", ") + ". Reply with the domain names only."

	resp, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: 64,
		System: []anthropic.TextBlockParam{
			{Text: system},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(request)),
		},
	})
	if err != nil {
		return c.fallback.Domains(ctx, request)
	}

	var text string
	for _, block := range resp.Content {
		if variant, ok := block.AsAny().(anthropic.TextBlock); ok {
			text += variant.Text
		}
	}

	known := make(map[string]bool, len(c.fallback.order))
	for _, d := range c.fallback.order {
		known[d] = true
	}

	var domains []string
	seen := make(map[string]bool)
	for _, token := range strings.Split(text, ",") {
		domain := strings.ToLower(strings.TrimSpace(token))
		if known[domain] && !seen[domain] {
			seen[domain] = true
			domains = append(domains, domain)
		}
	}
	if len(domains) == 0 {
		return c.fallback.Domains(ctx, request)
	}
	return domains, nil
}

// Capabilities delegates to the keyword table; the model only picks domains.
func (c *ClaudeClassifier) Capabilities(domain string) []string {
	return c.fallback.Capabilities(domain)
}
