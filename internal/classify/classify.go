// Package classify provides the pluggable text classifiers the decomposer
// uses for domain detection and capability inference. Classification is a
// best-effort heuristic; swapping implementations must not touch graph
// construction.
package classify

import (
	"context"
	"strings"
)

// DomainClassifier detects the work domains present in a request.
type DomainClassifier interface {
	// Domains returns detected domain names in a stable order.
	Domains(ctx context.Context, request string) ([]string, error)
}

// CapabilityInferrer maps a detected domain to required capabilities.
type CapabilityInferrer interface {
	Capabilities(domain string) []string
}

// DomainSynthesis is the domain a request's own synthesis wording maps to.
// The decomposer folds it into the task's synthesis step instead of
// emitting a separate domain step.
const DomainSynthesis = "synthesis"

// DomainGeneral is the fallback when no domain keyword matches.
const DomainGeneral = "general"

// KeywordClassifier is the deterministic default classifier. It scans the
// request for domain keywords, reporting domains in fixed table order.
type KeywordClassifier struct {
	order    []string
	keywords map[string][]string
}

// NewKeywordClassifier returns a classifier with the default domain table.
func NewKeywordClassifier() *KeywordClassifier {
	return &KeywordClassifier{
		order: []string{"technology", "finance", "marketing", "legal", "research", DomainSynthesis},
		keywords: map[string][]string{
			"technology":    {"technology", "technical", "software", "engineering", "platform", "infrastructure", "architecture"},
			"finance":       {"finance", "financial", "budget", "cost", "revenue", "pricing", "investment"},
			"marketing":     {"marketing", "brand", "campaign", "audience", "positioning"},
			"legal":         {"legal", "compliance", "regulation", "regulatory", "contract"},
			"research":      {"research", "investigate", "literature", "survey"},
			DomainSynthesis: {"synthesize", "synthesis", "consolidate", "recommendation"},
		},
	}
}

// Domains scans the request for keyword matches. A request matching no
// domain reports the general domain so decomposition always yields at
// least one domain step.
func (c *KeywordClassifier) Domains(_ context.Context, request string) ([]string, error) {
	lower := strings.ToLower(request)

	var domains []string
	for _, domain := range c.order {
		for _, kw := range c.keywords[domain] {
			if strings.Contains(lower, kw) {
				domains = append(domains, domain)
				break
			}
		}
	}
	if len(domains) == 0 {
		domains = []string{DomainGeneral}
	}
	return domains, nil
}

// Capabilities returns the capability set a domain step requires. The
// domain name itself is the capability, which keeps team matching aligned
// with agent specialization declarations.
func (c *KeywordClassifier) Capabilities(domain string) []string {
	return []string{domain}
}
