package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/fatih/color"

	"github.com/wesheets/roundtable/internal/agent"
	"github.com/wesheets/roundtable/internal/classify"
	"github.com/wesheets/roundtable/internal/config"
	"github.com/wesheets/roundtable/internal/metrics"
	"github.com/wesheets/roundtable/internal/orchestrator"
	"github.com/wesheets/roundtable/internal/policy"
	"github.com/wesheets/roundtable/internal/registry"
	"github.com/wesheets/roundtable/internal/state"
)

// starterAgents seeds the capability registry on first use. One agent
// per request domain plus a coordinator and a reviewer, so any request
// the classifier can label gets a full team. Operators edit the file
// afterwards; the registry reloads it on save.
const starterAgents = `# Roundtable agent capability registry.
# The orchestrator watches this file and reloads it on save.
agents:
  - agentId: lead-1
    name: Coordinator
    role: lead
    specializations: [analytical-reasoning, synthesis, coordination]
    responseRelevance: 0.9
  - agentId: tech-1
    name: Technology Analyst
    role: specialist
    specializations: [technology, infrastructure, architecture-review]
    responseRelevance: 0.85
  - agentId: fin-1
    name: Finance Analyst
    role: specialist
    specializations: [finance, budget-analysis]
    responseRelevance: 0.8
  - agentId: mkt-1
    name: Marketing Analyst
    role: specialist
    specializations: [marketing, market-research]
    responseRelevance: 0.75
  - agentId: legal-1
    name: Compliance Reviewer
    role: specialist
    specializations: [legal, compliance-review]
    responseRelevance: 0.8
  - agentId: res-1
    name: Research Analyst
    role: specialist
    specializations: [research, literature-survey, general]
    responseRelevance: 0.7
  - agentId: qa-1
    name: Quality Reviewer
    role: reviewer
    specializations: [validation, quality-review]
    responseRelevance: 0.85
`

// ensureAgentsFile writes the starter roster when no registry file exists.
func ensureAgentsFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create registry directory: %w", err)
	}
	return os.WriteFile(path, []byte(starterAgents), 0o644)
}

// buildOrchestrator wires the store, registry, and configured options
// into an orchestrator. The returned cleanup closes them in reverse
// order and is safe to call more than once.
func buildOrchestrator(cfg *config.Config, extra ...orchestrator.Option) (*orchestrator.Orchestrator, func(), error) {
	if err := os.MkdirAll(cfg.Storage.DataDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create data directory: %w", err)
	}

	db, err := state.Open(cfg.DBPath())
	if err != nil {
		return nil, nil, fmt.Errorf("open state database: %w", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("migrate database: %w", err)
	}

	agentsFile := cfg.ResolveAgentsFile()
	if err := ensureAgentsFile(agentsFile); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("seed agent registry: %w", err)
	}
	reg, err := registry.New(agentsFile)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("open agent registry: %w", err)
	}

	logger, err := orchestrator.NewDebugLogger(cfg.DebugLogPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: debug log unavailable: %v\n", err)
		logger = orchestrator.NopLogger()
	}
	reg.SetDebugLog(logger.Log)

	enforcer := policy.New()
	enforcer.SetDebugLog(logger.Log)
	if path := cfg.ResolvePolicyFile(); path != "" {
		if _, statErr := os.Stat(path); statErr == nil {
			if err := enforcer.LoadConfig(path); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: policy rules from %s not loaded: %v\n", path, err)
			}
		}
	}

	opts := []orchestrator.Option{
		orchestrator.WithLogger(logger),
		orchestrator.WithPolicy(enforcer),
		orchestrator.WithMaxParallel(cfg.Orchestrator.MaxParallel),
		orchestrator.WithMetrics(metrics.Default()),
	}
	opts = append(opts, extra...)

	if cfg.Orchestrator.Classifier == "claude" {
		key, err := config.GetAPIKey(cfg)
		if err != nil {
			reg.Close()
			db.Close()
			return nil, nil, fmt.Errorf("classifier %q: %w (set ANTHROPIC_API_KEY or switch orchestrator.classifier to keyword)", cfg.Orchestrator.Classifier, err)
		}
		model := anthropic.Model(cfg.Anthropic.Model)
		classifier, err := classify.NewClaudeClassifier(classify.ClaudeConfig{APIKey: key, Model: model})
		if err != nil {
			reg.Close()
			db.Close()
			return nil, nil, fmt.Errorf("claude classifier: %w", err)
		}
		executor, err := agent.NewClaudeExecutor(agent.ClaudeExecutorConfig{APIKey: key, Model: model})
		if err != nil {
			reg.Close()
			db.Close()
			return nil, nil, fmt.Errorf("claude executor: %w", err)
		}
		opts = append(opts,
			orchestrator.WithClassifier(classifier, classifier),
			orchestrator.WithExecutor(executor),
		)
	}

	orc, err := orchestrator.New(orchestrator.Config{Store: db, Registry: reg}, opts...)
	if err != nil {
		reg.Close()
		db.Close()
		return nil, nil, err
	}

	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			orc.Close()
			reg.Close()
			db.Close()
		})
	}
	return orc, cleanup, nil
}

// printStatus prints a status line with color
func printStatus(symbol, message string, colorAttr color.Attribute) {
	c := color.New(colorAttr)
	fmt.Printf("%s %s\n", c.Sprint(symbol), message)
}
