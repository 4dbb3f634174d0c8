package decompose

import (
	"fmt"

	"github.com/wesheets/roundtable/pkg/models"
)

// Severity indicates the severity of a quality issue.
type Severity int

const (
	// SeverityInfo indicates informational feedback.
	SeverityInfo Severity = iota
	// SeverityWarning indicates a potential problem.
	SeverityWarning
	// SeverityCritical indicates a serious problem.
	SeverityCritical
)

// String returns a human-readable severity level.
func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// QualityIssue represents a specific concern with a reasoning step.
type QualityIssue struct {
	Severity   Severity
	Message    string
	Suggestion string
}

// StepQualityScore is the quality score for a single step.
type StepQualityScore struct {
	StepID     string
	Confidence float64 // 0.0-1.0, where 1.0 is highest confidence
	Issues     []QualityIssue
}

// DecompositionQuality is the overall quality of a decomposition.
type DecompositionQuality struct {
	OverallConfidence    float64
	StepScores           []StepQualityScore
	Warnings             []string
	EstimatedParallelism int
	TotalSteps           int
	CriticalIssues       int
}

// ScoreDecomposition analyzes a decomposed task and assigns quality scores.
// Used to surface weak decompositions before execution starts.
func ScoreDecomposition(task *models.CollaborativeTask) DecompositionQuality {
	quality := DecompositionQuality{
		OverallConfidence: 1.0,
		StepScores:        make([]StepQualityScore, len(task.Steps)),
		TotalSteps:        len(task.Steps),
	}

	for i, step := range task.Steps {
		score := scoreStep(step, task)
		quality.StepScores[i] = score
		for _, issue := range score.Issues {
			if issue.Severity == SeverityCritical {
				quality.CriticalIssues++
			}
		}
	}

	total := 0.0
	for _, score := range quality.StepScores {
		total += score.Confidence
	}
	if len(quality.StepScores) > 0 {
		quality.OverallConfidence = total / float64(len(quality.StepScores))
	}

	quality.OverallConfidence = applyGlobalPenalties(quality.OverallConfidence, task)
	quality.EstimatedParallelism = estimateParallelism(task)
	quality.Warnings = buildWarnings(task, quality)

	return quality
}

func scoreStep(step *models.ReasoningStep, task *models.CollaborativeTask) StepQualityScore {
	score := StepQualityScore{
		StepID:     step.ID,
		Confidence: 1.0,
		Issues:     []QualityIssue{},
	}

	if len(step.RequiredCapabilities) == 0 {
		score.Confidence -= 0.3
		score.Issues = append(score.Issues, QualityIssue{
			Severity:   SeverityCritical,
			Message:    "No required capabilities specified",
			Suggestion: "Every step needs capabilities so the team composer can seat it",
		})
	}

	if step.EstimatedDuration <= 0 {
		score.Confidence -= 0.2
		score.Issues = append(score.Issues, QualityIssue{
			Severity:   SeverityWarning,
			Message:    "Step has no estimated duration",
			Suggestion: "Estimate effort so the critical path means something",
		})
	}

	if depth := dependencyDepth(step, task, map[string]bool{}); depth > 3 {
		score.Confidence -= float64(depth-3) * 0.1
		score.Issues = append(score.Issues, QualityIssue{
			Severity:   SeverityWarning,
			Message:    fmt.Sprintf("Deep dependency chain (depth %d)", depth),
			Suggestion: "Consider flattening dependencies for better parallelism",
		})
	}

	if score.Confidence < 0.0 {
		score.Confidence = 0.0
	}
	return score
}

func applyGlobalPenalties(confidence float64, task *models.CollaborativeTask) float64 {
	if n := len(task.Steps); n > 10 {
		penalty := float64(n-10) * 0.05
		if penalty > 0.3 {
			penalty = 0.3
		}
		confidence -= penalty
	}

	// A pure chain with no parallel groups wastes the team.
	if len(task.ParallelGroups) == 0 && len(task.Steps) > 3 {
		confidence -= 0.2
	}

	if confidence < 0.0 {
		confidence = 0.0
	}
	if confidence > 1.0 {
		confidence = 1.0
	}
	return confidence
}

func buildWarnings(task *models.CollaborativeTask, quality DecompositionQuality) []string {
	warnings := []string{}

	if quality.CriticalIssues > 0 {
		warnings = append(warnings, fmt.Sprintf("%d critical issues found in decomposition", quality.CriticalIssues))
	}
	if len(task.Steps) > 10 {
		warnings = append(warnings, fmt.Sprintf("Large number of steps (%d) may be difficult to coordinate", len(task.Steps)))
	}
	if quality.OverallConfidence < 0.5 {
		warnings = append(warnings, "Low overall confidence, consider simplifying the request")
	}
	if note, ok := task.Workspace.Context["timeConstraint"]; ok {
		warnings = append(warnings, note)
	}
	return warnings
}

func dependencyDepth(step *models.ReasoningStep, task *models.CollaborativeTask, visited map[string]bool) int {
	if visited[step.ID] {
		return 0
	}
	visited[step.ID] = true

	if len(step.Dependencies) == 0 {
		return 1
	}
	maxDepth := 0
	for _, depID := range step.Dependencies {
		if dep := task.Step(depID); dep != nil {
			if depth := dependencyDepth(dep, task, visited); depth > maxDepth {
				maxDepth = depth
			}
		}
	}
	return maxDepth + 1
}

func estimateParallelism(task *models.CollaborativeTask) int {
	best := 1
	for _, group := range task.ParallelGroups {
		if len(group) > best {
			best = len(group)
		}
	}
	return best
}
