package policy

import "testing"

func TestMatchResource(t *testing.T) {
	tests := []struct {
		name     string
		resource string
		pattern  string
		expected bool
	}{
		{"literal match", "task/t1/step/s1", "task/t1/step/s1", true},
		{"single star segment", "task/t1/step/s1", "task/*/step/s1", true},
		{"double star spans segments", "task/t1/step/s1", "task/**", true},
		{"double star in middle", "task/t1/step/s1", "**/step/*", true},
		{"wildcard in segment", "decision/d-42", "decision/d-*", true},
		{"depth mismatch", "task/t1", "task/t1/step/*", false},
		{"different root", "channel/ops", "task/**", false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result := matchResource(tc.resource, tc.pattern)
			if result != tc.expected {
				t.Errorf("matchResource(%q, %q) = %v, expected %v", tc.resource, tc.pattern, result, tc.expected)
			}
		})
	}
}

func TestMatchToken(t *testing.T) {
	tests := []struct {
		name     string
		token    string
		pattern  string
		expected bool
	}{
		{"star matches anything", "agent-a", "*", true},
		{"exact", "step.start", "step.start", true},
		{"prefix wildcard", "probation-7", "probation-*", true},
		{"suffix wildcard", "review-bot", "*-bot", true},
		{"inner wildcard", "step.retry", "step.*", true},
		{"no overlap reuse", "ab", "ab*b", false},
		{"plain mismatch", "vote.cast", "step.start", false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result := matchToken(tc.token, tc.pattern)
			if result != tc.expected {
				t.Errorf("matchToken(%q, %q) = %v, expected %v", tc.token, tc.pattern, result, tc.expected)
			}
		})
	}
}
