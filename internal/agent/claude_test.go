package agent

import (
	"testing"

	"github.com/wesheets/roundtable/pkg/models"
)

func TestSelectModel_KeywordsWinOverKind(t *testing.T) {
	tests := []struct {
		name string
		step *models.ReasoningStep
		want string
	}{
		{
			name: "validation defaults fast",
			step: &models.ReasoningStep{Kind: models.StepKindValidation, Description: "Validate the combined result"},
			want: string(ModelFast),
		},
		{
			name: "synthesis defaults deep",
			step: &models.ReasoningStep{Kind: models.StepKindSynthesis, Description: "Synthesize findings"},
			want: string(ModelDeep),
		},
		{
			name: "delegation defaults balanced",
			step: &models.ReasoningStep{Kind: models.StepKindDelegation, Description: "Handle finance aspects"},
			want: string(ModelBalanced),
		},
		{
			name: "trivial keyword pulls down",
			step: &models.ReasoningStep{Kind: models.StepKindSynthesis, Description: "Trivial merge of two findings"},
			want: string(ModelFast),
		},
		{
			name: "architecture keyword pulls up",
			step: &models.ReasoningStep{Kind: models.StepKindDelegation, Description: "Review the platform architecture"},
			want: string(ModelDeep),
		},
		{
			name: "nil step balanced",
			step: nil,
			want: string(ModelBalanced),
		},
	}
	for _, tt := range tests {
		if got := string(SelectModel(tt.step)); got != tt.want {
			t.Errorf("%s: SelectModel = %s, want %s", tt.name, got, tt.want)
		}
	}
}

func TestParseStepReply(t *testing.T) {
	out := parseStepReply("RESULT: adopt the proposal\nCONFIDENCE: 0.85\nREASONING: pricing and fit both check out")
	if out == nil {
		t.Fatal("parseStepReply returned nil")
	}
	if out.Result != "adopt the proposal" {
		t.Errorf("Result = %q", out.Result)
	}
	if out.Confidence != 0.85 {
		t.Errorf("Confidence = %v, want 0.85", out.Confidence)
	}
	if out.Reasoning != "pricing and fit both check out" {
		t.Errorf("Reasoning = %q", out.Reasoning)
	}
}

func TestParseStepReply_UnlabeledTextBecomesResult(t *testing.T) {
	out := parseStepReply("the proposal looks sound\nand the budget holds")
	if out == nil {
		t.Fatal("parseStepReply returned nil")
	}
	if out.Result != "the proposal looks sound and the budget holds" {
		t.Errorf("Result = %q", out.Result)
	}
	if out.Confidence != 0 {
		t.Errorf("Confidence = %v, want 0 so the caller substitutes a default", out.Confidence)
	}
}

func TestParseStepReply_IgnoresBadConfidence(t *testing.T) {
	out := parseStepReply("RESULT: fine\nCONFIDENCE: eleven")
	if out == nil || out.Result != "fine" {
		t.Fatalf("parseStepReply = %+v", out)
	}
	if out.Confidence != 0 {
		t.Errorf("unparseable confidence kept: %v", out.Confidence)
	}

	if parseStepReply("   ") != nil {
		t.Error("blank reply should parse to nil")
	}
}
