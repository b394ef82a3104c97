package models

import (
	"errors"
	"math"
	"strings"
	"testing"
)

func TestParsePhase(t *testing.T) {
	cases := map[string]Phase{
		"K":           PhaseKnow,
		"w":           PhaseWonder,
		" L ":         PhaseLearn,
		"\"Q\"":       PhaseQuestion,
		"Learning":    PhaseLearn,
		"wonder":      PhaseWonder,
		"质疑":          PhaseQuestion,
		"知识阶段":        PhaseKnow,
		"Learn phase": PhaseLearn,
		"K (Know)":    PhaseKnow,
	}
	for in, want := range cases {
		got, ok := ParsePhase(in)
		if !ok || got != want {
			t.Errorf("ParsePhase(%q) = %q, %v; want %q", in, got, ok, want)
		}
	}
	for _, in := range []string{"", "X", "kwlq", "maybe"} {
		if p, ok := ParsePhase(in); ok {
			t.Errorf("ParsePhase(%q) = %q, expected rejection", in, p)
		}
	}
}

func TestPhaseAnalysisValidate(t *testing.T) {
	if err := (PhaseAnalysis{Phase: PhaseWonder, Confidence: 0.8}).Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	bad := []PhaseAnalysis{
		{Phase: "Z", Confidence: 0.5},
		{Phase: PhaseKnow, Confidence: 1.2},
		{Phase: PhaseKnow, Confidence: -0.1},
		{Phase: PhaseKnow, Confidence: math.NaN()},
	}
	for _, a := range bad {
		var ve *ValidationError
		if err := a.Validate(); !errors.As(err, &ve) {
			t.Errorf("expected ValidationError for %+v, got %v", a, err)
		}
	}
}

func TestTruncateSummary(t *testing.T) {
	long := strings.Repeat("学", 80)
	got := TruncateSummary(long)
	if n := len([]rune(got)); n != MaxSummaryRunes {
		t.Errorf("expected %d runes, got %d", MaxSummaryRunes, n)
	}
	if TruncateSummary("  short ") != "short" {
		t.Error("expected trimmed summary")
	}
}

func TestClampConfidence(t *testing.T) {
	if ClampConfidence(1.5) != 1 || ClampConfidence(-2) != 0 || ClampConfidence(math.Inf(1)) != 0 {
		t.Error("confidence not clamped")
	}
	if ClampConfidence(0.42) != 0.42 {
		t.Error("in-range confidence changed")
	}
}

func TestAnalyzeConversationRequestValidate(t *testing.T) {
	req := AnalyzeConversationRequest{ConversationID: 0, Messages: []ChatMessage{{Role: RoleUser, Content: "hi"}}}
	if err := req.Validate(); err != ErrInvalidConversationID {
		t.Errorf("expected ErrInvalidConversationID, got %v", err)
	}
	req.ConversationID = 7
	req.Messages = nil
	if err := req.Validate(); err != ErrEmptyMessages {
		t.Errorf("expected ErrEmptyMessages, got %v", err)
	}
}

func TestGeneratePromptRequestValidate(t *testing.T) {
	req := GeneratePromptRequest{ConversationID: 1, UserInput: "x"}
	if err := req.Validate(); err != ErrMissingModelID {
		t.Errorf("expected ErrMissingModelID, got %v", err)
	}
	req.ModelID = "gpt-4o"
	req.UserInput = "   "
	if err := req.Validate(); err != ErrMissingUserInput {
		t.Errorf("expected ErrMissingUserInput, got %v", err)
	}
	req.UserInput = "why?"
	if err := req.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestNewPhaseRecord(t *testing.T) {
	rec := NewPhaseRecord(9, PhaseAnalysis{Phase: PhaseLearn, Summary: "s", Confidence: 0.9}, "openai")
	if rec.ID == "" || rec.ConversationID != 9 || rec.Phase != PhaseLearn || rec.Source != "openai" {
		t.Errorf("unexpected record: %+v", rec)
	}
	if rec.Analysis().Confidence != 0.9 {
		t.Error("analysis round trip lost confidence")
	}
}

func TestAPIResponseHelpers(t *testing.T) {
	if r := Error("boom"); r.Status != "error" || r.Message != "boom" {
		t.Errorf("unexpected error response: %+v", r)
	}
	if r := Success(3); r.Status != "ok" || r.Result != 3 {
		t.Errorf("unexpected success response: %+v", r)
	}
}
