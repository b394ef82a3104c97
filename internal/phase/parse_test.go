package phase

import "testing"

func TestParseResponse_Strategies(t *testing.T) {
	cases := []struct {
		name         string
		in           string
		wantStrategy string
		wantPhase    string
		wantConf     float64
	}{
		{"bare json", `{"currentPhase":"L","summary":"practising","confidence":0.9}`, "direct", "L", 0.9},
		{"fenced json", "```json\n{\"currentPhase\":\"W\",\"summary\":\"s\",\"confidence\":0.7}\n```", "direct", "W", 0.7},
		{"json in prose", `Sure! Here it is: {"phase": "Q", "summary": "pushing back {hard}", "confidence": "0.65"} hope it helps`, "embedded-object", "Q", 0.65},
		{"chinese keys", `{"阶段":"K","摘要":"回顾","置信度":0.5}`, "direct", "K", 0.5},
		{"unquoted fields", `currentPhase: W, summary: confused about loops, confidence: 0.72`, "field-scan", "W", 0.72},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r, strategy, ok := parseResponse(tc.in)
			if !ok {
				t.Fatalf("expected parse success")
			}
			if strategy != tc.wantStrategy {
				t.Errorf("strategy = %s, want %s", strategy, tc.wantStrategy)
			}
			if r.Phase != tc.wantPhase {
				t.Errorf("phase = %q, want %q", r.Phase, tc.wantPhase)
			}
			if !r.HasConf || r.Confidence != tc.wantConf {
				t.Errorf("confidence = %v (%v), want %v", r.Confidence, r.HasConf, tc.wantConf)
			}
		})
	}
}

func TestParseResponse_Unparseable(t *testing.T) {
	for _, in := range []string{"", "I cannot help with that.", `{"foo": 1}`} {
		if _, _, ok := parseResponse(in); ok {
			t.Errorf("expected failure for %q", in)
		}
	}
}

func TestFindJSONBounds_SkipsBracesInStrings(t *testing.T) {
	text := `noise {"a": "}{", "b": {"c": 1}} tail`
	start, end, ok := findJSONBounds(text)
	if !ok {
		t.Fatal("expected bounds")
	}
	if got := text[start : end+1]; got != `{"a": "}{", "b": {"c": 1}}` {
		t.Errorf("unexpected object %q", got)
	}
}

func TestNormalize(t *testing.T) {
	a, err := normalize(rawResult{Phase: "learning", Summary: "", Confidence: 85, HasConf: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Phase != "L" || a.Confidence != 0.85 || a.Summary == "" {
		t.Errorf("unexpected normalized result: %+v", a)
	}
	if _, err := normalize(rawResult{Phase: "Z"}); err == nil {
		t.Error("expected validation error for unknown phase")
	}
	a, _ = normalize(rawResult{Phase: "K"})
	if a.Confidence != defaultProviderConfidence {
		t.Errorf("expected default confidence, got %v", a.Confidence)
	}
}
