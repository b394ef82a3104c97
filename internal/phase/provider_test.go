package phase

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/api996/AIHeuristicLearningApp-sub001/internal/models"
)

// fakeCompleter implements Completer for testing.
type fakeCompleter struct {
	name  string
	resp  string
	err   error
	delay time.Duration
	calls atomic.Int32
}

func (f *fakeCompleter) Name() string { return f.name }

func (f *fakeCompleter) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.resp, f.err
}

func TestProviderClassifier_Success(t *testing.T) {
	stats := NewStats()
	pc := NewProviderClassifier(&fakeCompleter{name: "fake", resp: `{"currentPhase":"Q","summary":"challenging claims","confidence":0.91}`}, WithProviderStats(stats))
	a, err := pc.Classify(context.Background(), "user: but is that always true?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Phase != models.PhaseQuestion || a.Confidence != 0.91 {
		t.Errorf("unexpected analysis: %+v", a)
	}
	snap := stats.Snapshot()
	if snap.Successes != 1 || snap.Providers["fake"].Requests != 1 {
		t.Errorf("unexpected stats: %+v", snap)
	}
}

func TestProviderClassifier_TransportError(t *testing.T) {
	pc := NewProviderClassifier(&fakeCompleter{name: "fake", err: errors.New("connection refused")})
	_, err := pc.Classify(context.Background(), "x")
	var perr *ProviderError
	if !errors.As(err, &perr) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
	if perr.Timeout() {
		t.Error("transport failure must not be reported as timeout")
	}
}

func TestProviderClassifier_Timeout(t *testing.T) {
	stats := NewStats()
	pc := NewProviderClassifier(&fakeCompleter{name: "slow", delay: time.Second, resp: `{"currentPhase":"K"}`},
		WithTimeout(20*time.Millisecond), WithProviderStats(stats))
	_, err := pc.Classify(context.Background(), "x")
	var perr *ProviderError
	if !errors.As(err, &perr) || !perr.Timeout() {
		t.Fatalf("expected timeout ProviderError, got %v", err)
	}
	if stats.Snapshot().Timeouts != 1 {
		t.Error("expected timeout to be counted")
	}
}

func TestProviderClassifier_ParseError(t *testing.T) {
	pc := NewProviderClassifier(&fakeCompleter{name: "fake", resp: "I'd rather not say."})
	_, err := pc.Classify(context.Background(), "x")
	var perr *ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("expected ParseError, got %v", err)
	}
}

func TestParseError_TruncatesByRune(t *testing.T) {
	err := &ParseError{Provider: "fake", Raw: strings.Repeat("阶", maxRawRunes+10)}
	msg := err.Error()
	if !utf8.ValidString(msg) {
		t.Fatalf("error message is not valid UTF-8: %q", msg)
	}
	if !strings.Contains(msg, strings.Repeat("阶", maxRawRunes)+"...") || strings.Contains(msg, strings.Repeat("阶", maxRawRunes+1)) {
		t.Errorf("raw response not capped at %d runes: %s", maxRawRunes, msg)
	}

	short := &ParseError{Provider: "fake", Raw: "短"}
	if strings.Contains(short.Error(), "...") {
		t.Errorf("short response should not be truncated: %s", short.Error())
	}
}

func TestProviderClassifier_ValidationError(t *testing.T) {
	pc := NewProviderClassifier(&fakeCompleter{name: "fake", resp: `{"currentPhase":"X","confidence":0.4}`})
	_, err := pc.Classify(context.Background(), "x")
	var verr *models.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestFormatConversation(t *testing.T) {
	got := FormatConversation([]models.ChatMessage{{Role: "user", Content: " hi "}, {Content: "no role"}})
	want := "user: hi\nuser: no role\n"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
