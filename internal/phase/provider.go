package phase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/api996/AIHeuristicLearningApp-sub001/internal/models"
)

// DefaultProviderTimeout bounds a single provider call.
const DefaultProviderTimeout = 8 * time.Second

// defaultProviderConfidence is used when a provider omits confidence.
const defaultProviderConfidence = 0.8

// Completer is a remote text-generation endpoint.
type Completer interface {
	Name() string
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

const classificationSystemPrompt = `You are an expert in learning science who classifies tutoring dialogues using the KWLQ model.
K (Know): the learner states or reviews what they already know, asks for definitions or basic concepts.
W (Wonder): the learner expresses curiosity or confusion and asks why something is the case.
L (Learn): the learner works through explanations, worked examples, steps and practice.
Q (Question): the learner questions, critiques or reflects on limitations and counterexamples.
Respond with a single JSON object and nothing else:
{"currentPhase": "K|W|L|Q", "summary": "<one sentence, at most 50 characters>", "confidence": <number between 0 and 1>}`

const classificationUserTemplate = "Classify the current phase of this conversation.\n\n%s"

// ProviderClassifier asks one remote provider for a phase and parses its answer.
type ProviderClassifier struct {
	completer Completer
	timeout   time.Duration
	stats     *Stats
}

// ProviderOption configures a ProviderClassifier.
type ProviderOption func(*ProviderClassifier)

// WithTimeout sets the per-call time budget.
func WithTimeout(d time.Duration) ProviderOption {
	return func(pc *ProviderClassifier) {
		if d > 0 {
			pc.timeout = d
		}
	}
}

// WithProviderStats shares a counter set with the classifier.
func WithProviderStats(s *Stats) ProviderOption {
	return func(pc *ProviderClassifier) {
		pc.stats = s
	}
}

// NewProviderClassifier wraps c.
func NewProviderClassifier(c Completer, opts ...ProviderOption) *ProviderClassifier {
	pc := &ProviderClassifier{completer: c, timeout: DefaultProviderTimeout}
	for _, opt := range opts {
		opt(pc)
	}
	return pc
}

// Name returns the underlying provider name.
func (pc *ProviderClassifier) Name() string { return pc.completer.Name() }

// Classify sends conversationText to the provider and returns a validated result.
func (pc *ProviderClassifier) Classify(ctx context.Context, conversationText string) (models.PhaseAnalysis, error) {
	name := pc.completer.Name()
	pc.stats.recordRequest(name)

	callCtx, cancel := context.WithTimeout(ctx, pc.timeout)
	defer cancel()

	start := time.Now()
	text, err := pc.completer.Complete(callCtx, classificationSystemPrompt, fmt.Sprintf(classificationUserTemplate, conversationText))
	if err == nil && callCtx.Err() != nil {
		err = callCtx.Err()
	}
	if err != nil {
		perr := &ProviderError{Provider: name, Cause: err}
		pc.stats.recordFailure(name, perr.Timeout())
		slog.Warn("ProviderClassifier.Classify: provider call failed", "provider", name, "timeout", perr.Timeout(), "elapsed", time.Since(start), "error", err)
		return models.PhaseAnalysis{}, perr
	}

	raw, strategy, ok := parseResponse(text)
	if !ok {
		pc.stats.recordFailure(name, false)
		return models.PhaseAnalysis{}, &ParseError{Provider: name, Raw: text}
	}

	analysis, err := normalize(raw)
	if err != nil {
		pc.stats.recordFailure(name, false)
		return models.PhaseAnalysis{}, fmt.Errorf("provider %s: %w", name, err)
	}
	pc.stats.recordSuccess(name)
	slog.Debug("ProviderClassifier.Classify: classified", "provider", name, "strategy", strategy, "phase", analysis.Phase, "elapsed", time.Since(start))
	return analysis, nil
}

// normalize maps a raw strategy result onto a validated PhaseAnalysis.
func normalize(raw rawResult) (models.PhaseAnalysis, error) {
	p, ok := models.ParsePhase(raw.Phase)
	if !ok {
		return models.PhaseAnalysis{}, &models.ValidationError{Field: "currentPhase", Reason: fmt.Sprintf("unknown phase %q", raw.Phase)}
	}
	conf := defaultProviderConfidence
	if raw.HasConf {
		conf = raw.Confidence
		// Some models answer on a 0-100 scale.
		if conf > 1 && conf <= 100 {
			conf /= 100
		}
	}
	a := models.PhaseAnalysis{
		Phase:      p,
		Summary:    models.TruncateSummary(raw.Summary),
		Confidence: models.ClampConfidence(conf),
	}
	if a.Summary == "" {
		a.Summary = fmt.Sprintf("%s phase", p.Name())
	}
	return a, a.Validate()
}

// FormatConversation renders messages as "role: content" lines.
func FormatConversation(messages []models.ChatMessage) string {
	var b strings.Builder
	for _, m := range messages {
		role := m.Role
		if role == "" {
			role = models.RoleUser
		}
		b.WriteString(role)
		b.WriteString(": ")
		b.WriteString(strings.TrimSpace(m.Content))
		b.WriteByte('\n')
	}
	return b.String()
}
