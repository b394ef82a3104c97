// Package phase classifies the KWLQ phase of a tutoring conversation.
//
// Classification tries remote providers in priority order, each under its own
// time budget, and falls back to a deterministic keyword heuristic. Results are
// cached per message window and handed to an asynchronous recorder.
package phase

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/api996/AIHeuristicLearningApp-sub001/internal/cache"
	"github.com/api996/AIHeuristicLearningApp-sub001/internal/models"
)

// Pipeline defaults.
const (
	DefaultWindowSize   = 8
	DefaultResultTTL    = 30 * time.Minute
	DefaultHeuristicTTL = time.Minute
)

// Classifier is a single remote classification strategy.
type Classifier interface {
	Name() string
	Classify(ctx context.Context, conversationText string) (models.PhaseAnalysis, error)
}

// Recorder persists classification results. Implementations must not block.
type Recorder interface {
	Record(ctx context.Context, rec models.PhaseRecord)
}

// Opts holds configuration for a Pipeline.
type Opts struct {
	Classifiers  []Classifier
	Heuristic    *KeywordClassifier
	Cache        *cache.Cache[models.PhaseAnalysis]
	Recorder     Recorder
	Stats        *Stats
	WindowSize   int
	ResultTTL    time.Duration
	HeuristicTTL time.Duration
}

// Option defines a functional option for configuring a Pipeline.
type Option func(*Opts)

// WithClassifiers sets the providers in priority order.
func WithClassifiers(cs ...Classifier) Option {
	return func(o *Opts) {
		o.Classifiers = append(o.Classifiers, cs...)
	}
}

// WithHeuristic overrides the fallback classifier.
func WithHeuristic(h *KeywordClassifier) Option {
	return func(o *Opts) {
		o.Heuristic = h
	}
}

// WithCache injects the result cache.
func WithCache(c *cache.Cache[models.PhaseAnalysis]) Option {
	return func(o *Opts) {
		o.Cache = c
	}
}

// WithRecorder sets the sink for classification results.
func WithRecorder(r Recorder) Option {
	return func(o *Opts) {
		o.Recorder = r
	}
}

// WithStats shares a counter set with the pipeline.
func WithStats(s *Stats) Option {
	return func(o *Opts) {
		o.Stats = s
	}
}

// WithWindowSize sets how many trailing messages influence classification.
func WithWindowSize(n int) Option {
	return func(o *Opts) {
		o.WindowSize = n
	}
}

// WithResultTTL sets how long provider results stay cached.
func WithResultTTL(d time.Duration) Option {
	return func(o *Opts) {
		o.ResultTTL = d
	}
}

// WithHeuristicTTL sets how long heuristic results stay cached.
func WithHeuristicTTL(d time.Duration) Option {
	return func(o *Opts) {
		o.HeuristicTTL = d
	}
}

// Pipeline runs providers in order with a heuristic fallback.
type Pipeline struct {
	classifiers  []Classifier
	heuristic    *KeywordClassifier
	cache        *cache.Cache[models.PhaseAnalysis]
	recorder     Recorder
	stats        *Stats
	windowSize   int
	resultTTL    time.Duration
	heuristicTTL time.Duration

	flight singleflight.Group
}

// NewPipeline creates a Pipeline with the given options.
func NewPipeline(opts ...Option) *Pipeline {
	var o Opts
	for _, opt := range opts {
		opt(&o)
	}
	if o.Heuristic == nil {
		o.Heuristic = NewKeywordClassifier()
	}
	if o.Cache == nil {
		o.Cache = cache.New[models.PhaseAnalysis](cache.DefaultCapacity, DefaultResultTTL)
	}
	if o.Stats == nil {
		o.Stats = NewStats()
	}
	if o.WindowSize <= 0 {
		o.WindowSize = DefaultWindowSize
	}
	if o.ResultTTL <= 0 {
		o.ResultTTL = DefaultResultTTL
	}
	if o.HeuristicTTL <= 0 {
		o.HeuristicTTL = DefaultHeuristicTTL
	}
	return &Pipeline{
		classifiers:  o.Classifiers,
		heuristic:    o.Heuristic,
		cache:        o.Cache,
		recorder:     o.Recorder,
		stats:        o.Stats,
		windowSize:   o.WindowSize,
		resultTTL:    o.ResultTTL,
		heuristicTTL: o.HeuristicTTL,
	}
}

// Providers returns the configured provider names in priority order.
func (p *Pipeline) Providers() []string {
	names := make([]string, len(p.classifiers))
	for i, c := range p.classifiers {
		names[i] = c.Name()
	}
	return names
}

// Stats returns the pipeline counters.
func (p *Pipeline) Stats() *Stats { return p.stats }

// CacheStats returns the result cache counters.
func (p *Pipeline) CacheStats() cache.Stats { return p.cache.Stats() }

// PurgeExpired drops expired cache entries.
func (p *Pipeline) PurgeExpired() int { return p.cache.PurgeExpired() }

// Report logs classification and cache counters.
func (p *Pipeline) Report() {
	p.stats.Report()
	cs := p.cache.Stats()
	slog.Info("phase result cache stats", "size", cs.Size, "hits", cs.Hits, "misses", cs.Misses, "evictions", cs.Evictions, "expired", cs.Expired)
}

// Classify returns the phase of the most recent message window. It never fails;
// the worst case is a heuristic result.
func (p *Pipeline) Classify(ctx context.Context, conversationID int64, messages []models.ChatMessage) models.PhaseAnalysis {
	window := p.window(messages)
	key := windowKey(window)

	if a, ok := p.cache.Get(key); ok {
		p.stats.recordCacheHit()
		slog.Debug("Pipeline.Classify: cache hit", "conversationID", conversationID, "phase", a.Phase)
		return a
	}

	flightKey := strconv.FormatInt(conversationID, 10) + ":" + key
	v, _, shared := p.flight.Do(flightKey, func() (interface{}, error) {
		return p.classifyUncached(ctx, conversationID, key, window), nil
	})
	if shared {
		p.stats.recordDeduped()
	}
	return v.(models.PhaseAnalysis)
}

func (p *Pipeline) classifyUncached(ctx context.Context, conversationID int64, key string, window []models.ChatMessage) models.PhaseAnalysis {
	// Another flight for a different conversation may have filled the entry.
	if a, ok := p.cache.Get(key); ok {
		p.stats.recordCacheHit()
		return a
	}

	if len(p.classifiers) > 0 {
		text := FormatConversation(window)
		for _, c := range p.classifiers {
			if ctx.Err() != nil {
				break
			}
			a, err := c.Classify(ctx, text)
			if err != nil {
				slog.Debug("Pipeline.Classify: provider failed, trying next", "provider", c.Name(), "error", err)
				continue
			}
			p.cache.SetWithTTL(key, a, p.resultTTL)
			p.record(ctx, conversationID, a, c.Name())
			slog.Debug("Pipeline.Classify: provider result", "conversationID", conversationID, "provider", c.Name(), "phase", a.Phase, "confidence", a.Confidence)
			return a
		}
	}

	a := p.heuristic.Classify(window)
	p.stats.recordHeuristic()
	p.cache.SetWithTTL(key, a, p.heuristicTTL)
	p.record(ctx, conversationID, a, models.SourceHeuristic)
	slog.Debug("Pipeline.Classify: heuristic fallback", "conversationID", conversationID, "phase", a.Phase, "providers", len(p.classifiers))
	return a
}

func (p *Pipeline) record(ctx context.Context, conversationID int64, a models.PhaseAnalysis, source string) {
	if p.recorder == nil || conversationID <= 0 {
		return
	}
	if err := a.Validate(); err != nil {
		slog.Warn("Pipeline.record: discarding invalid result", "conversationID", conversationID, "error", err)
		return
	}
	p.recorder.Record(ctx, models.NewPhaseRecord(conversationID, a, source))
}

func (p *Pipeline) window(messages []models.ChatMessage) []models.ChatMessage {
	if len(messages) <= p.windowSize {
		return messages
	}
	return messages[len(messages)-p.windowSize:]
}

func windowKey(window []models.ChatMessage) string {
	parts := make([]string, 0, 2*len(window))
	for _, m := range window {
		parts = append(parts, m.Role, m.Content)
	}
	return cache.HashKey(parts...)
}
