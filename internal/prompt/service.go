// Package prompt assembles phase-aware system prompts for the tutoring models.
//
// Prompts are built either from a custom per-model TemplateSet or from the
// ordered, individually switchable modules of a ModuleStore. The Service adds
// per-conversation state on top: it reuses the previous template when nothing
// relevant changed and appends verification fragments when the phase or the
// model did.
package prompt

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/api996/AIHeuristicLearningApp-sub001/internal/models"
)

// PhaseReader returns the latest recorded phase of a conversation.
type PhaseReader interface {
	LatestPhase(ctx context.Context, conversationID int64) (*models.PhaseRecord, error)
}

// Analyzer classifies a conversation.
type Analyzer interface {
	Classify(ctx context.Context, conversationID int64, messages []models.ChatMessage) models.PhaseAnalysis
}

// BuildRequest is the input of Service.BuildPrompt.
type BuildRequest struct {
	ModelID         string
	ConversationID  int64
	UserInput       string
	ContextMemories []string
	SearchResults   []string
}

// ServiceStats counts prompt builds.
type ServiceStats struct {
	FullBuilds        uint64 `json:"fullBuilds"`
	IncrementalBuilds uint64 `json:"incrementalBuilds"`
	PhaseTransitions  uint64 `json:"phaseTransitions"`
	ModelTransitions  uint64 `json:"modelTransitions"`
	PhaseReadErrors   uint64 `json:"phaseReadErrors"`
	TrackedStates     int    `json:"trackedStates"`
	TemplateFallbacks uint64 `json:"templateFallbacks"`
}

const lockStripes = 64

// Service builds prompts per conversation.
type Service struct {
	assembler *Assembler
	detector  *TransitionDetector
	phases    PhaseReader
	analyzer  Analyzer
	locks     [lockStripes]sync.Mutex

	full, incremental, phaseTransitions, modelTransitions, readErrors atomic.Uint64
}

// NewService wires the prompt service. phases and analyzer may be nil.
func NewService(assembler *Assembler, detector *TransitionDetector, phases PhaseReader, analyzer Analyzer) *Service {
	if detector == nil {
		detector = NewTransitionDetector(DefaultStateCapacity, DefaultStateTTL)
	}
	return &Service{assembler: assembler, detector: detector, phases: phases, analyzer: analyzer}
}

// Assembler returns the underlying assembler.
func (s *Service) Assembler() *Assembler { return s.assembler }

// Analyze delegates to the classification pipeline. Without one it answers K.
func (s *Service) Analyze(ctx context.Context, conversationID int64, messages []models.ChatMessage) models.PhaseAnalysis {
	if s.analyzer == nil {
		return models.PhaseAnalysis{Phase: models.DefaultPhase, Summary: "no classifier configured", Confidence: 0}
	}
	return s.analyzer.Classify(ctx, conversationID, messages)
}

func (s *Service) lockFor(conversationID int64) *sync.Mutex {
	idx := conversationID % lockStripes
	if idx < 0 {
		idx = -idx
	}
	return &s.locks[idx]
}

// currentPhase reads the recorded phase, falling back to the last known phase and then K.
func (s *Service) currentPhase(ctx context.Context, conversationID int64, prev ConversationState, known bool) models.Phase {
	if s.phases != nil {
		rec, err := s.phases.LatestPhase(ctx, conversationID)
		switch {
		case err != nil:
			s.readErrors.Add(1)
			slog.Warn("Service.currentPhase: phase read failed", "conversationID", conversationID, "error", err)
		case rec != nil && rec.Phase.Valid():
			return rec.Phase
		default:
			return models.DefaultPhase
		}
	}
	if known && prev.LastPhase.Valid() {
		return prev.LastPhase
	}
	return models.DefaultPhase
}

// BuildPrompt returns the system prompt for the next turn of a conversation.
// It never fails.
func (s *Service) BuildPrompt(ctx context.Context, req BuildRequest) string {
	mu := s.lockFor(req.ConversationID)
	mu.Lock()
	defer mu.Unlock()

	prev, known := s.detector.State(req.ConversationID)
	phase := s.currentPhase(ctx, req.ConversationID, prev, known)
	tr := s.detector.Detect(prev, known, phase, req.ModelID)
	version := s.assembler.Version()

	in := Input{
		UserInput:     req.UserInput,
		Phase:         phase,
		Memories:      req.ContextMemories,
		SearchResults: req.SearchResults,
	}

	var tmpl string
	if known && !tr.PhaseChanged && !tr.ModelChanged && prev.ConfigVersion == version && prev.LastTemplate != "" &&
		modelKey(prev.LastModelID) == modelKey(req.ModelID) && prev.LastPhase == phase {
		tmpl = prev.LastTemplate
		s.incremental.Add(1)
		slog.Debug("Service.BuildPrompt: incremental update", "conversationID", req.ConversationID, "phase", phase)
	} else {
		tmpl = s.assembler.TemplateOrDefault(req.ModelID, phase)
		s.full.Add(1)
		slog.Debug("Service.BuildPrompt: full rebuild", "conversationID", req.ConversationID, "phase", phase, "modelID", req.ModelID,
			"phaseChanged", tr.PhaseChanged, "modelChanged", tr.ModelChanged)
	}

	var b strings.Builder
	b.WriteString(s.assembler.Render(tmpl, in))
	if tr.PhaseChanged {
		s.phaseTransitions.Add(1)
		b.WriteString("\n\n")
		b.WriteString(PhaseVerification(tr.PreviousPhase, phase))
	}
	if tr.ModelChanged {
		s.modelTransitions.Add(1)
		b.WriteString("\n\n")
		b.WriteString(ModelVerification(tr.PreviousModel, req.ModelID))
	}
	out := b.String()

	s.detector.Commit(req.ConversationID, ConversationState{
		LastTemplate:  tmpl,
		LastPrompt:    out,
		LastPhase:     phase,
		LastModelID:   req.ModelID,
		ConfigVersion: version,
		ModelHistory:  appendModel(prev.ModelHistory, req.ModelID),
		UpdatedAt:     time.Now(),
	})
	return out
}

// Stats returns build counters.
func (s *Service) Stats() ServiceStats {
	return ServiceStats{
		FullBuilds:        s.full.Load(),
		IncrementalBuilds: s.incremental.Load(),
		PhaseTransitions:  s.phaseTransitions.Load(),
		ModelTransitions:  s.modelTransitions.Load(),
		PhaseReadErrors:   s.readErrors.Load(),
		TrackedStates:     s.detector.Len(),
		TemplateFallbacks: s.assembler.Fallbacks(),
	}
}

// ConversationState returns the remembered state of a conversation.
func (s *Service) ConversationState(conversationID int64) (ConversationState, bool) {
	return s.detector.State(conversationID)
}
