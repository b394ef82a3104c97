// Package models defines the core data structures for the KWLQ tutoring backend.
//
// It includes the phase taxonomy, classification results, chat messages and the
// request/response payloads shared across the pipeline, prompt and API layers.
package models

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Phase identifies where a learner is in the KWLQ cycle.
type Phase string

const (
	// PhaseKnow covers what the learner already knows.
	PhaseKnow Phase = "K"
	// PhaseWonder covers what the learner wants to know or is confused about.
	PhaseWonder Phase = "W"
	// PhaseLearn covers actively learning, working through examples and practice.
	PhaseLearn Phase = "L"
	// PhaseQuestion covers questioning, critique and reflection on limits.
	PhaseQuestion Phase = "Q"
)

// DefaultPhase is used whenever no phase information is available.
const DefaultPhase = PhaseKnow

// Phases lists every phase in cycle order.
var Phases = []Phase{PhaseKnow, PhaseWonder, PhaseLearn, PhaseQuestion}

// Valid reports whether p is one of K, W, L, Q.
func (p Phase) Valid() bool {
	switch p {
	case PhaseKnow, PhaseWonder, PhaseLearn, PhaseQuestion:
		return true
	default:
		return false
	}
}

// Name returns the human-readable name of the phase.
func (p Phase) Name() string {
	switch p {
	case PhaseKnow:
		return "Know"
	case PhaseWonder:
		return "Wonder"
	case PhaseLearn:
		return "Learn"
	case PhaseQuestion:
		return "Question"
	default:
		return "Unknown"
	}
}

// Description returns the tutoring focus of the phase.
func (p Phase) Description() string {
	switch p {
	case PhaseKnow:
		return "activate prior knowledge and establish what the learner already understands"
	case PhaseWonder:
		return "surface the learner's curiosity and points of confusion"
	case PhaseLearn:
		return "guide the learner through explanations, worked examples and practice"
	case PhaseQuestion:
		return "encourage critique, reflection and exploration of limitations"
	default:
		return ""
	}
}

var phaseSynonyms = map[string]Phase{
	"k": PhaseKnow, "know": PhaseKnow, "knowledge": PhaseKnow, "knowing": PhaseKnow,
	"知识": PhaseKnow, "了解": PhaseKnow, "已知": PhaseKnow,
	"w": PhaseWonder, "want": PhaseWonder, "wonder": PhaseWonder, "wondering": PhaseWonder,
	"疑惑": PhaseWonder, "困惑": PhaseWonder, "想知道": PhaseWonder, "好奇": PhaseWonder,
	"l": PhaseLearn, "learn": PhaseLearn, "learning": PhaseLearn, "learned": PhaseLearn,
	"学习": PhaseLearn, "深入": PhaseLearn,
	"q": PhaseQuestion, "question": PhaseQuestion, "questioning": PhaseQuestion,
	"质疑": PhaseQuestion, "提问": PhaseQuestion, "挑战": PhaseQuestion, "反思": PhaseQuestion,
}

// ParsePhase normalizes a phase label produced by a model or a client.
// Accepted forms are single letters in any case, English words and Chinese
// synonyms, optionally followed by "phase" or "阶段".
func ParsePhase(s string) (Phase, bool) {
	v := strings.ToLower(strings.TrimSpace(s))
	v = strings.Trim(v, "\"'`.,:;()[]{}")
	v = strings.TrimSuffix(v, "阶段")
	v = strings.TrimSuffix(v, "phase")
	v = strings.TrimSpace(v)
	if p, ok := phaseSynonyms[v]; ok {
		return p, true
	}
	// "K (Know)" and similar forms carry the letter first.
	if len(v) > 1 && (v[1] == ' ' || v[1] == '(' || v[1] == '-') {
		if p, ok := phaseSynonyms[v[:1]]; ok {
			return p, true
		}
	}
	return "", false
}

// MaxSummaryRunes bounds the length of a phase summary.
const MaxSummaryRunes = 50

// ChatMessage is one turn of a conversation.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Chat roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// PhaseAnalysis is the output of phase classification.
type PhaseAnalysis struct {
	Phase      Phase   `json:"currentPhase"`
	Summary    string  `json:"summary"`
	Confidence float64 `json:"confidence"`
}

// Validate checks the shape of a classification result.
func (a PhaseAnalysis) Validate() error {
	if !a.Phase.Valid() {
		return &ValidationError{Field: "currentPhase", Reason: fmt.Sprintf("unknown phase %q", a.Phase)}
	}
	if math.IsNaN(a.Confidence) || math.IsInf(a.Confidence, 0) || a.Confidence < 0 || a.Confidence > 1 {
		return &ValidationError{Field: "confidence", Reason: fmt.Sprintf("out of range: %v", a.Confidence)}
	}
	return nil
}

// TruncateSummary trims s and caps it at MaxSummaryRunes runes.
func TruncateSummary(s string) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= MaxSummaryRunes {
		return s
	}
	r := []rune(s)
	return string(r[:MaxSummaryRunes])
}

// ClampConfidence bounds c to [0,1]; non-finite values become 0.
func ClampConfidence(c float64) float64 {
	switch {
	case math.IsNaN(c), math.IsInf(c, 0):
		return 0
	case c < 0:
		return 0
	case c > 1:
		return 1
	}
	return c
}

// Sources of a phase record.
const (
	SourceHeuristic = "heuristic"
	SourceManual    = "manual"
)

// PhaseRecord is the persisted latest phase of a conversation.
type PhaseRecord struct {
	ID             string    `json:"id"`
	ConversationID int64     `json:"conversation_id"`
	Phase          Phase     `json:"phase"`
	Summary        string    `json:"summary"`
	Confidence     float64   `json:"confidence"`
	Source         string    `json:"source"`
	Timestamp      time.Time `json:"timestamp"`
}

// NewPhaseRecord builds a record for the given analysis stamped with the current time.
func NewPhaseRecord(conversationID int64, a PhaseAnalysis, source string) PhaseRecord {
	return PhaseRecord{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Phase:          a.Phase,
		Summary:        a.Summary,
		Confidence:     a.Confidence,
		Source:         source,
		Timestamp:      time.Now().UTC(),
	}
}

// Analysis returns the classification carried by the record.
func (r PhaseRecord) Analysis() PhaseAnalysis {
	return PhaseAnalysis{Phase: r.Phase, Summary: r.Summary, Confidence: r.Confidence}
}

// ValidationError reports a field that failed validation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Request validation errors.
var (
	ErrInvalidConversationID = errors.New("conversationId must be a positive integer")
	ErrEmptyMessages         = errors.New("messages must not be empty")
	ErrMissingModelID        = errors.New("modelId is required")
	ErrMissingUserInput      = errors.New("userInput is required")
)

// AnalyzeConversationRequest is the payload of POST /analyze-conversation.
type AnalyzeConversationRequest struct {
	ConversationID int64         `json:"conversationId"`
	Messages       []ChatMessage `json:"messages"`
}

// Validate validates an AnalyzeConversationRequest.
func (r *AnalyzeConversationRequest) Validate() error {
	if r.ConversationID <= 0 {
		return ErrInvalidConversationID
	}
	if len(r.Messages) == 0 {
		return ErrEmptyMessages
	}
	return nil
}

// GeneratePromptRequest is the payload of POST /generate-prompt.
type GeneratePromptRequest struct {
	ModelID         string `json:"modelId"`
	ConversationID  int64  `json:"conversationId"`
	UserInput       string `json:"userInput"`
	ContextMemories string `json:"contextMemories,omitempty"`
	SearchResults   string `json:"searchResults,omitempty"`
}

// Validate validates a GeneratePromptRequest.
func (r *GeneratePromptRequest) Validate() error {
	if strings.TrimSpace(r.ModelID) == "" {
		return ErrMissingModelID
	}
	if r.ConversationID <= 0 {
		return ErrInvalidConversationID
	}
	if strings.TrimSpace(r.UserInput) == "" {
		return ErrMissingUserInput
	}
	return nil
}

// GeneratePromptResponse is the body returned by POST /generate-prompt.
type GeneratePromptResponse struct {
	Success bool   `json:"success"`
	Prompt  string `json:"prompt"`
}

// ErrorResponse is the error body of the conversation endpoints.
type ErrorResponse struct {
	Error string `json:"error"`
}

// APIStatus represents the status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates an API request completed successfully.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates an API request failed with an error.
	APIStatusError APIStatus = "error"
)

// APIResponse is the envelope used by the admin and ops endpoints.
type APIResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Result  interface{} `json:"result,omitempty"`
}

// APIResponseBuilder provides a fluent interface for building API responses.
type APIResponseBuilder struct {
	response APIResponse
}

// NewAPIResponseBuilder creates a new APIResponseBuilder instance.
func NewAPIResponseBuilder() *APIResponseBuilder {
	return &APIResponseBuilder{}
}

// WithStatus sets the status of the API response.
func (b *APIResponseBuilder) WithStatus(status APIStatus) *APIResponseBuilder {
	b.response.Status = string(status)
	return b
}

// WithMessage sets the message of the API response.
func (b *APIResponseBuilder) WithMessage(message string) *APIResponseBuilder {
	b.response.Message = message
	return b
}

// WithResult sets the result data of the API response.
func (b *APIResponseBuilder) WithResult(result interface{}) *APIResponseBuilder {
	b.response.Result = result
	return b
}

// Build constructs and returns the final APIResponse.
func (b *APIResponseBuilder) Build() APIResponse {
	return b.response
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return NewAPIResponseBuilder().WithStatus(APIStatusOK).WithResult(result).Build()
}

// SuccessWithMessage creates a successful API response with a message and optional result data.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return NewAPIResponseBuilder().WithStatus(APIStatusOK).WithMessage(message).WithResult(result).Build()
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return NewAPIResponseBuilder().WithStatus(APIStatusError).WithMessage(message).Build()
}
