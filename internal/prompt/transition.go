package prompt

import (
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/api996/AIHeuristicLearningApp-sub001/internal/models"
)

// Default bounds for per-conversation prompt state.
const (
	DefaultStateCapacity = 10000
	DefaultStateTTL      = 24 * time.Hour
	maxModelHistory      = 20
)

// Markers that open the verification fragments.
const (
	PhaseVerificationMarker = "【阶段确认】"
	ModelVerificationMarker = "【模型确认】"
)

// ConversationState is the prompt state remembered per conversation.
type ConversationState struct {
	LastTemplate  string       `json:"-"`
	LastPrompt    string       `json:"-"`
	LastPhase     models.Phase `json:"lastPhase"`
	LastModelID   string       `json:"lastModelId"`
	ConfigVersion string       `json:"configVersion"`
	ModelHistory  []string     `json:"modelHistory"`
	UpdatedAt     time.Time    `json:"updatedAt"`
}

// Transition describes what changed since the previous prompt of a conversation.
type Transition struct {
	PhaseChanged  bool
	ModelChanged  bool
	PreviousPhase models.Phase
	PreviousModel string
}

// TransitionDetector tracks per-conversation state in a bounded LRU with expiry.
type TransitionDetector struct {
	states *expirable.LRU[int64, ConversationState]
}

// NewTransitionDetector keeps at most capacity conversations, each for ttl after its last update.
func NewTransitionDetector(capacity int, ttl time.Duration) *TransitionDetector {
	if capacity <= 0 {
		capacity = DefaultStateCapacity
	}
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}
	return &TransitionDetector{states: expirable.NewLRU[int64, ConversationState](capacity, nil, ttl)}
}

// State returns the remembered state of conversationID.
func (d *TransitionDetector) State(conversationID int64) (ConversationState, bool) {
	return d.states.Get(conversationID)
}

// Detect compares prev with the current phase and model. A change is only
// reported when a previous value was recorded.
func (d *TransitionDetector) Detect(prev ConversationState, known bool, phase models.Phase, modelID string) Transition {
	if !known {
		return Transition{}
	}
	return Transition{
		PhaseChanged:  prev.LastPhase != "" && prev.LastPhase != phase,
		ModelChanged:  prev.LastModelID != "" && modelKey(prev.LastModelID) != modelKey(modelID),
		PreviousPhase: prev.LastPhase,
		PreviousModel: prev.LastModelID,
	}
}

// Commit stores state for conversationID.
func (d *TransitionDetector) Commit(conversationID int64, state ConversationState) {
	d.states.Add(conversationID, state)
}

// ModelHistory returns the models used by conversationID, oldest first.
func (d *TransitionDetector) ModelHistory(conversationID int64) []string {
	st, ok := d.states.Get(conversationID)
	if !ok {
		return nil
	}
	return append([]string(nil), st.ModelHistory...)
}

// Forget drops the state of conversationID.
func (d *TransitionDetector) Forget(conversationID int64) {
	d.states.Remove(conversationID)
}

// Len returns the number of tracked conversations.
func (d *TransitionDetector) Len() int {
	return d.states.Len()
}

// appendModel records modelID unless it repeats the most recent entry.
func appendModel(history []string, modelID string) []string {
	if n := len(history); n > 0 && modelKey(history[n-1]) == modelKey(modelID) {
		return history
	}
	out := append(append([]string(nil), history...), modelID)
	if len(out) > maxModelHistory {
		out = out[len(out)-maxModelHistory:]
	}
	return out
}

// PhaseVerification is appended when the phase changed since the last prompt.
// It asks the model to state the current phase and what it means.
func PhaseVerification(from, to models.Phase) string {
	return fmt.Sprintf("%s学习阶段已从 %s（%s）转换为 %s（%s）。请在回答开头用一句话说明当前所处的学习阶段及其含义（%s：%s），然后按该阶段的教学重点继续。",
		PhaseVerificationMarker, from, from.Name(), to, to.Name(), to.Name(), to.Description())
}

// ModelVerification is appended when the underlying model changed since the last prompt.
// It asks the model to confirm its instructions are loaded under the new id.
func ModelVerification(from, to string) string {
	return fmt.Sprintf("%s本对话的底层模型已从 %s 切换为 %s。请先确认你已作为模型 %s 加载本轮的系统指令，再继续回答。",
		ModelVerificationMarker, from, to, to)
}
