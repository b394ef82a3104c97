package phase

import (
	"regexp"
	"strings"

	"github.com/api996/AIHeuristicLearningApp-sub001/internal/models"
)

// HeuristicConfidence is the fixed confidence of keyword-based results.
const HeuristicConfidence = 0.6

type keyword struct {
	re     *regexp.Regexp
	weight int
}

// KeywordClassifier scores user turns against weighted keyword sets.
// It is pure and never touches the network.
type KeywordClassifier struct {
	sets map[models.Phase][]keyword
}

// weighted keyword lists per phase; weight 2 marks strong signals.
var defaultKeywords = map[models.Phase]map[string]int{
	models.PhaseKnow: {
		"是什么": 2, "什么是": 2, "定义": 2, "概念": 2, "我知道": 1, "我了解": 1, "基础": 1, "介绍": 1,
		"what is": 2, "define": 2, "definition": 2, "concept": 1, "i know": 1, "basics": 1, "overview": 1,
	},
	models.PhaseWonder: {
		"为什么": 2, "不懂": 2, "不明白": 2, "困惑": 2, "疑惑": 2, "好奇": 1, "想知道": 1, "搞不清": 1,
		"why": 2, "confused": 2, "confusing": 2, "don't understand": 2, "wonder": 1, "curious": 1,
	},
	models.PhaseLearn: {
		"如何": 2, "怎么做": 2, "怎么": 1, "步骤": 2, "例子": 2, "示例": 2, "练习": 2, "实践": 1, "应用": 1,
		"how to": 2, "how do": 2, "example": 2, "practice": 2, "steps": 1, "exercise": 2, "apply": 1,
	},
	models.PhaseQuestion: {
		"但是": 1, "质疑": 2, "不同意": 2, "局限": 2, "缺点": 2, "反驳": 2, "真的吗": 1, "批判": 2,
		"however": 1, "disagree": 2, "limitation": 2, "drawback": 2, "critique": 2, "counterexample": 2,
	},
}

// NewKeywordClassifier compiles the default keyword sets.
func NewKeywordClassifier() *KeywordClassifier {
	kc := &KeywordClassifier{sets: make(map[models.Phase][]keyword, len(defaultKeywords))}
	for p, words := range defaultKeywords {
		for w, weight := range words {
			kc.sets[p] = append(kc.sets[p], keyword{re: compileKeyword(w), weight: weight})
		}
	}
	return kc
}

// ASCII keywords match on word boundaries; CJK keywords match anywhere.
func compileKeyword(w string) *regexp.Regexp {
	quoted := regexp.QuoteMeta(w)
	if isASCII(w) {
		return regexp.MustCompile(`\b` + quoted + `\b`)
	}
	return regexp.MustCompile(quoted)
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}

// Classify scores the user-authored turns of messages.
func (kc *KeywordClassifier) Classify(messages []models.ChatMessage) models.PhaseAnalysis {
	var b strings.Builder
	for _, m := range messages {
		if m.Role != models.RoleUser {
			continue
		}
		b.WriteString(m.Content)
		b.WriteByte('\n')
	}
	return kc.ClassifyText(b.String())
}

// ClassifyText scores raw text. The strictly highest score wins; ties at the
// top and all-zero scores resolve to K.
func (kc *KeywordClassifier) ClassifyText(text string) models.PhaseAnalysis {
	text = strings.ToLower(text)
	scores := kc.Scores(text)

	best, bestScore, tie := models.DefaultPhase, 0, false
	for _, p := range models.Phases {
		s := scores[p]
		switch {
		case s > bestScore:
			best, bestScore, tie = p, s, false
		case s == bestScore && s > 0:
			tie = true
		}
	}
	if bestScore == 0 || tie {
		best = models.DefaultPhase
	}
	return models.PhaseAnalysis{
		Phase:      best,
		Summary:    heuristicSummary(best),
		Confidence: HeuristicConfidence,
	}
}

// Scores returns the weighted match count per phase for lower-cased text.
func (kc *KeywordClassifier) Scores(text string) map[models.Phase]int {
	scores := make(map[models.Phase]int, len(models.Phases))
	for p, kws := range kc.sets {
		for _, kw := range kws {
			if n := len(kw.re.FindAllStringIndex(text, -1)); n > 0 {
				scores[p] += n * kw.weight
			}
		}
	}
	return scores
}

func heuristicSummary(p models.Phase) string {
	switch p {
	case models.PhaseWonder:
		return "学生表达了疑惑，正在探索想知道的问题"
	case models.PhaseLearn:
		return "学生正在通过示例和练习深入学习"
	case models.PhaseQuestion:
		return "学生在质疑和反思所学内容"
	default:
		return "学生正在建立或回顾已有知识"
	}
}
