package prompt

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/api996/AIHeuristicLearningApp-sub001/internal/models"
)

// Input carries the per-request values substituted into a template.
type Input struct {
	UserInput     string
	Phase         models.Phase
	Memories      []string
	SearchResults []string
	Now           time.Time
}

// Recognized placeholder names.
const (
	VarUserInput        = "user_input"
	VarPhase            = "phase"
	VarPhaseName        = "phase_name"
	VarPhaseDescription = "phase_description"
	VarDate             = "date"
	VarTime             = "time"
	VarDateTime         = "datetime"
	VarTimezone         = "timezone"
	VarMemory           = "memory"
	VarSearchResults    = "search_results"
)

// userInputHeading labels the input section appended to templates without a
// user_input placeholder.
const userInputHeading = "学生输入："

// userInputToken stands in for the user input until post-processing is done,
// so the input itself is never rewritten.
const userInputToken = "\x00user_input\x00"

var (
	placeholderPattern = regexp.MustCompile(`\{\{\s*(\w+)\s*\}\}`)
	sectionPattern     = regexp.MustCompile(`(?s)\{\{#(\w+)\}\}(.*?)\{\{/(\w+)\}\}`)
	notePattern        = regexp.MustCompile(`(?s)<!--.*?-->`)
	blankRunPattern    = regexp.MustCompile(`\n[ \t]*(?:\n[ \t]*){2,}`)
	trailingWSPattern  = regexp.MustCompile(`(?m)[ \t]+$`)
)

// stripNotes removes operator-only <!-- ... --> blocks.
func stripNotes(tmpl string) string {
	return notePattern.ReplaceAllString(tmpl, "")
}

// collapseBlankLines reduces runs of two or more blank lines to one and trims.
func collapseBlankLines(s string) string {
	s = trailingWSPattern.ReplaceAllString(s, "")
	s = blankRunPattern.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// prepareTemplate is applied once per assembled template before caching.
func prepareTemplate(tmpl string) string {
	return collapseBlankLines(stripNotes(tmpl))
}

// variables builds the substitution map for in, excluding the user input.
func variables(in Input, loc *time.Location) map[string]string {
	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}
	if loc != nil {
		now = now.In(loc)
	}
	phase := in.Phase
	if !phase.Valid() {
		phase = models.DefaultPhase
	}
	return map[string]string{
		VarPhase:            string(phase),
		VarPhaseName:        phase.Name(),
		VarPhaseDescription: phase.Description(),
		VarDate:             now.Format("2006-01-02"),
		VarTime:             now.Format("15:04"),
		VarDateTime:         now.Format("2006-01-02 15:04"),
		VarTimezone:         now.Location().String(),
		VarMemory:           bulletList(in.Memories),
		VarSearchResults:    numberedList(in.SearchResults),
	}
}

func bulletList(items []string) string {
	var b strings.Builder
	for _, it := range items {
		if it = strings.TrimSpace(it); it == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("- ")
		b.WriteString(it)
	}
	return b.String()
}

func numberedList(items []string) string {
	var b strings.Builder
	n := 0
	for _, it := range items {
		if it = strings.TrimSpace(it); it == "" {
			continue
		}
		n++
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%d. %s", n, it)
	}
	return b.String()
}

// render substitutes in into a prepared template. Optional sections
// {{#name}}...{{/name}} are kept only when name has a value; unknown
// placeholders become empty. The user input is inserted verbatim last.
func render(tmpl string, in Input, loc *time.Location) string {
	vars := variables(in, loc)
	vars[VarUserInput] = userInputToken
	hasInput := strings.TrimSpace(in.UserInput) != ""

	out := sectionPattern.ReplaceAllStringFunc(tmpl, func(m string) string {
		sub := sectionPattern.FindStringSubmatch(m)
		if sub[1] != sub[3] {
			return m
		}
		if sub[1] == VarUserInput {
			if hasInput {
				return sub[2]
			}
			return ""
		}
		if vars[sub[1]] == "" {
			return ""
		}
		return sub[2]
	})
	out = placeholderPattern.ReplaceAllStringFunc(out, func(m string) string {
		name := placeholderPattern.FindStringSubmatch(m)[1]
		return vars[name]
	})
	if !strings.Contains(out, userInputToken) {
		out += "\n\n" + userInputHeading + "\n" + userInputToken
	}
	out = collapseBlankLines(out)
	return strings.ReplaceAll(out, userInputToken, in.UserInput)
}
