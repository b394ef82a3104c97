package phase

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

// rawResult is the loosely-typed output of a parsing strategy before validation.
type rawResult struct {
	Phase      string
	Summary    string
	Confidence float64
	HasConf    bool
}

// parseStrategy attempts to extract a result from a model response.
type parseStrategy struct {
	name string
	fn   func(text string) (rawResult, bool)
}

// parseStrategies are tried in order; the first success wins.
var parseStrategies = []parseStrategy{
	{name: "direct", fn: parseDirect},
	{name: "embedded-object", fn: parseEmbedded},
	{name: "field-scan", fn: parseFieldScan},
}

// parseResponse runs every strategy in order and reports which one succeeded.
func parseResponse(text string) (rawResult, string, bool) {
	for _, s := range parseStrategies {
		if r, ok := s.fn(text); ok {
			return r, s.name, true
		}
	}
	return rawResult{}, "", false
}

var fencePattern = regexp.MustCompile("(?s)^```[a-zA-Z]*\\s*(.*?)\\s*```$")

func stripFences(text string) string {
	text = strings.TrimSpace(text)
	if m := fencePattern.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return text
}

func parseDirect(text string) (rawResult, bool) {
	return decodeObject(stripFences(text))
}

func parseEmbedded(text string) (rawResult, bool) {
	start, end, ok := findJSONBounds(text)
	if !ok {
		return rawResult{}, false
	}
	return decodeObject(text[start : end+1])
}

// findJSONBounds locates the first brace-balanced object, skipping braces in strings.
func findJSONBounds(text string) (int, int, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return 0, 0, false
	}
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(text); i++ {
		c := text[i]
		if escaped {
			escaped = false
			continue
		}
		switch {
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return start, i, true
			}
		}
	}
	return 0, 0, false
}

// phaseKeys, summaryKeys and confidenceKeys are the accepted field names.
var (
	phaseKeys      = []string{"currentPhase", "current_phase", "phase", "阶段", "当前阶段"}
	summaryKeys    = []string{"summary", "摘要", "总结"}
	confidenceKeys = []string{"confidence", "置信度"}
)

func decodeObject(s string) (rawResult, bool) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(s), &obj); err != nil {
		return rawResult{}, false
	}
	var r rawResult
	r.Phase = firstString(obj, phaseKeys)
	if r.Phase == "" {
		return rawResult{}, false
	}
	r.Summary = firstString(obj, summaryKeys)
	for _, k := range confidenceKeys {
		if v, ok := obj[k]; ok {
			if f, ok := toFloat(v); ok {
				r.Confidence, r.HasConf = f, true
				break
			}
		}
	}
	return r, true
}

func firstString(obj map[string]any, keys []string) string {
	for _, k := range keys {
		if v, ok := obj[k].(string); ok && strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

var (
	scanPhase      = fieldPattern(phaseKeys, `([A-Za-z]+|[\p{Han}]+)`)
	scanSummary    = fieldPattern(summaryKeys, `([^,"}\n]+)`)
	scanConfidence = fieldPattern(confidenceKeys, `([0-9]*\.?[0-9]+)`)
)

// fieldPattern matches `key: value` pairs with optional quotes around either side.
func fieldPattern(keys []string, value string) *regexp.Regexp {
	quoted := make([]string, len(keys))
	for i, k := range keys {
		quoted[i] = regexp.QuoteMeta(k)
	}
	return regexp.MustCompile(`(?i)["']?(?:` + strings.Join(quoted, "|") + `)["']?\s*[:：=]\s*["']?` + value)
}

func parseFieldScan(text string) (rawResult, bool) {
	m := scanPhase.FindStringSubmatch(text)
	if m == nil {
		return rawResult{}, false
	}
	r := rawResult{Phase: m[1]}
	if s := scanSummary.FindStringSubmatch(text); s != nil {
		r.Summary = strings.Trim(strings.TrimSpace(s[1]), `"'`)
	}
	if c := scanConfidence.FindStringSubmatch(text); c != nil {
		if f, err := strconv.ParseFloat(c[1], 64); err == nil {
			r.Confidence, r.HasConf = f, true
		}
	}
	return r, true
}
