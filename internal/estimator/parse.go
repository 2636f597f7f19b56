package estimator

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// modelOutput is the JSON shape the prompt asks for.
type modelOutput struct {
	Probability *float64 `json:"probability"`
	Confidence  *float64 `json:"confidence"`
	Reasoning   string   `json:"reasoning"`
}

var (
	probabilityRe = regexp.MustCompile(`(?i)probability\D{0,24}?(0?\.\d+|1\.0+|[01])`)
	confidenceRe  = regexp.MustCompile(`(?i)confidence\D{0,24}?(0?\.\d+|1\.0+|[01])`)
)

// Extract recovers a (probability, confidence, reasoning) triple from raw
// model output. Models wrap JSON in prose, code fences, or nothing at all, so
// parsing degrades in stages: strict JSON, then the first balanced JSON
// object found anywhere in the text, then bare regex over labelled numbers.
// Only after all three fail is the output rejected.
func Extract(raw string) (prob, conf float64, reasoning string, err error) {
	trimmed := strings.TrimSpace(stripFences(raw))

	if out, ok := tryJSON(trimmed); ok {
		return validate(out)
	}
	if obj := firstJSONObject(trimmed); obj != "" {
		if out, ok := tryJSON(obj); ok {
			return validate(out)
		}
	}
	if out, ok := tryRegex(trimmed); ok {
		return validate(out)
	}
	return 0, 0, "", fmt.Errorf("%w: %q", ErrUnparseable, truncate(raw, 120))
}

func tryJSON(s string) (modelOutput, bool) {
	var out modelOutput
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return modelOutput{}, false
	}
	return out, out.Probability != nil
}

// firstJSONObject returns the first balanced {...} span, skipping braces
// inside string literals.
func firstJSONObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
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
				return s[start : i+1]
			}
		}
	}
	return ""
}

func tryRegex(s string) (modelOutput, bool) {
	m := probabilityRe.FindStringSubmatch(s)
	if m == nil {
		return modelOutput{}, false
	}
	p, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return modelOutput{}, false
	}

	out := modelOutput{Probability: &p}
	if cm := confidenceRe.FindStringSubmatch(s); cm != nil {
		if c, err := strconv.ParseFloat(cm[1], 64); err == nil {
			out.Confidence = &c
		}
	}
	return out, true
}

func validate(out modelOutput) (float64, float64, string, error) {
	p := *out.Probability
	if p < 0 || p > 1 {
		return 0, 0, "", fmt.Errorf("%w: probability %f out of range", ErrUnparseable, p)
	}

	// Missing confidence defaults to a middling 0.5 rather than rejecting
	// the estimate outright.
	c := 0.5
	if out.Confidence != nil {
		c = *out.Confidence
		if c < 0 || c > 1 {
			return 0, 0, "", fmt.Errorf("%w: confidence %f out of range", ErrUnparseable, c)
		}
	}
	return p, c, out.Reasoning, nil
}

func stripFences(s string) string {
	s = strings.ReplaceAll(s, "```json", "")
	return strings.ReplaceAll(s, "```", "")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
