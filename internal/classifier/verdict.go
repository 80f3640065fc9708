package classifier

import (
	"encoding/json"
	"fmt"
	"strings"

	"mailtriage/internal/taxonomy"
)

// Usage is the token cost reported by the LLM provider for one call.
// A zero value means the provider returned no usage metadata.
type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// Verdict is one classification result, already normalized onto the
// taxonomy.
type Verdict struct {
	Label      string
	Confidence float64
	Reason     string
	Usage      Usage
}

// FallbackVerdict returns the verdict stored when classification could
// not produce a usable result.
func FallbackVerdict(reason string) Verdict {
	return Verdict{
		Label:      taxonomy.Fallback,
		Confidence: 0,
		Reason:     reason,
	}
}

// rawVerdict mirrors the JSON shape the model is instructed to emit.
// Confidence is a pointer so a missing field is distinguishable from 0.
type rawVerdict struct {
	Classification string   `json:"classification"`
	Confidence     *float64 `json:"confidence"`
	Reason         string   `json:"reason"`
}

// ParseVerdict turns raw model output into a Verdict. It never fails:
// anything that cannot be mapped cleanly onto the taxonomy becomes the
// fallback label with confidence 0 and a diagnostic reason. Pure function
// so it can be tested against recorded malformed fixtures.
func ParseVerdict(raw string) Verdict {
	text := strings.TrimSpace(raw)

	// models wrap JSON in markdown fences despite instructions
	if strings.HasPrefix(text, "```") {
		lines := strings.Split(text, "\n")
		if len(lines) > 1 {
			if strings.TrimSpace(lines[len(lines)-1]) == "```" {
				lines = lines[1 : len(lines)-1]
			} else {
				lines = lines[1:]
			}
			text = strings.Join(lines, "\n")
		}
	}

	// salvage an embedded JSON object from surrounding prose
	if !strings.HasPrefix(strings.TrimSpace(text), "{") {
		start := strings.Index(text, "{")
		end := strings.LastIndex(text, "}")
		if start == -1 || end <= start {
			return FallbackVerdict("no JSON object in model output")
		}
		text = text[start : end+1]
	}

	var rv rawVerdict
	if err := json.Unmarshal([]byte(text), &rv); err != nil {
		return FallbackVerdict(fmt.Sprintf("failed to parse model output: %v", err))
	}

	if !taxonomy.IsValid(rv.Classification) {
		return FallbackVerdict(fmt.Sprintf("label %q outside taxonomy", rv.Classification))
	}
	if rv.Confidence == nil {
		return FallbackVerdict(fmt.Sprintf("confidence missing for label %q", rv.Classification))
	}
	if *rv.Confidence < 0 || *rv.Confidence > 1 {
		return FallbackVerdict(fmt.Sprintf("confidence %v out of range for label %q", *rv.Confidence, rv.Classification))
	}

	reason := rv.Reason
	if reason == "" {
		reason = "No reason provided"
	}

	return Verdict{
		Label:      rv.Classification,
		Confidence: *rv.Confidence,
		Reason:     reason,
	}
}
