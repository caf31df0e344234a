package ace

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/XiaoConstantine/ace-go/pkg/playbook"
)

// ParseBranch tags which branch of a fallback chain produced a result:
// structured JSON, a line-oriented textual scan, or the safe default.
type ParseBranch int

const (
	ParsedStructured ParseBranch = iota
	ParsedTextual
	ParsedDefault
)

func (b ParseBranch) String() string {
	return [...]string{"structured", "textual", "default"}[b]
}

// extractJSON returns the widest substring delimited by the given pair, or
// empty when the text contains none. Models often wrap JSON in prose or
// code fences; this strips both.
func extractJSON(text string, open, closing byte) string {
	start := strings.IndexByte(text, open)
	end := strings.LastIndexByte(text, closing)
	if start == -1 || end <= start {
		return ""
	}
	return text[start : end+1]
}

// parseInsights mines model output into insights: JSON first, key:value line
// scan second, empty set last. Blocks missing observation, lesson or
// suggested_bullet are discarded.
func parseInsights(text string) ([]Insight, ParseBranch) {
	if insights := parseInsightsJSON(text); len(insights) > 0 {
		return insights, ParsedStructured
	}
	if insights := parseInsightsText(text); len(insights) > 0 {
		return insights, ParsedTextual
	}
	return nil, ParsedDefault
}

func parseInsightsJSON(text string) []Insight {
	var insights []Insight
	if raw := extractJSON(text, '[', ']'); raw != "" {
		if err := json.Unmarshal([]byte(raw), &insights); err == nil {
			return validInsights(insights)
		}
	}
	if raw := extractJSON(text, '{', '}'); raw != "" {
		var wrapper struct {
			Insights []Insight `json:"insights"`
		}
		if err := json.Unmarshal([]byte(raw), &wrapper); err == nil {
			return validInsights(wrapper.Insights)
		}
	}
	return nil
}

func validInsights(insights []Insight) []Insight {
	var out []Insight
	for _, in := range insights {
		if in.Observation == "" || in.Lesson == "" || in.SuggestedBullet == "" {
			continue
		}
		out = append(out, in)
	}
	return out
}

func parseInsightsText(text string) []Insight {
	var out []Insight
	var current *Insight

	flush := func() {
		if current != nil && current.Observation != "" &&
			current.Lesson != "" && current.SuggestedBullet != "" {
			out = append(out, *current)
		}
		current = nil
	}

	for _, line := range strings.Split(text, "\n") {
		key, value, ok := splitKeyValue(line)
		if !ok {
			continue
		}
		switch key {
		case "observation":
			// A new observation starts a new block.
			flush()
			current = &Insight{Observation: value}
		case "lesson":
			if current != nil {
				current.Lesson = value
			}
		case "suggested_bullet":
			if current != nil {
				current.SuggestedBullet = value
			}
		case "confidence":
			if current != nil {
				if c, err := strconv.ParseFloat(value, 64); err == nil {
					current.Confidence = c
				}
			}
		case "section":
			if current != nil {
				current.Section = value
			}
		}
	}
	flush()

	return out
}

func splitKeyValue(line string) (key, value string, ok bool) {
	idx := strings.Index(line, ":")
	if idx == -1 {
		return "", "", false
	}
	key = strings.ToLower(strings.TrimSpace(strings.Trim(line[:idx], "-* ")))
	value = strings.TrimSpace(line[idx+1:])
	if key == "" || value == "" {
		return "", "", false
	}
	return key, value, true
}

// assessment is the quality verdict over a set of insights.
type assessment struct {
	Quality         float64 `json:"quality_score"`
	NeedsRefinement bool    `json:"needs_refinement"`
}

// parseAssessment reads a quality verdict: JSON first, a key:value scan
// second, and the deterministic confidence-mean default last. An empty
// insight set always forces quality 0 and refinement.
func parseAssessment(text string, insights []Insight) (assessment, ParseBranch) {
	if len(insights) == 0 {
		return assessment{Quality: 0, NeedsRefinement: true}, ParsedDefault
	}

	if raw := extractJSON(text, '{', '}'); raw != "" {
		// Unmarshal via a map so a present-but-zero quality_score still
		// counts as structured output.
		var m map[string]any
		if err := json.Unmarshal([]byte(raw), &m); err == nil {
			if q, ok := m["quality_score"].(float64); ok {
				a := assessment{Quality: q}
				if nr, ok := m["needs_refinement"].(bool); ok {
					a.NeedsRefinement = nr
				}
				return a, ParsedStructured
			}
		}
	}

	if a, ok := parseAssessmentText(text); ok {
		return a, ParsedTextual
	}

	var sum float64
	for _, in := range insights {
		sum += in.Confidence
	}
	quality := sum / float64(len(insights))
	return assessment{Quality: quality, NeedsRefinement: quality < 0.7}, ParsedDefault
}

func parseAssessmentText(text string) (assessment, bool) {
	var a assessment
	found := false
	for _, line := range strings.Split(text, "\n") {
		key, value, ok := splitKeyValue(line)
		if !ok {
			continue
		}
		switch key {
		case "quality_score", "quality":
			if q, err := strconv.ParseFloat(value, 64); err == nil {
				a.Quality = q
				found = true
			}
		case "needs_refinement", "refine":
			a.NeedsRefinement = strings.EqualFold(value, "true") || strings.EqualFold(value, "yes")
		}
	}
	return a, found
}

var addBulletRegex = regexp.MustCompile(`(?i)add(?:ed|ing)?\b[^"]*\bbullet\b[^"]*"([^"]+)"`)

// parseDeltas reads delta operations from synthesis output: JSON first, an
// "add ... bullet ... <quoted content>" scan second, nothing last.
func parseDeltas(text string) ([]playbook.DeltaOperation, ParseBranch) {
	if ops := parseDeltasJSON(text); len(ops) > 0 {
		return ops, ParsedStructured
	}
	if ops := parseDeltasText(text); len(ops) > 0 {
		return ops, ParsedTextual
	}
	return nil, ParsedDefault
}

func parseDeltasJSON(text string) []playbook.DeltaOperation {
	var ops []playbook.DeltaOperation
	if raw := extractJSON(text, '[', ']'); raw != "" {
		if err := json.Unmarshal([]byte(raw), &ops); err == nil {
			return normalizeTypes(ops)
		}
	}
	if raw := extractJSON(text, '{', '}'); raw != "" {
		var wrapper struct {
			Operations []playbook.DeltaOperation `json:"operations"`
		}
		if err := json.Unmarshal([]byte(raw), &wrapper); err == nil {
			return normalizeTypes(wrapper.Operations)
		}
	}
	return nil
}

func normalizeTypes(ops []playbook.DeltaOperation) []playbook.DeltaOperation {
	for i := range ops {
		ops[i].Type = playbook.DeltaType(strings.ToUpper(string(ops[i].Type)))
	}
	return ops
}

func parseDeltasText(text string) []playbook.DeltaOperation {
	var ops []playbook.DeltaOperation
	for _, line := range strings.Split(text, "\n") {
		for _, match := range addBulletRegex.FindAllStringSubmatch(line, -1) {
			ops = append(ops, playbook.DeltaOperation{
				Type:   playbook.DeltaAdd,
				Bullet: &playbook.Bullet{Content: match[1]},
			})
		}
	}
	return ops
}
