package records

import "strings"

// Field separators for the abductive prompt format. The scoring model was
// trained with the hypothesis sandwiched between the two observations, so
// generation is prompted with obs1, then obs2, then the begin marker.
const (
	beginHypothesis = "<|beginhyp|>"
	endHypothesis   = "<|endhyp|>"
)

// BuildPrompt assembles the generation prompt for one record.
func BuildPrompt(r *Record) string {
	var sb strings.Builder
	sb.WriteString(strings.TrimSpace(r.Obs1))
	sb.WriteString(" ")
	sb.WriteString(strings.TrimSpace(r.Obs2))
	sb.WriteString(" ")
	sb.WriteString(beginHypothesis)
	sb.WriteString(" ")
	return sb.String()
}

// CleanGeneration post-processes a raw generated hypothesis: strip marker
// tokens, then truncate at the first period so a fixed-length generation
// yields a single sentence.
func CleanGeneration(text string) string {
	text = strings.ReplaceAll(text, beginHypothesis, "")
	text = strings.ReplaceAll(text, endHypothesis, "")
	text = strings.TrimSpace(text)
	if idx := strings.Index(text, "."); idx != -1 {
		text = text[:idx+1]
	}
	return text
}

// ConditioningEvents lists the event strings handed to the knowledge
// encoder for a record: both observations, which bound the hypothesis on
// either side.
func ConditioningEvents(r *Record) []string {
	return []string{strings.TrimSpace(r.Obs1), strings.TrimSpace(r.Obs2)}
}
