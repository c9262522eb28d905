package prompt

import (
	"regexp"
	"strings"
)

var answerLinePattern = regexp.MustCompile(`(?i)answer\s*:\s*(?:\*+\s*)?(yes|no)`)

// ParseYesNo interprets a model verdict. It first looks for an explicit
// "answer: yes/no" line, then falls back to whichever literal YES or NO
// appears first in the text. Unparseable output counts as no.
func ParseYesNo(text string) bool {
	if m := answerLinePattern.FindStringSubmatch(text); m != nil {
		return strings.EqualFold(m[1], "yes")
	}
	upper := strings.ToUpper(text)
	yes := strings.Index(upper, "YES")
	no := strings.Index(upper, "NO")
	switch {
	case yes < 0:
		return false
	case no < 0:
		return true
	default:
		return yes < no
	}
}

// ParseClarificationQuestion extracts the multiple-choice question from a
// clarify-ask completion. An empty result means the model declared the
// question unambiguous.
func ParseClarificationQuestion(text string) string {
	if strings.Contains(text, NoAmbiguityToken) {
		return ""
	}
	for _, marker := range []string{"mul_choice_cq =", "mul_choice_cq="} {
		if strings.Contains(text, marker) {
			parts := strings.Split(text, marker)
			return stripQuotes(parts[len(parts)-1])
		}
	}
	lines := nonEmptyLines(text)
	if len(lines) == 0 {
		return ""
	}
	// Short completions tend to be the bare question; long ones put the
	// question on the final line after reasoning.
	if len(lines) < 5 {
		return strings.TrimSpace(text)
	}
	return stripQuotes(lines[len(lines)-1])
}

// ParseClarificationAnswer extracts the simulated user reply from a
// clarify-answer completion.
func ParseClarificationAnswer(text string) string {
	for _, marker := range []string{"answer_to_cq =", "answer_to_cq="} {
		if strings.Contains(text, marker) {
			parts := strings.Split(text, marker)
			return stripQuotes(parts[len(parts)-1])
		}
	}
	lines := nonEmptyLines(text)
	if len(lines) == 0 {
		return strings.TrimSpace(text)
	}
	return stripQuotes(lines[len(lines)-1])
}

func stripQuotes(s string) string {
	return strings.Trim(strings.TrimSpace(s), `"'`)
}

func nonEmptyLines(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) != "" {
			out = append(out, strings.TrimSpace(line))
		}
	}
	return out
}
