package scoring

import (
	"regexp"
	"strings"

	"quiz-attempt-service/internal/domain"
)

// Labels shown for true/false questions regardless of the question text.
const (
	TrueLabel  = "Tačno"
	FalseLabel = "Netačno"
)

// Legacy question texts embed options as "A: text, B: text".
var optionPattern = regexp.MustCompile(`\b([A-H])\s*:\s*([^,]*)`)

// ParseOptions extracts embedded options in order of appearance. Text without
// the pattern yields an empty list.
func ParseOptions(text string) []domain.Option {
	matches := optionPattern.FindAllStringSubmatch(text, -1)
	options := make([]domain.Option, 0, len(matches))
	for _, m := range matches {
		body := strings.TrimSpace(m[2])
		if body == "" {
			continue
		}
		options = append(options, domain.Option{Key: m[1], Text: body})
	}
	return options
}

// CleanText strips the trailing embedded options segment from a question text.
func CleanText(text string) string {
	loc := optionPattern.FindStringIndex(text)
	if loc == nil {
		return strings.TrimSpace(text)
	}
	cleaned := strings.TrimSpace(text[:loc[0]])
	if cleaned == "" {
		return strings.TrimSpace(text)
	}
	return cleaned
}

// OptionsFor returns the options a client should render for the question.
// Explicit options win; the text parser only serves questions authored before
// options were stored separately.
func OptionsFor(q domain.Question) []domain.Option {
	switch {
	case q.Type == domain.TrueFalse:
		return []domain.Option{
			{Key: "true", Text: TrueLabel},
			{Key: "false", Text: FalseLabel},
		}
	case len(q.Options) > 0:
		return q.Options
	case q.Type.Selectable():
		return ParseOptions(q.Text)
	}
	return []domain.Option{}
}

// DisplayText returns the question text with any embedded options removed for
// selectable questions.
func DisplayText(q domain.Question) string {
	if q.Type.Selectable() {
		return CleanText(q.Text)
	}
	return q.Text
}
