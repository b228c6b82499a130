// Package scoring decides whether a submitted answer matches a question's
// answer key and derives selectable options for display.
package scoring

import (
	"sort"
	"strings"

	"quiz-attempt-service/internal/domain"
)

// Evaluator reports whether submitted satisfies correctSpec. Both inputs are
// guaranteed non-blank by Evaluate.
type Evaluator func(correctSpec, submitted string) bool

var evaluators = map[domain.QuestionType]Evaluator{
	domain.TrueFalse:   evaluateTrueFalse,
	domain.FillBlank:   evaluateFillBlank,
	domain.OneSelect:   evaluateOneSelect,
	domain.MultiSelect: evaluateMultiSelect,
}

var (
	trueTokens  = map[string]struct{}{"true": {}, "tačno": {}, "tacno": {}, "da": {}, "1": {}, "yes": {}}
	falseTokens = map[string]struct{}{"false": {}, "netačno": {}, "netacno": {}, "ne": {}, "0": {}, "no": {}}
)

// Evaluate fails closed: blank input or an unregistered type yields false.
func Evaluate(questionType domain.QuestionType, correctSpec, submitted string) bool {
	if strings.TrimSpace(correctSpec) == "" || strings.TrimSpace(submitted) == "" {
		return false
	}
	eval, ok := evaluators[questionType]
	if !ok {
		return false
	}
	return eval(correctSpec, submitted)
}

// Supports reports whether an evaluator is registered for the type.
func Supports(questionType domain.QuestionType) bool {
	_, ok := evaluators[questionType]
	return ok
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

type truthClass int

const (
	truthUnknown truthClass = iota
	truthTrue
	truthFalse
)

func classify(token string) truthClass {
	token = normalize(token)
	if _, ok := trueTokens[token]; ok {
		return truthTrue
	}
	if _, ok := falseTokens[token]; ok {
		return truthFalse
	}
	return truthUnknown
}

func evaluateTrueFalse(correctSpec, submitted string) bool {
	want := classify(correctSpec)
	return want != truthUnknown && want == classify(submitted)
}

func evaluateFillBlank(correctSpec, submitted string) bool {
	answer := normalize(submitted)
	for _, variant := range strings.Split(correctSpec, "|") {
		variant = normalize(variant)
		if variant != "" && variant == answer {
			return true
		}
	}
	return false
}

// evaluateOneSelect only trusts the first token; older quizzes stored lists here.
func evaluateOneSelect(correctSpec, submitted string) bool {
	first, _, _ := strings.Cut(correctSpec, ",")
	first = normalize(first)
	return first != "" && first == normalize(submitted)
}

func evaluateMultiSelect(correctSpec, submitted string) bool {
	want := letterSet(correctSpec)
	got := letterSet(submitted)
	if len(want) == 0 || len(want) != len(got) {
		return false
	}
	for i := range want {
		if want[i] != got[i] {
			return false
		}
	}
	return true
}

func letterSet(raw string) []string {
	parts := strings.Split(raw, ",")
	letters := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.ToUpper(strings.TrimSpace(part))
		if part != "" {
			letters = append(letters, part)
		}
	}
	sort.Strings(letters)
	return letters
}
