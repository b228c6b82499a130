package domain

import (
	"fmt"
	"strings"
)

// QuestionType tags how a question's correct answer is encoded and evaluated.
type QuestionType string

const (
	TrueFalse   QuestionType = "true_false"
	FillBlank   QuestionType = "fill_blank"
	OneSelect   QuestionType = "one_select"
	MultiSelect QuestionType = "multi_select"
)

// QuestionTypes lists every supported type.
var QuestionTypes = []QuestionType{TrueFalse, FillBlank, OneSelect, MultiSelect}

// ParseQuestionType accepts canonical names and legacy spellings such as
// "TrueFalse", "fillblank" or "multi-select".
func ParseQuestionType(raw string) (QuestionType, error) {
	key := strings.ToLower(strings.TrimSpace(raw))
	key = strings.NewReplacer("_", "", "-", "", " ", "").Replace(key)
	switch key {
	case "truefalse":
		return TrueFalse, nil
	case "fillblank":
		return FillBlank, nil
	case "oneselect", "singleselect":
		return OneSelect, nil
	case "multiselect":
		return MultiSelect, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownQuestionType, raw)
}

// Selectable reports whether the question presents lettered options.
func (t QuestionType) Selectable() bool {
	return t == OneSelect || t == MultiSelect
}
