package scoring

import (
	"testing"

	"quiz-attempt-service/internal/domain"
)

func TestEveryQuestionTypeHasEvaluator(t *testing.T) {
	for _, typ := range domain.QuestionTypes {
		if !Supports(typ) {
			t.Fatalf("no evaluator registered for %s", typ)
		}
	}
}

func TestEvaluate(t *testing.T) {
	cases := []struct {
		name      string
		typ       domain.QuestionType
		correct   string
		submitted string
		want      bool
	}{
		{"true synonyms", domain.TrueFalse, "tačno", "da", true},
		{"true vs ascii spelling", domain.TrueFalse, "true", " Tacno ", true},
		{"false synonyms", domain.TrueFalse, "netacno", "0", true},
		{"false vs yes", domain.TrueFalse, "false", "yes", false},
		{"unknown token never matches", domain.TrueFalse, "maybe", "maybe", false},
		{"fill blank case insensitive", domain.FillBlank, "Paris|Pariz", "PARIS", true},
		{"fill blank second variant", domain.FillBlank, "Paris|Pariz", " pariz ", true},
		{"fill blank wrong", domain.FillBlank, "Paris|Pariz", "london", false},
		{"fill blank ignores empty variant", domain.FillBlank, "Paris||", "", false},
		{"one select", domain.OneSelect, "A", "a", true},
		{"one select first token only", domain.OneSelect, "B,C", "C", false},
		{"one select legacy list", domain.OneSelect, " b , c", "B", true},
		{"multi select order independent", domain.MultiSelect, "A,C", "C, a", true},
		{"multi select wrong set", domain.MultiSelect, "A,C", "A,B", false},
		{"multi select subset", domain.MultiSelect, "A,C", "A", false},
		{"multi select duplicate sensitive", domain.MultiSelect, "A,C", "A,A,C", false},
		{"blank answer key fails closed", domain.FillBlank, "  ", "x", false},
		{"blank answer fails closed", domain.OneSelect, "A", " ", false},
		{"unknown type", domain.QuestionType("essay"), "A", "A", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Evaluate(tc.typ, tc.correct, tc.submitted); got != tc.want {
				t.Fatalf("Evaluate(%s, %q, %q) = %v, want %v", tc.typ, tc.correct, tc.submitted, got, tc.want)
			}
		})
	}
}
