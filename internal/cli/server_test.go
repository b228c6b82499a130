package cli

import (
	"testing"

	"quiz-attempt-service/internal/scoring"
)

func TestSampleQuizzesAcceptTheirOwnAnswers(t *testing.T) {
	for id, quiz := range sampleQuizzes() {
		if quiz.ID != id || len(quiz.Questions) == 0 {
			t.Fatalf("quiz %d is malformed: %+v", id, quiz)
		}
		for _, q := range quiz.Questions {
			if q.QuizID != id {
				t.Fatalf("question %d belongs to quiz %d, listed under %d", q.ID, q.QuizID, id)
			}
			if !scoring.Evaluate(q.Type, q.CorrectAnswer, q.CorrectAnswer) {
				t.Fatalf("question %d rejects its own correct answer %q", q.ID, q.CorrectAnswer)
			}
			if q.Type.Selectable() && len(scoring.OptionsFor(q)) == 0 {
				t.Fatalf("question %d has no options", q.ID)
			}
		}
	}
}

func TestRootCommandRegistersSubcommands(t *testing.T) {
	cmd := newRootCmd()
	for _, name := range []string{"start", "migrate"} {
		if sub, _, err := cmd.Find([]string{name}); err != nil || sub.Name() != name {
			t.Fatalf("expected %s subcommand, got %v (%v)", name, sub, err)
		}
	}
}
