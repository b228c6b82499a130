package app

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	"quiz-attempt-service/internal/domain"
	"quiz-attempt-service/internal/metrics"
	"quiz-attempt-service/internal/scoring"
)

// QuestionBreakdown reports how one question of a finished attempt went.
type QuestionBreakdown struct {
	QuestionID int64               `json:"questionId"`
	Text       string              `json:"text"`
	Type       domain.QuestionType `json:"type"`
	Answered   bool                `json:"answered"`
	UserAnswer *string             `json:"userAnswer"`
	Correct    bool                `json:"isCorrect"`
}

// FinishedAttempt is returned by Finish.
type FinishedAttempt struct {
	Result    domain.Result       `json:"result"`
	QuizTitle string              `json:"quizTitle"`
	Questions []QuestionBreakdown `json:"questions"`
}

// ResultService closes attempts and computes their final score.
type ResultService struct {
	quizzes  QuizRepository
	store    Store
	rankings *RankingService
	opts     options
}

func NewResultService(store Store, quizzes QuizRepository, rankings *RankingService, opts ...Option) *ResultService {
	return &ResultService{quizzes: quizzes, store: store, rankings: rankings, opts: newOptions(opts)}
}

// Finish scores the attempt exactly once and refreshes the quiz ranking.
func (s *ResultService) Finish(ctx context.Context, attemptID, userID string) (FinishedAttempt, error) {
	attempt, err := loadOwnedAttempt(ctx, s.store, attemptID, userID)
	if err != nil {
		return FinishedAttempt{}, err
	}
	if _, err := s.store.GetResult(ctx, attempt.ID); err == nil {
		return FinishedAttempt{}, domain.ErrAttemptCompleted
	} else if !errors.Is(err, domain.ErrResultNotFound) {
		return FinishedAttempt{}, err
	}

	quiz, err := s.quizzes.GetQuiz(ctx, attempt.QuizID)
	if err != nil {
		return FinishedAttempt{}, err
	}
	answers, err := s.store.ListAnswers(ctx, attempt.ID)
	if err != nil {
		return FinishedAttempt{}, err
	}

	now := s.opts.now().UTC()
	result := computeResult(attempt, quiz, answers, now)
	result.ID = uuid.NewString()

	// The unique attempt id in the store decides between concurrent finishers.
	if err := s.store.InsertResult(ctx, result); err != nil {
		return FinishedAttempt{}, err
	}
	metrics.AttemptsFinished.Inc()

	if s.rankings != nil {
		if _, err := s.rankings.Recompute(ctx, attempt.QuizID); err != nil {
			metrics.RankingFailures.Inc()
			log.Printf("ranking recompute failed for quiz %d: %v", attempt.QuizID, err)
		}
	}
	if err := s.opts.events.Publish(ctx, EventAttemptFinished, result); err != nil {
		log.Printf("publish %s failed: %v", EventAttemptFinished, err)
	}

	return FinishedAttempt{
		Result:    result,
		QuizTitle: quiz.Title,
		Questions: breakdown(quiz, answers),
	}, nil
}

func computeResult(attempt domain.Attempt, quiz domain.Quiz, answers []domain.Answer, now time.Time) domain.Result {
	total := len(quiz.Questions)
	correct := 0
	for _, a := range answers {
		if a.Correct {
			correct++
		}
	}
	score := 0.0
	if total > 0 {
		score = 100 * float64(correct) / float64(total)
	}
	return domain.Result{
		UserID:           attempt.UserID,
		QuizID:           attempt.QuizID,
		AttemptID:        attempt.ID,
		TotalQuestions:   total,
		CorrectAnswers:   correct,
		ScorePercentage:  score,
		TimeTakenSeconds: elapsedSeconds(attempt.StartedAt, now),
		CompletedAt:      now,
	}
}

func breakdown(quiz domain.Quiz, answers []domain.Answer) []QuestionBreakdown {
	byQuestion := make(map[int64]domain.Answer, len(answers))
	for _, a := range answers {
		byQuestion[a.QuestionID] = a
	}
	questions := sortedQuestions(quiz)
	out := make([]QuestionBreakdown, 0, len(questions))
	for _, q := range questions {
		item := QuestionBreakdown{QuestionID: q.ID, Text: scoring.DisplayText(q), Type: q.Type}
		if a, ok := byQuestion[q.ID]; ok {
			text := a.Text
			item.Answered = true
			item.UserAnswer = &text
			item.Correct = a.Correct
		}
		out = append(out, item)
	}
	return out
}
