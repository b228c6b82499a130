package app

import (
	"context"

	"quiz-attempt-service/internal/domain"
)

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID int64) (domain.Quiz, error)
}

// AttemptRepository persists attempts.
type AttemptRepository interface {
	// CreateAttempt numbers the attempt as max(number of user, quiz)+1 and persists it.
	// It returns domain.ErrAttemptNumberTaken when a concurrent start won the number.
	CreateAttempt(ctx context.Context, attempt domain.Attempt) (domain.Attempt, error)
	GetAttempt(ctx context.Context, attemptID string) (domain.Attempt, error)
	// LatestAttempt returns the highest-numbered attempt of the user for the quiz.
	LatestAttempt(ctx context.Context, userID string, quizID int64) (domain.Attempt, error)
	ListAttempts(ctx context.Context, userID string) ([]domain.Attempt, error)
	// DeleteAttempt removes the attempt together with its answers in one unit.
	DeleteAttempt(ctx context.Context, attemptID string) error
}

// AnswerRepository persists answers; (user, question, attempt) is unique.
type AnswerRepository interface {
	// InsertAnswer returns domain.ErrAlreadyAnswered on a uniqueness violation.
	InsertAnswer(ctx context.Context, answer domain.Answer) error
	ListAnswers(ctx context.Context, attemptID string) ([]domain.Answer, error)
}

// ResultRepository persists results; attempt id is unique.
type ResultRepository interface {
	// InsertResult returns domain.ErrAttemptCompleted on a uniqueness violation.
	InsertResult(ctx context.Context, result domain.Result) error
	// GetResult returns domain.ErrResultNotFound when the attempt has no result.
	GetResult(ctx context.Context, attemptID string) (domain.Result, error)
	ListResults(ctx context.Context, quizID int64) ([]domain.Result, error)
}

// RankingBuilder turns the results of a quiz into its ranked entries.
type RankingBuilder func(results []domain.Result) ([]domain.RankingEntry, error)

// RankingRepository stores the derived leaderboards.
type RankingRepository interface {
	// RebuildRanking reads the quiz's results, passes them to build and swaps
	// the whole entry set, all under one per-quiz lock. Readers never see a mix
	// and a rebuild never overwrites a newer one.
	RebuildRanking(ctx context.Context, quizID int64, build RankingBuilder) ([]domain.RankingEntry, error)
	GetRanking(ctx context.Context, quizID int64) ([]domain.RankingEntry, error)
	RankedQuizIDs(ctx context.Context) ([]int64, error)
}

// Store bundles every repository a persistence backend provides.
type Store interface {
	AttemptRepository
	AnswerRepository
	ResultRepository
	RankingRepository
}

// EventPublisher announces lifecycle events to other services.
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, payload any) error
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, string, any) error { return nil }

// Event types published by the services.
const (
	EventAttemptStarted  = "attempt.started"
	EventAttemptFinished = "attempt.finished"
	EventRankingUpdated  = "ranking.updated"
)
