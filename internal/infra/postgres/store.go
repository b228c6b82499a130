package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"
	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/domain"
)

// Store implements app.Store on top of bun. Uniqueness of attempt numbers,
// answers and results is left to the table constraints.
type Store struct {
	db *bun.DB
}

func NewStore(db *bun.DB) *Store {
	return &Store{db: db}
}

type attemptRow struct {
	bun.BaseModel `bun:"table:attempts"`

	ID        string    `bun:"id,pk"`
	UserID    string    `bun:"user_id,notnull"`
	QuizID    int64     `bun:"quiz_id,notnull"`
	Number    int       `bun:"attempt_number,notnull"`
	StartedAt time.Time `bun:"started_at,notnull"`
}

type answerRow struct {
	bun.BaseModel `bun:"table:answers"`

	ID         string    `bun:"id,pk"`
	UserID     string    `bun:"user_id,notnull"`
	QuizID     int64     `bun:"quiz_id,notnull"`
	AttemptID  string    `bun:"attempt_id,notnull"`
	QuestionID int64     `bun:"question_id,notnull"`
	UserAnswer string    `bun:"user_answer,notnull"`
	IsCorrect  bool      `bun:"is_correct,notnull"`
	AnsweredAt time.Time `bun:"answered_at,notnull"`
}

type resultRow struct {
	bun.BaseModel `bun:"table:results"`

	ID               string    `bun:"id,pk"`
	UserID           string    `bun:"user_id,notnull"`
	QuizID           int64     `bun:"quiz_id,notnull"`
	AttemptID        string    `bun:"attempt_id,notnull"`
	TotalQuestions   int       `bun:"total_questions,notnull"`
	CorrectAnswers   int       `bun:"correct_answers,notnull"`
	ScorePercentage  float64   `bun:"score_percentage,notnull"`
	TimeTakenSeconds int64     `bun:"time_taken_seconds,notnull"`
	CompletedAt      time.Time `bun:"completed_at,notnull"`
}

type rankingRow struct {
	bun.BaseModel `bun:"table:rankings"`

	QuizID           int64     `bun:"quiz_id,pk"`
	UserID           string    `bun:"user_id,pk"`
	ScorePercentage  float64   `bun:"score_percentage,notnull"`
	TimeTakenSeconds int64     `bun:"time_taken_seconds,notnull"`
	Position         int       `bun:"position,notnull"`
	CompletedAt      time.Time `bun:"completed_at,notnull"`
}

func (s *Store) CreateAttempt(ctx context.Context, attempt domain.Attempt) (domain.Attempt, error) {
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		// max+1 rather than count+1: abandoned attempts leave gaps.
		var highest int
		err := tx.NewSelect().
			Model((*attemptRow)(nil)).
			ColumnExpr("COALESCE(MAX(attempt_number), 0)").
			Where("user_id = ?", attempt.UserID).
			Where("quiz_id = ?", attempt.QuizID).
			Scan(ctx, &highest)
		if err != nil {
			return err
		}
		attempt.Number = highest + 1
		row := attemptRow{
			ID:        attempt.ID,
			UserID:    attempt.UserID,
			QuizID:    attempt.QuizID,
			Number:    attempt.Number,
			StartedAt: attempt.StartedAt,
		}
		_, err = tx.NewInsert().Model(&row).Exec(ctx)
		return err
	})
	if isUniqueViolation(err) {
		return domain.Attempt{}, fmt.Errorf("create attempt: %w", domain.ErrAttemptNumberTaken)
	}
	if err != nil {
		return domain.Attempt{}, fmt.Errorf("create attempt: %w", err)
	}
	return attempt, nil
}

func (s *Store) GetAttempt(ctx context.Context, attemptID string) (domain.Attempt, error) {
	var row attemptRow
	err := s.db.NewSelect().Model(&row).Where("id = ?", attemptID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	if err != nil {
		return domain.Attempt{}, fmt.Errorf("get attempt: %w", err)
	}
	return row.toDomain(), nil
}

func (s *Store) LatestAttempt(ctx context.Context, userID string, quizID int64) (domain.Attempt, error) {
	var row attemptRow
	err := s.db.NewSelect().
		Model(&row).
		Where("user_id = ?", userID).
		Where("quiz_id = ?", quizID).
		Order("attempt_number DESC").
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	if err != nil {
		return domain.Attempt{}, fmt.Errorf("latest attempt: %w", err)
	}
	return row.toDomain(), nil
}

func (s *Store) ListAttempts(ctx context.Context, userID string) ([]domain.Attempt, error) {
	var rows []attemptRow
	err := s.db.NewSelect().
		Model(&rows).
		Where("user_id = ?", userID).
		Order("started_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	attempts := make([]domain.Attempt, 0, len(rows))
	for _, row := range rows {
		attempts = append(attempts, row.toDomain())
	}
	return attempts, nil
}

// DeleteAttempt removes the attempt's answers and then the attempt in one transaction.
func (s *Store) DeleteAttempt(ctx context.Context, attemptID string) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().Model((*answerRow)(nil)).Where("attempt_id = ?", attemptID).Exec(ctx); err != nil {
			return fmt.Errorf("delete answers: %w", err)
		}
		res, err := tx.NewDelete().Model((*attemptRow)(nil)).Where("id = ?", attemptID).Exec(ctx)
		if err != nil {
			return fmt.Errorf("delete attempt: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return domain.ErrAttemptNotFound
		}
		return nil
	})
}

func (s *Store) InsertAnswer(ctx context.Context, answer domain.Answer) error {
	row := answerRow{
		ID:         answer.ID,
		UserID:     answer.UserID,
		QuizID:     answer.QuizID,
		AttemptID:  answer.AttemptID,
		QuestionID: answer.QuestionID,
		UserAnswer: answer.Text,
		IsCorrect:  answer.Correct,
		AnsweredAt: answer.AnsweredAt,
	}
	_, err := s.db.NewInsert().Model(&row).Exec(ctx)
	if isUniqueViolation(err) {
		return fmt.Errorf("insert answer: %w", domain.ErrAlreadyAnswered)
	}
	if isForeignKeyViolation(err) {
		return fmt.Errorf("insert answer: %w", domain.ErrAttemptNotFound)
	}
	if err != nil {
		return fmt.Errorf("insert answer: %w", err)
	}
	return nil
}

func (s *Store) ListAnswers(ctx context.Context, attemptID string) ([]domain.Answer, error) {
	var rows []answerRow
	err := s.db.NewSelect().
		Model(&rows).
		Where("attempt_id = ?", attemptID).
		Order("answered_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	answers := make([]domain.Answer, 0, len(rows))
	for _, row := range rows {
		answers = append(answers, domain.Answer{
			ID:         row.ID,
			UserID:     row.UserID,
			QuizID:     row.QuizID,
			AttemptID:  row.AttemptID,
			QuestionID: row.QuestionID,
			Text:       row.UserAnswer,
			Correct:    row.IsCorrect,
			AnsweredAt: row.AnsweredAt,
		})
	}
	return answers, nil
}

func (s *Store) InsertResult(ctx context.Context, result domain.Result) error {
	row := resultRow{
		ID:               result.ID,
		UserID:           result.UserID,
		QuizID:           result.QuizID,
		AttemptID:        result.AttemptID,
		TotalQuestions:   result.TotalQuestions,
		CorrectAnswers:   result.CorrectAnswers,
		ScorePercentage:  result.ScorePercentage,
		TimeTakenSeconds: result.TimeTakenSeconds,
		CompletedAt:      result.CompletedAt,
	}
	_, err := s.db.NewInsert().Model(&row).Exec(ctx)
	if isUniqueViolation(err) {
		return fmt.Errorf("insert result: %w", domain.ErrAttemptCompleted)
	}
	if isForeignKeyViolation(err) {
		return fmt.Errorf("insert result: %w", domain.ErrAttemptNotFound)
	}
	if err != nil {
		return fmt.Errorf("insert result: %w", err)
	}
	return nil
}

func (s *Store) GetResult(ctx context.Context, attemptID string) (domain.Result, error) {
	var row resultRow
	err := s.db.NewSelect().Model(&row).Where("attempt_id = ?", attemptID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Result{}, domain.ErrResultNotFound
	}
	if err != nil {
		return domain.Result{}, fmt.Errorf("get result: %w", err)
	}
	return row.toDomain(), nil
}

func (s *Store) ListResults(ctx context.Context, quizID int64) ([]domain.Result, error) {
	var rows []resultRow
	if err := s.db.NewSelect().Model(&rows).Where("quiz_id = ?", quizID).Scan(ctx); err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	results := make([]domain.Result, 0, len(rows))
	for _, row := range rows {
		results = append(results, row.toDomain())
	}
	return results, nil
}

// RebuildRanking reads the quiz's results, builds the entries and swaps them in
// one transaction. A transaction-scoped advisory lock keyed by the quiz id
// serializes rebuilds of the same quiz, so a later rebuild always sees the
// results an earlier one saw.
func (s *Store) RebuildRanking(ctx context.Context, quizID int64, build app.RankingBuilder) ([]domain.RankingEntry, error) {
	var entries []domain.RankingEntry
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock(?)", quizID); err != nil {
			return fmt.Errorf("lock ranking: %w", err)
		}

		var resultRows []resultRow
		if err := tx.NewSelect().Model(&resultRows).Where("quiz_id = ?", quizID).Scan(ctx); err != nil {
			return fmt.Errorf("list results: %w", err)
		}
		results := make([]domain.Result, 0, len(resultRows))
		for _, row := range resultRows {
			results = append(results, row.toDomain())
		}

		built, err := build(results)
		if err != nil {
			return err
		}
		entries = built

		if _, err := tx.NewDelete().Model((*rankingRow)(nil)).Where("quiz_id = ?", quizID).Exec(ctx); err != nil {
			return fmt.Errorf("clear ranking: %w", err)
		}
		if len(entries) == 0 {
			return nil
		}
		rows := make([]rankingRow, 0, len(entries))
		for _, e := range entries {
			rows = append(rows, rankingRow{
				QuizID:           quizID,
				UserID:           e.UserID,
				ScorePercentage:  e.ScorePercentage,
				TimeTakenSeconds: e.TimeTakenSeconds,
				Position:         e.Position,
				CompletedAt:      e.CompletedAt,
			})
		}
		if _, err := tx.NewInsert().Model(&rows).Exec(ctx); err != nil {
			return fmt.Errorf("insert ranking: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *Store) GetRanking(ctx context.Context, quizID int64) ([]domain.RankingEntry, error) {
	var rows []rankingRow
	err := s.db.NewSelect().
		Model(&rows).
		Where("quiz_id = ?", quizID).
		Order("position ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("get ranking: %w", err)
	}
	entries := make([]domain.RankingEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, domain.RankingEntry{
			QuizID:           row.QuizID,
			UserID:           row.UserID,
			ScorePercentage:  row.ScorePercentage,
			TimeTakenSeconds: row.TimeTakenSeconds,
			Position:         row.Position,
			CompletedAt:      row.CompletedAt,
		})
	}
	return entries, nil
}

func (s *Store) RankedQuizIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	err := s.db.NewSelect().
		Model((*rankingRow)(nil)).
		ColumnExpr("DISTINCT quiz_id").
		Order("quiz_id ASC").
		Scan(ctx, &ids)
	if err != nil {
		return nil, fmt.Errorf("ranked quizzes: %w", err)
	}
	return ids, nil
}

func (r attemptRow) toDomain() domain.Attempt {
	return domain.Attempt{
		ID:        r.ID,
		UserID:    r.UserID,
		QuizID:    r.QuizID,
		Number:    r.Number,
		StartedAt: r.StartedAt,
	}
}

func (r resultRow) toDomain() domain.Result {
	return domain.Result{
		ID:               r.ID,
		UserID:           r.UserID,
		QuizID:           r.QuizID,
		AttemptID:        r.AttemptID,
		TotalQuestions:   r.TotalQuestions,
		CorrectAnswers:   r.CorrectAnswers,
		ScorePercentage:  r.ScorePercentage,
		TimeTakenSeconds: r.TimeTakenSeconds,
		CompletedAt:      r.CompletedAt,
	}
}

func isUniqueViolation(err error) bool {
	return sqlState(err) == "23505"
}

func isForeignKeyViolation(err error) bool {
	return sqlState(err) == "23503"
}

func sqlState(err error) string {
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		return pgErr.Field('C')
	}
	return ""
}
