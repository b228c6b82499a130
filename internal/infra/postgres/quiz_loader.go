package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"quiz-attempt-service/internal/domain"
)

// QuizLoader loads quizzes and their questions from Postgres.
type QuizLoader struct {
	pool *pgxpool.Pool
}

func NewQuizLoader(pool *pgxpool.Pool) *QuizLoader {
	return &QuizLoader{pool: pool}
}

func (l *QuizLoader) LoadQuiz(ctx context.Context, quizID int64) (domain.Quiz, error) {
	quiz := domain.Quiz{ID: quizID}
	err := l.pool.QueryRow(ctx,
		`SELECT title, time_limit_seconds FROM quizzes WHERE id=$1`, quizID,
	).Scan(&quiz.Title, &quiz.TimeLimitSeconds)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Quiz{}, fmt.Errorf("load quiz %d: %w", quizID, domain.ErrQuizNotFound)
	}
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("load quiz: %w", err)
	}

	rows, err := l.pool.Query(ctx,
		`SELECT id, text, type, correct_answer, difficulty, options
		   FROM questions WHERE quiz_id=$1 ORDER BY id`, quizID)
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("load questions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		q := domain.Question{QuizID: quizID}
		var (
			rawType    string
			rawOptions []byte
		)
		if err := rows.Scan(&q.ID, &q.Text, &rawType, &q.CorrectAnswer, &q.Difficulty, &rawOptions); err != nil {
			return domain.Quiz{}, fmt.Errorf("scan question: %w", err)
		}
		q.Type, err = domain.ParseQuestionType(rawType)
		if err != nil {
			// kept as-is so evaluation rejects every answer to it
			log.Printf("quiz %d question %d: %v", quizID, q.ID, err)
			q.Type = domain.QuestionType(rawType)
		}
		if len(rawOptions) > 0 {
			if err := json.Unmarshal(rawOptions, &q.Options); err != nil {
				return domain.Quiz{}, fmt.Errorf("unmarshal options of question %d: %w", q.ID, err)
			}
		}
		quiz.Questions = append(quiz.Questions, q)
	}
	if err := rows.Err(); err != nil {
		return domain.Quiz{}, fmt.Errorf("load questions: %w", err)
	}
	return quiz, nil
}
