package memory

import (
	"context"
	"sort"
	"sync"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/domain"
)

// Store is an in-memory implementation of app.Store. A single lock plays the
// role of the database: uniqueness checks and writes happen under it, so the
// same constraints hold as in Postgres.
type Store struct {
	mu       sync.RWMutex
	attempts map[string]domain.Attempt
	answers  map[string][]domain.Answer // by attempt id
	results  map[string]domain.Result   // by attempt id
	rankings map[int64][]domain.RankingEntry
}

func NewStore() *Store {
	return &Store{
		attempts: make(map[string]domain.Attempt),
		answers:  make(map[string][]domain.Answer),
		results:  make(map[string]domain.Result),
		rankings: make(map[int64][]domain.RankingEntry),
	}
}

func (s *Store) CreateAttempt(_ context.Context, attempt domain.Attempt) (domain.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	highest := 0
	for _, a := range s.attempts {
		if a.UserID == attempt.UserID && a.QuizID == attempt.QuizID && a.Number > highest {
			highest = a.Number
		}
	}
	// max+1 rather than count+1: abandoned attempts leave gaps
	attempt.Number = highest + 1
	s.attempts[attempt.ID] = attempt
	return attempt, nil
}

func (s *Store) GetAttempt(_ context.Context, attemptID string) (domain.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	attempt, ok := s.attempts[attemptID]
	if !ok {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	return attempt, nil
}

func (s *Store) LatestAttempt(_ context.Context, userID string, quizID int64) (domain.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest domain.Attempt
	found := false
	for _, a := range s.attempts {
		if a.UserID != userID || a.QuizID != quizID {
			continue
		}
		if !found || a.Number > latest.Number {
			latest = a
			found = true
		}
	}
	if !found {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	return latest, nil
}

func (s *Store) ListAttempts(_ context.Context, userID string) ([]domain.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	attempts := make([]domain.Attempt, 0)
	for _, a := range s.attempts {
		if a.UserID == userID {
			attempts = append(attempts, a)
		}
	}
	sort.Slice(attempts, func(i, j int) bool {
		return attempts[i].StartedAt.Before(attempts[j].StartedAt)
	})
	return attempts, nil
}

func (s *Store) DeleteAttempt(_ context.Context, attemptID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.attempts[attemptID]; !ok {
		return domain.ErrAttemptNotFound
	}
	delete(s.answers, attemptID)
	delete(s.attempts, attemptID)
	return nil
}

func (s *Store) InsertAnswer(_ context.Context, answer domain.Answer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.attempts[answer.AttemptID]; !ok {
		return domain.ErrAttemptNotFound
	}
	for _, existing := range s.answers[answer.AttemptID] {
		if existing.UserID == answer.UserID && existing.QuestionID == answer.QuestionID {
			return domain.ErrAlreadyAnswered
		}
	}
	s.answers[answer.AttemptID] = append(s.answers[answer.AttemptID], answer)
	return nil
}

func (s *Store) ListAnswers(_ context.Context, attemptID string) ([]domain.Answer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Answer{}, s.answers[attemptID]...), nil
}

func (s *Store) InsertResult(_ context.Context, result domain.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.attempts[result.AttemptID]; !ok {
		return domain.ErrAttemptNotFound
	}
	if _, ok := s.results[result.AttemptID]; ok {
		return domain.ErrAttemptCompleted
	}
	s.results[result.AttemptID] = result
	return nil
}

func (s *Store) GetResult(_ context.Context, attemptID string) (domain.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result, ok := s.results[attemptID]
	if !ok {
		return domain.Result{}, domain.ErrResultNotFound
	}
	return result, nil
}

func (s *Store) ListResults(_ context.Context, quizID int64) ([]domain.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]domain.Result, 0)
	for _, r := range s.results {
		if r.QuizID == quizID {
			results = append(results, r)
		}
	}
	return results, nil
}

// RebuildRanking reads the results, builds and swaps the entries under the
// write lock, so concurrent rebuilds of a quiz never interleave.
func (s *Store) RebuildRanking(_ context.Context, quizID int64, build app.RankingBuilder) ([]domain.RankingEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	results := make([]domain.Result, 0)
	for _, r := range s.results {
		if r.QuizID == quizID {
			results = append(results, r)
		}
	}
	entries, err := build(results)
	if err != nil {
		return nil, err
	}

	if len(entries) == 0 {
		delete(s.rankings, quizID)
		return entries, nil
	}
	s.rankings[quizID] = append([]domain.RankingEntry{}, entries...)
	return entries, nil
}

func (s *Store) GetRanking(_ context.Context, quizID int64) ([]domain.RankingEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.RankingEntry{}, s.rankings[quizID]...), nil
}

func (s *Store) RankedQuizIDs(_ context.Context) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]int64, 0, len(s.rankings))
	for quizID := range s.rankings {
		ids = append(ids, quizID)
	}
	return ids, nil
}
