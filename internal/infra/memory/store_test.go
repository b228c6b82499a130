package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/domain"
)

func TestCreateAttemptNumbersPerUserAndQuiz(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	first, _ := store.CreateAttempt(ctx, domain.Attempt{ID: "a1", UserID: "u1", QuizID: 1})
	second, _ := store.CreateAttempt(ctx, domain.Attempt{ID: "a2", UserID: "u1", QuizID: 1})
	other, _ := store.CreateAttempt(ctx, domain.Attempt{ID: "a3", UserID: "u1", QuizID: 2})
	someoneElse, _ := store.CreateAttempt(ctx, domain.Attempt{ID: "a4", UserID: "u2", QuizID: 1})

	if first.Number != 1 || second.Number != 2 || other.Number != 1 || someoneElse.Number != 1 {
		t.Fatalf("unexpected numbering %d %d %d %d", first.Number, second.Number, other.Number, someoneElse.Number)
	}

	latest, err := store.LatestAttempt(ctx, "u1", 1)
	if err != nil || latest.ID != "a2" {
		t.Fatalf("expected latest attempt a2, got %+v (%v)", latest, err)
	}
}

func TestCreateAttemptNumberSkipsDeletedGap(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	_, _ = store.CreateAttempt(ctx, domain.Attempt{ID: "a1", UserID: "u1", QuizID: 1})
	_, _ = store.CreateAttempt(ctx, domain.Attempt{ID: "a2", UserID: "u1", QuizID: 1})
	if err := store.DeleteAttempt(ctx, "a1"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	third, err := store.CreateAttempt(ctx, domain.Attempt{ID: "a3", UserID: "u1", QuizID: 1})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if third.Number != 3 {
		t.Fatalf("expected number 3 after a deleted attempt, got %d", third.Number)
	}
	latest, _ := store.LatestAttempt(ctx, "u1", 1)
	if latest.ID != "a3" {
		t.Fatalf("expected latest attempt a3, got %s", latest.ID)
	}
}

func TestConcurrentAnswersOnlyOneWins(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	_, _ = store.CreateAttempt(ctx, domain.Attempt{ID: "a1", UserID: "u1", QuizID: 1})

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := store.InsertAnswer(ctx, domain.Answer{UserID: "u1", QuizID: 1, AttemptID: "a1", QuestionID: 7, Text: "A"})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, domain.ErrAlreadyAnswered):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if successes != 1 || conflicts != 19 {
		t.Fatalf("expected 1 success and 19 conflicts, got %d/%d", successes, conflicts)
	}
	answers, _ := store.ListAnswers(ctx, "a1")
	if len(answers) != 1 {
		t.Fatalf("expected exactly one stored answer, got %d", len(answers))
	}
}

func TestInsertResultAtMostOnce(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	_, _ = store.CreateAttempt(ctx, domain.Attempt{ID: "a1", UserID: "u1", QuizID: 1})

	if err := store.InsertResult(ctx, domain.Result{ID: "r1", AttemptID: "a1", QuizID: 1}); err != nil {
		t.Fatalf("insert result: %v", err)
	}
	if err := store.InsertResult(ctx, domain.Result{ID: "r2", AttemptID: "a1", QuizID: 1}); !errors.Is(err, domain.ErrAttemptCompleted) {
		t.Fatalf("expected completed conflict, got %v", err)
	}
}

func TestDeleteAttemptCascadesAnswers(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	_, _ = store.CreateAttempt(ctx, domain.Attempt{ID: "a1", UserID: "u1", QuizID: 1})
	_ = store.InsertAnswer(ctx, domain.Answer{UserID: "u1", AttemptID: "a1", QuestionID: 1})

	if err := store.DeleteAttempt(ctx, "a1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.GetAttempt(ctx, "a1"); !errors.Is(err, domain.ErrAttemptNotFound) {
		t.Fatalf("expected attempt gone, got %v", err)
	}
	if answers, _ := store.ListAnswers(ctx, "a1"); len(answers) != 0 {
		t.Fatalf("expected answers gone, got %d", len(answers))
	}
}

func TestRebuildRankingSwapsWholeSet(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	now := time.Now()

	fixed := func(entries ...domain.RankingEntry) app.RankingBuilder {
		return func([]domain.Result) ([]domain.RankingEntry, error) { return entries, nil }
	}
	_, _ = store.RebuildRanking(ctx, 1, fixed(
		domain.RankingEntry{QuizID: 1, UserID: "u1", Position: 1, CompletedAt: now},
		domain.RankingEntry{QuizID: 1, UserID: "u2", Position: 2, CompletedAt: now},
	))
	_, _ = store.RebuildRanking(ctx, 1, fixed(
		domain.RankingEntry{QuizID: 1, UserID: "u3", Position: 1, CompletedAt: now},
	))

	entries, _ := store.GetRanking(ctx, 1)
	if len(entries) != 1 || entries[0].UserID != "u3" {
		t.Fatalf("expected replaced ranking, got %+v", entries)
	}

	_, _ = store.RebuildRanking(ctx, 1, fixed())
	ids, _ := store.RankedQuizIDs(ctx)
	if len(ids) != 0 {
		t.Fatalf("expected no ranked quizzes, got %v", ids)
	}
}

func TestRebuildRankingSeesOnlyQuizResults(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	_ = store.InsertResult(ctx, domain.Result{ID: "r1", AttemptID: "a1", UserID: "u1", QuizID: 1})
	_ = store.InsertResult(ctx, domain.Result{ID: "r2", AttemptID: "a2", UserID: "u2", QuizID: 2})

	var seen []domain.Result
	_, err := store.RebuildRanking(ctx, 1, func(results []domain.Result) ([]domain.RankingEntry, error) {
		seen = results
		return nil, nil
	})
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if len(seen) != 1 || seen[0].ID != "r1" {
		t.Fatalf("expected only quiz 1 results, got %+v", seen)
	}
}

func TestRebuildRankingKeepsOldSetOnBuildError(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	_, _ = store.RebuildRanking(ctx, 1, func([]domain.Result) ([]domain.RankingEntry, error) {
		return []domain.RankingEntry{{QuizID: 1, UserID: "u1", Position: 1}}, nil
	})

	boom := errors.New("boom")
	if _, err := store.RebuildRanking(ctx, 1, func([]domain.Result) ([]domain.RankingEntry, error) {
		return nil, boom
	}); !errors.Is(err, boom) {
		t.Fatalf("expected build error, got %v", err)
	}
	if entries, _ := store.GetRanking(ctx, 1); len(entries) != 1 {
		t.Fatalf("expected previous ranking kept, got %+v", entries)
	}
}
