package app

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"quiz-attempt-service/internal/domain"
)

var periods = map[string]time.Duration{
	"":        0,
	"all":     0,
	"day":     24 * time.Hour,
	"daily":   24 * time.Hour,
	"week":    7 * 24 * time.Hour,
	"weekly":  7 * 24 * time.Hour,
	"month":   30 * 24 * time.Hour,
	"monthly": 30 * 24 * time.Hour,
	"year":    365 * 24 * time.Hour,
	"yearly":  365 * 24 * time.Hour,
}

// ParsePeriod maps a ranking period filter to its window; zero means no filter.
func ParsePeriod(raw string) (time.Duration, error) {
	window, ok := periods[strings.ToLower(strings.TrimSpace(raw))]
	if !ok {
		return 0, fmt.Errorf("%w: %q", domain.ErrInvalidPeriod, raw)
	}
	return window, nil
}

// RankingService rebuilds and serves per-quiz leaderboards.
type RankingService struct {
	quizzes  QuizRepository
	rankings RankingRepository
	feeds    FeedRepository
	opts     options
}

// NewRankingService keeps leaderboards in rankings when given (e.g. a cached
// decorator), otherwise in store.
func NewRankingService(store Store, quizzes QuizRepository, rankings RankingRepository, feeds FeedRepository, opts ...Option) *RankingService {
	if rankings == nil {
		rankings = store
	}
	return &RankingService{
		quizzes:  quizzes,
		rankings: rankings,
		feeds:    feeds,
		opts:     newOptions(opts),
	}
}

// Recompute rebuilds the quiz leaderboard from each user's best result and
// replaces the stored entry set as a unit.
func (s *RankingService) Recompute(ctx context.Context, quizID int64) ([]domain.RankingEntry, error) {
	entries, err := s.rankings.RebuildRanking(ctx, quizID, func(results []domain.Result) ([]domain.RankingEntry, error) {
		return BuildRanking(quizID, results), nil
	})
	if err != nil {
		return nil, fmt.Errorf("rebuild ranking: %w", err)
	}

	lb := domain.Leaderboard{QuizID: quizID, Entries: entries, UpdatedAt: s.opts.now().UTC()}
	if s.feeds != nil {
		if feed, ok := s.feeds.Get(quizID); ok {
			feed.refresh(func() (domain.Leaderboard, error) {
				return s.leaderboard(ctx, quizID, 0)
			})
		}
	}
	if err := s.opts.events.Publish(ctx, EventRankingUpdated, lb); err != nil {
		log.Printf("publish %s failed: %v", EventRankingUpdated, err)
	}
	return entries, nil
}

// BuildRanking keeps the best result per user and assigns positions 1..N.
func BuildRanking(quizID int64, results []domain.Result) []domain.RankingEntry {
	best := make(map[string]domain.Result, len(results))
	for _, r := range results {
		current, ok := best[r.UserID]
		if !ok || ranksBefore(r, current) {
			best[r.UserID] = r
		}
	}

	ordered := make([]domain.Result, 0, len(best))
	for _, r := range best {
		ordered = append(ordered, r)
	}
	sort.Slice(ordered, func(i, j int) bool { return ranksBefore(ordered[i], ordered[j]) })

	entries := make([]domain.RankingEntry, 0, len(ordered))
	for i, r := range ordered {
		entries = append(entries, domain.RankingEntry{
			QuizID:           quizID,
			UserID:           r.UserID,
			ScorePercentage:  r.ScorePercentage,
			TimeTakenSeconds: r.TimeTakenSeconds,
			Position:         i + 1,
			CompletedAt:      r.CompletedAt,
		})
	}
	return entries
}

// ranksBefore orders by score desc, then time taken asc. Earlier completion and
// user id only break exact ties so the order is deterministic.
func ranksBefore(a, b domain.Result) bool {
	if a.ScorePercentage != b.ScorePercentage {
		return a.ScorePercentage > b.ScorePercentage
	}
	if a.TimeTakenSeconds != b.TimeTakenSeconds {
		return a.TimeTakenSeconds < b.TimeTakenSeconds
	}
	if !a.CompletedAt.Equal(b.CompletedAt) {
		return a.CompletedAt.Before(b.CompletedAt)
	}
	return a.UserID < b.UserID
}

// Ranking returns the leaderboard of one quiz, optionally limited to entries
// completed within the period.
func (s *RankingService) Ranking(ctx context.Context, quizID int64, period string) (domain.Leaderboard, error) {
	window, err := ParsePeriod(period)
	if err != nil {
		return domain.Leaderboard{}, err
	}
	lb, err := s.leaderboard(ctx, quizID, window)
	if err != nil {
		return domain.Leaderboard{}, err
	}
	if len(lb.Entries) == 0 {
		return domain.Leaderboard{}, domain.ErrRankingNotFound
	}
	return lb, nil
}

// Rankings returns every non-empty quiz leaderboard ordered by quiz id.
func (s *RankingService) Rankings(ctx context.Context, period string) ([]domain.Leaderboard, error) {
	window, err := ParsePeriod(period)
	if err != nil {
		return nil, err
	}
	quizIDs, err := s.rankings.RankedQuizIDs(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(quizIDs, func(i, j int) bool { return quizIDs[i] < quizIDs[j] })

	boards := make([]domain.Leaderboard, 0, len(quizIDs))
	for _, quizID := range quizIDs {
		lb, err := s.leaderboard(ctx, quizID, window)
		if err != nil {
			return nil, err
		}
		if len(lb.Entries) > 0 {
			boards = append(boards, lb)
		}
	}
	if len(boards) == 0 {
		return nil, domain.ErrRankingNotFound
	}
	return boards, nil
}

// Subscribe returns a channel receiving the quiz leaderboard after every
// recompute, starting with the current one. The caller must invoke cancel.
func (s *RankingService) Subscribe(ctx context.Context, quizID int64) (<-chan domain.Leaderboard, func(), error) {
	if s.feeds == nil {
		return nil, nil, fmt.Errorf("ranking feed not configured")
	}
	if _, err := s.quizzes.GetQuiz(ctx, quizID); err != nil {
		return nil, nil, err
	}
	return s.feeds.Subscribe(quizID, func() (domain.Leaderboard, error) {
		return s.leaderboard(ctx, quizID, 0)
	})
}

func (s *RankingService) leaderboard(ctx context.Context, quizID int64, window time.Duration) (domain.Leaderboard, error) {
	entries, err := s.rankings.GetRanking(ctx, quizID)
	if err != nil {
		return domain.Leaderboard{}, err
	}
	now := s.opts.now()
	if window > 0 {
		entries = withinWindow(entries, now.Add(-window))
	}

	lb := domain.Leaderboard{QuizID: quizID, Entries: entries, UpdatedAt: now.UTC()}
	if quiz, err := s.quizzes.GetQuiz(ctx, quizID); err == nil {
		lb.QuizTitle = quiz.Title
	}
	return lb, nil
}

// withinWindow keeps entries completed at or after since and renumbers them.
func withinWindow(entries []domain.RankingEntry, since time.Time) []domain.RankingEntry {
	kept := make([]domain.RankingEntry, 0, len(entries))
	for _, e := range entries {
		if e.CompletedAt.Before(since) {
			continue
		}
		e.Position = len(kept) + 1
		kept = append(kept, e)
	}
	return kept
}
