package redis

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/domain"
)

// RankingStore keeps a snapshot of each leaderboard in Redis in front of the
// durable ranking repository.
//   - Rebuild SETs ranking:{quizID} from inside the durable store's per-quiz
//     lock, so snapshots land in rebuild order. A failed rebuild DELs the key.
//   - Get serves the snapshot and fills it with SETNX on a miss, so a fill racing
//     a rebuild never overwrites the newer snapshot.
type RankingStore struct {
	client *redis.Client
	next   app.RankingRepository
	ttl    time.Duration
}

func NewRankingStore(client *redis.Client, next app.RankingRepository, ttl time.Duration) *RankingStore {
	return &RankingStore{client: client, next: next, ttl: ttl}
}

func (s *RankingStore) RebuildRanking(ctx context.Context, quizID int64, build app.RankingBuilder) ([]domain.RankingEntry, error) {
	entries, err := s.next.RebuildRanking(ctx, quizID, func(results []domain.Result) ([]domain.RankingEntry, error) {
		entries, err := build(results)
		if err != nil {
			return nil, err
		}
		data, err := json.Marshal(entries)
		if err != nil {
			return nil, err
		}
		if err := s.client.Set(ctx, s.key(quizID), data, s.ttl).Err(); err != nil {
			// stale snapshot would outlive the rebuild; drop it instead
			_ = s.client.Del(ctx, s.key(quizID)).Err()
		}
		return entries, nil
	})
	if err != nil {
		_ = s.client.Del(ctx, s.key(quizID)).Err()
		return nil, err
	}
	return entries, nil
}

func (s *RankingStore) GetRanking(ctx context.Context, quizID int64) ([]domain.RankingEntry, error) {
	data, err := s.client.Get(ctx, s.key(quizID)).Bytes()
	if err == nil {
		var entries []domain.RankingEntry
		if json.Unmarshal(data, &entries) == nil {
			return entries, nil
		}
	}

	entries, err := s.next.GetRanking(ctx, quizID)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(entries); err == nil {
		_ = s.client.SetNX(ctx, s.key(quizID), data, s.ttl).Err()
	}
	return entries, nil
}

func (s *RankingStore) RankedQuizIDs(ctx context.Context) ([]int64, error) {
	return s.next.RankedQuizIDs(ctx)
}

func (s *RankingStore) key(quizID int64) string {
	return "ranking:" + strconv.FormatInt(quizID, 10)
}
