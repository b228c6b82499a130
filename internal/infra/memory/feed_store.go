package memory

import (
	"sync"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/domain"
)

// FeedStore is an in-memory implementation of app.FeedRepository.
type FeedStore struct {
	mu    sync.Mutex
	feeds map[int64]*app.Feed
}

func NewFeedStore() *FeedStore {
	return &FeedStore{
		feeds: make(map[int64]*app.Feed),
	}
}

// Subscribe creates or reuses the quiz feed and attaches to it under the store
// lock; cancel detaches and drops the feed once empty under the same lock.
func (s *FeedStore) Subscribe(quizID int64, load app.LeaderboardLoader) (<-chan domain.Leaderboard, func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	feed, ok := s.feeds[quizID]
	if !ok {
		feed = app.NewFeed(quizID)
	}
	ch, unsubscribe, err := feed.Subscribe(load)
	if err != nil {
		return nil, nil, err
	}
	s.feeds[quizID] = feed

	cancel := func() {
		unsubscribe()
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.feeds[quizID] == feed && feed.IsEmpty() {
			delete(s.feeds, quizID)
		}
	}
	return ch, cancel, nil
}

func (s *FeedStore) Get(quizID int64) (*app.Feed, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	feed, ok := s.feeds[quizID]
	return feed, ok
}
