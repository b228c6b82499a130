package app

import (
	"log"
	"sync"

	"quiz-attempt-service/internal/domain"
)

// LeaderboardLoader reads the current leaderboard of a feed's quiz.
type LeaderboardLoader func() (domain.Leaderboard, error)

// FeedRepository abstracts where live ranking feeds are kept (in-memory, etc).
type FeedRepository interface {
	// Subscribe attaches to the quiz feed, creating it if needed. Attaching and
	// dropping an empty feed are atomic with respect to each other.
	Subscribe(quizID int64, load LeaderboardLoader) (<-chan domain.Leaderboard, func(), error)
	Get(quizID int64) (*Feed, bool)
}

// Feed fans leaderboard updates of one quiz out to websocket subscribers.
type Feed struct {
	quizID      int64
	mu          sync.Mutex
	subscribers map[chan domain.Leaderboard]struct{}
}

// NewFeed is exported for infrastructure layers that keep feeds.
func NewFeed(quizID int64) *Feed {
	return &Feed{
		quizID:      quizID,
		subscribers: make(map[chan domain.Leaderboard]struct{}),
	}
}

// IsEmpty reports whether the feed has no subscribers.
func (f *Feed) IsEmpty() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subscribers) == 0
}

// Subscribe registers a subscriber whose first message is the leaderboard
// returned by load. Loading happens under the feed lock, so no refresh can
// slip in between the snapshot and the registration.
func (f *Feed) Subscribe(load LeaderboardLoader) (<-chan domain.Leaderboard, func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	initial, err := load()
	if err != nil {
		return nil, nil, err
	}
	ch := make(chan domain.Leaderboard, 8)
	ch <- initial
	f.subscribers[ch] = struct{}{}

	cancel := func() {
		f.mu.Lock()
		if _, ok := f.subscribers[ch]; ok {
			delete(f.subscribers, ch)
			close(ch)
		}
		f.mu.Unlock()
	}
	return ch, cancel, nil
}

// refresh loads and broadcasts the current leaderboard under the feed lock.
// Each caller loads after its own ranking commit, so the last delivered
// leaderboard is never older than the stored one.
func (f *Feed) refresh(load LeaderboardLoader) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.subscribers) == 0 {
		return
	}
	lb, err := load()
	if err != nil {
		log.Printf("ranking feed for quiz %d: %v", f.quizID, err)
		return
	}
	for ch := range f.subscribers {
		select {
		case ch <- lb:
		default:
			// Slow subscriber: drop its oldest update so refresh never blocks.
			select {
			case <-ch:
			default:
			}
			ch <- lb
		}
	}
}
