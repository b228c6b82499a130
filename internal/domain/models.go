package domain

import "time"

// Option is a selectable answer for a question. Letter options carry keys A-H;
// true/false options carry the keys "true" and "false".
type Option struct {
	Key  string `json:"key"`
	Text string `json:"text"`
}

// Display renders the option the way clients show it, e.g. "A) Paris".
func (o Option) Display() string {
	if len(o.Key) == 1 && o.Key[0] >= 'A' && o.Key[0] <= 'H' {
		return o.Key + ") " + o.Text
	}
	return o.Text
}

// Question belongs to exactly one quiz and is never mutated by the attempt flow.
type Question struct {
	ID            int64        `json:"id"`
	QuizID        int64        `json:"quizId"`
	Text          string       `json:"text"`
	Type          QuestionType `json:"type"`
	CorrectAnswer string       `json:"correctAnswer"`
	Difficulty    string       `json:"difficulty"`
	Options       []Option     `json:"options,omitempty"`
}

// Quiz is a collection of questions ordered by question id.
type Quiz struct {
	ID               int64      `json:"id"`
	Title            string     `json:"title"`
	TimeLimitSeconds int        `json:"timeLimitSeconds,omitempty"` // 0 means unlimited
	Questions        []Question `json:"questions"`
}

// Question returns the question with the given id if it belongs to the quiz.
func (q Quiz) Question(id int64) (Question, bool) {
	for _, question := range q.Questions {
		if question.ID == id {
			return question, true
		}
	}
	return Question{}, false
}

// TimeLimit returns the configured limit or zero when the quiz is untimed.
func (q Quiz) TimeLimit() time.Duration {
	if q.TimeLimitSeconds <= 0 {
		return 0
	}
	return time.Duration(q.TimeLimitSeconds) * time.Second
}

// Attempt is one play-through of a quiz by one user.
type Attempt struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	QuizID    int64     `json:"quizId"`
	Number    int       `json:"attemptNumber"`
	StartedAt time.Time `json:"startedAt"`
}

// Answer is a single recorded response; (UserID, QuestionID, AttemptID) is unique.
type Answer struct {
	ID         string    `json:"id"`
	UserID     string    `json:"userId"`
	QuizID     int64     `json:"quizId"`
	AttemptID  string    `json:"attemptId"`
	QuestionID int64     `json:"questionId"`
	Text       string    `json:"userAnswer"`
	Correct    bool      `json:"isCorrect"`
	AnsweredAt time.Time `json:"answeredAt"`
}

// Result is the immutable scoring record of a completed attempt.
type Result struct {
	ID               string    `json:"id"`
	UserID           string    `json:"userId"`
	QuizID           int64     `json:"quizId"`
	AttemptID        string    `json:"attemptId"`
	TotalQuestions   int       `json:"totalQuestions"`
	CorrectAnswers   int       `json:"correctAnswers"`
	ScorePercentage  float64   `json:"scorePercentage"`
	TimeTakenSeconds int64     `json:"timeTakenSeconds"`
	CompletedAt      time.Time `json:"completedAt"`
}

// RankingEntry is one row of a quiz leaderboard derived from the user's best result.
type RankingEntry struct {
	QuizID           int64     `json:"quizId"`
	UserID           string    `json:"userId"`
	ScorePercentage  float64   `json:"scorePercentage"`
	TimeTakenSeconds int64     `json:"timeTakenSeconds"`
	Position         int       `json:"position"`
	CompletedAt      time.Time `json:"completedAt"`
}

// Leaderboard captures the ordered ranking of one quiz.
type Leaderboard struct {
	QuizID    int64          `json:"quizId"`
	QuizTitle string         `json:"quizTitle,omitempty"`
	Entries   []RankingEntry `json:"entries"`
	UpdatedAt time.Time      `json:"updatedAt"`
}
