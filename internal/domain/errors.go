package domain

import "errors"

// Kind classifies errors for transport mapping.
type Kind int

const (
	KindInternal Kind = iota
	KindUnauthorized
	KindNotFound
	KindConflict
	KindValidation
)

var (
	// ErrUnauthorized is returned when no caller identity could be resolved.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrNoQuestions is returned when a quiz exists but has no questions to play.
	ErrNoQuestions = errors.New("quiz has no questions")
	// ErrQuestionNotFound indicates a question is unknown or not part of the quiz.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrAttemptNotFound covers missing attempts and attempts owned by another user.
	ErrAttemptNotFound = errors.New("attempt not found")
	// ErrRankingNotFound is returned when a leaderboard has no entries.
	ErrRankingNotFound = errors.New("ranking not found")
	// ErrResultNotFound is returned by stores when an attempt has no result yet.
	ErrResultNotFound = errors.New("result not found")

	// ErrQuizNotStarted is returned when answering a quiz with no attempt.
	ErrQuizNotStarted = errors.New("quiz not started")
	// ErrAlreadyAnswered is returned for a second answer to the same question in an attempt.
	ErrAlreadyAnswered = errors.New("question already answered in this attempt")
	// ErrAttemptCompleted is returned when an attempt already has a result.
	ErrAttemptCompleted = errors.New("attempt already completed")
	// ErrTimeLimitExceeded is returned for answers submitted after the attempt deadline.
	ErrTimeLimitExceeded = errors.New("time limit exceeded")
	// ErrAttemptNumberTaken is returned by stores when a concurrent start claimed the number.
	ErrAttemptNumberTaken = errors.New("attempt number already taken")

	// ErrEmptyAnswer is returned when the submitted answer is missing.
	ErrEmptyAnswer = errors.New("user answer is required")
	// ErrInvalidPeriod is returned for an unknown ranking period filter.
	ErrInvalidPeriod = errors.New("invalid ranking period")
	// ErrUnknownQuestionType is returned when parsing an unsupported question type.
	ErrUnknownQuestionType = errors.New("unknown question type")
)

var kinds = map[error]Kind{
	ErrUnauthorized:        KindUnauthorized,
	ErrQuizNotFound:        KindNotFound,
	ErrNoQuestions:         KindNotFound,
	ErrQuestionNotFound:    KindNotFound,
	ErrAttemptNotFound:     KindNotFound,
	ErrRankingNotFound:     KindNotFound,
	ErrResultNotFound:      KindNotFound,
	ErrQuizNotStarted:      KindConflict,
	ErrAlreadyAnswered:     KindConflict,
	ErrAttemptCompleted:    KindConflict,
	ErrTimeLimitExceeded:   KindConflict,
	ErrAttemptNumberTaken:  KindConflict,
	ErrEmptyAnswer:         KindValidation,
	ErrInvalidPeriod:       KindValidation,
	ErrUnknownQuestionType: KindValidation,
}

// KindOf returns the classification of the first sentinel found in err's chain.
func KindOf(err error) Kind {
	for sentinel, kind := range kinds {
		if errors.Is(err, sentinel) {
			return kind
		}
	}
	return KindInternal
}
