package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"quiz-attempt-service/internal/domain"
	"quiz-attempt-service/internal/metrics"
	"quiz-attempt-service/internal/scoring"
)

const (
	maxNextQuestions  = 5
	maxStartRetries   = 3
	correctMessage    = "Correct answer!"
	incorrectMessage  = "Incorrect answer."
	defaultGraceDelay = 5 * time.Second
)

// QuestionView is a question as presented to a player: options resolved and
// the embedded options segment stripped from the text.
type QuestionView struct {
	ID         int64               `json:"id"`
	Text       string              `json:"text"`
	Type       domain.QuestionType `json:"type"`
	Difficulty string              `json:"difficulty"`
	Options    []domain.Option     `json:"options"`
}

// StartedAttempt is returned by Start.
type StartedAttempt struct {
	Attempt          domain.Attempt `json:"attempt"`
	QuizTitle        string         `json:"quizTitle"`
	TimeLimitSeconds int            `json:"timeLimitSeconds,omitempty"`
	Questions        []QuestionView `json:"questions"`
}

// AnswerOutcome is returned by SubmitAnswer.
type AnswerOutcome struct {
	AttemptID  string `json:"attemptId"`
	QuestionID int64  `json:"questionId"`
	Correct    bool   `json:"isCorrect"`
	Message    string `json:"message"`
}

// ResumeState describes where a player left off.
type ResumeState struct {
	Attempt            domain.Attempt `json:"attempt"`
	QuizTitle          string         `json:"quizTitle"`
	TotalQuestions     int            `json:"totalQuestions"`
	AnsweredQuestions  int            `json:"answeredQuestions"`
	RemainingQuestions int            `json:"remainingQuestions"`
	NextQuestions      []QuestionView `json:"nextQuestions"`
}

// AttemptStatus is a progress snapshot of one attempt.
type AttemptStatus struct {
	Attempt           domain.Attempt `json:"attempt"`
	TotalQuestions    int            `json:"totalQuestions"`
	AnsweredQuestions int            `json:"answeredQuestions"`
	Completed         bool           `json:"completed"`
	ElapsedSeconds    int64          `json:"elapsedSeconds"`
	RemainingSeconds  *int64         `json:"remainingSeconds,omitempty"`
}

// ActiveAttempt summarizes an unfinished attempt.
type ActiveAttempt struct {
	Attempt           domain.Attempt `json:"attempt"`
	QuizTitle         string         `json:"quizTitle"`
	TotalQuestions    int            `json:"totalQuestions"`
	AnsweredQuestions int            `json:"answeredQuestions"`
}

// Option configures the services.
type Option func(*options)

type options struct {
	now    func() time.Time
	grace  time.Duration
	events EventPublisher
}

func newOptions(opts []Option) options {
	o := options{now: time.Now, grace: defaultGraceDelay, events: nopPublisher{}}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithClock is used by tests for deterministic timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithDeadlineGrace sets how long after a quiz time limit answers are still accepted.
func WithDeadlineGrace(grace time.Duration) Option {
	return func(o *options) { o.grace = grace }
}

// WithEvents publishes lifecycle events through p.
func WithEvents(p EventPublisher) Option {
	return func(o *options) {
		if p != nil {
			o.events = p
		}
	}
}

// AttemptService creates, resumes and abandons attempts and records answers.
type AttemptService struct {
	quizzes QuizRepository
	store   Store
	opts    options
}

func NewAttemptService(store Store, quizzes QuizRepository, opts ...Option) *AttemptService {
	return &AttemptService{quizzes: quizzes, store: store, opts: newOptions(opts)}
}

// Start opens a new attempt for the user and returns the quiz questions.
func (s *AttemptService) Start(ctx context.Context, userID string, quizID int64) (StartedAttempt, error) {
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return StartedAttempt{}, err
	}
	if len(quiz.Questions) == 0 {
		return StartedAttempt{}, domain.ErrNoQuestions
	}

	var attempt domain.Attempt
	for i := 0; ; i++ {
		attempt, err = s.store.CreateAttempt(ctx, domain.Attempt{
			ID:        uuid.NewString(),
			UserID:    userID,
			QuizID:    quizID,
			StartedAt: s.opts.now().UTC(),
		})
		if err == nil {
			break
		}
		// A concurrent start took the same number; count again.
		if !errors.Is(err, domain.ErrAttemptNumberTaken) || i+1 >= maxStartRetries {
			return StartedAttempt{}, fmt.Errorf("create attempt: %w", err)
		}
	}
	metrics.AttemptsStarted.Inc()
	s.publish(ctx, EventAttemptStarted, attempt)

	return StartedAttempt{
		Attempt:          attempt,
		QuizTitle:        quiz.Title,
		TimeLimitSeconds: quiz.TimeLimitSeconds,
		Questions:        viewQuestions(sortedQuestions(quiz)),
	}, nil
}

// SubmitAnswer records the answer against the user's latest attempt of the quiz.
func (s *AttemptService) SubmitAnswer(ctx context.Context, userID string, quizID, questionID int64, text string) (AnswerOutcome, error) {
	if strings.TrimSpace(text) == "" {
		return AnswerOutcome{}, domain.ErrEmptyAnswer
	}
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return AnswerOutcome{}, err
	}
	question, ok := quiz.Question(questionID)
	if !ok {
		return AnswerOutcome{}, domain.ErrQuestionNotFound
	}

	attempt, err := s.store.LatestAttempt(ctx, userID, quizID)
	if errors.Is(err, domain.ErrAttemptNotFound) {
		return AnswerOutcome{}, domain.ErrQuizNotStarted
	}
	if err != nil {
		return AnswerOutcome{}, err
	}
	if err := s.ensureOpen(ctx, attempt.ID); err != nil {
		return AnswerOutcome{}, err
	}
	if limit := quiz.TimeLimit(); limit > 0 && s.opts.now().After(attempt.StartedAt.Add(limit+s.opts.grace)) {
		return AnswerOutcome{}, domain.ErrTimeLimitExceeded
	}

	correct := scoring.Evaluate(question.Type, question.CorrectAnswer, text)
	err = s.store.InsertAnswer(ctx, domain.Answer{
		ID:         uuid.NewString(),
		UserID:     userID,
		QuizID:     quizID,
		AttemptID:  attempt.ID,
		QuestionID: questionID,
		Text:       text,
		Correct:    correct,
		AnsweredAt: s.opts.now().UTC(),
	})
	if err != nil {
		return AnswerOutcome{}, err
	}
	metrics.AnswersSubmitted.WithLabelValues(fmt.Sprint(correct)).Inc()

	message := incorrectMessage
	if correct {
		message = correctMessage
	}
	return AnswerOutcome{AttemptID: attempt.ID, QuestionID: questionID, Correct: correct, Message: message}, nil
}

// Resume reports progress of an unfinished attempt and the next questions to answer.
func (s *AttemptService) Resume(ctx context.Context, attemptID, userID string) (ResumeState, error) {
	attempt, err := s.ownedAttempt(ctx, attemptID, userID)
	if err != nil {
		return ResumeState{}, err
	}
	if err := s.ensureOpen(ctx, attempt.ID); err != nil {
		return ResumeState{}, err
	}
	quiz, err := s.quizzes.GetQuiz(ctx, attempt.QuizID)
	if err != nil {
		return ResumeState{}, err
	}
	answered, err := s.answeredQuestions(ctx, attempt, quiz)
	if err != nil {
		return ResumeState{}, err
	}

	var next []domain.Question
	for _, q := range sortedQuestions(quiz) {
		if _, ok := answered[q.ID]; ok {
			continue
		}
		if len(next) == maxNextQuestions {
			break
		}
		next = append(next, q)
	}

	total := len(quiz.Questions)
	return ResumeState{
		Attempt:            attempt,
		QuizTitle:          quiz.Title,
		TotalQuestions:     total,
		AnsweredQuestions:  len(answered),
		RemainingQuestions: total - len(answered),
		NextQuestions:      viewQuestions(next),
	}, nil
}

// Abandon discards an unfinished attempt and its answers. It cannot be undone.
func (s *AttemptService) Abandon(ctx context.Context, attemptID, userID string) error {
	attempt, err := s.ownedAttempt(ctx, attemptID, userID)
	if err != nil {
		return err
	}
	if err := s.ensureOpen(ctx, attempt.ID); err != nil {
		return err
	}
	if err := s.store.DeleteAttempt(ctx, attempt.ID); err != nil {
		return fmt.Errorf("delete attempt: %w", err)
	}
	metrics.AttemptsAbandoned.Inc()
	return nil
}

// Status returns a progress snapshot; completed attempts are reported too.
func (s *AttemptService) Status(ctx context.Context, attemptID, userID string) (AttemptStatus, error) {
	attempt, err := s.ownedAttempt(ctx, attemptID, userID)
	if err != nil {
		return AttemptStatus{}, err
	}
	quiz, err := s.quizzes.GetQuiz(ctx, attempt.QuizID)
	if err != nil {
		return AttemptStatus{}, err
	}
	answered, err := s.answeredQuestions(ctx, attempt, quiz)
	if err != nil {
		return AttemptStatus{}, err
	}

	status := AttemptStatus{
		Attempt:           attempt,
		TotalQuestions:    len(quiz.Questions),
		AnsweredQuestions: len(answered),
	}
	result, err := s.store.GetResult(ctx, attempt.ID)
	switch {
	case err == nil:
		status.Completed = true
		status.ElapsedSeconds = result.TimeTakenSeconds
		return status, nil
	case !errors.Is(err, domain.ErrResultNotFound):
		return AttemptStatus{}, err
	}

	status.ElapsedSeconds = elapsedSeconds(attempt.StartedAt, s.opts.now())
	if limit := quiz.TimeLimit(); limit > 0 {
		remaining := int64(limit/time.Second) - status.ElapsedSeconds
		if remaining < 0 {
			remaining = 0
		}
		status.RemainingSeconds = &remaining
	}
	return status, nil
}

// ActiveAttempts lists the user's unfinished attempts, newest first.
func (s *AttemptService) ActiveAttempts(ctx context.Context, userID string) ([]ActiveAttempt, error) {
	attempts, err := s.store.ListAttempts(ctx, userID)
	if err != nil {
		return nil, err
	}
	sort.Slice(attempts, func(i, j int) bool {
		return attempts[i].StartedAt.After(attempts[j].StartedAt)
	})

	active := make([]ActiveAttempt, 0, len(attempts))
	for _, attempt := range attempts {
		_, err := s.store.GetResult(ctx, attempt.ID)
		if err == nil {
			continue
		}
		if !errors.Is(err, domain.ErrResultNotFound) {
			return nil, err
		}
		quiz, err := s.quizzes.GetQuiz(ctx, attempt.QuizID)
		if err != nil {
			log.Printf("active attempts: skip attempt %s: %v", attempt.ID, err)
			continue
		}
		answered, err := s.answeredQuestions(ctx, attempt, quiz)
		if err != nil {
			return nil, err
		}
		active = append(active, ActiveAttempt{
			Attempt:           attempt,
			QuizTitle:         quiz.Title,
			TotalQuestions:    len(quiz.Questions),
			AnsweredQuestions: len(answered),
		})
	}
	return active, nil
}

// ownedAttempt hides attempts of other users behind ErrAttemptNotFound.
func (s *AttemptService) ownedAttempt(ctx context.Context, attemptID, userID string) (domain.Attempt, error) {
	return loadOwnedAttempt(ctx, s.store, attemptID, userID)
}

func (s *AttemptService) ensureOpen(ctx context.Context, attemptID string) error {
	_, err := s.store.GetResult(ctx, attemptID)
	if err == nil {
		return domain.ErrAttemptCompleted
	}
	if errors.Is(err, domain.ErrResultNotFound) {
		return nil
	}
	return err
}

// answeredQuestions counts distinct quiz questions answered within this attempt only.
func (s *AttemptService) answeredQuestions(ctx context.Context, attempt domain.Attempt, quiz domain.Quiz) (map[int64]struct{}, error) {
	answers, err := s.store.ListAnswers(ctx, attempt.ID)
	if err != nil {
		return nil, err
	}
	answered := make(map[int64]struct{}, len(answers))
	for _, a := range answers {
		if _, ok := quiz.Question(a.QuestionID); ok {
			answered[a.QuestionID] = struct{}{}
		}
	}
	return answered, nil
}

func (s *AttemptService) publish(ctx context.Context, eventType string, payload any) {
	if err := s.opts.events.Publish(ctx, eventType, payload); err != nil {
		log.Printf("publish %s failed: %v", eventType, err)
	}
}

func loadOwnedAttempt(ctx context.Context, attempts AttemptRepository, attemptID, userID string) (domain.Attempt, error) {
	attempt, err := attempts.GetAttempt(ctx, attemptID)
	if err != nil {
		return domain.Attempt{}, err
	}
	if attempt.UserID != userID {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	return attempt, nil
}

func sortedQuestions(quiz domain.Quiz) []domain.Question {
	questions := append([]domain.Question(nil), quiz.Questions...)
	sort.Slice(questions, func(i, j int) bool { return questions[i].ID < questions[j].ID })
	return questions
}

func viewQuestions(questions []domain.Question) []QuestionView {
	views := make([]QuestionView, 0, len(questions))
	for _, q := range questions {
		views = append(views, QuestionView{
			ID:         q.ID,
			Text:       scoring.DisplayText(q),
			Type:       q.Type,
			Difficulty: q.Difficulty,
			Options:    scoring.OptionsFor(q),
		})
	}
	return views
}

func elapsedSeconds(start, now time.Time) int64 {
	if start.IsZero() {
		return 0
	}
	elapsed := int64(now.Sub(start) / time.Second)
	if elapsed < 0 {
		return 0
	}
	return elapsed
}
