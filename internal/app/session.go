package app

import (
	"sync"
	"time"

	"aptitude-ace/internal/domain"
	"aptitude-ace/internal/scoring"
	"aptitude-ace/internal/timer"
	"github.com/google/uuid"
)

const emptyMessage = "Questions for this quiz are not available yet."

// SessionConfig describes a session to open.
type SessionConfig struct {
	ID      string
	Mode    domain.Mode
	TopicID string
	UserID  string
	// Timer defaults to a wall-clock timer.Timer.
	Timer *timer.Timer
	// Now defaults to time.Now.
	Now func() time.Time
	// OnComplete runs once, outside the session lock, when the session completes.
	OnComplete func(*Session, domain.Summary)
}

// Session is one quiz run owned by the view that opened it.
type Session struct {
	id         string
	mode       domain.Mode
	topicID    string
	userID     string
	rules      domain.Rules
	now        func() time.Time
	timer      *timer.Timer
	onComplete func(*Session, domain.Summary)

	mu                sync.Mutex
	state             State
	questions         []domain.Question
	index             int
	scorer            *scoring.Scorer
	startedAt         time.Time
	questionStartedAt time.Time
	fallback          bool
	submission        *SubmissionOutcome
	closed            bool
	subscribers       map[chan Snapshot]struct{}
}

// NewSession opens a session in the Loading state.
func NewSession(cfg SessionConfig) *Session {
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Timer == nil {
		cfg.Timer = timer.New()
	}
	if cfg.Mode == "" {
		cfg.Mode = domain.ModePractice
	}
	rules := cfg.Mode.Rules()
	s := &Session{
		id:          cfg.ID,
		mode:        cfg.Mode,
		topicID:     cfg.TopicID,
		userID:      cfg.UserID,
		rules:       rules,
		now:         cfg.Now,
		timer:       cfg.Timer,
		onComplete:  cfg.OnComplete,
		state:       Loading{},
		scorer:      scoring.New(rules),
		subscribers: make(map[chan Snapshot]struct{}),
	}
	s.timer.OnTick(func(int) { s.broadcast() })
	return s
}

func (s *Session) ID() string        { return s.id }
func (s *Session) Mode() domain.Mode { return s.mode }
func (s *Session) TopicID() string   { return s.topicID }
func (s *Session) UserID() string    { return s.userID }

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Begin leaves Loading with the fetched questions. An empty list ends in Empty.
// fallback marks a bundled default set used after a failed fetch.
func (s *Session) Begin(questions []domain.Question, fallback bool) (State, error) {
	s.mu.Lock()
	if _, ok := s.state.(Loading); !ok || s.closed {
		st := s.state
		s.mu.Unlock()
		return st, domain.ErrInvalidTransition
	}

	s.fallback = fallback
	if len(questions) == 0 {
		s.state = Empty{Message: emptyMessage}
		st := s.state
		s.broadcastLocked()
		s.mu.Unlock()
		return st, nil
	}

	s.questions = append([]domain.Question(nil), questions...)
	now := s.now()
	s.startedAt = now
	s.questionStartedAt = now
	s.index = 0
	s.state = InProgress{Index: 0}

	if s.rules.Timed() {
		s.timer.Start(int(s.rules.TimeLimit/time.Second), timer.CountDown, func() {
			s.complete(domain.ReasonTimeout)
		})
	} else {
		s.timer.Start(0, timer.CountUp, nil)
	}
	st := s.state
	s.broadcastLocked()
	s.mu.Unlock()
	return st, nil
}

// Current returns the question being shown, if any.
func (s *Session) Current() (domain.Question, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch st := s.state.(type) {
	case InProgress:
		return s.questions[st.Index], true
	case AwaitingAdvance:
		return s.questions[st.Index], true
	}
	return domain.Question{}, false
}

// Answer evaluates the chosen option for the current question.
func (s *Session) Answer(option string) (AnswerOutcome, error) {
	return s.submit(func(q domain.Question) bool { return q.IsCorrect(option) })
}

// SubmitAnswer records an already evaluated answer for the current question.
func (s *Session) SubmitAnswer(isCorrect bool) (AnswerOutcome, error) {
	return s.submit(func(domain.Question) bool { return isCorrect })
}

func (s *Session) submit(evaluate func(domain.Question) bool) (AnswerOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.state.(InProgress)
	if !ok {
		return AnswerOutcome{}, s.transitionErrLocked()
	}

	q := s.questions[st.Index]
	now := s.now()
	spent := int(now.Sub(s.questionStartedAt) / time.Second)
	correct := evaluate(q)
	record := s.scorer.SubmitAnswer(q.ID, correct, spent)

	outcome := AnswerOutcome{
		QuestionID:    q.ID,
		Correct:       correct,
		CorrectAnswer: q.CorrectAnswer,
		Explanation:   q.Explanation,
		TimeSpent:     record.TimeSpent,
		Score:         s.scorer.Score(),
		Streak:        s.scorer.Streak(),
	}
	s.state = AwaitingAdvance{Index: st.Index, Outcome: outcome}
	s.broadcastLocked()
	return outcome, nil
}

// Advance moves past the answered question. At the last question the session
// completes, except in wrap-around modes while time remains, which restart at 0.
func (s *Session) Advance() (State, error) {
	s.mu.Lock()
	st, ok := s.state.(AwaitingAdvance)
	if !ok {
		err := s.transitionErrLocked()
		cur := s.state
		s.mu.Unlock()
		return cur, err
	}

	last := st.Index == len(s.questions)-1
	if !last || (s.rules.WrapAround && s.timer.Seconds() > 0) {
		next := st.Index + 1
		if last {
			next = 0
		}
		s.index = next
		s.questionStartedAt = s.now()
		s.state = InProgress{Index: next}
		cur := s.state
		s.broadcastLocked()
		s.mu.Unlock()
		return cur, nil
	}

	summary, done := s.completeLocked(domain.ReasonFinished)
	cur := s.state
	s.mu.Unlock()
	if done {
		s.afterComplete(summary)
	}
	return cur, nil
}

// Finish ends the session early. It reports false when the session had
// already completed, for example because the countdown won the race.
func (s *Session) Finish() bool {
	return s.complete(domain.ReasonManual)
}

func (s *Session) complete(reason domain.CompletionReason) bool {
	s.mu.Lock()
	summary, done := s.completeLocked(reason)
	s.mu.Unlock()
	if done {
		s.afterComplete(summary)
	}
	return done
}

// completeLocked is the single entry into Completed.
func (s *Session) completeLocked(reason domain.CompletionReason) (domain.Summary, bool) {
	switch s.state.(type) {
	case InProgress, AwaitingAdvance:
	default:
		return domain.Summary{}, false
	}
	if s.closed {
		return domain.Summary{}, false
	}

	s.timer.Stop()
	summary := s.summaryLocked(reason)
	s.index = len(s.questions)
	s.state = Completed{Summary: summary}
	s.broadcastLocked()
	return summary, true
}

func (s *Session) afterComplete(summary domain.Summary) {
	if s.onComplete != nil {
		s.onComplete(s, summary)
	}
}

func (s *Session) summaryLocked(reason domain.CompletionReason) domain.Summary {
	total := len(s.questions)
	attempted := s.scorer.Answered()
	denominator := total
	if s.rules.WrapAround && attempted > total {
		denominator = attempted
	}
	percent := scoring.Percent(s.scorer.Score(), denominator, s.rules.CorrectPoints)

	return domain.Summary{
		SessionID:          s.id,
		Mode:               s.mode,
		TopicID:            s.topicID,
		Score:              s.scorer.Score(),
		Percent:            percent,
		Passed:             percent >= domain.PassThreshold,
		TotalQuestions:     total,
		QuestionsAttempted: attempted,
		CorrectAnswers:     s.scorer.Correct(),
		TimeSpent:          s.elapsedLocked(),
		Streak:             s.scorer.Streak(),
		BestStreak:         s.scorer.BestStreak(),
		Performance:        s.scorer.Performance(),
		Reason:             reason,
		CompletedAt:        s.now(),
	}
}

func (s *Session) elapsedLocked() int {
	if s.startedAt.IsZero() {
		return 0
	}
	elapsed := int(s.now().Sub(s.startedAt) / time.Second)
	if limit := int(s.rules.TimeLimit / time.Second); limit > 0 && elapsed > limit {
		elapsed = limit
	}
	if elapsed < 0 {
		return 0
	}
	return elapsed
}

func (s *Session) transitionErrLocked() error {
	if _, ok := s.state.(Completed); ok {
		return domain.ErrSessionCompleted
	}
	return domain.ErrInvalidTransition
}

// attachSubmission publishes the result submission outcome to the view.
func (s *Session) attachSubmission(outcome SubmissionOutcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submission = &outcome
	s.broadcastLocked()
}

// Close releases the session's timer and subscriptions. The view that opened
// the session calls it when it goes away; an in-flight submission is not aborted.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.timer.Stop()
	for ch := range s.subscribers {
		delete(s.subscribers, ch)
		close(ch)
	}
}

// Closed reports whether Close was called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
