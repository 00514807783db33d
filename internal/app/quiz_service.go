package app

import (
	"context"
	"log"
	"time"

	"aptitude-ace/internal/attempts"
	"aptitude-ace/internal/domain"
	"aptitude-ace/internal/timer"
)

// SessionRepository tracks open sessions (in-memory, Redis, etc).
type SessionRepository interface {
	Put(session *Session)
	Get(sessionID string) (*Session, bool)
	Delete(sessionID string)
	List() []*Session
}

// QuestionSource loads the questions for a mode; practice mode is per topic.
type QuestionSource interface {
	LoadQuestions(ctx context.Context, mode domain.Mode, topicID string) ([]domain.Question, error)
}

// StartRequest asks for a new session. An empty UserID means unauthenticated.
type StartRequest struct {
	Mode    domain.Mode
	TopicID string
	UserID  string
}

// QuizService contains the quiz session use cases.
type QuizService struct {
	sessions   SessionRepository
	questions  QuestionSource
	fallback   QuestionSource
	submitter  *Submitter
	store      *attempts.Store
	dailyCount int
	now        func() time.Time
	newTimer   func() *timer.Timer
}

// Option customises a QuizService.
type Option func(*QuizService)

// WithClock pins the clock used for sessions and daily selection.
func WithClock(now func() time.Time) Option {
	return func(s *QuizService) { s.now = now }
}

// WithTimerFactory replaces the per-session timer constructor.
func WithTimerFactory(newTimer func() *timer.Timer) Option {
	return func(s *QuizService) { s.newTimer = newTimer }
}

// WithDailyCount sets how many questions a daily challenge draws.
func WithDailyCount(n int) Option {
	return func(s *QuizService) { s.dailyCount = n }
}

// NewQuizService wires the service. fallback supplies the bundled question set
// used when questions cannot be fetched; it may be nil.
func NewQuizService(sessions SessionRepository, questions, fallback QuestionSource, submitter *Submitter, store *attempts.Store, opts ...Option) *QuizService {
	s := &QuizService{
		sessions:   sessions,
		questions:  questions,
		fallback:   fallback,
		submitter:  submitter,
		store:      store,
		dailyCount: 10,
		now:        time.Now,
		newTimer:   func() *timer.Timer { return timer.New() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StartSession opens a session and loads its questions. A session with no
// questions is returned in the Empty state rather than as an error.
func (s *QuizService) StartSession(ctx context.Context, req StartRequest) (*Session, error) {
	if req.Mode == "" {
		req.Mode = domain.ModePractice
	}
	if _, err := domain.ParseMode(string(req.Mode)); err != nil {
		return nil, err
	}
	if req.Mode == domain.ModePractice && req.TopicID == "" {
		return nil, domain.ErrTopicRequired
	}
	today := s.now()
	if req.Mode == domain.ModeDaily && s.store.DailyChallengeDone(ctx, today) {
		return nil, domain.ErrDailyChallengeDone
	}

	session := NewSession(SessionConfig{
		Mode:       req.Mode,
		TopicID:    req.TopicID,
		UserID:     req.UserID,
		Timer:      s.newTimer(),
		Now:        s.now,
		OnComplete: s.handleCompletion,
	})
	s.sessions.Put(session)

	questions, fallback := s.loadQuestions(ctx, req.Mode, req.TopicID)
	if req.Mode == domain.ModeDaily {
		questions = SelectDaily(questions, today, s.dailyCount)
	}
	if _, err := session.Begin(questions, fallback); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *QuizService) loadQuestions(ctx context.Context, mode domain.Mode, topicID string) ([]domain.Question, bool) {
	questions, err := s.questions.LoadQuestions(ctx, mode, topicID)
	fallback := false
	if err != nil {
		log.Printf("load %s questions for %q: %v", mode, topicID, err)
		if s.fallback == nil {
			return nil, false
		}
		questions, err = s.fallback.LoadQuestions(ctx, mode, topicID)
		if err != nil {
			log.Printf("load bundled %s questions: %v", mode, err)
			return nil, false
		}
		fallback = true
	}
	return validQuestions(questions), fallback
}

func validQuestions(questions []domain.Question) []domain.Question {
	valid := make([]domain.Question, 0, len(questions))
	for _, q := range questions {
		if err := q.Validate(); err != nil {
			log.Printf("skipping question: %v", err)
			continue
		}
		valid = append(valid, q)
	}
	return valid
}

// handleCompletion hands a completed session to result submission.
func (s *QuizService) handleCompletion(session *Session, summary domain.Summary) {
	if s.submitter == nil {
		return
	}
	outcome := s.submitter.Submit(context.Background(), session.UserID(), summary)
	session.attachSubmission(outcome)
}

// Session looks up an open session.
func (s *QuizService) Session(sessionID string) (*Session, error) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return session, nil
}

// EndSession closes a session when its view goes away.
func (s *QuizService) EndSession(sessionID string) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return
	}
	session.Close()
	s.sessions.Delete(sessionID)
}

// CloseAll ends every open session, for shutdown.
func (s *QuizService) CloseAll() {
	for _, session := range s.sessions.List() {
		s.EndSession(session.ID())
	}
}

// Drain retries queued submissions; see Submitter.Drain.
func (s *QuizService) Drain(ctx context.Context) (DrainReport, error) {
	if s.submitter == nil {
		return DrainReport{}, nil
	}
	return s.submitter.Drain(ctx)
}

// Stats returns local attempt stats for a topic, or for the daily/grand keys.
func (s *QuizService) Stats(ctx context.Context, topicID string) domain.AttemptStats {
	return s.store.LoadStats(ctx, topicID)
}

// LastPerformance returns the last-performance snapshot for a topic.
func (s *QuizService) LastPerformance(ctx context.Context, topicID string) (domain.PerformanceSnapshot, bool) {
	return s.store.LastPerformance(ctx, topicID)
}

// Pending lists queued submissions.
func (s *QuizService) Pending(ctx context.Context) []domain.PendingSubmission {
	return s.store.PendingSubmissions(ctx)
}
