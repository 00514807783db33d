package app_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"aptitude-ace/internal/app"
	"aptitude-ace/internal/attempts"
	"aptitude-ace/internal/domain"
	"aptitude-ace/internal/infra/memory"
	"aptitude-ace/internal/timer"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// bufferedTicker never blocks the test: ticks queue until the timer loop reads them.
type bufferedTicker struct {
	ch chan time.Time
}

func (b *bufferedTicker) C() <-chan time.Time { return b.ch }
func (b *bufferedTicker) Stop()               {}

// tickers hands out manual tickers and remembers the latest one.
type tickers struct {
	mu     sync.Mutex
	latest *bufferedTicker
}

func (tk *tickers) newTimer() *timer.Timer {
	return timer.New(timer.WithTicker(func(time.Duration) timer.Ticker {
		b := &bufferedTicker{ch: make(chan time.Time, 4096)}
		tk.mu.Lock()
		tk.latest = b
		tk.mu.Unlock()
		return b
	}))
}

func (tk *tickers) tick(n int) {
	tk.mu.Lock()
	b := tk.latest
	tk.mu.Unlock()
	for i := 0; i < n; i++ {
		b.ch <- time.Time{}
	}
}

type fakeAPI struct {
	mu          sync.Mutex
	submitErr   error
	profileErr  error
	profile     domain.Profile
	submitted   []domain.Result
	modes       []domain.Mode
	progress    []domain.TopicProgress
	streakCalls int
	unlockCalls int
}

func (f *fakeAPI) SubmitResult(ctx context.Context, mode domain.Mode, result domain.Result) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return f.submitErr
	}
	f.submitted = append(f.submitted, result)
	f.modes = append(f.modes, mode)
	return nil
}

func (f *fakeAPI) UpdateTopicProgress(ctx context.Context, userID string, progress domain.TopicProgress) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.progress = append(f.progress, progress)
	return nil
}

func (f *fakeAPI) UpdateStreak(ctx context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.streakCalls++
	return nil
}

func (f *fakeAPI) UnlockGrandTest(ctx context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unlockCalls++
	return nil
}

func (f *fakeAPI) Profile(ctx context.Context) (domain.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.profile, f.profileErr
}

func (f *fakeAPI) submitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.submitted)
}

// statusErr mimics an HTTP error from the results API.
type statusErr struct {
	code int
}

func (e statusErr) Error() string   { return fmt.Sprintf("status %d", e.code) }
func (e statusErr) Permanent() bool { return e.code >= 400 && e.code < 500 && e.code != 401 }

type failingSource struct{}

func (failingSource) LoadQuestions(context.Context, domain.Mode, string) ([]domain.Question, error) {
	return nil, errors.New("backend unreachable")
}

func questions(topic string, n int) []domain.Question {
	out := make([]domain.Question, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, domain.Question{
			ID:            fmt.Sprintf("%s-%02d", topic, i),
			TopicID:       topic,
			Prompt:        fmt.Sprintf("question %d", i),
			Options:       []string{"right", "wrong"},
			CorrectAnswer: "right",
			Explanation:   "because",
		})
	}
	return out
}

type harness struct {
	clock   *fakeClock
	tickers *tickers
	api     *fakeAPI
	store   *attempts.Store
	service *app.QuizService
}

func newHarness(t *testing.T, bank []domain.Question, opts ...app.Option) *harness {
	t.Helper()
	h := &harness{clock: newClock(), tickers: &tickers{}, api: &fakeAPI{}}
	h.store = attempts.NewStoreWithClock(memory.NewKVStore(), h.clock.Now)
	submitter := app.NewSubmitterWithClock(h.api, h.store, h.clock.Now)
	opts = append([]app.Option{app.WithClock(h.clock.Now), app.WithTimerFactory(h.tickers.newTimer)}, opts...)
	h.service = app.NewQuizService(
		memory.NewSessionStore(),
		memory.NewStaticQuestionLoader(bank),
		memory.NewDefaultQuestionLoader(),
		submitter,
		h.store,
		opts...,
	)
	t.Cleanup(h.service.CloseAll)
	return h
}

func (h *harness) start(t *testing.T, req app.StartRequest) *app.Session {
	t.Helper()
	session, err := h.service.StartSession(context.Background(), req)
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	return session
}

func waitForState(t *testing.T, session *app.Session, name string) app.State {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if st := session.State(); st.Name() == name {
			return st
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("session never reached %s, still %s", name, session.State().Name())
	return nil
}

func waitForSubmission(t *testing.T, session *app.Session) *app.SubmissionOutcome {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if sub := session.Snapshot().Submission; sub != nil {
			return sub
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("no submission attached")
	return nil
}

func answer(t *testing.T, session *app.Session, correct bool) app.AnswerOutcome {
	t.Helper()
	outcome, err := session.SubmitAnswer(correct)
	if err != nil {
		t.Fatalf("SubmitAnswer: %v", err)
	}
	return outcome
}

func advance(t *testing.T, session *app.Session) app.State {
	t.Helper()
	st, err := session.Advance()
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	return st
}
