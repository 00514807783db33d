package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"aptitude-ace/internal/attempts"
	"aptitude-ace/internal/domain"
)

// ResultsAPI is the slice of the backend the submission path talks to.
type ResultsAPI interface {
	SubmitResult(ctx context.Context, mode domain.Mode, result domain.Result) error
	UpdateTopicProgress(ctx context.Context, userID string, progress domain.TopicProgress) error
	UpdateStreak(ctx context.Context, userID string) error
	UnlockGrandTest(ctx context.Context, userID string) error
	Profile(ctx context.Context) (domain.Profile, error)
}

// SubmissionOutcome tells the view how a completed session was recorded.
type SubmissionOutcome struct {
	Remote    bool                  `json:"remote"`
	Local     bool                  `json:"local"`
	Queued    bool                  `json:"queued"`
	PendingID string                `json:"pendingId,omitempty"`
	Stats     domain.AttemptSummary `json:"stats"`
	Profile   *domain.Profile       `json:"profile,omitempty"`
	Message   string                `json:"message,omitempty"`
	Err       error                 `json:"-"`
}

// DrainReport summarises one pass over the outbox.
type DrainReport struct {
	Delivered int `json:"delivered"`
	Dropped   int `json:"dropped"`
	Remaining int `json:"remaining"`
}

// Submitter delivers completed sessions to the results API and keeps local
// bookkeeping in step.
type Submitter struct {
	api   ResultsAPI
	store *attempts.Store
	now   func() time.Time
}

func NewSubmitter(api ResultsAPI, store *attempts.Store) *Submitter {
	return &Submitter{api: api, store: store, now: time.Now}
}

// NewSubmitterWithClock is used by tests that pin the calendar date.
func NewSubmitterWithClock(api ResultsAPI, store *attempts.Store, now func() time.Time) *Submitter {
	return &Submitter{api: api, store: store, now: now}
}

// Submit records the summary locally and, for signed-in users, remotely.
// It never returns an error: failures are reported in the outcome.
func (s *Submitter) Submit(ctx context.Context, userID string, summary domain.Summary) SubmissionOutcome {
	var outcome SubmissionOutcome

	stats, err := s.store.RecordCompletion(ctx, attempts.Completion{
		TopicID:        summary.Mode.StatsKey(summary.TopicID),
		Score:          summary.Percent,
		TimeSpent:      summary.TimeSpent,
		CorrectAnswers: summary.CorrectAnswers,
		TotalQuestions: summary.TotalQuestions,
		Performance:    summary.Performance,
		Streak:         summary.Streak,
	})
	if err != nil {
		log.Printf("record completion for %s: %v", summary.SessionID, err)
	}
	outcome.Stats = stats

	if summary.Mode == domain.ModeDaily {
		if err := s.store.MarkDailyChallenge(ctx, s.now()); err != nil {
			log.Printf("mark daily challenge: %v", err)
		}
	}

	result := summary.Result(userID)
	if userID == "" {
		if err := s.store.SaveLocalResult(ctx, summary.Mode, result); err != nil {
			log.Printf("save local result: %v", err)
		}
		outcome.Local = true
		outcome.Message = "Result saved on this device. Sign in to sync your progress."
		return outcome
	}

	if err := s.api.SubmitResult(ctx, summary.Mode, result); err != nil {
		log.Printf("submit %s result for %s: %v", summary.Mode, userID, err)
		entry, qerr := s.store.EnqueuePending(ctx, summary.Mode, result)
		if qerr != nil {
			log.Printf("queue pending submission: %v", qerr)
			outcome.Err = errors.Join(fmt.Errorf("submit result: %w", err), fmt.Errorf("queue result: %w", qerr))
			outcome.Message = "Could not reach the server. Your result is recorded on this device but could not be queued for retry."
			return outcome
		}
		outcome.Queued = true
		outcome.PendingID = entry.ID
		outcome.Err = fmt.Errorf("%w: %v", domain.ErrSubmissionDeferred, err)
		outcome.Message = "Could not reach the server. Your result will be retried."
		return outcome
	}

	outcome.Remote = true
	outcome.Profile = s.afterConfirmed(ctx, userID, summary)
	return outcome
}

// afterConfirmed applies progress mutations and refreshes the profile so
// streak and unlock state reflect the new result. Failures are logged only.
func (s *Submitter) afterConfirmed(ctx context.Context, userID string, summary domain.Summary) *domain.Profile {
	switch summary.Mode {
	case domain.ModePractice:
		err := s.api.UpdateTopicProgress(ctx, userID, domain.TopicProgress{
			TopicID:            summary.TopicID,
			Unlocked:           true,
			Score:              summary.Percent,
			CompletedQuestions: summary.QuestionsAttempted,
		})
		if err != nil {
			log.Printf("update progress for %s/%s: %v", userID, summary.TopicID, err)
		}
	case domain.ModeDaily:
		if err := s.api.UpdateStreak(ctx, userID); err != nil {
			log.Printf("update streak for %s: %v", userID, err)
		}
	}

	profile, err := s.api.Profile(ctx)
	if err != nil {
		log.Printf("refresh profile for %s: %v", userID, err)
		return nil
	}
	if !profile.GrandTestUnlocked && CanUnlockGrandTest(profile.Topics) {
		if err := s.api.UnlockGrandTest(ctx, userID); err != nil {
			log.Printf("unlock grand test for %s: %v", userID, err)
		} else {
			profile.GrandTestUnlocked = true
		}
	}
	return &profile
}

// permanent is implemented by API errors that retrying cannot fix.
type permanent interface {
	Permanent() bool
}

// Drain retries every queued submission once. Delivered entries and entries
// the server rejected outright are removed; the rest stay queued.
func (s *Submitter) Drain(ctx context.Context) (DrainReport, error) {
	var report DrainReport
	pending := s.store.PendingSubmissions(ctx)
	if len(pending) == 0 {
		return report, nil
	}

	var done []string
	var lastErr error
	for _, p := range pending {
		if err := ctx.Err(); err != nil {
			lastErr = err
			report.Remaining++
			continue
		}
		err := s.api.SubmitResult(ctx, p.Mode, p.Result)
		if err == nil {
			report.Delivered++
			done = append(done, p.ID)
			continue
		}
		var perm permanent
		if errors.As(err, &perm) && perm.Permanent() {
			log.Printf("dropping pending submission %s: %v", p.ID, err)
			report.Dropped++
			done = append(done, p.ID)
			continue
		}
		lastErr = err
		report.Remaining++
	}

	if err := s.store.RemovePending(ctx, done...); err != nil {
		return report, fmt.Errorf("update outbox: %w", err)
	}
	if lastErr != nil {
		return report, fmt.Errorf("drain outbox: %w", lastErr)
	}
	return report, nil
}
