// Package attempts keeps per-topic attempt bookkeeping and the outbox of
// results that could not be delivered, on top of a pluggable key-value store.
package attempts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"aptitude-ace/internal/domain"
	"github.com/google/uuid"
)

// KV is the persistence capability the store needs. Get returns
// domain.ErrKeyNotFound for absent keys.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

const (
	keyPrefix  = "aptitude:"
	outboxKey  = keyPrefix + "outbox:pending"
	dailyKey   = keyPrefix + "daily:last-completed"
	dateLayout = "2006-01-02"
	maxResults = 50
)

// Completion is the input to RecordCompletion.
type Completion struct {
	TopicID        string
	Score          int
	TimeSpent      int
	CorrectAnswers int
	TotalQuestions int
	Performance    []domain.PerformanceRecord
	Streak         int
}

// Store is safe for concurrent use within one process. Concurrent processes
// sharing a KV race on read-modify-write and the last writer wins.
type Store struct {
	kv  KV
	now func() time.Time
	mu  sync.Mutex
}

func NewStore(kv KV) *Store {
	return &Store{kv: kv, now: time.Now}
}

// NewStoreWithClock is used by tests that need deterministic timestamps.
func NewStoreWithClock(kv KV, now func() time.Time) *Store {
	return &Store{kv: kv, now: now}
}

func statsKey(topicID string) string { return keyPrefix + "topic:" + topicID + ":stats" }
func performanceKey(topicID string) string {
	return keyPrefix + "topic:" + topicID + ":last-performance"
}
func resultsKey(mode domain.Mode) string { return keyPrefix + "results:" + string(mode) }

// LoadStats never fails: absent or unreadable data yields zero stats.
func (s *Store) LoadStats(ctx context.Context, topicID string) domain.AttemptStats {
	stats := domain.AttemptStats{TopicID: topicID}
	if !s.load(ctx, statsKey(topicID), &stats) {
		return domain.AttemptStats{TopicID: topicID}
	}
	stats.TopicID = topicID
	return stats
}

// RecordCompletion folds one completed session into the topic's stats using a
// weighted running mean for the time, and stores the last-performance snapshot.
// The returned summary is valid even when persisting fails.
func (s *Store) RecordCompletion(ctx context.Context, c Completion) (domain.AttemptSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	stats := s.LoadStats(ctx, c.TopicID)
	stats.AvgTime = WeightedAverage(stats.AvgTime, stats.Attempts, c.TimeSpent)
	stats.Attempts++
	stats.LastScore = c.Score
	stats.LastPerformance = append([]domain.PerformanceRecord(nil), c.Performance...)
	stats.LastStreak = c.Streak
	stats.UpdatedAt = now

	summary := domain.AttemptSummary{Attempts: stats.Attempts, AvgTime: stats.AvgTime}

	var errs []error
	if err := s.save(ctx, statsKey(c.TopicID), stats); err != nil {
		errs = append(errs, err)
	}
	snapshot := domain.PerformanceSnapshot{
		TopicID:        c.TopicID,
		Score:          c.Score,
		TimeSpent:      c.TimeSpent,
		CorrectAnswers: c.CorrectAnswers,
		TotalQuestions: c.TotalQuestions,
		Performance:    stats.LastPerformance,
		Streak:         c.Streak,
		RecordedAt:     now,
	}
	if err := s.save(ctx, performanceKey(c.TopicID), snapshot); err != nil {
		errs = append(errs, err)
	}
	return summary, errors.Join(errs...)
}

// WeightedAverage is round(((avg * attempts) + latest) / (attempts + 1)).
func WeightedAverage(avg, attempts, latest int) int {
	if attempts < 0 {
		attempts = 0
	}
	return int(math.Round(float64(avg*attempts+latest) / float64(attempts+1)))
}

// LastPerformance returns the most recent snapshot for a topic.
func (s *Store) LastPerformance(ctx context.Context, topicID string) (domain.PerformanceSnapshot, bool) {
	var snap domain.PerformanceSnapshot
	if !s.load(ctx, performanceKey(topicID), &snap) {
		return domain.PerformanceSnapshot{}, false
	}
	return snap, true
}

// EnqueuePending appends a result to the outbox. The store never retries by itself.
func (s *Store) EnqueuePending(ctx context.Context, mode domain.Mode, result domain.Result) (domain.PendingSubmission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending := s.pendingLocked(ctx)
	entry := domain.PendingSubmission{
		ID:       uuid.NewString(),
		Mode:     mode,
		Result:   result,
		QueuedAt: s.now(),
	}
	pending = append(pending, entry)
	if err := s.save(ctx, outboxKey, pending); err != nil {
		return entry, err
	}
	return entry, nil
}

// PendingSubmissions lists the outbox in queue order.
func (s *Store) PendingSubmissions(ctx context.Context) []domain.PendingSubmission {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pendingLocked(ctx)
}

// RemovePending drops acknowledged entries from the outbox.
func (s *Store) RemovePending(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	pending := s.pendingLocked(ctx)
	kept := pending[:0]
	for _, p := range pending {
		if _, ok := drop[p.ID]; !ok {
			kept = append(kept, p)
		}
	}
	if len(kept) == 0 {
		if err := s.kv.Delete(ctx, outboxKey); err != nil && !errors.Is(err, domain.ErrKeyNotFound) {
			return fmt.Errorf("clear outbox: %w", err)
		}
		return nil
	}
	return s.save(ctx, outboxKey, kept)
}

func (s *Store) pendingLocked(ctx context.Context) []domain.PendingSubmission {
	var pending []domain.PendingSubmission
	if !s.load(ctx, outboxKey, &pending) {
		return nil
	}
	return pending
}

// SaveLocalResult keeps the result of an unauthenticated session, newest last.
func (s *Store) SaveLocalResult(ctx context.Context, mode domain.Mode, result domain.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var results []domain.Result
	s.load(ctx, resultsKey(mode), &results)
	results = append(results, result)
	if len(results) > maxResults {
		results = results[len(results)-maxResults:]
	}
	return s.save(ctx, resultsKey(mode), results)
}

// LocalResults returns results stored for unauthenticated sessions of a mode.
func (s *Store) LocalResults(ctx context.Context, mode domain.Mode) []domain.Result {
	var results []domain.Result
	s.load(ctx, resultsKey(mode), &results)
	return results
}

// MarkDailyChallenge records the calendar date of a completed daily challenge.
func (s *Store) MarkDailyChallenge(ctx context.Context, day time.Time) error {
	if err := s.kv.Set(ctx, dailyKey, []byte(day.Format(dateLayout))); err != nil {
		return fmt.Errorf("save daily marker: %w", err)
	}
	return nil
}

// DailyChallengeDone reports whether the challenge for day's date was completed.
func (s *Store) DailyChallengeDone(ctx context.Context, day time.Time) bool {
	raw, err := s.kv.Get(ctx, dailyKey)
	if err != nil {
		return false
	}
	return string(raw) == day.Format(dateLayout)
}

// LoadJSON and SaveJSON expose the store's keyspace to sibling packages
// (for example the auth token record).
func (s *Store) LoadJSON(ctx context.Context, name string, v any) bool {
	return s.load(ctx, keyPrefix+name, v)
}

func (s *Store) SaveJSON(ctx context.Context, name string, v any) error {
	return s.save(ctx, keyPrefix+name, v)
}

func (s *Store) DeleteKey(ctx context.Context, name string) error {
	err := s.kv.Delete(ctx, keyPrefix+name)
	if err != nil && !errors.Is(err, domain.ErrKeyNotFound) {
		return err
	}
	return nil
}

func (s *Store) load(ctx context.Context, key string, v any) bool {
	raw, err := s.kv.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, domain.ErrKeyNotFound) {
			log.Printf("attempts: read %s: %v", key, err)
		}
		return false
	}
	if err := json.Unmarshal(raw, v); err != nil {
		log.Printf("attempts: ignoring malformed %s: %v", key, err)
		return false
	}
	return true
}

func (s *Store) save(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := s.kv.Set(ctx, key, data); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}
