package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"aptitude-ace/internal/domain"
	"golang.org/x/sync/singleflight"
)

// QuestionLoader fetches question lists from a backing source (REST API, Postgres).
type QuestionLoader interface {
	LoadQuestions(ctx context.Context, mode domain.Mode, topicID string) ([]domain.Question, error)
}

// QuestionRepository caches question lists with TTL to avoid repeated fetches.
type QuestionRepository struct {
	loader QuestionLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand
	rndMu  sync.Mutex

	mu    sync.RWMutex
	cache map[string]cachedQuestions
}

type cachedQuestions struct {
	questions []domain.Question
	expiresAt time.Time
}

func NewQuestionRepository(loader QuestionLoader, ttl time.Duration) *QuestionRepository {
	return &QuestionRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedQuestions),
	}
}

func (r *QuestionRepository) LoadQuestions(ctx context.Context, mode domain.Mode, topicID string) ([]domain.Question, error) {
	key := CacheKey(mode, topicID)
	now := r.clock()

	r.mu.RLock()
	if entry, ok := r.cache[key]; ok && entry.expiresAt.After(now) {
		r.mu.RUnlock()
		return entry.questions, nil
	}
	r.mu.RUnlock()

	result, err, _ := r.sf.Do(key, func() (interface{}, error) {
		now := r.clock()
		r.mu.RLock()
		if entry, ok := r.cache[key]; ok && entry.expiresAt.After(now) {
			r.mu.RUnlock()
			return entry.questions, nil
		}
		r.mu.RUnlock()

		questions, err := r.loader.LoadQuestions(ctx, mode, topicID)
		if err != nil {
			return nil, err
		}
		if len(questions) == 0 {
			// Do not pin an empty list; the bank may be filled later.
			return questions, nil
		}

		r.mu.Lock()
		r.cache[key] = cachedQuestions{
			questions: questions,
			expiresAt: now.Add(r.ttlWithJitter()),
		}
		r.mu.Unlock()
		return questions, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

// CacheKey identifies a question list by mode and topic.
func CacheKey(mode domain.Mode, topicID string) string {
	if mode != domain.ModePractice {
		return string(mode)
	}
	return string(mode) + ":" + topicID
}

func (r *QuestionRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
