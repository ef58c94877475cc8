package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"live-quiz-service/internal/domain"
)

// QuestionSetLoader fetches question sets from a backing store (e.g., Postgres).
type QuestionSetLoader interface {
	LoadQuestionSet(ctx context.Context, setID string) (domain.QuestionSet, error)
}

// QuestionBankCache caches question sets with TTL to avoid repeated DB hits.
type QuestionBankCache struct {
	loader QuestionSetLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand
	rndMu  sync.Mutex

	mu    sync.RWMutex
	cache map[string]cachedSet
}

type cachedSet struct {
	set       domain.QuestionSet
	expiresAt time.Time
}

func NewQuestionBankCache(loader QuestionSetLoader, ttl time.Duration) *QuestionBankCache {
	return &QuestionBankCache{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedSet),
	}
}

func (c *QuestionBankCache) LoadQuestionSet(ctx context.Context, setID string) (domain.QuestionSet, error) {
	if set, ok := c.lookup(setID); ok {
		return set, nil
	}

	result, err, _ := c.sf.Do(setID, func() (interface{}, error) {
		if set, ok := c.lookup(setID); ok {
			return set, nil
		}

		set, err := c.loader.LoadQuestionSet(ctx, setID)
		if err != nil {
			return domain.QuestionSet{}, err
		}

		c.mu.Lock()
		c.cache[setID] = cachedSet{
			set:       set,
			expiresAt: c.clock().Add(c.ttlWithJitter()),
		}
		c.mu.Unlock()
		return set, nil
	})
	if err != nil {
		return domain.QuestionSet{}, err
	}
	return result.(domain.QuestionSet), nil
}

func (c *QuestionBankCache) lookup(setID string) (domain.QuestionSet, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.cache[setID]
	if !ok || !entry.expiresAt.After(c.clock()) {
		return domain.QuestionSet{}, false
	}
	return entry.set, true
}

func (c *QuestionBankCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}

// StaticQuestionBank is a loader backed by an in-memory map (useful for tests/demos).
type StaticQuestionBank struct {
	sets map[string]domain.QuestionSet
}

func NewStaticQuestionBank(sets map[string]domain.QuestionSet) *StaticQuestionBank {
	return &StaticQuestionBank{sets: sets}
}

func (b *StaticQuestionBank) LoadQuestionSet(_ context.Context, setID string) (domain.QuestionSet, error) {
	if set, ok := b.sets[setID]; ok {
		return set, nil
	}
	return domain.QuestionSet{}, domain.ErrQuestionSetNotFound
}
