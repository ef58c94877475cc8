package redis

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/infra/memory"
)

// QuestionBankCache caches question sets in Redis and falls back to a loader on cache miss.
// Sets are stored as JSON under qset:{setID} with a jittered TTL.
type QuestionBankCache struct {
	client *redis.Client
	loader memory.QuestionSetLoader
	ttl    time.Duration
	logger *slog.Logger
	sf     singleflight.Group
	rnd    *rand.Rand
	rndMu  sync.Mutex
}

func NewQuestionBankCache(client *redis.Client, loader memory.QuestionSetLoader, ttl time.Duration, logger *slog.Logger) *QuestionBankCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &QuestionBankCache{
		client: client,
		loader: loader,
		ttl:    ttl,
		logger: logger,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *QuestionBankCache) LoadQuestionSet(ctx context.Context, setID string) (domain.QuestionSet, error) {
	if set, ok := c.cached(ctx, setID); ok {
		return set, nil
	}

	result, err, _ := c.sf.Do(setID, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if set, ok := c.cached(ctx, setID); ok {
			return set, nil
		}

		set, err := c.loader.LoadQuestionSet(ctx, setID)
		if err != nil {
			return domain.QuestionSet{}, err
		}

		data, err := json.Marshal(set)
		if err != nil {
			return domain.QuestionSet{}, err
		}
		if err := c.client.Set(ctx, c.key(setID), data, c.ttlWithJitter()).Err(); err != nil {
			c.logger.Warn("caching question set failed", "set", setID, "error", err)
		}
		return set, nil
	})
	if err != nil {
		return domain.QuestionSet{}, err
	}
	return result.(domain.QuestionSet), nil
}

func (c *QuestionBankCache) cached(ctx context.Context, setID string) (domain.QuestionSet, bool) {
	data, err := c.client.Get(ctx, c.key(setID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("reading cached question set failed", "set", setID, "error", err)
		}
		return domain.QuestionSet{}, false
	}
	var set domain.QuestionSet
	if err := json.Unmarshal(data, &set); err != nil {
		return domain.QuestionSet{}, false
	}
	return set, true
}

func (c *QuestionBankCache) key(setID string) string {
	return "qset:" + setID
}

func (c *QuestionBankCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
