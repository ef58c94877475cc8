package redis

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/infra/memory"
)

func TestQuestionBankCacheCachesInRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	loader := &countingLoader{
		QuestionSetLoader: memory.NewStaticQuestionBank(map[string]domain.QuestionSet{
			"geo": sampleSet(),
		}),
	}
	cache := NewQuestionBankCache(newClient(mr), loader, time.Minute, nil)

	if _, err := cache.LoadQuestionSet(context.Background(), "geo"); err != nil {
		t.Fatalf("load set: %v", err)
	}
	if loader.calls.Load() != 1 {
		t.Fatalf("expected loader called once, got %d", loader.calls.Load())
	}
	if !mr.Exists("qset:geo") {
		t.Fatalf("expected qset:geo in redis")
	}

	// Second call should hit cache, loader not incremented.
	set, err := cache.LoadQuestionSet(context.Background(), "geo")
	if err != nil {
		t.Fatalf("load set 2: %v", err)
	}
	if loader.calls.Load() != 1 {
		t.Fatalf("expected cache hit, loader calls=%d", loader.calls.Load())
	}
	if set.Questions[0].Options[1] != "Paris" {
		t.Fatalf("cached set lost content: %+v", set)
	}
}

type countingLoader struct {
	memory.QuestionSetLoader
	calls atomic.Int32
}

func (l *countingLoader) LoadQuestionSet(ctx context.Context, setID string) (domain.QuestionSet, error) {
	l.calls.Add(1)
	return l.QuestionSetLoader.LoadQuestionSet(ctx, setID)
}

func sampleSet() domain.QuestionSet {
	return domain.QuestionSet{
		ID:    "geo",
		Title: "Capitals",
		Questions: []domain.QuestionDraft{
			{Text: "Capital of France?", Options: []string{"Lyon", "Paris", "Nice", "Lille"}, CorrectOptionIndex: 1},
		},
	}
}

func newClient(mr *miniredis.Miniredis) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
}
