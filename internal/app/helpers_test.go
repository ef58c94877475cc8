package app

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"live-quiz-service/internal/docstore"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/infra/memory"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(t *testing.T, opts Options, bank QuestionBank) (*QuizService, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	opts.Now = clock.Now
	return NewQuizService(memory.NewDocStore(), bank, opts, discardLogger()), clock
}

// hookedStore wraps a store so tests can interleave writes with subscriptions
// and fail reads of chosen collections.
type hookedStore struct {
	docstore.Store

	mu              sync.Mutex
	beforeSubscribe func()
	failQuery       map[string]error
}

func (h *hookedStore) Subscribe(ctx context.Context, path string) (<-chan docstore.Change, func(), error) {
	h.mu.Lock()
	hook := h.beforeSubscribe
	h.beforeSubscribe = nil
	h.mu.Unlock()
	if hook != nil {
		hook()
	}
	return h.Store.Subscribe(ctx, path)
}

func (h *hookedStore) Query(ctx context.Context, collection string, q docstore.Query) ([]docstore.Snapshot, error) {
	h.mu.Lock()
	err := h.failQuery[collection]
	h.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return h.Store.Query(ctx, collection, q)
}

func newHookedService(t *testing.T, opts Options) (*QuizService, *fakeClock, *hookedStore) {
	t.Helper()
	clock := newFakeClock()
	opts.Now = clock.Now
	store := &hookedStore{Store: memory.NewDocStore(), failQuery: map[string]error{}}
	return NewQuizService(store, nil, opts, discardLogger()), clock, store
}

const host = "host-1"

func sampleDraft(text string, correct int) domain.QuestionDraft {
	return domain.QuestionDraft{
		Text:               text,
		Options:            []string{"A", "B", "C", "D"},
		CorrectOptionIndex: correct,
	}
}

// seedSession creates a session with n questions and opens the lobby.
func seedSession(t *testing.T, svc *QuizService, n int) domain.Session {
	t.Helper()
	ctx := context.Background()
	s, err := svc.CreateSession(ctx, host, "Capitals", "")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	for i := 0; i < n; i++ {
		if _, err := svc.AddQuestion(ctx, s.ID, host, sampleDraft("question", 1)); err != nil {
			t.Fatalf("add question %d: %v", i, err)
		}
	}
	s, err = svc.OpenLobby(ctx, s.ID, host)
	if err != nil {
		t.Fatalf("open lobby: %v", err)
	}
	return s
}

func join(t *testing.T, svc *QuizService, s domain.Session, user, name string) domain.Participant {
	t.Helper()
	p, err := svc.Join(context.Background(), s.Code, user, name)
	if err != nil {
		t.Fatalf("join %s: %v", name, err)
	}
	return p
}
