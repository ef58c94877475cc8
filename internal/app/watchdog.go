package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"live-quiz-service/internal/domain"
)

// Watchdog advances active sessions whose host stopped driving them.
type Watchdog struct {
	repo      *Repository
	lifecycle *Lifecycle
	timeout   time.Duration
	interval  time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

func NewWatchdog(repo *Repository, lifecycle *Lifecycle, opts Options, logger *slog.Logger) *Watchdog {
	opts = opts.withDefaults()
	return &Watchdog{
		repo:      repo,
		lifecycle: lifecycle,
		timeout:   opts.HostTimeout,
		interval:  opts.WatchdogInterval,
		now:       opts.Now,
		logger:    logger,
	}
}

// Run sweeps until ctx is done. A zero host timeout disables it.
func (w *Watchdog) Run(ctx context.Context) error {
	if w.timeout <= 0 {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := w.Sweep(ctx); err != nil && ctx.Err() == nil {
				w.logger.Warn("watchdog sweep failed", "err", err)
			}
		}
	}
}

// Sweep advances every overdue session once and reports how many moved.
// A failure on one session is logged and does not stop the others.
func (w *Watchdog) Sweep(ctx context.Context) (int, error) {
	if w.timeout <= 0 {
		return 0, nil
	}
	sessions, err := w.repo.ListSessionsByStatus(ctx, domain.StatusActive)
	if err != nil {
		return 0, err
	}
	now := w.now().UnixMilli()
	advanced := 0
	for _, s := range sessions {
		questions, err := w.repo.ListQuestions(ctx, s.ID)
		if err != nil {
			w.logger.Warn("watchdog could not load questions", "session_id", s.ID, "err", err)
			continue
		}
		if s.CurrentQuestionIndex >= 0 && s.CurrentQuestionIndex < len(questions) {
			q := questions[s.CurrentQuestionIndex]
			deadline := s.QuestionStartTime + q.TimeLimitMillis() + w.timeout.Milliseconds()
			if now <= deadline {
				continue
			}
		}
		_, err = w.lifecycle.advanceFrom(ctx, s.ID, s.CurrentQuestionIndex, "host timeout")
		switch {
		case err == nil:
			advanced++
		case errors.Is(err, domain.ErrInvalidState):
		default:
			w.logger.Warn("watchdog advance failed", "session_id", s.ID, "err", err)
		}
	}
	return advanced, nil
}
