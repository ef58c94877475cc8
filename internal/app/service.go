package app

import (
	"context"
	"log/slog"
	"time"

	"live-quiz-service/internal/docstore"
	"live-quiz-service/internal/domain"
)

// QuestionBank supplies reusable question sets for batch insert.
type QuestionBank interface {
	LoadQuestionSet(ctx context.Context, setID string) (domain.QuestionSet, error)
}

// Options tunes the quiz rules. Zero values fall back to defaults.
type Options struct {
	// AnswerGrace extends the answer window to absorb network latency.
	AnswerGrace time.Duration
	// EarlyAdvance ends a question once every participant has answered.
	EarlyAdvance bool
	// SkipVoteRatio is the share of participants needed to skip a question.
	SkipVoteRatio float64
	// HostTimeout is how long past a question deadline the watchdog waits
	// before advancing on the host's behalf. Zero disables the watchdog.
	HostTimeout      time.Duration
	WatchdogInterval time.Duration
	CodeAttempts     int
	Now              func() time.Time
}

const (
	defaultAnswerGrace      = 2 * time.Second
	defaultSkipVoteRatio    = 2.0 / 3.0
	defaultWatchdogInterval = time.Second
	defaultCodeAttempts     = 10
)

func (o Options) withDefaults() Options {
	if o.AnswerGrace < 0 {
		o.AnswerGrace = 0
	} else if o.AnswerGrace == 0 {
		o.AnswerGrace = defaultAnswerGrace
	}
	if o.SkipVoteRatio <= 0 || o.SkipVoteRatio > 1 {
		o.SkipVoteRatio = defaultSkipVoteRatio
	}
	if o.WatchdogInterval <= 0 {
		o.WatchdogInterval = defaultWatchdogInterval
	}
	if o.CodeAttempts <= 0 {
		o.CodeAttempts = defaultCodeAttempts
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// QuizService bundles the lifecycle controller, the scorer and the results
// aggregator over one document store.
type QuizService struct {
	*Lifecycle
	*Scorer
	*Aggregator
	Watchdog *Watchdog
}

func NewQuizService(docs docstore.Store, bank QuestionBank, opts Options, logger *slog.Logger) *QuizService {
	if logger == nil {
		logger = slog.Default()
	}
	opts = opts.withDefaults()
	repo := NewRepository(docs)
	lifecycle := NewLifecycle(repo, bank, opts, logger)
	return &QuizService{
		Lifecycle:  lifecycle,
		Scorer:     NewScorer(repo, lifecycle, opts, logger),
		Aggregator: NewAggregator(repo, opts),
		Watchdog:   NewWatchdog(repo, lifecycle, opts, logger),
	}
}
