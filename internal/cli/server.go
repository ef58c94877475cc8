package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/auth"
	"live-quiz-service/internal/config"
	"live-quiz-service/internal/docstore"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/infra/memory"
	pgbank "live-quiz-service/internal/infra/postgres"
	redisstore "live-quiz-service/internal/infra/redis"
	transport "live-quiz-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger := newLogger(cfg, os.Stdout)

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg, logger); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}

	checks := map[string]transport.HealthCheck{}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("pinging redis: %w", err)
		}
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
		logger.Info("connected to redis", "addr", cfg.Redis.Addr)
	}

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return fmt.Errorf("connecting to postgres: %w", err)
		}
		defer pool.Close()
		checks["postgres"] = pool.Ping
		logger.Info("connected to postgres")
	}

	docs, err := newDocStore(cfg, redisClient)
	if err != nil {
		return err
	}
	bank, err := newQuestionBank(cfg, pool, redisClient, logger)
	if err != nil {
		return err
	}

	authn, err := auth.NewAuthenticator(cfg.Auth.Secret, cfg.Auth.Issuer, config.TTLDuration(cfg.Auth.TokenTTL, 12*time.Hour))
	if err != nil {
		return fmt.Errorf("configuring auth: %w", err)
	}

	service := app.NewQuizService(docs, bank, quizOptions(cfg), logger)
	srv := transport.NewServer(":"+finalPort, transport.NewRouter(transport.Deps{
		Service:   service,
		Auth:      authn,
		Logger:    logger,
		PublicURL: cfg.Server.PublicURL,
		Checks:    checks,
	}), logger, config.TTLDuration(cfg.Server.ShutdownTimeout, 10*time.Second))

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting quiz service", "port", finalPort, "store", cfg.Store.Driver)
		return srv.Run(gctx)
	})

	g.Go(func() error {
		return service.Watchdog.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")
		return srv.Shutdown(context.Background())
	})

	return g.Wait()
}

func newDocStore(cfg config.Config, client *redis.Client) (docstore.Store, error) {
	switch cfg.Store.Driver {
	case "memory":
		return memory.NewDocStore(), nil
	case "redis":
		if client == nil {
			return nil, fmt.Errorf("store driver redis needs redis.addr")
		}
		return redisstore.NewDocStore(client, config.TTLDuration(cfg.Redis.TTL, 24*time.Hour)), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// newQuestionBank prefers Postgres, then a YAML file, then the built-in sample
// sets, and caches whichever it picked.
func newQuestionBank(cfg config.Config, pool *pgxpool.Pool, client *redis.Client, logger *slog.Logger) (app.QuestionBank, error) {
	var loader memory.QuestionSetLoader
	switch {
	case pool != nil:
		loader = pgbank.NewQuestionBank(pool)
	case cfg.Quiz.QuestionSets != "":
		sets, err := config.LoadQuestionSets(cfg.Quiz.QuestionSets)
		if err != nil {
			return nil, fmt.Errorf("loading question sets: %w", err)
		}
		loader = memory.NewStaticQuestionBank(sets)
	default:
		loader = memory.NewStaticQuestionBank(sampleQuestionSets())
	}

	ttl := config.TTLDuration(cfg.Quiz.BankTTL, 10*time.Minute)
	if client != nil {
		return redisstore.NewQuestionBankCache(client, loader, ttl, logger), nil
	}
	return memory.NewQuestionBankCache(loader, ttl), nil
}

func quizOptions(cfg config.Config) app.Options {
	return app.Options{
		AnswerGrace:      config.TTLDuration(cfg.Quiz.AnswerGrace, 2*time.Second),
		EarlyAdvance:     cfg.Quiz.EarlyAdvanceEnabled(),
		SkipVoteRatio:    cfg.Quiz.SkipVoteRatio,
		HostTimeout:      config.TTLDuration(cfg.Quiz.HostTimeout, 0),
		WatchdogInterval: config.TTLDuration(cfg.Quiz.WatchdogInterval, time.Second),
	}
}

// sampleQuestionSets is served when no question bank is configured.
func sampleQuestionSets() map[string]domain.QuestionSet {
	return map[string]domain.QuestionSet{
		"sample": {
			ID:    "sample",
			Title: "Warm-up",
			Questions: []domain.QuestionDraft{
				{Text: "What is 2 + 2?", Options: []string{"3", "4", "5", "22"}, CorrectOptionIndex: 1},
				{Text: "Which planet is known as the red planet?", Options: []string{"Venus", "Jupiter", "Mars", "Mercury"}, CorrectOptionIndex: 2},
				{Text: "How many continents are there?", Options: []string{"5", "6", "7", "8"}, CorrectOptionIndex: 2},
			},
		},
	}
}
