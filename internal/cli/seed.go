package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/spf13/cobra"

	"live-quiz-service/internal/config"
	pgbank "live-quiz-service/internal/infra/postgres"
)

// NewSeedCmd loads question sets from a YAML file into Postgres.
func NewSeedCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "seed <question-sets.yaml>",
		Short: "Upsert question sets into the question bank",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cmd.Context(), *configPath, args[0])
		},
	}
}

func runSeed(ctx context.Context, configPath, setsPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := newLogger(cfg, os.Stdout)
	if err := runMigrationsWithConfig(ctx, cfg, logger); err != nil {
		return err
	}

	sets, err := config.LoadQuestionSets(setsPath)
	if err != nil {
		return err
	}
	pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
	if err != nil {
		return fmt.Errorf("connecting to postgres: %w", err)
	}
	defer pool.Close()

	bank := pgbank.NewQuestionBank(pool)
	for id, set := range sets {
		if err := bank.SaveQuestionSet(ctx, set); err != nil {
			return fmt.Errorf("save question set %s: %w", id, err)
		}
	}
	logger.Info("question sets seeded", "count", len(sets))
	return nil
}
