package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"live-quiz-service/internal/domain"
)

// QuestionBank loads question set JSONB from Postgres.
type QuestionBank struct {
	pool *pgxpool.Pool
}

func NewQuestionBank(pool *pgxpool.Pool) *QuestionBank {
	return &QuestionBank{pool: pool}
}

func (b *QuestionBank) LoadQuestionSet(ctx context.Context, setID string) (domain.QuestionSet, error) {
	var (
		title string
		raw   []byte
	)
	err := b.pool.QueryRow(ctx, `SELECT title, data FROM question_sets WHERE id=$1`, setID).Scan(&title, &raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.QuestionSet{}, domain.ErrQuestionSetNotFound
	}
	if err != nil {
		return domain.QuestionSet{}, fmt.Errorf("load question set: %w", err)
	}
	set := domain.QuestionSet{ID: setID, Title: title}
	if err := json.Unmarshal(raw, &set.Questions); err != nil {
		return domain.QuestionSet{}, fmt.Errorf("unmarshal question set: %w", err)
	}
	return set, nil
}

// SaveQuestionSet upserts a set; used by seeding and tests.
func (b *QuestionBank) SaveQuestionSet(ctx context.Context, set domain.QuestionSet) error {
	data, err := json.Marshal(set.Questions)
	if err != nil {
		return fmt.Errorf("marshal question set: %w", err)
	}
	_, err = b.pool.Exec(ctx, `
		INSERT INTO question_sets (id, title, data) VALUES ($1, $2, $3::jsonb)
		ON CONFLICT (id) DO UPDATE SET title=EXCLUDED.title, data=EXCLUDED.data, updated_at=now()`,
		set.ID, set.Title, string(data))
	if err != nil {
		return fmt.Errorf("save question set: %w", err)
	}
	return nil
}
