package app

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"

	"live-quiz-service/internal/domain"
)

const codeSpace = 1_000_000

// generateCode returns six uniformly random digits.
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(codeSpace))
	if err != nil {
		return "", fmt.Errorf("generate join code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// allocateCode draws codes until one is not held by any unfinished session.
// Completed sessions release their code.
func (l *Lifecycle) allocateCode(ctx context.Context) (string, error) {
	for attempt := 0; attempt < l.opts.CodeAttempts; attempt++ {
		code, err := l.codes()
		if err != nil {
			return "", err
		}
		sessions, err := l.repo.FindSessionsByCode(ctx, code)
		if err != nil {
			return "", err
		}
		if !anyUnfinished(sessions) {
			return code, nil
		}
		l.logger.Debug("join code collision", "attempt", attempt+1)
	}
	return "", domain.ErrCodeExhausted
}

// reclaimCode keeps s's code for a restart unless another unfinished session
// picked it up after s completed.
func (l *Lifecycle) reclaimCode(ctx context.Context, s domain.Session) (string, error) {
	sessions, err := l.repo.FindSessionsByCode(ctx, s.Code)
	if err != nil {
		return "", err
	}
	others := sessions[:0]
	for _, other := range sessions {
		if other.ID != s.ID {
			others = append(others, other)
		}
	}
	if !anyUnfinished(others) {
		return s.Code, nil
	}
	return l.allocateCode(ctx)
}

func anyUnfinished(sessions []domain.Session) bool {
	for _, s := range sessions {
		if s.Status != domain.StatusCompleted {
			return true
		}
	}
	return false
}
