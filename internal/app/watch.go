package app

import (
	"context"
	"errors"

	"live-quiz-service/internal/docstore"
	"live-quiz-service/internal/domain"
)

// Watch streams a fresh SessionView whenever anything under the session
// changes. Only the newest view is kept for slow readers. The channel closes
// when ctx ends, cancel is called, or the session is deleted.
func (l *Lifecycle) Watch(ctx context.Context, sessionID string) (<-chan domain.SessionView, func(), error) {
	// Subscribe before the first read so a write landing in between still
	// triggers a refresh.
	changes, cancel, err := l.repo.docs.Subscribe(ctx, sessionPath(sessionID))
	if err != nil {
		return nil, nil, err
	}
	first, err := l.View(ctx, sessionID)
	if err != nil {
		cancel()
		return nil, nil, err
	}

	out := make(chan domain.SessionView, 1)
	out <- first
	go func() {
		defer close(out)
		for change := range changes {
			if change.Kind == docstore.ChangeDelete && change.Path == sessionPath(sessionID) {
				cancel()
				return
			}
			view, err := l.View(ctx, sessionID)
			if errors.Is(err, domain.ErrSessionNotFound) {
				cancel()
				return
			}
			if err != nil {
				l.logger.Warn("session view refresh failed", "session_id", sessionID, "err", err)
				continue
			}
			publishLatest(out, view)
		}
	}()
	return out, cancel, nil
}

func publishLatest(out chan domain.SessionView, view domain.SessionView) {
	select {
	case out <- view:
		return
	default:
	}
	select {
	case <-out:
	default:
	}
	select {
	case out <- view:
	default:
	}
}
