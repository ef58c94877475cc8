package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"live-quiz-service/internal/docstore"
)

// DocStore is an in-memory implementation of docstore.Store.
// Update callbacks run under the store lock and must not call back into the store.
type DocStore struct {
	mu          sync.RWMutex
	docs        map[string][]byte
	subscribers map[*subscriber]struct{}
	newID       func() string
}

type subscriber struct {
	root string
	ch   chan docstore.Change
}

func NewDocStore() *DocStore {
	return &DocStore{
		docs:        make(map[string][]byte),
		subscribers: make(map[*subscriber]struct{}),
		newID:       uuid.NewString,
	}
}

func (s *DocStore) Create(_ context.Context, collection string, data []byte) (string, error) {
	id := s.newID()
	path := docstore.Join(collection, id)
	if err := docstore.ValidatePath(path); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.putLocked(path, data)
	return id, nil
}

func (s *DocStore) Set(_ context.Context, path string, data []byte) error {
	if err := docstore.ValidatePath(path); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putLocked(path, data)
	return nil
}

func (s *DocStore) Get(_ context.Context, path string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.docs[path]
	if !ok {
		return nil, docstore.ErrNotFound
	}
	return clone(data), nil
}

func (s *DocStore) Update(_ context.Context, path string, fn docstore.UpdateFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.docs[path]
	if !ok {
		return docstore.ErrNotFound
	}
	next, err := fn(clone(current))
	if err != nil {
		return err
	}
	s.putLocked(path, next)
	return nil
}

func (s *DocStore) Delete(_ context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[path]; !ok {
		return nil
	}
	delete(s.docs, path)
	s.broadcastLocked(docstore.Change{Kind: docstore.ChangeDelete, Path: path})
	return nil
}

func (s *DocStore) Query(_ context.Context, collection string, q docstore.Query) ([]docstore.Snapshot, error) {
	s.mu.RLock()
	snaps := make([]docstore.Snapshot, 0)
	for path, data := range s.docs {
		col, id := docstore.Split(path)
		if col != collection {
			continue
		}
		snaps = append(snaps, docstore.Snapshot{ID: id, Path: path, Data: clone(data)})
	}
	s.mu.RUnlock()
	return docstore.Apply(snaps, q)
}

// Subscribe registers a change feed for path and its subtree. A slow consumer
// loses the oldest pending change rather than blocking writers.
func (s *DocStore) Subscribe(ctx context.Context, path string) (<-chan docstore.Change, func(), error) {
	if err := docstore.ValidatePath(path); err != nil {
		return nil, nil, err
	}
	sub := &subscriber{root: path, ch: make(chan docstore.Change, 32)}

	s.mu.Lock()
	s.subscribers[sub] = struct{}{}
	s.mu.Unlock()

	done := make(chan struct{})
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			if _, ok := s.subscribers[sub]; ok {
				delete(s.subscribers, sub)
				close(sub.ch)
			}
			s.mu.Unlock()
			close(done)
		})
	}
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-done:
		}
	}()
	return sub.ch, cancel, nil
}

func (s *DocStore) putLocked(path string, data []byte) {
	stored := clone(data)
	s.docs[path] = stored
	s.broadcastLocked(docstore.Change{Kind: docstore.ChangeSet, Path: path, Data: clone(stored)})
}

func (s *DocStore) broadcastLocked(change docstore.Change) {
	for sub := range s.subscribers {
		if !docstore.Covers(sub.root, change.Path) {
			continue
		}
		select {
		case sub.ch <- change:
		default:
			select {
			case <-sub.ch:
			default:
			}
			select {
			case sub.ch <- change:
			default:
			}
		}
	}
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}
