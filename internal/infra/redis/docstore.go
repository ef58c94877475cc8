package redis

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"live-quiz-service/internal/docstore"
)

// DocStore implements docstore.Store on Redis so several service instances can share sessions.
// Layout:
//
//	doc:{path}         JSON body of a document
//	col:{collection}   SET of document IDs in a collection
//	docs:{path}        PUBLISH channel carrying a JSON docstore.Change after every write
//
// Updates use WATCH/MULTI and are retried when another writer wins the race,
// so an UpdateFunc may run more than once and must only depend on its input.
type DocStore struct {
	client     *redis.Client
	ttl        time.Duration
	maxRetries int
	newID      func() string
}

func NewDocStore(client *redis.Client, ttl time.Duration) *DocStore {
	return &DocStore{
		client:     client,
		ttl:        ttl,
		maxRetries: 16,
		newID:      uuid.NewString,
	}
}

func (s *DocStore) Create(ctx context.Context, collection string, data []byte) (string, error) {
	id := s.newID()
	if err := s.Set(ctx, docstore.Join(collection, id), data); err != nil {
		return "", err
	}
	return id, nil
}

func (s *DocStore) Set(ctx context.Context, path string, data []byte) error {
	if err := docstore.ValidatePath(path); err != nil {
		return err
	}
	collection, id := docstore.Split(path)
	msg, err := encodeChange(docstore.Change{Kind: docstore.ChangeSet, Path: path, Data: data})
	if err != nil {
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, docKey(path), data, s.ttl)
		if collection != "" {
			pipe.SAdd(ctx, colKey(collection), id)
			if s.ttl > 0 {
				pipe.Expire(ctx, colKey(collection), s.ttl)
			}
		}
		pipe.Publish(ctx, channel(path), msg)
		return nil
	})
	return err
}

func (s *DocStore) Get(ctx context.Context, path string) ([]byte, error) {
	data, err := s.client.Get(ctx, docKey(path)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, docstore.ErrNotFound
	}
	return data, err
}

func (s *DocStore) Update(ctx context.Context, path string, fn docstore.UpdateFunc) error {
	key := docKey(path)
	collection, id := docstore.Split(path)
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			current, err := tx.Get(ctx, key).Bytes()
			if errors.Is(err, redis.Nil) {
				return docstore.ErrNotFound
			}
			if err != nil {
				return err
			}
			next, err := fn(current)
			if err != nil {
				return err
			}
			msg, err := encodeChange(docstore.Change{Kind: docstore.ChangeSet, Path: path, Data: next})
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, next, s.ttl)
				// keep the collection index alive as long as its newest document
				if collection != "" {
					pipe.SAdd(ctx, colKey(collection), id)
					if s.ttl > 0 {
						pipe.Expire(ctx, colKey(collection), s.ttl)
					}
				}
				pipe.Publish(ctx, channel(path), msg)
				return nil
			})
			return err
		}, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return docstore.ErrConflict
}

func (s *DocStore) Delete(ctx context.Context, path string) error {
	removed, err := s.client.Del(ctx, docKey(path)).Result()
	if err != nil || removed == 0 {
		return err
	}
	collection, id := docstore.Split(path)
	msg, err := encodeChange(docstore.Change{Kind: docstore.ChangeDelete, Path: path})
	if err != nil {
		return err
	}
	_, err = s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		if collection != "" {
			pipe.SRem(ctx, colKey(collection), id)
		}
		pipe.Publish(ctx, channel(path), msg)
		return nil
	})
	return err
}

func (s *DocStore) Query(ctx context.Context, collection string, q docstore.Query) ([]docstore.Snapshot, error) {
	ids, err := s.client.SMembers(ctx, colKey(collection)).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = docKey(docstore.Join(collection, id))
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	snaps := make([]docstore.Snapshot, 0, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			// expired or deleted between SMEMBERS and MGET
			continue
		}
		snaps = append(snaps, docstore.Snapshot{
			ID:   ids[i],
			Path: docstore.Join(collection, ids[i]),
			Data: []byte(raw),
		})
	}
	return docstore.Apply(snaps, q)
}

func (s *DocStore) Subscribe(ctx context.Context, path string) (<-chan docstore.Change, func(), error) {
	if err := docstore.ValidatePath(path); err != nil {
		return nil, nil, err
	}
	ps := s.client.PSubscribe(ctx, escapeGlob(channel(path))+"*")
	// Wait for the subscription to be confirmed so no write after Subscribe returns is missed.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, nil, err
	}

	out := make(chan docstore.Change, 32)
	done := make(chan struct{})
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			_ = ps.Close()
		})
	}

	go func() {
		defer close(out)
		msgs := ps.Channel()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				cancel()
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var change docstore.Change
				if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
					continue
				}
				if !docstore.Covers(path, change.Path) {
					continue
				}
				select {
				case out <- change:
				default:
					select {
					case <-out:
					default:
					}
					select {
					case out <- change:
					default:
					}
				}
			}
		}
	}()
	return out, cancel, nil
}

func docKey(path string) string {
	return "doc:" + path
}

func colKey(collection string) string {
	return "col:" + collection
}

func channel(path string) string {
	return "docs:" + path
}

func encodeChange(change docstore.Change) (string, error) {
	b, err := json.Marshal(change)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

var globEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

func escapeGlob(s string) string {
	return globEscaper.Replace(s)
}
