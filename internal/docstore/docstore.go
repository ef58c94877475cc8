// Package docstore defines the document store contract the quiz core runs on:
// JSON documents addressed by slash-separated paths, grouped into collections,
// with atomic read-modify-write updates and change subscriptions.
//
// Paths alternate collection and document segments, e.g.
// "sessions/{id}/participants/{id}".
package docstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned for paths that hold no document.
	ErrNotFound = errors.New("document not found")
	// ErrConflict is returned when an optimistic update kept losing races.
	ErrConflict = errors.New("document update conflict")
)

// UpdateFunc receives the current document body and returns the replacement.
// Returning an error leaves the document unchanged and is passed back to the caller.
type UpdateFunc func(current []byte) ([]byte, error)

// Store is the collaborator every backend implements.
type Store interface {
	// Create stores data under a freshly generated ID in collection.
	Create(ctx context.Context, collection string, data []byte) (string, error)
	// Set creates or overwrites the document at path.
	Set(ctx context.Context, path string, data []byte) error
	// Get returns the document at path or ErrNotFound.
	Get(ctx context.Context, path string) ([]byte, error)
	// Update atomically applies fn to the document at path.
	Update(ctx context.Context, path string, fn UpdateFunc) error
	// Delete removes the document at path. Deleting a missing document is not an error.
	Delete(ctx context.Context, path string) error
	// Query lists the direct documents of collection that match q.
	Query(ctx context.Context, collection string, q Query) ([]Snapshot, error)
	// Subscribe streams changes to path and every document below it until cancel is called.
	Subscribe(ctx context.Context, path string) (<-chan Change, func(), error)
}

// Snapshot is a document read from a collection.
type Snapshot struct {
	ID   string
	Path string
	Data []byte
}

// ChangeKind distinguishes writes from deletes.
type ChangeKind string

const (
	ChangeSet    ChangeKind = "set"
	ChangeDelete ChangeKind = "delete"
)

// Change is delivered to subscribers after a document is written or removed.
type Change struct {
	Kind ChangeKind `json:"kind"`
	Path string     `json:"path"`
	Data []byte     `json:"data,omitempty"`
}

// Join builds a path from segments.
func Join(segments ...string) string {
	return strings.Join(segments, "/")
}

// Split returns the parent collection and ID of a document path.
func Split(path string) (collection, id string) {
	i := strings.LastIndexByte(path, '/')
	if i < 0 {
		return "", path
	}
	return path[:i], path[i+1:]
}

// Covers reports whether a change at path is visible to a subscription on root.
func Covers(root, path string) bool {
	return path == root || strings.HasPrefix(path, root+"/")
}

// ValidatePath rejects empty segments, which would make collection membership ambiguous.
func ValidatePath(path string) error {
	if path == "" {
		return fmt.Errorf("empty path")
	}
	for _, seg := range strings.Split(path, "/") {
		if seg == "" {
			return fmt.Errorf("path %q has an empty segment", path)
		}
	}
	return nil
}
