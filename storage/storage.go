// Package storage exposes the key-addressed object store used for all
// domain records. The interface mirrors a JSON blob store with get/put/list
// semantics; the production implementation sits on SQLite.
package storage

import (
	"context"
	"strings"
	"time"
)

// ObjectInfo describes one listed object.
type ObjectInfo struct {
	Key          string    `json:"key"`
	LastModified time.Time `json:"last_modified"`
}

// ListResult is one page of a prefix listing, ordered by key.
type ListResult struct {
	Objects    []ObjectInfo `json:"objects"`
	NextCursor string       `json:"next_cursor,omitempty"`
}

// Store is the object store contract. All keys are lowercase and
// slash-delimited; Get returns a NOT_FOUND coded error for missing keys.
type Store interface {
	// Get returns the raw JSON for key.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put creates or overwrites the object at key.
	Put(ctx context.Context, key string, data []byte) error

	// PutIfAbsent stores data only when no object exists at key. It returns
	// true when this call created the object, false when another writer got
	// there first.
	PutIfAbsent(ctx context.Context, key string, data []byte) (bool, error)

	// List returns up to limit keys under prefix, starting after cursor.
	List(ctx context.Context, prefix string, limit int, cursor string) (*ListResult, error)
}

// NormalizeKey lowercases a key the way every writer must before touching
// the store, so that wallet-addressed keys are case-insensitive.
func NormalizeKey(key string) string {
	return strings.ToLower(key)
}
