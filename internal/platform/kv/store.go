// Package kv is the persistence port of the tracker: a key-value store of
// JSON blobs with whole-value overwrite semantics. Writes are last-write-wins;
// SetMany writes several keys atomically.
package kv

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when the key has never been written.
var ErrNotFound = errors.New("kv: key not found")

// Entry is a single key/value write.
type Entry struct {
	Key   string
	Value []byte
}

// Store is implemented by every persistence backend.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	// SetMany applies all entries or none of them.
	SetMany(ctx context.Context, entries []Entry) error
}

// Get reads key, preferring a value staged on the batch bound to ctx so that
// a unit of work observes its own writes.
func Get(ctx context.Context, s Store, key string) ([]byte, error) {
	if b := BatchFromContext(ctx); b != nil {
		if v, ok := b.staged(key); ok {
			return v, nil
		}
	}
	return s.Get(ctx, key)
}

// Put stages the write on the batch bound to ctx, or writes through to s when
// no batch is bound.
func Put(ctx context.Context, s Store, key string, value []byte) error {
	if b := BatchFromContext(ctx); b != nil {
		return b.Put(key, value)
	}
	return s.Set(ctx, key, value)
}
