package kv

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrBatchClosed is returned when a batch is used after Commit or Abort.
var ErrBatchClosed = errors.New("kv: batch already committed or aborted")

type batchKey struct{}

// Batch collects writes for several keys so they reach the store in a single
// SetMany call. Components that mutate in-memory state while staging register
// an undo with OnAbort; it runs if the batch is aborted or the commit fails.
type Batch struct {
	mu      sync.Mutex
	entries []Entry
	index   map[string]int
	undo    []func()
	closed  bool
}

// WithBatch binds a new Batch to the returned context.
func WithBatch(ctx context.Context) (context.Context, *Batch) {
	b := &Batch{index: make(map[string]int)}
	return context.WithValue(ctx, batchKey{}, b), b
}

// BatchFromContext returns the batch bound to ctx, or nil.
func BatchFromContext(ctx context.Context) *Batch {
	b, _ := ctx.Value(batchKey{}).(*Batch)
	return b
}

// Put stages a write. A later Put for the same key replaces the earlier one.
func (b *Batch) Put(key string, value []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrBatchClosed
	}
	v := append([]byte(nil), value...)
	if i, ok := b.index[key]; ok {
		b.entries[i].Value = v
		return nil
	}
	b.index[key] = len(b.entries)
	b.entries = append(b.entries, Entry{Key: key, Value: v})
	return nil
}

// OnAbort registers fn to run if the batch does not commit.
func (b *Batch) OnAbort(fn func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.undo = append(b.undo, fn)
}

// Len returns the number of staged keys.
func (b *Batch) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

func (b *Batch) staged(key string) ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	i, ok := b.index[key]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), b.entries[i].Value...), true
}

// Commit writes every staged entry with one SetMany call. On failure the
// registered undo functions run and the store error is returned.
func (b *Batch) Commit(ctx context.Context, s Store) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrBatchClosed
	}
	b.closed = true
	entries := b.entries
	b.mu.Unlock()

	if len(entries) == 0 {
		return nil
	}
	if err := s.SetMany(ctx, entries); err != nil {
		b.rollback()
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

// Abort discards staged writes and runs the undo functions in reverse order.
// Aborting a closed batch is a no-op.
func (b *Batch) Abort() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.mu.Unlock()
	b.rollback()
}

func (b *Batch) rollback() {
	b.mu.Lock()
	undo := b.undo
	b.undo = nil
	b.mu.Unlock()
	for i := len(undo) - 1; i >= 0; i-- {
		undo[i]()
	}
}
