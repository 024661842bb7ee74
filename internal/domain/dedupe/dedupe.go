// Package dedupe tracks measurement event IDs so a resubmitted measurement
// is not appended to a column twice.
package dedupe

import (
	"container/list"
	"context"
	"sync"
)

// DefaultMaxSize bounds the number of remembered event IDs.
const DefaultMaxSize = 50000

// Deduper records seen event IDs.
type Deduper interface {
	// SeenAndRecord reports whether id was already recorded, recording it
	// if not. The check and the insert happen under one lock.
	SeenAndRecord(ctx context.Context, id string) bool

	// Unrecord forgets id so a measurement rejected downstream (for
	// example by queue backpressure) can be resubmitted.
	Unrecord(ctx context.Context, id string)

	Size() int64
}

// window remembers the most recent IDs and evicts the oldest first.
type window struct {
	mu      sync.Mutex
	maxSize int
	order   *list.List
	seen    map[string]*list.Element
}

// New returns an in-memory Deduper. Without WithMaxSize it keeps
// DefaultMaxSize IDs; a non-positive size removes the bound.
func New(opts ...Option) Deduper {
	w := &window{maxSize: DefaultMaxSize}
	for _, opt := range opts {
		opt(w)
	}
	w.order = list.New()
	w.seen = make(map[string]*list.Element)
	return w
}

func (w *window) SeenAndRecord(_ context.Context, id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.seen[id]; ok {
		return true
	}
	if w.maxSize > 0 {
		for w.order.Len() >= w.maxSize {
			oldest := w.order.Front()
			w.order.Remove(oldest)
			delete(w.seen, oldest.Value.(string))
		}
	}
	w.seen[id] = w.order.PushBack(id)
	return false
}

func (w *window) Unrecord(_ context.Context, id string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if e, ok := w.seen[id]; ok {
		w.order.Remove(e)
		delete(w.seen, id)
	}
}

func (w *window) Size() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return int64(len(w.seen))
}
