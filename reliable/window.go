package reliable

import (
	"container/list"
	"sync"
)

// DefaultWindowSize is the number of packets or sequence numbers a window holds.
const DefaultWindowSize = 20

// Window is a bounded, insertion-ordered set. Adding to a full window
// evicts the oldest entry. It is safe for concurrent use.
type Window[K comparable] struct {
	mu       sync.Mutex
	capacity int
	order    *list.List
	index    map[K]*list.Element
}

// NewWindow creates a window holding at most capacity entries. A
// non-positive capacity selects DefaultWindowSize.
func NewWindow[K comparable](capacity int) *Window[K] {
	if capacity <= 0 {
		capacity = DefaultWindowSize
	}
	return &Window[K]{
		capacity: capacity,
		order:    list.New(),
		index:    make(map[K]*list.Element, capacity),
	}
}

// Add inserts key and reports whether it was new. A key already present is
// left in place and does not refresh its position.
func (w *Window[K]) Add(key K) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.index[key]; ok {
		return false
	}
	if w.order.Len() >= w.capacity {
		oldest := w.order.Front()
		w.order.Remove(oldest)
		delete(w.index, oldest.Value.(K))
	}
	w.index[key] = w.order.PushBack(key)
	return true
}

// Contains reports whether key is in the window.
func (w *Window[K]) Contains(key K) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.index[key]
	return ok
}

// Len returns the number of entries.
func (w *Window[K]) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.order.Len()
}

// Capacity returns the maximum number of entries.
func (w *Window[K]) Capacity() int {
	return w.capacity
}

// Keys returns the entries from oldest to newest.
func (w *Window[K]) Keys() []K {
	w.mu.Lock()
	defer w.mu.Unlock()

	keys := make([]K, 0, w.order.Len())
	for e := w.order.Front(); e != nil; e = e.Next() {
		keys = append(keys, e.Value.(K))
	}
	return keys
}
