// Package waitlist provides the deterministic priority queue the abstractors
// draw nodes from.
package waitlist

import "container/heap"

// Less orders two elements; the smaller one leaves the queue first.
type Less[T any] func(a, b T) bool

type entry[T any] struct {
	item T
	seq  uint64
}

// Priority is a min-queue ordered by a Less function. Elements that compare
// equal leave in the order they were pushed.
type Priority[T any] struct {
	less    Less[T]
	entries []entry[T]
	seq     uint64
}

// New returns an empty queue ordered by less.
func New[T any](less Less[T]) *Priority[T] {
	return &Priority[T]{less: less}
}

// FIFO returns a queue that keeps insertion order.
func FIFO[T any]() *Priority[T] {
	return New(func(T, T) bool { return false })
}

func (q *Priority[T]) Push(item T) {
	heap.Push((*queue[T])(q), entry[T]{item: item, seq: q.seq})
	q.seq++
}

func (q *Priority[T]) PushAll(items []T) {
	for _, it := range items {
		q.Push(it)
	}
}

// Pop removes the smallest element. ok is false on an empty queue.
func (q *Priority[T]) Pop() (item T, ok bool) {
	if len(q.entries) == 0 {
		return item, false
	}
	e := heap.Pop((*queue[T])(q)).(entry[T])
	return e.item, true
}

// Peek returns the smallest element without removing it.
func (q *Priority[T]) Peek() (item T, ok bool) {
	if len(q.entries) == 0 {
		return item, false
	}
	return q.entries[0].item, true
}

func (q *Priority[T]) Len() int { return len(q.entries) }

func (q *Priority[T]) Empty() bool { return len(q.entries) == 0 }

// Clear drops every element. The insertion counter keeps running.
func (q *Priority[T]) Clear() {
	clear(q.entries)
	q.entries = q.entries[:0]
}

// queue adapts Priority to heap.Interface.
type queue[T any] Priority[T]

func (h *queue[T]) Len() int { return len(h.entries) }

func (h *queue[T]) Less(i, j int) bool {
	a, b := h.entries[i], h.entries[j]
	if h.less(a.item, b.item) {
		return true
	}
	if h.less(b.item, a.item) {
		return false
	}
	return a.seq < b.seq
}

func (h *queue[T]) Swap(i, j int) { h.entries[i], h.entries[j] = h.entries[j], h.entries[i] }

func (h *queue[T]) Push(x any) { h.entries = append(h.entries, x.(entry[T])) }

func (h *queue[T]) Pop() any {
	old := h.entries
	n := len(old)
	e := old[n-1]
	var zero entry[T]
	old[n-1] = zero
	h.entries = old[:n-1]
	return e
}
