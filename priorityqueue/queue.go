/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package priorityqueue provides a generic array-backed binary max-heap
// ordered by a caller-supplied comparison function.
package priorityqueue

// CompareFunc defines a total order over queue elements.
// It returns a positive number if a must be served before b,
// a negative number if b must be served before a, and 0 if they are equal.
type CompareFunc[T any] func(a, b T) int

const rootIndex = 0

// Queue is a binary max-heap. The element that compares greatest is always at the root.
// Queue is not safe for concurrent use, the owner must serialize access.
type Queue[T any] struct {
	heap    []T
	compare CompareFunc[T]
}

// New creates a new empty Queue that uses compare for ordering.
func New[T any](compare CompareFunc[T]) *Queue[T] {
	return &Queue[T]{compare: compare}
}

// Len returns the number of elements in the queue.
func (q *Queue[T]) Len() int {
	return len(q.heap)
}

// IsEmpty reports whether the queue has no elements.
func (q *Queue[T]) IsEmpty() bool {
	return len(q.heap) == 0
}

// Push inserts a new element.
func (q *Queue[T]) Push(v T) {
	q.heap = append(q.heap, v)
	q.siftUp(len(q.heap) - 1)
}

// Pop removes and returns the greatest element.
// The second return value is false if the queue is empty.
func (q *Queue[T]) Pop() (T, bool) {
	var zero T
	if len(q.heap) == 0 {
		return zero, false
	}
	v := q.heap[rootIndex]
	lastIndex := len(q.heap) - 1
	if lastIndex > rootIndex {
		q.swap(rootIndex, lastIndex)
	}
	q.heap[lastIndex] = zero // no loitering
	q.heap = q.heap[:lastIndex]
	q.siftDown(rootIndex)
	return v, true
}

// Peek returns the greatest element without removing it.
// The second return value is false if the queue is empty.
func (q *Queue[T]) Peek() (T, bool) {
	if len(q.heap) == 0 {
		var zero T
		return zero, false
	}
	return q.heap[rootIndex], true
}

// ToSlice returns a copy of the underlying heap array.
// Elements are in heap order, not in sorted order.
func (q *Queue[T]) ToSlice() []T {
	return append(make([]T, 0, len(q.heap)), q.heap...)
}

// Clear removes all elements and returns them in heap order.
func (q *Queue[T]) Clear() []T {
	items := q.heap
	q.heap = nil
	return items
}

func (q *Queue[T]) siftUp(i int) {
	for i > rootIndex {
		parent := parentIndex(i)
		if !q.isHigher(i, parent) {
			return
		}
		q.swap(i, parent)
		i = parent
	}
}

func (q *Queue[T]) siftDown(i int) {
	n := len(q.heap)
	for {
		left, right := leftChildIndex(i), rightChildIndex(i)
		leftHigher := left < n && q.isHigher(left, i)
		rightHigher := right < n && q.isHigher(right, i)
		if !leftHigher && !rightHigher {
			return
		}

		// Right child wins only if it is strictly higher than the left one.
		// This affects which of equal elements surfaces first.
		higher := left
		if left >= n || (right < n && q.isHigher(right, left)) {
			higher = right
		}

		q.swap(i, higher)
		i = higher
	}
}

func (q *Queue[T]) isHigher(i, j int) bool {
	return q.compare(q.heap[i], q.heap[j]) > 0
}

func (q *Queue[T]) swap(i, j int) {
	q.heap[i], q.heap[j] = q.heap[j], q.heap[i]
}

func parentIndex(i int) int { return (i - 1) / 2 }

func leftChildIndex(i int) int { return 2*i + 1 }

func rightChildIndex(i int) int { return 2*i + 2 }
