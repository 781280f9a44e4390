// Package queue provides a priority ordering for tasks waiting on the scheduler.
package queue

import "container/heap"

// Item is anything that can be ordered by the priority queue. Higher
// Priority runs first; ties break by ascending CreatedAt (FIFO).
type Item struct {
	Priority  int
	CreatedAt int64 // unix nanoseconds
	Value     interface{}
}

// Queue is a min/max-heap ordered by (priority desc, createdAt asc).
// It is not safe for concurrent use; callers must serialize access
// (the scheduler does this with its own mutex).
type Queue struct {
	items queueHeap
}

// New returns an empty queue.
func New() *Queue {
	q := &Queue{items: make(queueHeap, 0)}
	heap.Init(&q.items)
	return q
}

// Push inserts an item in O(log n).
func (q *Queue) Push(it *Item) {
	heap.Push(&q.items, it)
}

// Pop removes and returns the highest-priority item, or nil if empty.
func (q *Queue) Pop() *Item {
	if len(q.items) == 0 {
		return nil
	}
	return heap.Pop(&q.items).(*Item)
}

// Peek returns the highest-priority item without removing it, or nil.
func (q *Queue) Peek() *Item {
	if len(q.items) == 0 {
		return nil
	}
	return q.items[0]
}

// Len returns the number of queued items.
func (q *Queue) Len() int {
	return len(q.items)
}

type queueHeap []*Item

func (h queueHeap) Len() int { return len(h) }

func (h queueHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority > h[j].Priority
	}
	return h[i].CreatedAt < h[j].CreatedAt
}

func (h queueHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *queueHeap) Push(x interface{}) {
	*h = append(*h, x.(*Item))
}

func (h *queueHeap) Pop() interface{} {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return it
}
