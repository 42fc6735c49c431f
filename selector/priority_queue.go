package selector

import "container/heap"

// item is one entry in the rarest-first priority queue: a piece index
// ranked first by file priority (descending) and then by availability
// (ascending -- rarer pieces first).
//
// The teacher's internal utils/heap package (a thin wrapper over a priority
// value) was not retrieved with a source file in the example pack, only its
// tests; container/heap is the standard replacement for an internal,
// non-ecosystem helper like that one.
type item struct {
	piece        int
	priority     Priority
	availability int
}

type itemHeap []item

func (h itemHeap) Len() int { return len(h) }

func (h itemHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}
	return h[i].availability < h[j].availability
}

func (h itemHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *itemHeap) Push(x interface{}) {
	*h = append(*h, x.(item))
}

func (h *itemHeap) Pop() interface{} {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}

type priorityQueue struct {
	h *itemHeap
}

func newPriorityQueue() *priorityQueue {
	h := &itemHeap{}
	heap.Init(h)
	return &priorityQueue{h: h}
}

func (q *priorityQueue) push(it item) {
	heap.Push(q.h, it)
}

func (q *priorityQueue) pop() item {
	return heap.Pop(q.h).(item)
}
