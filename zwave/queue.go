package zwave

import (
	"container/heap"
	"sync"
)

// InitialQueueCapacity sizes a new queue's backing array before the first
// reallocation. A var so configuration can adjust it.
var InitialQueueCapacity = 128

// PriorityQueue is an unbounded, concurrent, priority-ordered queue of
// pending outbound messages. Enqueue never blocks and, while the queue is
// open, never drops a message; after Close, Enqueue discards what it is
// given. Take blocks until an item is available or the queue is closed.
//
// Ordering: SerialMessage.Less (higher priority first, FIFO within a
// priority band).
type PriorityQueue struct {
	mu      sync.Mutex
	cond    *sync.Cond
	items   msgHeap
	nextSeq uint64
	closed  bool
}

// NewPriorityQueue creates an empty queue.
func NewPriorityQueue() *PriorityQueue {
	q := &PriorityQueue{
		items: make(msgHeap, 0, InitialQueueCapacity),
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Enqueue adds msg to the queue. Non-blocking; safe from any goroutine.
func (q *PriorityQueue) Enqueue(msg *SerialMessage) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	msg.seq = q.nextSeq
	q.nextSeq++
	heap.Push(&q.items, msg)
	q.cond.Signal()
}

// Take blocks until a message is available, returning it and removing it
// from the queue. Returns (nil, false) once the queue has been closed and
// drained.
func (q *PriorityQueue) Take() (*SerialMessage, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 {
		if q.closed {
			return nil, false
		}
		q.cond.Wait()
	}
	msg := heap.Pop(&q.items).(*SerialMessage)
	return msg, true
}

// Len returns the current queue length.
func (q *PriorityQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// HasPriority reports whether any queued message matches priority p. The
// Watchdog's dead-node check uses it: a pending Low-priority sleeping-node
// ping means nothing conclusive can yet be said about completeness.
func (q *PriorityQueue) HasPriority(p Priority) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, m := range q.items {
		if m.Priority == p {
			return true
		}
	}
	return false
}

// Close marks the queue closed and wakes every blocked Take. Already-queued
// messages remain retrievable by Take (which drains before honouring
// closed) so in-flight submissions are not silently discarded by Close
// itself — callers (Controller.Close) are responsible for deciding whether
// to drain or discard.
func (q *PriorityQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}

// Clear empties the queue immediately. Used by Controller.Close.
func (q *PriorityQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = q.items[:0]
}

// msgHeap implements container/heap.Interface over *SerialMessage using
// SerialMessage.Less for ordering.
type msgHeap []*SerialMessage

func (h msgHeap) Len() int            { return len(h) }
func (h msgHeap) Less(i, j int) bool  { return h[i].Less(h[j]) }
func (h msgHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *msgHeap) Push(x any)         { *h = append(*h, x.(*SerialMessage)) }
func (h *msgHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}
