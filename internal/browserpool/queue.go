package browserpool

import (
	"container/list"
	"sync"
	"time"
)

// waiter is one pending Acquire call. result is buffered(1) and
// receives at most one value: the handed-off instance from Release,
// or an error from drain on shutdown.
type waiter struct {
	sessionID string
	deadline  time.Time
	result    chan waitResult
}

type waitResult struct {
	inst *instance
	err  error
}

// waitQueue is the FIFO of callers blocked on Acquire when no engine
// is immediately available. Handoff always serves the oldest waiter
// first, matching the teacher's pool's "first blocked caller wins"
// retry-loop behavior but without polling: Acquire blocks on its own
// channel instead of retrying on a ticker.
type waitQueue struct {
	mu sync.Mutex
	l  *list.List // of *waiter
}

func newWaitQueue() *waitQueue {
	return &waitQueue{l: list.New()}
}

func (q *waitQueue) push(w *waiter) *list.Element {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.l.PushBack(w)
}

func (q *waitQueue) remove(e *list.Element) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.l.Remove(e)
}

// pop returns the oldest waiter still waiting for a result, skipping
// entries left behind by callers who already timed out.
func (q *waitQueue) pop() *waiter {
	q.mu.Lock()
	defer q.mu.Unlock()
	for {
		front := q.l.Front()
		if front == nil {
			return nil
		}
		q.l.Remove(front)
		w := front.Value.(*waiter)
		if time.Now().After(w.deadline) {
			// deadline elapsed; the caller is timing out
			continue
		}
		select {
		case <-w.result:
			// already delivered or abandoned; try the next one
			continue
		default:
			return w
		}
	}
}

func (q *waitQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.l.Len()
}

func (q *waitQueue) drain(err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for e := q.l.Front(); e != nil; e = e.Next() {
		w := e.Value.(*waiter)
		select {
		case w.result <- waitResult{err: err}:
		default:
		}
	}
	q.l.Init()
}
