package messaging

import "sync"

// queue is an unbounded FIFO of messages. Enqueue never blocks; the
// consumer waits on signal, which coalesces wake-ups.
type queue struct {
	mu     sync.Mutex
	items  []Message
	closed bool
	signal chan struct{}
}

func newQueue() *queue {
	return &queue{
		items:  make([]Message, 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// enqueue appends m. It returns false once the queue is closed.
func (q *queue) enqueue(m Message) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.items = append(q.items, m)

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

func (q *queue) tryDequeue() (Message, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil, false
	}
	m := q.items[0]
	q.items[0] = nil
	if len(q.items) == 1 {
		q.items = q.items[:0]
	} else {
		q.items = q.items[1:]
	}
	return m, true
}

func (q *queue) wait() <-chan struct{} { return q.signal }

// isDrained reports whether the queue is closed and empty.
func (q *queue) isDrained() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed && len(q.items) == 0
}

func (q *queue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}
