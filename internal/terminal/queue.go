package terminal

import (
	"sync"
	"time"
)

// lineQueue is an unbounded FIFO with a single producer (the assembler) and a
// single consumer (the active query).
type lineQueue struct {
	mu     sync.Mutex
	items  []string
	notify chan struct{}
}

func newLineQueue() *lineQueue {
	return &lineQueue{notify: make(chan struct{}, 1)}
}

func (q *lineQueue) push(line string) {
	q.mu.Lock()
	q.items = append(q.items, line)
	q.mu.Unlock()
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// pop returns the oldest line, waiting until deadline for one to arrive.
func (q *lineQueue) pop(deadline time.Time) (string, bool) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			line := q.items[0]
			q.items[0] = ""
			q.items = q.items[1:]
			q.mu.Unlock()
			return line, true
		}
		q.mu.Unlock()

		wait := time.Until(deadline)
		if wait <= 0 {
			return "", false
		}
		timer := time.NewTimer(wait)
		select {
		case <-q.notify:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// drain discards every queued line and reports how many were dropped.
func (q *lineQueue) drain() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.items)
	q.items = nil
	select {
	case <-q.notify:
	default:
	}
	return n
}
