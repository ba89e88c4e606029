package transport

import "sync"

// Loopback makes every written byte readable. It stands in for a device
// that echoes without answering.
type Loopback struct {
	mu     sync.Mutex
	buf    []byte
	closed bool
}

var _ Conn = (*Loopback)(nil)

func NewLoopback() *Loopback {
	return &Loopback{}
}

func (l *Loopback) TryRead() ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, ErrClosed
	}
	out := l.buf
	l.buf = nil
	return out, nil
}

func (l *Loopback) Write(p []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	l.buf = append(l.buf, p...)
	return nil
}

func (l *Loopback) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}
