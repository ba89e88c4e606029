package transport

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"
)

// SerialConfig describes a local serial port.
type SerialConfig struct {
	Port        string
	BaudRate    int
	ReadTimeout time.Duration
}

func DefaultSerialConfig() SerialConfig {
	return SerialConfig{
		BaudRate:    115200,
		ReadTimeout: time.Millisecond,
	}
}

// Serial is a Channel over go.bug.st/serial. A short read timeout turns the
// driver's blocking Read into a poll.
type Serial struct {
	port serial.Port
	buf  []byte

	writeMu sync.Mutex
	mu      sync.Mutex
	closed  bool
}

var _ Conn = (*Serial)(nil)

func OpenSerial(cfg SerialConfig) (*Serial, error) {
	name := strings.TrimSpace(cfg.Port)
	if name == "" {
		return nil, fmt.Errorf("%w: serial port name", ErrMissingEndpoint)
	}
	defaults := DefaultSerialConfig()
	if cfg.BaudRate <= 0 {
		cfg.BaudRate = defaults.BaudRate
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = defaults.ReadTimeout
	}

	p, err := serial.Open(name, &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("transport: open serial %s: %w", name, err)
	}
	if err := p.SetReadTimeout(cfg.ReadTimeout); err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("transport: set read timeout on %s: %w", name, err)
	}
	return &Serial{port: p, buf: make([]byte, 4096)}, nil
}

func (s *Serial) TryRead() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	n, err := s.port.Read(s.buf)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	out := make([]byte, n)
	copy(out, s.buf[:n])
	return out, nil
}

func (s *Serial) Write(p []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return writeAll(s.port, p)
}

// Close is safe to call more than once.
func (s *Serial) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.port.Close()
}
