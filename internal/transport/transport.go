package transport

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

var (
	ErrClosed          = errors.New("transport: channel closed")
	ErrShortWrite      = errors.New("transport: write accepted zero bytes")
	ErrUnknownKind     = errors.New("transport: unknown channel kind")
	ErrMissingEndpoint = errors.New("transport: missing endpoint")
)

// Channel is the byte link consumed by the terminal.
type Channel interface {
	// TryRead returns buffered bytes or an empty slice without blocking.
	TryRead() ([]byte, error)
	// Write blocks until p has been accepted by the provider.
	Write(p []byte) error
}

// Conn is a Channel whose lifecycle the opener owns.
type Conn interface {
	Channel
	io.Closer
}

type Kind string

const (
	KindSerial   Kind = "serial"
	KindSSH      Kind = "ssh"
	KindSimulate Kind = "simulate"
)

// Config selects and configures one channel implementation.
type Config struct {
	Kind     Kind
	Serial   SerialConfig
	SSH      SSHConfig
	Simulate SimulatorConfig
}

// Open opens the channel selected by cfg.Kind.
func Open(cfg Config) (Conn, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(string(cfg.Kind)))) {
	case KindSerial, "":
		return OpenSerial(cfg.Serial)
	case KindSSH:
		return DialSSH(cfg.SSH)
	case KindSimulate:
		return NewNRF9160(WithLatency(cfg.Simulate.Latency), WithReadSize(cfg.Simulate.ReadSize)), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, cfg.Kind)
	}
}

// writeAll loops until p is consumed, guarding against writers that report
// success without progress.
func writeAll(w io.Writer, p []byte) error {
	written := 0
	for written < len(p) {
		n, err := w.Write(p[written:])
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrShortWrite
		}
		written += n
	}
	return nil
}

// SimulatorConfig tunes the scripted device used for dry runs.
type SimulatorConfig struct {
	Latency  time.Duration
	ReadSize int
}
