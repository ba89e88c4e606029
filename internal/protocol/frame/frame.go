package frame

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/danmuck/atbench/internal/protocol"
)

var (
	ErrSentinelInPayload = errors.New("frame: payload contains sentinel")
	ErrChunkTooSmall     = errors.New("frame: chunk size must be positive")
)

// ChunkWriter accepts one bounded write and blocks until it is taken.
type ChunkWriter interface {
	Write(p []byte) error
}

// Limits constrains how framed bytes are handed to the transport.
type Limits struct {
	MaxChunk int
}

func DefaultLimits() Limits {
	return Limits{MaxChunk: protocol.MaxChunk}
}

// WithDefaults fills zero fields from DefaultLimits.
func (l Limits) WithDefaults() Limits {
	if l.MaxChunk <= 0 {
		l.MaxChunk = protocol.MaxChunk
	}
	return l
}

// Frame returns payload followed by the sentinel.
func Frame(payload string) ([]byte, error) {
	if strings.Contains(payload, protocol.Sentinel) {
		return nil, ErrSentinelInPayload
	}
	out := make([]byte, 0, len(payload)+len(protocol.Sentinel))
	out = append(out, payload...)
	out = append(out, protocol.Sentinel...)
	return out, nil
}

// Chunks splits b into consecutive slices of at most max bytes. The slices
// alias b.
func Chunks(b []byte, max int) ([][]byte, error) {
	if max <= 0 {
		return nil, ErrChunkTooSmall
	}
	out := make([][]byte, 0, len(b)/max+1)
	for start := 0; start < len(b); start += max {
		end := start + max
		if end > len(b) {
			end = len(b)
		}
		out = append(out, b[start:end])
	}
	return out, nil
}

// WriteCommand frames payload and writes it in chunks no larger than
// limits.MaxChunk. The first failing write aborts the command.
func WriteCommand(w ChunkWriter, payload string, limits Limits) error {
	limits = limits.WithDefaults()
	b, err := Frame(payload)
	if err != nil {
		return err
	}
	chunks, err := Chunks(b, limits.MaxChunk)
	if err != nil {
		return err
	}
	for i, chunk := range chunks {
		if err := w.Write(chunk); err != nil {
			return fmt.Errorf("frame: write chunk %d/%d: %w", i+1, len(chunks), err)
		}
	}
	return nil
}

// ScanMessages is a bufio.SplitFunc for the device side of the link: it
// yields each payload with the sentinel removed.
func ScanMessages(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.Index(data, []byte(protocol.Sentinel)); i >= 0 {
		return i + len(protocol.Sentinel), data[:i], nil
	}
	// An unterminated tail is not a message.
	return 0, nil, nil
}
