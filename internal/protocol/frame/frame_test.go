package frame

import (
	"bufio"
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/danmuck/atbench/internal/protocol"
	"github.com/danmuck/atbench/internal/testutil/testlog"
)

type recordingWriter struct {
	writes [][]byte
	failAt int
}

func (w *recordingWriter) Write(p []byte) error {
	if w.failAt > 0 && len(w.writes)+1 == w.failAt {
		return errors.New("link down")
	}
	w.writes = append(w.writes, append([]byte(nil), p...))
	return nil
}

func (w *recordingWriter) joined() []byte {
	return bytes.Join(w.writes, nil)
}

func TestFrameAppendsSentinel(t *testing.T) {
	testlog.Start(t)
	b, err := Frame("AT+CGMR")
	if err != nil {
		t.Fatalf("frame: %v", err)
	}
	if string(b) != "AT+CGMR\r\n.\r\n" {
		t.Fatalf("unexpected frame: %q", string(b))
	}
}

func TestFrameRejectsSentinelInPayload(t *testing.T) {
	testlog.Start(t)
	_, err := Frame("AT" + protocol.Sentinel + "X")
	if !errors.Is(err, ErrSentinelInPayload) {
		t.Fatalf("expected ErrSentinelInPayload, got %v", err)
	}
}

func TestWriteCommandChunksAtLimit(t *testing.T) {
	testlog.Start(t)
	payload := strings.Repeat("A", 2500)
	w := &recordingWriter{}
	if err := WriteCommand(w, payload, DefaultLimits()); err != nil {
		t.Fatalf("write command: %v", err)
	}
	if len(w.writes) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(w.writes))
	}
	for i, chunk := range w.writes {
		if len(chunk) > protocol.MaxChunk {
			t.Fatalf("chunk %d exceeds limit: %d", i, len(chunk))
		}
	}
	if got := len(w.joined()); got != 2500+len(protocol.Sentinel) {
		t.Fatalf("unexpected total length: %d", got)
	}
}

func TestWriteCommandStopsOnFirstFailure(t *testing.T) {
	testlog.Start(t)
	w := &recordingWriter{failAt: 2}
	err := WriteCommand(w, strings.Repeat("B", 3000), Limits{MaxChunk: 1000})
	if err == nil {
		t.Fatalf("expected write failure")
	}
	if len(w.writes) != 1 {
		t.Fatalf("expected one successful chunk before failure, got %d", len(w.writes))
	}
}

func TestChunksRejectsNonPositiveSize(t *testing.T) {
	testlog.Start(t)
	if _, err := Chunks([]byte("abc"), 0); !errors.Is(err, ErrChunkTooSmall) {
		t.Fatalf("expected ErrChunkTooSmall, got %v", err)
	}
}

func TestRoundTripThroughMessageScanner(t *testing.T) {
	testlog.Start(t)
	commands := []string{
		"AT+CFUN=1",
		"AT%CMNG=0,16842753,0,\"\n-----BEGIN CERTIFICATE-----\nMIIB\n-----END CERTIFICATE-----\"",
		strings.Repeat("X", 3*protocol.MaxChunk+7),
		"",
	}
	w := &recordingWriter{}
	for _, cmd := range commands {
		if err := WriteCommand(w, cmd, Limits{MaxChunk: 7}); err != nil {
			t.Fatalf("write %q: %v", cmd, err)
		}
	}

	sc := bufio.NewScanner(bytes.NewReader(w.joined()))
	sc.Buffer(make([]byte, 0, 1024), 64*1024)
	sc.Split(ScanMessages)
	got := make([]string, 0, len(commands))
	for sc.Scan() {
		got = append(got, sc.Text())
	}
	if err := sc.Err(); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(got) != len(commands) {
		t.Fatalf("expected %d messages, got %d", len(commands), len(got))
	}
	for i := range commands {
		if got[i] != commands[i] {
			t.Fatalf("message %d mismatch: got=%q want=%q", i, got[i], commands[i])
		}
	}
}
