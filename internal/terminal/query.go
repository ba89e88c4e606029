package terminal

import (
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/danmuck/atbench/internal/protocol"
)

// Terminator decides which received line closes an exchange.
type Terminator func(line string) bool

// ResponseEnvelope is one correlated exchange. Status is StatusNone when the
// deadline passed without a status line. Err holds a transport failure.
type ResponseEnvelope struct {
	Command string
	Reply   string
	Status  protocol.Status
	Elapsed time.Duration
	Err     error
}

// TimedOut reports whether no status line was observed.
func (e ResponseEnvelope) TimedOut() bool {
	return e.Err == nil && !e.Status.Observed()
}

// Query drops lines left over from earlier exchanges, sends command and
// collects lines until terminator matches or timeout elapses. A timeout is
// not an error; an empty result means nothing was observed.
func (t *Terminal) Query(command string, timeout time.Duration, terminator Terminator) ([]string, error) {
	if err := t.usable(); err != nil {
		return nil, err
	}
	t.queryMu.Lock()
	defer t.queryMu.Unlock()

	if dropped := t.lines.drain(); dropped > 0 {
		log.Debug().Int("lines", dropped).Str("command", command).Msg("terminal.Query dropped stale lines")
	}
	if err := t.Send(command); err != nil {
		return nil, err
	}

	deadline := time.Now().Add(timeout)
	var collected []string
	for {
		line, ok := t.lines.pop(deadline)
		if !ok {
			return collected, nil
		}
		collected = append(collected, line)
		if terminator != nil && terminator(line) {
			return collected, nil
		}
	}
}

// CommandQuery runs Query with the status-token terminator and splits the
// collected lines into reply and status.
func (t *Terminal) CommandQuery(command string, timeout time.Duration) (ResponseEnvelope, error) {
	started := time.Now()
	lines, err := t.Query(command, timeout, protocol.IsStatusLine)
	env := Envelope(command, lines)
	env.Elapsed = time.Since(started)
	env.Err = err

	evt := log.Debug()
	if err != nil {
		evt = log.Warn().Err(err)
	} else if !env.Status.Observed() {
		evt = log.Warn()
	}
	evt.Str("command", command).Stringer("status", env.Status).Int("lines", len(lines)).Dur("elapsed", env.Elapsed).Msg("terminal.CommandQuery")
	return env, err
}

// Envelope partitions lines into the first status token and the remaining
// non-blank lines, trimmed and joined with "\n".
func Envelope(command string, lines []string) ResponseEnvelope {
	env := ResponseEnvelope{Command: command}
	reply := make([]string, 0, len(lines))
	for _, line := range lines {
		if status, ok := protocol.ParseStatus(line); ok && !env.Status.Observed() {
			env.Status = status
			continue
		}
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			reply = append(reply, trimmed)
		}
	}
	env.Reply = strings.Join(reply, "\n")
	return env
}
