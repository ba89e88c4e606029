package terminal

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
)

// assemble polls the channel until stop, publishing complete lines.
func (t *Terminal) assemble() {
	var (
		buf     []byte
		lastErr string
	)
	for {
		if t.stopping.Load() {
			return
		}
		chunk, err := t.ch.TryRead()
		if err != nil {
			if msg := err.Error(); msg != lastErr {
				log.Warn().Err(err).Msg("terminal.assemble read failed")
				lastErr = msg
			}
			if !t.sleep(t.cfg.PollInterval) {
				return
			}
			continue
		}
		lastErr = ""
		if len(chunk) == 0 {
			if !t.sleep(t.cfg.PollInterval) {
				return
			}
			continue
		}

		buf = append(buf, chunk...)
		for {
			i := bytes.IndexByte(buf, '\n')
			if i < 0 {
				break
			}
			line := decodeLine(buf[:i])
			buf = buf[i+1:]
			t.lines.push(line)
			t.cfg.Observer.OnLine(line)
		}
	}
}

// decodeLine replaces each invalid UTF-8 byte with U+FFFD and drops the
// carriage return of a CRLF terminator.
func decodeLine(b []byte) string {
	s := string(b)
	if !utf8.ValidString(s) {
		var sb strings.Builder
		sb.Grow(len(s) + 8)
		for _, r := range s {
			sb.WriteRune(r)
		}
		s = sb.String()
	}
	return strings.TrimSuffix(s, "\r")
}
