package terminal

import (
	"bufio"
	"errors"
	"io"
	"strings"

	"github.com/rs/zerolog/log"
)

// QuitCommand typed on the console requests stop.
const QuitCommand = ":quit"

// AttachConsole mirrors lines read from r into Send on a second background
// task. QuitCommand or EOF requests stop without waiting for the task itself.
func (t *Terminal) AttachConsole(r io.Reader) error {
	if err := t.usable(); err != nil {
		return err
	}
	t.spawn("console", func() {
		defer t.requestStop()
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			if t.stopping.Load() {
				return
			}
			line := scanner.Text()
			if strings.TrimSpace(line) == QuitCommand {
				log.Info().Msg("terminal.console quit")
				return
			}
			if err := t.Send(line); err != nil {
				if errors.Is(err, ErrStopped) {
					return
				}
				log.Error().Err(err).Str("command", line).Msg("terminal.console send failed")
			}
		}
		if err := scanner.Err(); err != nil {
			log.Warn().Err(err).Msg("terminal.console read failed")
		}
	})
	return nil
}
