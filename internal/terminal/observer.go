package terminal

import (
	"fmt"
	"io"

	"github.com/rs/zerolog"
)

// LineObserver receives every assembled line after it has been queued.
// OnLine runs on the assembler goroutine and must not block.
type LineObserver interface {
	OnLine(line string)
}

type NopObserver struct{}

func (NopObserver) OnLine(string) {}

type ObserverFunc func(line string)

func (f ObserverFunc) OnLine(line string) { f(line) }

// LogObserver logs device lines at debug level.
func LogObserver(logger zerolog.Logger) LineObserver {
	return ObserverFunc(func(line string) {
		logger.Debug().Str("line", line).Msg("terminal.rx")
	})
}

// WriterObserver prints device lines to w, one per line.
func WriterObserver(w io.Writer) LineObserver {
	return ObserverFunc(func(line string) {
		fmt.Fprintln(w, line)
	})
}

// Observers fans a line out in order.
type Observers []LineObserver

func (o Observers) OnLine(line string) {
	for _, obs := range o {
		if obs != nil {
			obs.OnLine(line)
		}
	}
}
