package terminal

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/danmuck/atbench/internal/protocol/frame"
	"github.com/danmuck/atbench/internal/transport"
)

var (
	ErrNotStarted     = errors.New("terminal: not started")
	ErrAlreadyStarted = errors.New("terminal: already started")
	ErrStopped        = errors.New("terminal: stopped")
	ErrStopTimeout    = errors.New("terminal: task did not exit before stop timeout")
)

// maxPurgeReads bounds the pre-start purge against a channel that never
// goes idle.
const maxPurgeReads = 256

type task struct {
	name string
	done chan struct{}
}

// Terminal drives one device channel.
type Terminal struct {
	ch    transport.Channel
	cfg   Config
	lines *lineQueue

	started  atomic.Bool
	stopping atomic.Bool

	requestOnce sync.Once
	waitOnce    sync.Once
	stopCh      chan struct{}

	tasksMu sync.Mutex
	tasks   []task

	writeMu sync.Mutex
	queryMu sync.Mutex
}

func New(ch transport.Channel, cfg Config) *Terminal {
	return &Terminal{
		ch:     ch,
		cfg:    cfg.WithDefaults(),
		lines:  newLineQueue(),
		stopCh: make(chan struct{}),
	}
}

// Start purges bytes already waiting on the channel and launches the line
// assembler.
func (t *Terminal) Start() error {
	if t.stopping.Load() {
		return ErrStopped
	}
	if !t.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	purged, err := t.purge()
	if err != nil {
		t.started.Store(false)
		return fmt.Errorf("terminal: purge channel: %w", err)
	}
	log.Debug().Int("bytes", purged).Msg("terminal.Terminal.Start purged")
	t.spawn("assembler", t.assemble)
	return nil
}

func (t *Terminal) purge() (int, error) {
	total := 0
	for i := 0; i < maxPurgeReads; i++ {
		chunk, err := t.ch.TryRead()
		if err != nil {
			return total, err
		}
		if len(chunk) == 0 {
			return total, nil
		}
		total += len(chunk)
	}
	return total, nil
}

// Send frames line and writes it in bounded chunks. Write failures are
// returned as-is and never retried.
func (t *Terminal) Send(line string) error {
	if err := t.usable(); err != nil {
		return err
	}
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if err := frame.WriteCommand(t.ch, line, t.cfg.Limits); err != nil {
		return fmt.Errorf("terminal: send: %w", err)
	}
	return nil
}

// Done is closed once stop has been requested.
func (t *Terminal) Done() <-chan struct{} {
	return t.stopCh
}

// Stopped reports whether stop has been requested.
func (t *Terminal) Stopped() bool {
	return t.stopping.Load()
}

// Stop requests shutdown and waits for every background task, each bounded
// by Config.StopTimeout. Repeated calls return nil without waiting again.
func (t *Terminal) Stop() error {
	t.requestStop()
	var err error
	t.waitOnce.Do(func() {
		err = t.waitTasks()
	})
	return err
}

func (t *Terminal) requestStop() {
	t.requestOnce.Do(func() {
		t.stopping.Store(true)
		close(t.stopCh)
	})
}

func (t *Terminal) waitTasks() error {
	t.tasksMu.Lock()
	tasks := append([]task(nil), t.tasks...)
	t.tasksMu.Unlock()

	var errs []error
	for _, tk := range tasks {
		timer := time.NewTimer(t.cfg.StopTimeout)
		select {
		case <-tk.done:
			timer.Stop()
		case <-timer.C:
			log.Warn().Str("task", tk.name).Dur("timeout", t.cfg.StopTimeout).Msg("terminal.Terminal.Stop task still running")
			errs = append(errs, fmt.Errorf("%w: %s", ErrStopTimeout, tk.name))
		}
	}
	return errors.Join(errs...)
}

func (t *Terminal) spawn(name string, fn func()) {
	done := make(chan struct{})
	t.tasksMu.Lock()
	t.tasks = append(t.tasks, task{name: name, done: done})
	t.tasksMu.Unlock()
	go func() {
		defer close(done)
		fn()
	}()
}

func (t *Terminal) usable() error {
	if t.stopping.Load() {
		return ErrStopped
	}
	if !t.started.Load() {
		return ErrNotStarted
	}
	return nil
}

// sleep waits d or until stop is requested. It reports false on stop.
func (t *Terminal) sleep(d time.Duration) bool {
	if d <= 0 {
		return !t.stopping.Load()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-t.stopCh:
		return false
	}
}
