package station

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/danmuck/atbench/internal/cmng"
	"github.com/danmuck/atbench/internal/config"
	"github.com/danmuck/atbench/internal/observability"
	"github.com/danmuck/atbench/internal/parsers"
	"github.com/danmuck/atbench/internal/report"
	"github.com/danmuck/atbench/internal/terminal"
	"github.com/danmuck/atbench/internal/tools"
	"github.com/danmuck/atbench/internal/transport"
)

var (
	ErrNotOpen     = errors.New("station: not open")
	ErrAlreadyOpen = errors.New("station: already open")
	ErrNoSteps     = errors.New("station: no steps selected")
)

// Steps selects the workflow steps of one Run. Steps execute in field order.
type Steps struct {
	TestAT     bool
	WriteCerts bool
	Reset      bool
}

func (s Steps) selected() bool {
	return s.TestAT || s.WriteCerts || s.Reset
}

type Option func(*Station)

// WithConn runs the station over conn instead of opening cfg.Transport.
// The station closes conn on Close.
func WithConn(conn transport.Conn) Option {
	return func(s *Station) { s.conn = conn }
}

// WithOutput sets where text reports are written. Defaults to stdout.
func WithOutput(w io.Writer) Option {
	return func(s *Station) { s.out = w }
}

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Station) { s.log = logger }
}

// WithRunner replaces the host command runner used by the reset hook.
func WithRunner(r tools.CommandRunner) Option {
	return func(s *Station) { s.runner = r }
}

func WithClock(now func() time.Time) Option {
	return func(s *Station) { s.now = now }
}

// Station owns one device channel and the terminal running over it.
type Station struct {
	cfg      config.Config
	log      zerolog.Logger
	out      io.Writer
	runner   tools.CommandRunner
	now      func() time.Time
	registry *parsers.Registry
	renderer report.Renderer

	conn transport.Conn
	term *terminal.Terminal

	mu   sync.RWMutex
	last *report.Run
}

func New(cfg config.Config, opts ...Option) (*Station, error) {
	reg, err := parsers.NewDefaultRegistry(cfg.Parsers)
	if err != nil {
		return nil, fmt.Errorf("station: register parsers: %w", err)
	}
	s := &Station{
		cfg:      cfg,
		log:      log.Logger,
		out:      os.Stdout,
		runner:   tools.ExecRunner{},
		now:      time.Now,
		registry: reg,
		renderer: report.NewRenderer(cfg.Report.Highlight),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Station) Registry() *parsers.Registry {
	return s.registry
}

// Terminal returns the running terminal, or nil before Open.
func (s *Station) Terminal() *terminal.Terminal {
	return s.term
}

// Open opens the device channel and starts the terminal. Device lines are
// logged at debug level in addition to the configured observer.
func (s *Station) Open() error {
	if s.term != nil {
		return ErrAlreadyOpen
	}
	if s.conn == nil {
		conn, err := transport.Open(s.cfg.Transport)
		if err != nil {
			return fmt.Errorf("station: open %s channel: %w", s.cfg.Transport.Kind, err)
		}
		s.conn = conn
	}
	tcfg := s.cfg.Terminal
	tcfg.Observer = terminal.Observers{tcfg.Observer, terminal.LogObserver(s.log)}
	term := terminal.New(s.conn, tcfg)
	if err := term.Start(); err != nil {
		_ = s.conn.Close()
		s.conn = nil
		return fmt.Errorf("station: start terminal: %w", err)
	}
	s.term = term
	s.log.Info().Str("transport", string(s.cfg.Transport.Kind)).Msg("station opened")
	return nil
}

// Close stops the terminal and closes the channel.
func (s *Station) Close() error {
	var err error
	if s.term != nil {
		err = errors.Join(err, s.term.Stop())
	}
	if s.conn != nil {
		err = errors.Join(err, s.conn.Close())
		s.conn = nil
	}
	return err
}

// Run executes the selected steps, renders the combined report, and appends
// it to the configured outputs. The reset hook runs last even when a step
// failed. A failing result is not an error; check report.AllPassed.
func (s *Station) Run(ctx context.Context, steps Steps) (report.Run, error) {
	if !steps.selected() {
		return report.Run{}, ErrNoSteps
	}
	started := s.now()
	var (
		results []report.TestResult
		runErr  error
	)
	if steps.TestAT {
		res, err := s.TestAT(ctx)
		results = append(results, res...)
		runErr = errors.Join(runErr, err)
	}
	if steps.WriteCerts && runErr == nil {
		res, err := s.WriteCerts(ctx)
		results = append(results, res...)
		runErr = errors.Join(runErr, err)
	}

	// Partial results are still written and the board still reset after an
	// interrupt.
	detached := context.WithoutCancel(ctx)
	run := report.NewRun(started, results)
	if len(results) > 0 {
		s.mu.Lock()
		s.last = &run
		s.mu.Unlock()
		runErr = errors.Join(runErr, s.emit(detached, run))
	}
	if steps.Reset {
		runErr = errors.Join(runErr, s.Reset(detached))
	}
	return run, runErr
}

// TestAT sends the warm-up command, waits, and runs the configured batch.
// Cancelling ctx stops the terminal; the results gathered so far are
// returned with ctx's error.
func (s *Station) TestAT(ctx context.Context) ([]report.TestResult, error) {
	if s.term == nil {
		return nil, ErrNotOpen
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	defer s.stopOnCancel(ctx)()

	b := s.cfg.Batch
	s.log.Info().Int("commands", len(b.Commands)).Msg("station AT test")
	if b.WarmupCommand != "" {
		if err := s.settle(ctx, b.WarmupCommand, b.Timeout, b.WarmupDelay); err != nil {
			return nil, fmt.Errorf("station: warm-up %s: %w", b.WarmupCommand, err)
		}
	}
	batch := s.term.RunBatch(b.Commands, b.Timeout, b.Dwell, s.progress("test-at"))
	results := report.NewBuilder(s.registry, s.cfg.Limits).Build(batch)
	s.record(batch, results)
	return results, ctx.Err()
}

// WriteCerts turns the modem off, writes each configured PEM with %CMNG and
// verifies the stored digests.
func (s *Station) WriteCerts(ctx context.Context) ([]report.TestResult, error) {
	if s.term == nil {
		return nil, ErrNotOpen
	}
	c := s.cfg.Certs
	bundle, err := cmng.LoadBundle(c.RootCA, c.ClientCert, c.ClientKey)
	if err != nil {
		return nil, fmt.Errorf("station: load credentials: %w", err)
	}
	plan, err := cmng.Prepare(s.registry, c.SecTag, bundle)
	if err != nil {
		return nil, fmt.Errorf("station: prepare credentials: %w", err)
	}
	s.log.Info().Int64("sec_tag", c.SecTag).Int("commands", len(plan.Commands)).Msg("station certificate write")

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	defer s.stopOnCancel(ctx)()

	if c.ModemOff != "" {
		if err := s.settle(ctx, c.ModemOff, c.Timeout, c.ModemOffWait); err != nil {
			return nil, fmt.Errorf("station: modem off: %w", err)
		}
	}
	batch := s.term.RunBatch(plan.Commands, c.Timeout, c.Dwell, s.progress("write-certs"))
	results := report.NewBuilder(s.registry, s.cfg.Limits.Merge(plan.Limits)).Build(batch)
	s.record(batch, results)
	return results, ctx.Err()
}

// Reset runs the configured reset hook. Without one it is a no-op.
func (s *Station) Reset(ctx context.Context) error {
	if len(s.cfg.Hooks.Reset) == 0 {
		s.log.Debug().Msg("station reset hook not configured")
		return nil
	}
	hook := tools.Hook{
		Name:    "reset",
		Argv:    s.cfg.Hooks.Reset,
		Timeout: 30 * time.Second,
		Runner:  s.runner,
	}
	return hook.Run(ctx, s.log)
}

// Last returns the most recent run with results.
func (s *Station) Last() (report.Run, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return report.Run{}, false
	}
	return *s.last, true
}

func (s *Station) progress(step string) terminal.ProgressFunc {
	return func(index, total int, command string) {
		s.log.Info().
			Str("step", step).
			Int("index", index+1).
			Int("total", total).
			Str("command", s.registry.Name(command)).
			Msg("station progress")
	}
}

func (s *Station) record(batch terminal.BatchResult, results []report.TestResult) {
	for _, res := range results {
		env := batch.Responses[res.Command]
		observability.RecordQuery(res.Name, env.Status.String(), env.Elapsed)
		observability.RecordResult(res.Name, res.Passed)
	}
}

// emit writes the text report and the durable logs for run.
func (s *Station) emit(ctx context.Context, run report.Run) error {
	if err := s.renderer.Write(s.out, run.Results); err != nil {
		return fmt.Errorf("station: write report: %w", err)
	}
	rc := s.cfg.Report
	var err error
	if rc.JSONPath != "" {
		err = errors.Join(err, report.WriteJSONFile(rc.JSONPath, run.Results))
	}
	if rc.CSVPath != "" {
		err = errors.Join(err, report.AppendCSV(rc.CSVPath, run.ID, run.Started, run.Results))
	}
	if rc.SQLitePath != "" {
		err = errors.Join(err, appendSQLite(ctx, rc.SQLitePath, run))
	}
	if err != nil {
		s.log.Error().Err(err).Str("run_id", run.ID).Msg("station report outputs failed")
		return err
	}
	s.log.Info().Str("run_id", run.ID).Int("results", len(run.Results)).Msg("station report written")
	return nil
}

func appendSQLite(ctx context.Context, path string, run report.Run) error {
	db, err := report.OpenSQLite(ctx, path)
	if err != nil {
		return err
	}
	return errors.Join(db.Append(ctx, run.ID, run.Started, run.Results), db.Close())
}

// settle runs a preparatory command outside the batch, consuming its reply,
// then waits delay for the modem to settle.
func (s *Station) settle(ctx context.Context, command string, timeout, delay time.Duration) error {
	env, err := s.term.CommandQuery(command, timeout)
	if err != nil {
		return err
	}
	if !env.Status.OK() {
		s.log.Warn().Str("command", command).Stringer("status", env.Status).Msg("station settle command not acknowledged")
	}
	return s.wait(ctx, delay)
}

// stopOnCancel stops the terminal once ctx is cancelled, so a running batch
// records ErrStopped for its remaining commands. Call the returned func to
// detach.
func (s *Station) stopOnCancel(ctx context.Context) func() bool {
	term := s.term
	return context.AfterFunc(ctx, func() {
		if err := term.Stop(); err != nil {
			s.log.Warn().Err(err).Msg("station stop on cancel")
		}
	})
}

// wait sleeps d unless ctx is cancelled or the terminal stops first.
func (s *Station) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.term.Done():
		return terminal.ErrStopped
	}
}
