package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/danmuck/atbench/internal/config"
	"github.com/danmuck/atbench/internal/report"
	"github.com/danmuck/atbench/internal/station"
)

var (
	runTestAT     bool
	runWriteCerts bool
	runReset      bool
	runJSON       string
	runCSV        string
	runSQLite     string
	runStatusAddr string
	runHold       bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run station steps against the modem",
	Long: `Run the selected station steps in order: AT self-test, credential
write, then the reset hook. The report is printed to stdout and appended
to the configured JSON, CSV and SQLite outputs. Exits non-zero when any
result fails.`,
	RunE: runRun,
}

var certsCmd = &cobra.Command{
	Use:   "certs",
	Short: "Write and verify %CMNG credentials",
	RunE: func(cmd *cobra.Command, args []string) error {
		runWriteCerts = true
		return runRun(cmd, args)
	},
}

func init() {
	runCmd.Flags().BoolVar(&runTestAT, "test-at", false, "run the AT self-test batch")
	runCmd.Flags().BoolVar(&runWriteCerts, "write-certs", false, "write and verify credentials")
	for _, c := range []*cobra.Command{runCmd, certsCmd} {
		c.Flags().BoolVar(&runReset, "reset-on-exit", false, "run the reset hook after the steps")
		c.Flags().StringVar(&runJSON, "json", "", "write JSON records to this path")
		c.Flags().StringVar(&runCSV, "csv", "", "append CSV rows to this path")
		c.Flags().StringVar(&runSQLite, "sqlite", "", "append rows to this SQLite database")
		c.Flags().StringVar(&runStatusAddr, "status-addr", "", "serve /health, /metrics and /results on this address")
		c.Flags().BoolVar(&runHold, "hold", false, "keep the status server up after the run until interrupted")
	}
}

// applyRunFlags overlays command-line outputs on the loaded config.
func applyRunFlags(cfg *config.Config) {
	if runJSON != "" {
		cfg.Report.JSONPath = runJSON
	}
	if runCSV != "" {
		cfg.Report.CSVPath = runCSV
	}
	if runSQLite != "" {
		cfg.Report.SQLitePath = runSQLite
	}
	if runStatusAddr != "" {
		cfg.Status.Addr = runStatusAddr
	}
}

func runRun(cmd *cobra.Command, args []string) error {
	steps := station.Steps{TestAT: runTestAT, WriteCerts: runWriteCerts}
	if !steps.TestAT && !steps.WriteCerts && !runReset {
		return fmt.Errorf("nothing to do: pass --test-at, --write-certs or --reset-on-exit")
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyRunFlags(&cfg)
	steps.Reset = runReset || cfg.Hooks.ResetOnExit

	ctx, cancel := signalContext()
	defer cancel()

	st, err := station.New(cfg, station.WithOutput(stdout), station.WithLogger(logger))
	if err != nil {
		return err
	}

	serveErr := make(chan error, 1)
	serveCtx, stopServe := context.WithCancel(ctx)
	defer stopServe()
	if cfg.Status.Addr != "" {
		srv := station.NewStatusServer(st, cfg.Status.Addr, cfg.Status.CorsOrigins)
		go func() { serveErr <- srv.Serve(serveCtx) }()
	} else {
		serveErr <- nil
	}

	run, runErr := execute(ctx, st, steps)

	if cfg.Status.Addr != "" && runHold && ctx.Err() == nil {
		logger.Info().Str("addr", cfg.Status.Addr).Msg("holding status server; interrupt to exit")
		<-ctx.Done()
	}
	stopServe()
	runErr = errors.Join(runErr, <-serveErr)

	if runErr != nil {
		return runErr
	}
	if !report.AllPassed(run.Results) {
		return errFailed
	}
	return nil
}

// execute opens the station only when a modem step is selected.
func execute(ctx context.Context, st *station.Station, steps station.Steps) (report.Run, error) {
	if steps.TestAT || steps.WriteCerts {
		if err := st.Open(); err != nil {
			return report.Run{}, err
		}
		defer func() {
			if err := st.Close(); err != nil {
				logger.Warn().Err(err).Msg("station close")
			}
		}()
	}
	return st.Run(ctx, steps)
}
