package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/danmuck/atbench/internal/config"
	"github.com/danmuck/atbench/internal/observability"
	"github.com/danmuck/atbench/internal/transport"
)

// errFailed marks a completed run with failing results.
var errFailed = errors.New("one or more results failed")

var (
	configPath string
	simulate   bool
	verbose    bool

	logger = zerolog.Nop()
	stdout io.Writer = os.Stdout
	stdin  io.Reader = os.Stdin
)

var rootCmd = &cobra.Command{
	Use:   "atbench",
	Short: "nRF91 modem bench: AT self-test, credential write, live terminal",
	Long: `atbench drives a cellular modem over its AT command channel.

It runs the production AT self-test, writes and verifies %CMNG
credentials, and offers an interactive terminal. The channel is a local
serial port, a serial bridge reached over SSH, or a simulated modem.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger = observability.InitLogger("atbench")
		if verbose {
			zerolog.SetGlobalLevel(zerolog.DebugLevel)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "station config (TOML); defaults apply when empty")
	rootCmd.PersistentFlags().BoolVar(&simulate, "simulate", false, "use the simulated modem instead of the configured transport")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log device lines and debug events")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(certsCmd)
	rootCmd.AddCommand(termCmd)
	rootCmd.AddCommand(configCmd)
}

// loadConfig resolves the station config from --config and --simulate.
func loadConfig() (config.Config, error) {
	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}
	if simulate {
		cfg.Transport.Kind = transport.KindSimulate
	}
	return cfg, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errFailed) {
			fmt.Fprintf(os.Stderr, "atbench: %v\n", err)
		}
		os.Exit(1)
	}
}
