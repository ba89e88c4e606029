package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/danmuck/atbench/internal/station"
	"github.com/danmuck/atbench/internal/terminal"
)

var termCmd = &cobra.Command{
	Use:   "term",
	Short: "Interactive AT terminal",
	Long: `Open the modem channel and mirror stdin lines to the device. Device
lines are printed as they arrive. Type :quit or send EOF to exit.`,
	RunE: runTerm,
}

func runTerm(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.Terminal.Observer = terminal.WriterObserver(stdout)

	ctx, cancel := signalContext()
	defer cancel()

	st, err := station.New(cfg, station.WithOutput(stdout), station.WithLogger(logger))
	if err != nil {
		return err
	}
	if err := st.Open(); err != nil {
		return err
	}

	term := st.Terminal()
	if err := term.AttachConsole(stdin); err != nil {
		_ = st.Close()
		return err
	}
	fmt.Fprintf(stdout, "connected (%s); %s to exit\n", cfg.Transport.Kind, terminal.QuitCommand)

	select {
	case <-term.Done():
	case <-ctx.Done():
	}
	// The console task may still be blocked reading stdin after an interrupt.
	if err := st.Close(); err != nil && !errors.Is(err, terminal.ErrStopTimeout) {
		return err
	}
	return nil
}
