package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

var ErrEmptyCommand = errors.New("tools: empty command")

// CommandRunner abstracts host command execution for the station hooks.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, []byte, int32, error)
}

// ExecRunner executes commands on the local host.
type ExecRunner struct{}

// Run executes name with args. Exit code 127 means the binary was not found.
func (r ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, int32, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return stdout.Bytes(), stderr.Bytes(), 0, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return stdout.Bytes(), stderr.Bytes(), int32(exitErr.ExitCode()), err
	}

	exitCode := int32(1)
	var execErr *exec.Error
	if errors.As(err, &execErr) {
		exitCode = 127
	}
	return stdout.Bytes(), stderr.Bytes(), exitCode, err
}

// Hook is an argv run through a CommandRunner with a bounded duration.
type Hook struct {
	Name    string
	Argv    []string
	Timeout time.Duration
	Runner  CommandRunner
}

// Run executes the hook and logs its outcome. Stderr is folded into the
// returned error when the command fails.
func (h Hook) Run(ctx context.Context, log zerolog.Logger) error {
	if len(h.Argv) == 0 || strings.TrimSpace(h.Argv[0]) == "" {
		return ErrEmptyCommand
	}
	runner := h.Runner
	if runner == nil {
		runner = ExecRunner{}
	}
	if h.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.Timeout)
		defer cancel()
	}

	start := time.Now()
	stdout, stderr, code, err := runner.Run(ctx, h.Argv[0], h.Argv[1:]...)
	evt := log.Info()
	if err != nil {
		evt = log.Warn().Err(err)
	}
	evt.Str("hook", h.Name).
		Strs("argv", h.Argv).
		Int32("exit_code", code).
		Dur("elapsed", time.Since(start)).
		Int("stdout_bytes", len(stdout)).
		Msg("hook finished")
	if err != nil {
		msg := strings.TrimSpace(string(stderr))
		if msg == "" {
			return fmt.Errorf("hook %s: exit %d: %w", h.Name, code, err)
		}
		return fmt.Errorf("hook %s: exit %d: %s: %w", h.Name, code, msg, err)
	}
	return nil
}
