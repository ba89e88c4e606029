package tools

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danmuck/atbench/internal/testutil/testlog"
)

type fakeRunner struct {
	name   string
	args   []string
	stderr []byte
	code   int32
	err    error
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, int32, error) {
	f.name = name
	f.args = args
	return nil, f.stderr, f.code, f.err
}

func TestHookRunsArgv(t *testing.T) {
	testlog.Start(t)
	fr := &fakeRunner{}
	h := Hook{Name: "reset", Argv: []string{"probe-rs", "reset", "--chip", "nRF9160_xxAA"}, Runner: fr}

	require.NoError(t, h.Run(context.Background(), zerolog.Nop()))
	assert.Equal(t, "probe-rs", fr.name)
	assert.Equal(t, []string{"reset", "--chip", "nRF9160_xxAA"}, fr.args)
}

func TestHookFailureCarriesStderr(t *testing.T) {
	testlog.Start(t)
	cause := errors.New("exit status 2")
	fr := &fakeRunner{stderr: []byte("no probe found\n"), code: 2, err: cause}
	err := Hook{Name: "reset", Argv: []string{"probe-rs"}, Runner: fr}.Run(context.Background(), zerolog.Nop())

	require.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "no probe found")
	assert.Contains(t, err.Error(), "exit 2")
}

func TestHookEmptyArgv(t *testing.T) {
	testlog.Start(t)
	require.ErrorIs(t, Hook{}.Run(context.Background(), zerolog.Nop()), ErrEmptyCommand)
	require.ErrorIs(t, Hook{Argv: []string{" "}}.Run(context.Background(), zerolog.Nop()), ErrEmptyCommand)
}

func TestExecRunnerMissingBinary(t *testing.T) {
	testlog.Start(t)
	_, _, code, err := ExecRunner{}.Run(context.Background(), "atbench-definitely-not-a-binary")
	require.Error(t, err)
	assert.Equal(t, int32(127), code)
}

func TestExecRunnerTimeout(t *testing.T) {
	testlog.Start(t)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, _, code, err := ExecRunner{}.Run(ctx, "sleep", "5")
	if errors.Is(err, context.DeadlineExceeded) || code != 0 {
		return
	}
	t.Fatalf("expected sleep to be cut short, code=%d err=%v", code, err)
}
