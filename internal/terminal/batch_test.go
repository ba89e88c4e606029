package terminal

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danmuck/atbench/internal/protocol"
	"github.com/danmuck/atbench/internal/testutil/testlog"
	"github.com/danmuck/atbench/internal/transport"
)

func TestRunBatchReturnsOneEnvelopePerCommand(t *testing.T) {
	testlog.Start(t)
	sim := transport.NewNRF9160()
	sim.Script("AT%XTEMP?", transport.Silent())
	term := startTerminal(t, sim, nil)

	commands := []string{"AT+CGMI", "AT%XTEMP?", "AT+BOGUS", "AT%XVBAT"}
	var progress []string
	result := term.RunBatch(commands, 30*time.Millisecond, time.Millisecond, func(i, total int, cmd string) {
		assert.Equal(t, len(commands), total)
		progress = append(progress, cmd)
	})

	assert.Equal(t, commands, progress)
	assert.Equal(t, commands, result.Order)
	require.Len(t, result.Responses, len(commands))

	got := map[string]protocol.Status{}
	for cmd, env := range result.Responses {
		assert.Equal(t, cmd, env.Command)
		got[cmd] = env.Status
	}
	want := map[string]protocol.Status{
		"AT+CGMI":   protocol.StatusOK,
		"AT%XTEMP?": protocol.StatusNone,
		"AT+BOGUS":  protocol.StatusError,
		"AT%XVBAT":  protocol.StatusOK,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("statuses mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "%XVBAT: 5000", result.Responses["AT%XVBAT"].Reply)
}

func TestRunBatchRepeatedCommandKeepsFirstPosition(t *testing.T) {
	testlog.Start(t)
	sim := transport.NewNRF9160()
	term := startTerminal(t, sim, nil)

	result := term.RunBatch([]string{"AT+CFUN=1", "AT+CGMI", "AT+CFUN=1"}, time.Second, 0, nil)

	assert.Equal(t, []string{"AT+CFUN=1", "AT+CGMI"}, result.Order)
	assert.Len(t, result.Envelopes(), 2)
	assert.Len(t, sim.Received(), 3)
}

func TestRunBatchContinuesAfterWriteFailure(t *testing.T) {
	testlog.Start(t)
	sim := transport.NewNRF9160()
	term := startTerminal(t, sim, nil)
	boom := errors.New("link down")
	sim.FailWrites(boom)

	result := term.RunBatch([]string{"AT+CGMI", "AT+CGMM"}, 10*time.Millisecond, 0, nil)

	require.Len(t, result.Responses, 2)
	for _, env := range result.Envelopes() {
		require.ErrorIs(t, env.Err, boom)
		assert.Equal(t, protocol.StatusNone, env.Status)
	}
}

func TestRunBatchAfterStopRecordsStopped(t *testing.T) {
	testlog.Start(t)
	sim := transport.NewNRF9160()
	term := New(sim, testConfig(nil))
	require.NoError(t, term.Start())
	require.NoError(t, term.Stop())

	result := term.RunBatch([]string{"AT+CGMI", "AT+CGMM"}, time.Second, time.Hour, nil)

	require.Len(t, result.Responses, 2)
	for _, env := range result.Envelopes() {
		require.ErrorIs(t, env.Err, ErrStopped)
	}
	assert.Empty(t, sim.Received())
}
