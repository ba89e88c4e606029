package terminal

import (
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danmuck/atbench/internal/protocol"
	"github.com/danmuck/atbench/internal/protocol/frame"
	"github.com/danmuck/atbench/internal/testutil/testlog"
	"github.com/danmuck/atbench/internal/transport"
)

type lineRecorder struct {
	mu    sync.Mutex
	lines []string
}

func (r *lineRecorder) OnLine(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, line)
}

func (r *lineRecorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}

func testConfig(obs LineObserver) Config {
	return Config{
		PollInterval: time.Millisecond,
		StopTimeout:  time.Second,
		Observer:     obs,
	}
}

func startTerminal(t *testing.T, ch transport.Channel, obs LineObserver) *Terminal {
	t.Helper()
	term := New(ch, testConfig(obs))
	require.NoError(t, term.Start())
	t.Cleanup(func() {
		require.NoError(t, term.Stop())
	})
	return term
}

func TestCommandQueryReplyAndStatus(t *testing.T) {
	testlog.Start(t)
	sim := transport.NewSimulator(transport.Script{"AT%XVBAT": transport.OK("5046")})
	term := startTerminal(t, sim, nil)

	env, err := term.CommandQuery("AT%XVBAT", time.Second)
	require.NoError(t, err)
	assert.Equal(t, "5046", env.Reply)
	assert.Equal(t, protocol.StatusOK, env.Status)
	assert.False(t, env.TimedOut())
	assert.Equal(t, []string{"AT%XVBAT"}, sim.Received())
}

func TestCommandQueryReassemblesSplitReads(t *testing.T) {
	testlog.Start(t)
	sim := transport.NewSimulator(
		transport.Script{"AT+CGMI": transport.OK("Nordic Semiconductor ASA", "", "  trailing  ")},
		transport.WithReadSize(2),
	)
	term := startTerminal(t, sim, nil)

	env, err := term.CommandQuery("AT+CGMI", time.Second)
	require.NoError(t, err)
	assert.Equal(t, "Nordic Semiconductor ASA\ntrailing", env.Reply)
	assert.Equal(t, protocol.StatusOK, env.Status)
}

func TestCommandQueryTimeoutIsNotAnError(t *testing.T) {
	testlog.Start(t)
	sim := transport.NewSimulator(transport.Script{"AT%XTEMP?": transport.Silent()})
	term := startTerminal(t, sim, nil)

	env, err := term.CommandQuery("AT%XTEMP?", 50*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, protocol.StatusNone, env.Status)
	assert.Empty(t, env.Reply)
	assert.True(t, env.TimedOut())
	assert.GreaterOrEqual(t, env.Elapsed, 50*time.Millisecond)
}

func TestCommandQueryErrorStatus(t *testing.T) {
	testlog.Start(t)
	sim := transport.NewSimulator(nil)
	term := startTerminal(t, sim, nil)

	env, err := term.CommandQuery("AT+UNKNOWN", time.Second)
	require.NoError(t, err)
	assert.Equal(t, protocol.StatusError, env.Status)
	assert.Empty(t, env.Reply)
}

func TestQueryDropsStaleLines(t *testing.T) {
	testlog.Start(t)
	sim := transport.NewSimulator(transport.Script{"AT+CGSN": transport.OK("352656100367872")})
	rec := &lineRecorder{}
	term := startTerminal(t, sim, rec)

	sim.Emit("+CEREG: 2", "stale")
	require.Eventually(t, func() bool { return len(rec.snapshot()) == 2 }, time.Second, time.Millisecond)

	env, err := term.CommandQuery("AT+CGSN", time.Second)
	require.NoError(t, err)
	assert.Equal(t, "352656100367872", env.Reply)
}

func TestStartPurgesPendingBytes(t *testing.T) {
	testlog.Start(t)
	sim := transport.NewSimulator(transport.Script{"AT": transport.OK()})
	sim.Emit("boot banner", "OK")
	rec := &lineRecorder{}
	term := startTerminal(t, sim, rec)

	env, err := term.CommandQuery("AT", time.Second)
	require.NoError(t, err)
	assert.Equal(t, protocol.StatusOK, env.Status)
	require.Eventually(t, func() bool { return len(rec.snapshot()) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, []string{"OK"}, rec.snapshot())
}

func TestQueryWithoutTerminatorCollectsUntilDeadline(t *testing.T) {
	testlog.Start(t)
	sim := transport.NewSimulator(transport.Script{"AT+CGMM": transport.OK("nRF9160-SICA")})
	term := startTerminal(t, sim, nil)

	lines, err := term.Query("AT+CGMM", 50*time.Millisecond, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"nRF9160-SICA", "OK"}, lines)
}

func TestObserverSeesLinesInArrivalOrder(t *testing.T) {
	testlog.Start(t)
	sim := transport.NewSimulator(transport.Script{"AT+X": transport.OK("a", "b", "c")}, transport.WithReadSize(3))
	rec := &lineRecorder{}
	term := startTerminal(t, sim, rec)

	_, err := term.CommandQuery("AT+X", time.Second)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(rec.snapshot()) == 4 }, time.Second, time.Millisecond)
	assert.Equal(t, []string{"a", "b", "c", "OK"}, rec.snapshot())
}

func TestInvalidUTF8IsReplaced(t *testing.T) {
	testlog.Start(t)
	sim := transport.NewSimulator(transport.Script{"AT+X": transport.OK("ok\xffok")})
	term := startTerminal(t, sim, nil)

	env, err := term.CommandQuery("AT+X", time.Second)
	require.NoError(t, err)
	assert.Equal(t, "ok�ok", env.Reply)
}

func TestDecodeLineReplacesEachInvalidByte(t *testing.T) {
	testlog.Start(t)
	assert.Equal(t, "a\uFFFD\uFFFDb", decodeLine([]byte("a\xff\xfeb\r")))
	assert.Equal(t, "plain", decodeLine([]byte("plain")))
}

func TestFrameLoopbackRoundTrip(t *testing.T) {
	testlog.Start(t)
	lb := transport.NewLoopback()
	term := New(lb, Config{PollInterval: time.Millisecond, Limits: frame.Limits{MaxChunk: 3}})
	require.NoError(t, term.Start())
	defer term.Stop()

	for _, command := range []string{"AT+CFUN=1", "AT%CMNG=0,42,0,\"\n-----BEGIN-----\nabc\n-----END-----\"", strings.Repeat("Z", 2100)} {
		lines, err := term.Query(command, time.Second, func(line string) bool { return line == "." })
		require.NoError(t, err)
		require.NotEmpty(t, lines)
		assert.Equal(t, ".", lines[len(lines)-1])
		assert.Equal(t, command, strings.Join(lines[:len(lines)-1], "\n"))
	}
}

func TestLifecycleErrors(t *testing.T) {
	testlog.Start(t)
	sim := transport.NewSimulator(nil)
	term := New(sim, testConfig(nil))

	require.ErrorIs(t, term.Send("AT"), ErrNotStarted)
	_, err := term.Query("AT", time.Millisecond, nil)
	require.ErrorIs(t, err, ErrNotStarted)

	require.NoError(t, term.Start())
	require.ErrorIs(t, term.Start(), ErrAlreadyStarted)

	require.NoError(t, term.Stop())
	require.NoError(t, term.Stop())
	select {
	case <-term.Done():
	default:
		t.Fatal("done channel not closed after stop")
	}

	require.ErrorIs(t, term.Send("AT"), ErrStopped)
	_, err = term.CommandQuery("AT", time.Millisecond)
	require.ErrorIs(t, err, ErrStopped)
	require.ErrorIs(t, term.Start(), ErrStopped)
}

func TestStartFailsOnChannelError(t *testing.T) {
	testlog.Start(t)
	lb := transport.NewLoopback()
	require.NoError(t, lb.Close())
	term := New(lb, testConfig(nil))

	require.ErrorIs(t, term.Start(), transport.ErrClosed)
	require.NoError(t, term.Stop())
}

func TestQueryHonorsTimeoutAcrossConcurrentStop(t *testing.T) {
	testlog.Start(t)
	sim := transport.NewSimulator(transport.Script{"AT": transport.Silent()})
	term := New(sim, testConfig(nil))
	require.NoError(t, term.Start())

	done := make(chan ResponseEnvelope, 1)
	go func() {
		env, _ := term.CommandQuery("AT", 100*time.Millisecond)
		done <- env
	}()
	require.Eventually(t, func() bool { return len(sim.Received()) == 1 }, time.Second, time.Millisecond)
	require.NoError(t, term.Stop())

	env := <-done
	assert.NoError(t, env.Err)
	assert.Equal(t, protocol.StatusNone, env.Status)
	assert.GreaterOrEqual(t, env.Elapsed, 100*time.Millisecond)
}

func TestSendWriteFailurePropagates(t *testing.T) {
	testlog.Start(t)
	sim := transport.NewSimulator(nil)
	term := startTerminal(t, sim, nil)
	boom := errors.New("probe write failed")
	sim.FailWrites(boom)

	env, err := term.CommandQuery("AT", time.Second)
	require.ErrorIs(t, err, boom)
	require.ErrorIs(t, env.Err, boom)
	assert.False(t, env.TimedOut())
}

func TestConsoleMirrorsInputUntilQuit(t *testing.T) {
	testlog.Start(t)
	sim := transport.NewSimulator(transport.Script{"AT": transport.OK()})
	rec := &lineRecorder{}
	term := New(sim, testConfig(rec))
	require.NoError(t, term.Start())

	require.NoError(t, term.AttachConsole(strings.NewReader("AT\n:quit\nAT+NEVER\n")))

	select {
	case <-term.Done():
	case <-time.After(time.Second):
		t.Fatal("console quit did not request stop")
	}
	require.NoError(t, term.Stop())
	assert.Equal(t, []string{"AT"}, sim.Received())
}

func TestConsoleEOFRequestsStop(t *testing.T) {
	testlog.Start(t)
	sim := transport.NewSimulator(nil)
	term := New(sim, testConfig(nil))
	require.NoError(t, term.Start())

	pr, pw := io.Pipe()
	require.NoError(t, term.AttachConsole(pr))
	_, err := pw.Write([]byte("AT+CGMI\n"))
	require.NoError(t, err)
	require.NoError(t, pw.Close())

	select {
	case <-term.Done():
	case <-time.After(time.Second):
		t.Fatal("console EOF did not request stop")
	}
	require.NoError(t, term.Stop())
	assert.Equal(t, []string{"AT+CGMI"}, sim.Received())
}

func TestEnvelopeTakesFirstStatus(t *testing.T) {
	testlog.Start(t)
	env := Envelope("AT", []string{" 5046 ", "OK", "ERROR"})
	assert.Equal(t, "5046\nERROR", env.Reply)
	assert.Equal(t, protocol.StatusOK, env.Status)
}
