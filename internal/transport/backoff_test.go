package transport

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/danmuck/atbench/internal/testutil/testlog"
)

func TestNextBackoffDelay(t *testing.T) {
	testlog.Start(t)
	cfg := BackoffConfig{InitialDelay: 100 * time.Millisecond, MaxDelay: 300 * time.Millisecond, Multiplier: 2}

	assert.Equal(t, time.Duration(0), NextBackoffDelay(cfg, 1, nil))
	assert.Equal(t, 100*time.Millisecond, NextBackoffDelay(cfg, 2, nil))
	assert.Equal(t, 200*time.Millisecond, NextBackoffDelay(cfg, 3, nil))
	assert.Equal(t, 300*time.Millisecond, NextBackoffDelay(cfg, 4, nil))

	cfg.Jitter = true
	assert.Equal(t, 50*time.Millisecond, NextBackoffDelay(cfg, 2, nil))
}

func withSleeps(t *testing.T) *[]time.Duration {
	t.Helper()
	var slept []time.Duration
	prev := sleepFn
	sleepFn = func(d time.Duration) { slept = append(slept, d) }
	t.Cleanup(func() { sleepFn = prev })
	return &slept
}

func TestRetryDialRetriesUntilSuccess(t *testing.T) {
	testlog.Start(t)
	slept := withSleeps(t)
	calls := 0
	client := &ssh.Client{}
	got, err := retryDial(BackoffConfig{Attempts: 3, InitialDelay: time.Millisecond, Multiplier: 2}, "bench-01", func() (*ssh.Client, error) {
		calls++
		if calls < 3 {
			return nil, errors.New("connection refused")
		}
		return client, nil
	})
	require.NoError(t, err)
	assert.Same(t, client, got)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{time.Millisecond, 2 * time.Millisecond}, *slept)
}

func TestRetryDialStopsOnPermanentErrors(t *testing.T) {
	testlog.Start(t)
	withSleeps(t)
	for _, cause := range []error{
		&knownhosts.KeyError{},
		ErrMissingEndpoint,
	} {
		calls := 0
		_, err := retryDial(BackoffConfig{Attempts: 5}, "bench-01", func() (*ssh.Client, error) {
			calls++
			return nil, cause
		})
		require.ErrorIs(t, err, cause)
		assert.Equal(t, 1, calls)
	}
}
