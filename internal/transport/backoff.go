package transport

import (
	"errors"
	"math"
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// BackoffConfig spaces repeated SSH dial attempts.
type BackoffConfig struct {
	Attempts     int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       bool
}

func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		Attempts:     3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2,
		Jitter:       true,
	}
}

// NextBackoffDelay returns the delay before attempt N (1-based).
func NextBackoffDelay(cfg BackoffConfig, attempt int, rng *rand.Rand) time.Duration {
	if attempt <= 1 {
		return 0
	}
	if cfg.InitialDelay <= 0 {
		return 0
	}
	if cfg.Multiplier < 1.0 {
		cfg.Multiplier = 1.0
	}
	delay := float64(cfg.InitialDelay) * math.Pow(cfg.Multiplier, float64(attempt-2))
	if cfg.MaxDelay > 0 && delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	if cfg.Jitter {
		f := 0.5
		if rng != nil {
			f = 0.5 + rng.Float64()
		}
		delay = delay * f
	}
	return time.Duration(delay)
}

var sleepFn = time.Sleep

// retryDial calls dial until it succeeds or cfg.Attempts is exhausted.
// Host key mismatches and missing endpoints are not retried.
func retryDial(cfg BackoffConfig, host string, dial func() (*ssh.Client, error)) (*ssh.Client, error) {
	attempts := cfg.Attempts
	if attempts < 1 {
		attempts = 1
	}
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if d := NextBackoffDelay(cfg, attempt, rng); d > 0 {
			sleepFn(d)
		}
		client, err := dial()
		if err == nil {
			return client, nil
		}
		lastErr = err
		if isHostKeyError(err) || errors.Is(err, ErrMissingEndpoint) {
			break
		}
		log.Warn().Err(err).Str("host", host).Int("attempt", attempt).Int("attempts", attempts).Msg("transport.SSH.dial failed")
	}
	return nil, lastErr
}

func isHostKeyError(err error) bool {
	var keyErr *knownhosts.KeyError
	return errors.As(err, &keyErr)
}
