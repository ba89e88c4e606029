package terminal

import (
	"time"

	"github.com/danmuck/atbench/internal/protocol/frame"
)

// Config tunes the assembler poll loop and shutdown.
type Config struct {
	Limits       frame.Limits
	PollInterval time.Duration
	StopTimeout  time.Duration
	Observer     LineObserver
}

func DefaultConfig() Config {
	return Config{
		Limits:       frame.DefaultLimits(),
		PollInterval: 10 * time.Millisecond,
		StopTimeout:  time.Second,
		Observer:     NopObserver{},
	}
}

// WithDefaults fills zero fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	defaults := DefaultConfig()
	c.Limits = c.Limits.WithDefaults()
	if c.PollInterval <= 0 {
		c.PollInterval = defaults.PollInterval
	}
	if c.StopTimeout <= 0 {
		c.StopTimeout = defaults.StopTimeout
	}
	if c.Observer == nil {
		c.Observer = defaults.Observer
	}
	return c
}
