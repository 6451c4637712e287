// SPDX-License-Identifier: BSD-3-Clause

package client

import (
	"log/slog"
	"time"
)

type config struct {
	oscillationWindow time.Duration
	oscillationLimit  int
	ackTimeout        time.Duration
	logger            *slog.Logger
}

func newConfig(opts ...Option) *config {
	cfg := &config{
		oscillationWindow: 60 * time.Second,
		oscillationLimit:  3,
		ackTimeout:        3 * time.Second,
		logger:            slog.Default(),
	}
	for _, opt := range opts {
		opt.apply(cfg)
	}
	return cfg
}

// Option configures an Aggregator.
type Option interface {
	apply(*config)
}

type optionFunc func(*config)

func (f optionFunc) apply(c *config) { f(c) }

// WithOscillationWindow sets the sliding window RecordReset uses to
// detect repeated resets.
func WithOscillationWindow(d time.Duration) Option {
	return optionFunc(func(c *config) { c.oscillationWindow = d })
}

// WithOscillationLimit sets how many resets within the window count as
// oscillation.
func WithOscillationLimit(n int) Option {
	return optionFunc(func(c *config) { c.oscillationLimit = n })
}

// WithAckTimeout bounds how long each CollectAcks or AwaitAck call waits,
// one deadline for the whole call, before treating a missing ack as
// missed.
func WithAckTimeout(d time.Duration) Option {
	return optionFunc(func(c *config) { c.ackTimeout = d })
}

// WithLogger sets the logger the Aggregator reports registration and
// oscillation events to.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(c *config) { c.logger = l })
}
