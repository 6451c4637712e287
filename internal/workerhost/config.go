// SPDX-License-Identifier: BSD-3-Clause

package workerhost

import (
	"log/slog"
	"time"

	"github.com/crm-project/crm/internal/workerbus"
)

const (
	// MaxWorkers bounds the number of concurrently spawned worker
	// processes; worker ids are reused once reaped.
	defaultMaxWorkers = 16
	defaultReapGrace  = 500 * time.Millisecond
	defaultAckTimeout = 5 * time.Second
)

type config struct {
	bus         *workerbus.Bus
	maxWorkers  int
	reapGrace   time.Duration
	ackTimeout  time.Duration
	logger      *slog.Logger
	busySubject string
}

func newConfig(bus *workerbus.Bus, opts ...Option) *config {
	cfg := &config{
		bus:         bus,
		maxWorkers:  defaultMaxWorkers,
		reapGrace:   defaultReapGrace,
		ackTimeout:  defaultAckTimeout,
		logger:      slog.Default(),
		busySubject: "workerhost.supervisor",
	}
	for _, opt := range opts {
		opt.apply(cfg)
	}
	return cfg
}

// Option configures a Host or Supervisor.
type Option interface {
	apply(*config)
}

type optionFunc func(*config)

func (f optionFunc) apply(c *config) { f(c) }

// WithMaxWorkers bounds concurrently spawned workers.
func WithMaxWorkers(n int) Option {
	return optionFunc(func(c *config) { c.maxWorkers = n })
}

// WithReapGrace sets how long an unacknowledged worker death is tolerated
// before it is treated as an internal invariant violation (spec.md §4.B:
// "a worker that hasn't been cleaned within 500 ms of its death is a bug").
func WithReapGrace(d time.Duration) Option {
	return optionFunc(func(c *config) { c.reapGrace = d })
}

// WithAckTimeout bounds how long Host.Spawn waits for the supervisor to
// acknowledge a Create command.
func WithAckTimeout(d time.Duration) Option {
	return optionFunc(func(c *config) { c.ackTimeout = d })
}

// WithLogger sets the logger Host and Supervisor report to.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(c *config) { c.logger = l })
}

// WithSupervisorSubject overrides the bus subject the host and supervisor
// exchange commands/acks on. Tests running multiple hosts against one bus
// need distinct subjects.
func WithSupervisorSubject(subject string) Option {
	return optionFunc(func(c *config) { c.busySubject = subject })
}
