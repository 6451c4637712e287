// SPDX-License-Identifier: BSD-3-Clause

package workerbus

import (
	"log/slog"
	"time"

	"github.com/nats-io/nats-server/v2/server"
)

const (
	defaultServerName      = "crm-workerbus"
	defaultStartupTimeout  = 10 * time.Second
	defaultShutdownTimeout = 5 * time.Second
	defaultMaxPayload      = 1 << 20 // 1MiB, well above wire.MaxFrameLen
	defaultHost            = "127.0.0.1"
)

type config struct {
	serverName      string
	startupTimeout  time.Duration
	shutdownTimeout time.Duration
	maxPayload      int32
	host            string
	port            int
	inProcessOnly   bool
	serverOpts      *server.Options
	logger          *slog.Logger
}

func newConfig(opts ...Option) *config {
	cfg := &config{
		serverName:      defaultServerName,
		startupTimeout:  defaultStartupTimeout,
		shutdownTimeout: defaultShutdownTimeout,
		maxPayload:      defaultMaxPayload,
		host:            defaultHost,
		port:            0, // ephemeral; real port read back from Bus.Addr after Run starts listening
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		opt.apply(cfg)
	}
	return cfg
}

// toServerOptions builds the server.Options for the embedded NATS server.
// By default it listens on an ephemeral loopback port: internal/workerhost
// re-execs workers and the supervisor as separate OS processes, and those
// processes can only reach the bus over a real socket, not Go's in-process
// transport. WithInProcessOnly reverts to a DontListen server for tests and
// any same-process-only consumer.
func (c *config) toServerOptions() *server.Options {
	if c.serverOpts != nil {
		return c.serverOpts
	}
	if c.inProcessOnly {
		return &server.Options{
			ServerName: c.serverName,
			DontListen: true,
			MaxPayload: c.maxPayload,
			NoSigs:     true,
			NoLog:      false,
		}
	}
	return &server.Options{
		ServerName: c.serverName,
		Host:       c.host,
		Port:       c.port,
		MaxPayload: c.maxPayload,
		NoSigs:     true,
		NoLog:      false,
	}
}

// Option configures a Bus.
type Option interface {
	apply(*config)
}

type optionFunc func(*config)

func (f optionFunc) apply(c *config) { f(c) }

// WithServerName sets the name reported by the embedded NATS server.
func WithServerName(name string) Option {
	return optionFunc(func(c *config) { c.serverName = name })
}

// WithStartupTimeout bounds how long Run waits for the embedded server to
// become ready for connections before giving up.
func WithStartupTimeout(d time.Duration) Option {
	return optionFunc(func(c *config) { c.startupTimeout = d })
}

// WithShutdownTimeout bounds how long Run waits for the embedded server's
// Shutdown to finish; past it, Run logs a warning and returns while
// Shutdown carries on in the background.
func WithShutdownTimeout(d time.Duration) Option {
	return optionFunc(func(c *config) { c.shutdownTimeout = d })
}

// WithServerOpts overrides the embedded server's options wholesale, for
// tests that need a TCP listener or cluster routes.
func WithServerOpts(opts *server.Options) Option {
	return optionFunc(func(c *config) { c.serverOpts = opts })
}

// WithListenAddr sets the host/port the bus listens on for cross-process
// workers. Port 0 (the default) picks an ephemeral port; read it back with
// Bus.Addr once Run has started.
func WithListenAddr(host string, port int) Option {
	return optionFunc(func(c *config) { c.host = host; c.port = port })
}

// WithInProcessOnly disables the TCP listener entirely, restoring the
// in-process-only transport. Only same-process consumers (tests, a
// same-process stub worker) can connect; re-exec'd worker/supervisor
// processes cannot.
func WithInProcessOnly() Option {
	return optionFunc(func(c *config) { c.inProcessOnly = true })
}

// WithLogger sets the logger the Bus reports startup, shutdown, and NATS
// server events to.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(c *config) { c.logger = l })
}
