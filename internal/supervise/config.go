// SPDX-License-Identifier: BSD-3-Clause

package supervise

import (
	"log/slog"
	"time"

	crmconfig "github.com/crm-project/crm/internal/config"
	"github.com/crm-project/crm/internal/hal"
	"github.com/crm-project/crm/internal/workerbus"
	"github.com/crm-project/crm/service"
)

type config struct {
	name   string
	id     string
	idPath string
	logger *slog.Logger

	timeout time.Duration

	provider crmconfig.Provider
	hal      hal.Adapter
	bus      *workerbus.Bus

	// Bus, Host, and Daemon are exported so spawnProcs can find them by
	// reflecting over config's fields, the same dynamic-registration
	// trick u-bmc/service/operator.spawnProcs uses. New populates all
	// three once it has built the worker host and event-loop daemon on
	// top of bus.
	Bus    service.Service
	Host   service.Service
	Daemon service.Service

	extraServices []service.Service
}

func newConfig(opts ...Option) *config {
	cfg := &config{
		name:     "crmd",
		idPath:   "/var/lib/crm/id",
		logger:   slog.Default(),
		timeout:  10 * time.Second,
		provider: crmconfig.StaticProvider{crmconfig.KeyInstanceID: "0"},
		hal:      hal.NewStub(),
		bus:      workerbus.New(),
	}
	for _, opt := range opts {
		opt.apply(cfg)
	}
	return cfg
}

// Option configures a Daemon.
type Option interface {
	apply(*config)
}

type optionFunc func(*config)

func (f optionFunc) apply(c *config) { f(c) }

// WithName sets the daemon's supervision-tree name and persistent-ID key.
func WithName(name string) Option {
	return optionFunc(func(c *config) { c.name = name })
}

// WithInstanceID pins the daemon to a fixed instance ID instead of
// resolving one from WithIDPath at Run time.
func WithInstanceID(id string) Option {
	return optionFunc(func(c *config) { c.id = id })
}

// WithIDPath overrides where the persistent instance ID is read from and
// written to when WithInstanceID isn't used.
func WithIDPath(path string) Option {
	return optionFunc(func(c *config) { c.idPath = path })
}

// WithLogger sets the logger every supervised component inherits.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(c *config) { c.logger = l })
}

// WithTimeout bounds how long the supervision tree waits for a child to
// start or stop before treating it as hung.
func WithTimeout(d time.Duration) Option {
	return optionFunc(func(c *config) { c.timeout = d })
}

// WithProvider sets the settings provider internal/config.Resolve reads
// the daemon's tunables from. Defaults to a StaticProvider that sets only
// the instance id, to "0"; every other setting resolves to
// internal/config's built-in defaults.
func WithProvider(p crmconfig.Provider) Option {
	return optionFunc(func(c *config) { c.provider = p })
}

// WithHAL overrides the modem adapter the control FSM drives. Defaults to
// hal.NewStub(), since a real hardware backend is out of scope (spec §1):
// production wiring supplies its own hal.Adapter through this option.
func WithHAL(a hal.Adapter) Option {
	return optionFunc(func(c *config) { c.hal = a })
}

// WithBus overrides the embedded worker bus. Defaults to workerbus.New().
func WithBus(b *workerbus.Bus) Option {
	return optionFunc(func(c *config) { c.bus = b })
}

// WithExtraServices adds additional service.Service components to the
// supervision tree alongside the bus, worker host, and event-loop daemon.
func WithExtraServices(services ...service.Service) Option {
	return optionFunc(func(c *config) { c.extraServices = services })
}
