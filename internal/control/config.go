// SPDX-License-Identifier: BSD-3-Clause

package control

import (
	"log/slog"
	"time"

	"github.com/crm-project/crm/internal/client"
	"github.com/crm-project/crm/internal/hal"
	"github.com/crm-project/crm/internal/workerhost"
)

type config struct {
	hal     hal.Adapter
	clients *client.Aggregator
	workers *workerhost.Host
	logger  *slog.Logger

	bootTimeout  time.Duration
	startTimeout time.Duration
	linkTimeout  time.Duration

	disableDump       bool
	disableEscalation bool
	enableSilentReset bool

	nvmDeviceNode      string
	nvmFolder          string
	nvmCalibrationFile string

	flashDeviceNode         string
	dumpDeviceNode          string
	firmwareImagePath       string
	customizationScriptPath string
	dumpOutputPath          string

	// onWorkerSpawned, if set, is told about every worker this Controller
	// spawns so a caller outside this package (internal/supervise) can
	// register the handle's channel on the event loop; Controller itself
	// never touches internal/loop.
	onWorkerSpawned func(kind string, handle *workerhost.Handle)

	// postEvent, if set, lets an action enqueue a synthesized event for
	// the loop's next cycle instead of firing the FSM reentrantly — used
	// by actionStartConfig to post MdmConfigured once the (out-of-scope)
	// configuration thread's work is done.
	postEvent func(Event) bool

	// StrictAsserts panics on an assert cell instead of merely logging it,
	// the default because an assert cell is unreachable by construction
	// (spec.md §4.G) and a panic here lets the supervision tree's restart
	// strategy be the recovery mechanism.
	strictAsserts bool
}

func newConfig(opts ...Option) *config {
	cfg := &config{
		logger:        slog.Default(),
		bootTimeout:   3 * time.Second,
		startTimeout:  5 * time.Second,
		linkTimeout:   1 * time.Second,
		strictAsserts: true,
	}
	for _, opt := range opts {
		opt.apply(cfg)
	}
	return cfg
}

// Option configures a Controller.
type Option interface {
	apply(*config)
}

type optionFunc func(*config)

func (f optionFunc) apply(c *config) { f(c) }

// WithHAL sets the modem adapter the Controller drives.
func WithHAL(a hal.Adapter) Option {
	return optionFunc(func(c *config) { c.hal = a })
}

// WithClients sets the client aggregator the Controller notifies.
func WithClients(a *client.Aggregator) Option {
	return optionFunc(func(c *config) { c.clients = a })
}

// WithWorkers sets the worker host the Controller spawns fwupload,
// customization, dump, and nvm workers through.
func WithWorkers(h *workerhost.Host) Option {
	return optionFunc(func(c *config) { c.workers = h })
}

// WithLogger sets the logger the Controller reports transitions to.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(c *config) { c.logger = l })
}

// WithBootTimeout sets the boot timeout. The Controller adds it to the
// per-Fire timeout its machine is built with (pkg/fsm.WithStateTimeout);
// no boot timer is armed from it.
func WithBootTimeout(d time.Duration) Option {
	return optionFunc(func(c *config) { c.bootTimeout = d })
}

// WithStartTimeout sets the configuration/NVM-start timeout. The
// Controller adds it to the per-Fire timeout its machine is built with;
// no start timer is armed from it.
func WithStartTimeout(d time.Duration) Option {
	return optionFunc(func(c *config) { c.startTimeout = d })
}

// WithLinkTimeout sets the link-down wait. The Controller adds it to the
// per-Fire timeout its machine is built with; no link-down timer is armed
// from it.
func WithLinkTimeout(d time.Duration) Option {
	return optionFunc(func(c *config) { c.linkTimeout = d })
}

// WithDisableDump reports whether MdmDumpReady should be treated as an
// implicit self-reset instead of a real dump collection (rule 11).
func WithDisableDump(disabled bool) Option {
	return optionFunc(func(c *config) { c.disableDump = disabled })
}

// WithDisableEscalation suppresses the HAL_MDM_UNRESPONSIVE fallback of
// rule 13, for test harnesses that want to observe repeated timeouts
// without the Controller giving up.
func WithDisableEscalation(disabled bool) Option {
	return optionFunc(func(c *config) { c.disableEscalation = disabled })
}

// WithSilentReset suppresses the MDM_DBG_INFO{SELF_RESET} broadcast on an
// implicit reset path, without suppressing the MDM_NEED_RESET/MDM_BUSY
// broadcasts of that path or the later MDM_UP; no MDM_DOWN is broadcast.
func WithSilentReset(enabled bool) Option {
	return optionFunc(func(c *config) { c.enableSilentReset = enabled })
}

// WithNVMPaths sets where rule 8's backup step reads the live
// calibration file from and writes its backup copy to.
func WithNVMPaths(folder, calibrationFile string) Option {
	return optionFunc(func(c *config) { c.nvmFolder = folder; c.nvmCalibrationFile = calibrationFile })
}

// WithNVMDeviceNode sets the tty the nvm worker spawned at rule 4 reads
// calibration data from.
func WithNVMDeviceNode(path string) Option {
	return optionFunc(func(c *config) { c.nvmDeviceNode = path })
}

// WithFlashPaths sets the flashing tty and the staged firmware image and
// customization script the fwupload/customization workers spawned at
// rule 2 are given. Staging those files is an out-of-scope provisioning
// step (spec.md §1); the Controller only shuttles their bytes along.
func WithFlashPaths(flashDeviceNode, firmwareImagePath, customizationScriptPath string) Option {
	return optionFunc(func(c *config) {
		c.flashDeviceNode = flashDeviceNode
		c.firmwareImagePath = firmwareImagePath
		c.customizationScriptPath = customizationScriptPath
	})
}

// WithDumpPaths sets the crash-dump tty and the file the dump worker
// spawned at rule 11's enabled-dump path streams the snapshot into.
func WithDumpPaths(dumpDeviceNode, dumpOutputPath string) Option {
	return optionFunc(func(c *config) {
		c.dumpDeviceNode = dumpDeviceNode
		c.dumpOutputPath = dumpOutputPath
	})
}

// WithOnWorkerSpawned registers a callback invoked with every worker
// handle this Controller spawns, so internal/supervise can register the
// handle's channel on the event loop without this package importing
// internal/loop.
func WithOnWorkerSpawned(fn func(kind string, handle *workerhost.Handle)) Option {
	return optionFunc(func(c *config) { c.onWorkerSpawned = fn })
}

// WithPostEvent registers a callback an action can use to enqueue a
// synthesized event for the loop's next cycle, instead of firing the
// FSM reentrantly from inside an action (pkg/fsm.FSM.Fire holds its
// mutex across the whole transition, including the action call).
func WithPostEvent(fn func(Event) bool) Option {
	return optionFunc(func(c *config) { c.postEvent = fn })
}

// WithStrictAsserts toggles panic-on-assert-cell. Off by default only in
// tests that intentionally drive the Controller through an unreachable
// cell to assert the sentinel error, rather than the panic, is returned.
func WithStrictAsserts(strict bool) Option {
	return optionFunc(func(c *config) { c.strictAsserts = strict })
}
