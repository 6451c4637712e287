// SPDX-License-Identifier: BSD-3-Clause

package supervise

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nats-io/nats.go"

	"github.com/crm-project/crm/internal/client"
	crmconfig "github.com/crm-project/crm/internal/config"
	"github.com/crm-project/crm/internal/control"
	"github.com/crm-project/crm/internal/hal"
	"github.com/crm-project/crm/internal/loop"
	"github.com/crm-project/crm/internal/workerbus"
	"github.com/crm-project/crm/internal/workerhost"
	"github.com/crm-project/crm/internal/workers/customization"
	"github.com/crm-project/crm/internal/workers/dump"
	"github.com/crm-project/crm/internal/workers/fwupload"
	"github.com/crm-project/crm/internal/workers/nvm"
	"github.com/crm-project/crm/pkg/fsm"
	"github.com/crm-project/crm/pkg/ipc"
	"github.com/crm-project/crm/pkg/wire"
	"github.com/crm-project/crm/service"
)

// Compile-time assertion that daemonService implements service.Service.
var _ service.Service = (*daemonService)(nil)

// daemonService is component H's runnable shape: the control FSM, the
// client aggregator, the HAL adapter, and the worker host, all driven by
// one internal/loop.Loop. It owns no supervision logic of its own; Daemon
// (in supervise.go) is what puts it on the oversight tree.
type daemonService struct {
	name       string
	logger     *slog.Logger
	host       *workerhost.Host
	clients    *client.Aggregator
	controller *control.Controller
	loop       *loop.Loop
	internal   ipc.Channel

	// socketDir and instanceID locate the mdmcli listen socket
	// (spec.md §6: "crm<instance>"); debugEnable gates REGISTER_DBG.
	socketDir   string
	instanceID  string
	debugEnable bool
}

// newDaemon wires the control FSM, client aggregator, and event loop
// together the way cmd/crmd's single modem instance needs them, reading
// its tunables from cfg.provider.
func newDaemon(cfg *config, bus *workerbus.Bus, logger *slog.Logger) (*daemonService, error) {
	settings, err := crmconfig.Resolve(cfg.provider)
	if err != nil {
		return nil, err
	}

	host := workerhost.New(bus)

	clients, err := client.NewAggregator(
		client.WithOscillationWindow(settings.OscillationWindow),
		client.WithOscillationLimit(settings.OscillationLimit),
		client.WithAckTimeout(settings.ColdResetAckTimeout),
		client.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	// d is allocated before the controller so control.WithOnWorkerSpawned
	// and control.WithPostEvent can close over its registerWorker and
	// PostInternal methods; both only read d.loop/d.internal at call
	// time, well after the rest of d is filled in below, so the partially
	// built pointer is safe to hand to control.New here.
	d := &daemonService{
		name:        cfg.name + "-daemon",
		logger:      logger,
		host:        host,
		clients:     clients,
		internal:    ipc.NewThreadChannel(ipc.MinThreadDepth),
		socketDir:   settings.ClientSocketDir,
		instanceID:  settings.InstanceID,
		debugEnable: settings.DebugEnable,
	}

	mgr := fsm.NewManager()
	controller, err := control.New(mgr,
		control.WithHAL(cfg.hal),
		control.WithClients(clients),
		control.WithWorkers(host),
		control.WithLogger(logger),
		control.WithBootTimeout(settings.BootTimeout),
		control.WithStartTimeout(settings.FlashTimeout),
		control.WithLinkTimeout(settings.ColdResetAckTimeout),
		control.WithDisableDump(settings.DisableDump),
		control.WithDisableEscalation(settings.DisableEscalation),
		control.WithSilentReset(settings.EnableSilentReset),
		control.WithNVMPaths(settings.NVMFolder, settings.NVMCalibrationFile),
		control.WithNVMDeviceNode(settings.NVMDeviceNode),
		control.WithFlashPaths(settings.FlashDeviceNode, settings.FirmwareImagePath, settings.CustomizationScriptPath),
		control.WithDumpPaths(settings.DumpDeviceNode, settings.DumpOutputPath),
		control.WithOnWorkerSpawned(d.registerWorker),
		control.WithPostEvent(d.PostInternal),
	)
	if err != nil {
		return nil, err
	}
	d.controller = controller

	d.loop = loop.New(d.internal, cfg.hal, loop.Handlers{
		Internal: d.handleInternal,
		HAL:      d.handleHAL,
		Worker:   d.handleWorker,
		Client:   d.handleClient,
		Timeout:  d.handleTimeout,
	})

	return d, nil
}

// Name implements service.Service.
func (d *daemonService) Name() string { return d.name }

// Run implements service.Service: it runs the worker host, the event
// loop, and the client socket acceptor concurrently, returning as soon
// as any of the three stops.
func (d *daemonService) Run(ctx context.Context, _ nats.InProcessConnProvider) error {
	errCh := make(chan error, 3)
	go func() { errCh <- d.host.Run(ctx, nil) }()
	go func() { errCh <- d.loop.Run(ctx) }()
	go func() { errCh <- d.acceptClients(ctx) }()

	err := <-errCh
	return err
}

// registerWorker is control.Option WithOnWorkerSpawned's callback: it
// puts a newly spawned worker's channel on the event loop under the
// "<kind>:<handle-id>" id handleWorker expects to Cut back apart.
func (d *daemonService) registerWorker(kind string, handle *workerhost.Handle) {
	d.loop.AddWorker(fmt.Sprintf("%s:%d", kind, handle.ID), handle.Channel())
}

func (d *daemonService) handleInternal(ctx context.Context, msg ipc.Msg) error {
	evt := control.Event(msg.Scalar)
	if err := d.controller.Dispatch(ctx, evt); err != nil {
		d.logger.ErrorContext(ctx, "daemon: synthesized event rejected", "event", evt, "error", err)
	}
	return nil
}

// PostInternal enqueues a synthesized event (rule 4's MdmConfigured, the
// config/NVM-sync phases spec.md §1 places out of scope as their own
// threads) onto the loop's internal channel, for callers outside the
// loop's own goroutine. It reports whether the channel accepted it.
func (d *daemonService) PostInternal(evt control.Event) bool {
	return d.internal.Send(ipc.Msg{Scalar: int64(evt)})
}

func (d *daemonService) handleHAL(ctx context.Context, evt hal.Event) error {
	mapped, ok := halEventToControl(evt)
	if !ok {
		d.logger.WarnContext(ctx, "daemon: unrecognized HAL event", "event", evt)
		return nil
	}
	if err := d.controller.Dispatch(ctx, mapped); err != nil {
		d.logger.ErrorContext(ctx, "daemon: HAL event rejected", "event", mapped, "error", err)
	}
	return nil
}

func halEventToControl(evt hal.Event) (control.Event, bool) {
	switch evt {
	case hal.EventMdmOff:
		return control.MdmOff, true
	case hal.EventMdmFlashReady:
		return control.MdmFlashReady, true
	case hal.EventMdmRun:
		return control.MdmRun, true
	case hal.EventMdmCrash:
		return control.MdmCrash, true
	case hal.EventMdmDumpReady:
		return control.MdmDumpReady, true
	case hal.EventMdmLinkDown:
		return control.MdmLinkDown, true
	default:
		return 0, false
	}
}

// handleWorker translates a worker module's status message into the
// control event it reports, per spec.md §4.G. Workers are registered on
// the loop as "<kind>:<handle-id>" (see registerWorker), so
// the kind prefix selects which of the four modules' status codes apply.
func (d *daemonService) handleWorker(ctx context.Context, id string, msg ipc.Msg) error {
	kind, _, _ := strings.Cut(id, ":")

	evt, ok := workerStatusToControl(kind, msg.Scalar)
	if !ok {
		if msg.Scalar != 0 {
			d.logger.WarnContext(ctx, "daemon: worker reported failure", "worker", id, "status", msg.Scalar, "detail", string(msg.Data))
		}
		return nil
	}
	if err := d.controller.Dispatch(ctx, evt); err != nil {
		d.logger.ErrorContext(ctx, "daemon: worker event rejected", "worker", id, "event", evt, "error", err)
	}
	return nil
}

func workerStatusToControl(kind string, scalar int64) (control.Event, bool) {
	switch kind {
	case fwupload.PluginName:
		switch scalar {
		case fwupload.StatusPackaged:
			return control.FwPackaged, true
		case fwupload.StatusFlashed:
			return control.FwFlashed, true
		}
	case customization.PluginName:
		if scalar == customization.StatusDone {
			return control.CustomizationDone, true
		}
	case dump.PluginName:
		if scalar == dump.StatusDone {
			return control.DumpDone, true
		}
	case nvm.PluginName:
		switch scalar {
		case nvm.StatusRun:
			return control.NvmRun, true
		case nvm.StatusStop:
			return control.NvmStop, true
		}
	}
	return 0, false
}

// handleClient decodes one mdmcli wire frame and turns it into either an
// internal/client.Aggregator call (bookkeeping only) or a control.Event
// Dispatch (once that bookkeeping changes the modem's desired state).
// REGISTER/REGISTER_DBG are handled by registerClient (listener.go)
// before a channel is ever registered on the loop.
func (d *daemonService) handleClient(ctx context.Context, id string, msg ipc.Msg) error {
	m, err := wire.Decode(bytes.NewReader(msg.Data))
	if err != nil {
		d.logger.WarnContext(ctx, "daemon: malformed client frame", "client", id, "error", err)
		return nil
	}

	switch m.ID {
	case wire.Acquire:
		if err := d.clients.Acquire(id); err != nil {
			return nil
		}
		if d.clients.HasAcquire() {
			return d.dispatchClient(ctx, control.CtlPower)
		}
		return nil
	case wire.Release:
		if err := d.clients.Release(id); err != nil {
			return nil
		}
		if !d.clients.HasAcquire() {
			return d.dispatchClient(ctx, control.CtlStop)
		}
		return nil
	case wire.Restart:
		if collapsed, err := d.clients.RequestRestart(id); err == nil && !collapsed {
			return d.dispatchClient(ctx, control.CtlReset)
		}
		return nil
	case wire.Shutdown:
		return d.dispatchClient(ctx, control.CtlStop)
	case wire.NvmBackup:
		return d.dispatchClient(ctx, control.CtlBackup)
	case wire.AckColdReset:
		return d.clients.AckColdReset(id)
	case wire.AckShutdown:
		return d.clients.AckShutdown(id)
	case wire.NotifyDebug:
		return nil
	default:
		d.logger.WarnContext(ctx, "daemon: unexpected client request", "client", id, "id", m.ID)
		return nil
	}
}

func (d *daemonService) dispatchClient(ctx context.Context, evt control.Event) error {
	if err := d.controller.Dispatch(ctx, evt); err != nil {
		d.logger.ErrorContext(ctx, "daemon: client request rejected", "event", evt, "error", err)
	}
	return nil
}

func (d *daemonService) handleTimeout(ctx context.Context, timer string) error {
	if err := d.controller.Dispatch(ctx, control.Timeout); err != nil {
		d.logger.ErrorContext(ctx, "daemon: timeout escalation", "timer", timer, "error", err)
	}
	return nil
}
