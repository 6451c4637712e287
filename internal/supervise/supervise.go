// SPDX-License-Identifier: BSD-3-Clause

package supervise

import (
	"context"
	"fmt"
	"reflect"

	"cirello.io/oversight/v2"
	"github.com/arunsworld/nursery"
	"github.com/nats-io/nats.go"

	"github.com/crm-project/crm/pkg/id"
	"github.com/crm-project/crm/pkg/log"
	"github.com/crm-project/crm/pkg/process"
	"github.com/crm-project/crm/service"
)

// Compile-time assertion that Daemon implements service.Service.
var _ service.Service = (*Daemon)(nil)

// Daemon is CRM's supervision root for a single modem instance: the
// embedded worker bus, the worker host, and the event-loop daemon, each
// under its own oversight.ChildProcess so a panic or a returned error in
// one restarts only that component.
type Daemon struct {
	config
}

// New builds a Daemon. The worker host and event-loop daemon are wired
// together here, against the (possibly overridden) embedded bus, before
// any option can see them — they aren't independently constructible the
// way a u-bmc BMC service is, since both are scoped to one bus instance.
func New(opts ...Option) (*Daemon, error) {
	cfg := newConfig(opts...)

	daemon, err := newDaemon(cfg, cfg.bus, cfg.logger)
	if err != nil {
		return nil, fmt.Errorf("supervise: build daemon: %w", err)
	}

	cfg.Bus = cfg.bus
	cfg.Host = daemon.host
	cfg.Daemon = daemon

	return &Daemon{config: *cfg}, nil
}

// Name implements service.Service.
func (d *Daemon) Name() string { return d.name }

// Run starts every supervised component under one oversight.Tree and
// blocks until ctx is canceled or a Transient child exhausts its restart
// budget. It mirrors u-bmc/service/operator.Operator.Run's shape: resolve
// a persistent instance ID, build the tree, then run tree.Start and the
// dynamic child registration concurrently via nursery.
func (d *Daemon) Run(ctx context.Context, ipcConn nats.InProcessConnProvider) (err error) {
	if d.name == "" {
		return ErrNameEmpty
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s %w: %v", d.name, ErrPanicked, r)
		}
	}()

	l := d.logger

	if d.id == "" {
		idStr, err := id.GetOrCreatePersistentID(d.name, d.idPath)
		if err != nil {
			l.WarnContext(ctx, "failed to get/create persistent ID, using ephemeral ID", "error", err)
			d.id = id.NewID()
		} else {
			d.id = idStr
		}
	}
	l.InfoContext(ctx, "starting crm daemon", "name", d.name, "id", d.id)

	supervisionTree := oversight.New(
		oversight.NeverHalt(),
		oversight.DefaultRestartStrategy(),
		oversight.WithLogger(log.NewOversightLogger(l)),
	)

	supervise := func(ctx context.Context, c chan error) {
		c <- supervisionTree.Start(ctx)
	}

	spawnProcs := func(ctx context.Context, c chan error) {
		configValue := reflect.ValueOf(d.config)
		for i := range configValue.NumField() {
			field := configValue.Field(i)
			if !field.IsValid() || !field.CanInterface() {
				continue
			}
			v := field.Interface()
			if v == nil {
				continue
			}
			svc, ok := v.(service.Service)
			if !ok {
				continue
			}
			if err := supervisionTree.Add(
				process.New(svc, ipcConn),
				oversight.Transient(),
				oversight.Timeout(d.timeout),
				svc.Name(),
			); err != nil {
				c <- fmt.Errorf("%w %s: %w", ErrAddProcess, svc.Name(), err)
				return
			}
		}

		for _, svc := range d.extraServices {
			if err := supervisionTree.Add(
				process.New(svc, ipcConn),
				oversight.Transient(),
				oversight.Timeout(d.timeout),
				svc.Name(),
			); err != nil {
				c <- fmt.Errorf("%w %s: %w", ErrAddProcess, svc.Name(), err)
				return
			}
		}
	}

	l.InfoContext(ctx, "starting child routines", "name", d.name)
	return nursery.RunConcurrentlyWithContext(ctx, supervise, spawnProcs)
}
