// SPDX-License-Identifier: BSD-3-Clause

package control

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/crm-project/crm/internal/workers/customization"
	"github.com/crm-project/crm/internal/workers/dump"
	"github.com/crm-project/crm/internal/workers/fwupload"
	"github.com/crm-project/crm/internal/workers/nvm"
	"github.com/crm-project/crm/pkg/ipc"
)

// spawnWorker starts plugin with initBytes through the configured worker
// host and, if WithOnWorkerSpawned was set, hands the returned handle to
// it so internal/supervise can register the handle's channel on the
// event loop. A Controller with no worker host (every existing unit
// test) makes this a no-op, the same guard the broadcast actions already
// use for a Controller with no client aggregator.
func (c *Controller) spawnWorker(ctx context.Context, plugin string, initBytes []byte) error {
	if c.cfg.workers == nil {
		return nil
	}
	handle, err := c.cfg.workers.Spawn(ctx, plugin, initBytes)
	if err != nil {
		return fmt.Errorf("control: spawn %s: %w", plugin, err)
	}
	if plugin == nvm.PluginName {
		c.mu.Lock()
		c.nvmWorkerID = handle.ID
		c.hasNvmWorker = true
		c.mu.Unlock()
	}
	if c.cfg.onWorkerSpawned != nil {
		c.cfg.onWorkerSpawned(plugin, handle)
	}
	return nil
}

// spawnFlashWorkers starts the fwupload and customization workers rule 2
// schedules once the modem reports its flash-ready MUX is up. Staging
// the firmware image and the customization script is an out-of-scope
// provisioning step (spec.md §1: the core does not itself decode modem
// firmware); this daemon reads whatever bytes are already at those
// paths and hands them to the workers unexamined, as one opaque CODE
// section.
func (c *Controller) spawnFlashWorkers(ctx context.Context) error {
	if c.cfg.workers == nil {
		return nil
	}

	image, err := os.ReadFile(c.cfg.firmwareImagePath)
	if err != nil {
		return fmt.Errorf("control: read firmware image: %w", err)
	}
	fwInit, err := json.Marshal(fwupload.Init{
		DevicePath: c.cfg.flashDeviceNode,
		Sections:   []fwupload.Section{{Class: fwupload.MemoryClassCode, Data: image}},
	})
	if err != nil {
		return err
	}
	if err := c.spawnWorker(ctx, fwupload.PluginName, fwInit); err != nil {
		return err
	}

	script, err := os.ReadFile(c.cfg.customizationScriptPath)
	if err != nil {
		return fmt.Errorf("control: read customization script: %w", err)
	}
	custInit, err := json.Marshal(customization.Init{
		DevicePath: c.cfg.flashDeviceNode,
		Script:     script,
	})
	if err != nil {
		return err
	}
	return c.spawnWorker(ctx, customization.PluginName, custInit)
}

// spawnNvmWorker starts rule 4's NVM sync worker.
func (c *Controller) spawnNvmWorker(ctx context.Context) error {
	init, err := json.Marshal(nvm.Init{
		DevicePath:      c.cfg.nvmDeviceNode,
		Folder:          c.cfg.nvmFolder,
		CalibrationFile: c.cfg.nvmCalibrationFile,
	})
	if err != nil {
		return err
	}
	return c.spawnWorker(ctx, nvm.PluginName, init)
}

// stopNvmWorker sends rule 6/7/8's NVM-stop request to the worker
// spawnNvmWorker started, if one is currently running. Rules 6/7/8 share
// this through actionBeginStop regardless of whether a worker was ever
// spawned, so a Controller with no worker host or one that never
// reached StartingDaemons just returns nil here.
func (c *Controller) stopNvmWorker() error {
	c.mu.Lock()
	id, ok := c.nvmWorkerID, c.hasNvmWorker
	c.mu.Unlock()
	if !ok || c.cfg.workers == nil {
		return nil
	}
	_, err := c.cfg.workers.Send(id, ipc.Msg{Scalar: nvm.CmdStop})
	return err
}

// spawnDumpWorker starts rule 11's enabled-dump path worker once the
// warm reset has put the modem on a flashable port.
func (c *Controller) spawnDumpWorker(ctx context.Context) error {
	init, err := json.Marshal(dump.Init{
		DumpDevicePath: c.cfg.dumpDeviceNode,
		OutputPath:     c.cfg.dumpOutputPath,
		Mode:           dump.ModeProcess,
	})
	if err != nil {
		return err
	}
	return c.spawnWorker(ctx, dump.PluginName, init)
}
