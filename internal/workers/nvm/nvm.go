// SPDX-License-Identifier: BSD-3-Clause

// Package nvm is the NVM worker module (component F), grounded on
// original_source's NVM sync plugin: it copies calibration data from the
// modem's device node into the configured calibration file on start
// (reporting NvmRun) and, on a STOP message from its host, stops
// synchronizing (reporting NvmStop). The atomic backup-file copy for
// control FSM rule 8 (spec.md §4.G, pending_backup) is a separate step
// performed by internal/nvm.Backup once this worker has exited cleanly,
// not by this package.
package nvm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/crm-project/crm/internal/workerhost"
	"github.com/crm-project/crm/pkg/ipc"
)

const PluginName = "nvm"

func init() {
	workerhost.Register(PluginName, run)
}

// Init is this worker's init_bytes payload.
type Init struct {
	DevicePath      string `json:"device_path"`
	Folder          string `json:"folder"`
	CalibrationFile string `json:"calibration_file"`
}

// Command kinds the host sends on in, as Msg.Scalar.
const CmdStop int64 = 1

// Status kinds reported on out, as Msg.Scalar.
const (
	StatusRun int64 = iota + 1
	StatusStop
	StatusError
)

func run(ctx context.Context, in, out ipc.Channel, initBytes []byte) error {
	var cfg Init
	if err := json.Unmarshal(initBytes, &cfg); err != nil {
		out.Send(ipc.Msg{Scalar: StatusError, Data: []byte(err.Error())})
		return fmt.Errorf("nvm: decode init: %w", err)
	}

	if err := sync(cfg); err != nil {
		out.Send(ipc.Msg{Scalar: StatusError, Data: []byte(err.Error())})
		return err
	}
	out.Send(ipc.Msg{Scalar: StatusRun})

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-in.Ready():
		}
		for {
			msg, ok := in.TryGet()
			if !ok {
				break
			}
			if msg.Scalar == CmdStop {
				out.Send(ipc.Msg{Scalar: StatusStop})
				return nil
			}
		}
	}
}

// sync copies the device node's current calibration image to the local
// calibration file. Unlike internal/nvm.Backup (the rule-8 backup copy),
// this is a live working copy and does not need atomic-rename durability.
func sync(cfg Init) error {
	src, err := os.Open(cfg.DevicePath)
	if err != nil {
		return fmt.Errorf("nvm: open %s: %w", cfg.DevicePath, err)
	}
	defer src.Close()

	if err := os.MkdirAll(cfg.Folder, 0o755); err != nil {
		return fmt.Errorf("nvm: mkdir %s: %w", cfg.Folder, err)
	}
	dst, err := os.Create(filepath.Join(cfg.Folder, cfg.CalibrationFile))
	if err != nil {
		return fmt.Errorf("nvm: create calibration file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("nvm: copy calibration: %w", err)
	}
	return nil
}
