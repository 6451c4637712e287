// SPDX-License-Identifier: BSD-3-Clause

// Package fwupload is the firmware-upload worker module (component F),
// grounded on original_source/plugins/fw_upload/{pcie,sofia_secvm,stub}.
// It flashes every MEMORY_CLASS_CODE section before any
// MEMORY_CLASS_CUST section (control FSM tie-break rule, spec.md §4.G),
// reporting FwPackaged once sections are ordered and FwFlashed once
// every section has been written. The firmware bytestream format itself
// and the PCIe/SOFIA ioctl protocol are out of scope (spec.md §1
// Non-goals); this worker only orders and writes section bytes to the
// flash device node it is handed.
package fwupload

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/crm-project/crm/internal/workerhost"
	"github.com/crm-project/crm/pkg/ipc"
)

const PluginName = "fwupload"

func init() {
	workerhost.Register(PluginName, run)
}

// MemoryClass partitions a firmware section the way the original's
// flashing protocol does: all CODE sections must land before any CUST
// section.
type MemoryClass string

const (
	MemoryClassCode MemoryClass = "CODE"
	MemoryClassCust MemoryClass = "CUST"
)

// Section is one flashable unit of the firmware image.
type Section struct {
	Class MemoryClass `json:"class"`
	Data  []byte      `json:"data"`
}

// Init is this worker's init_bytes payload.
type Init struct {
	DevicePath string    `json:"device_path"`
	Sections   []Section `json:"sections"`
}

// Status kinds reported on out, as Msg.Scalar.
const (
	StatusPackaged int64 = iota + 1
	StatusSectionFlashed
	StatusFlashed
	StatusError
)

func run(ctx context.Context, in, out ipc.Channel, initBytes []byte) error {
	var cfg Init
	if err := json.Unmarshal(initBytes, &cfg); err != nil {
		sendError(out, fmt.Errorf("fwupload: decode init: %w", err))
		return err
	}

	ordered := orderSections(cfg.Sections)
	out.Send(ipc.Msg{Scalar: StatusPackaged})

	f, err := os.OpenFile(cfg.DevicePath, os.O_WRONLY, 0)
	if err != nil {
		sendError(out, fmt.Errorf("fwupload: open %s: %w", cfg.DevicePath, err))
		return err
	}
	defer f.Close()

	for i, s := range ordered {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if _, err := f.Write(s.Data); err != nil {
			sendError(out, fmt.Errorf("fwupload: write section %d: %w", i, err))
			return err
		}
		out.Send(ipc.Msg{Scalar: StatusSectionFlashed, Data: []byte(s.Class)})
	}

	out.Send(ipc.Msg{Scalar: StatusFlashed})
	return nil
}

// orderSections stably sorts CODE sections before CUST sections without
// reordering sections of the same class relative to each other.
func orderSections(sections []Section) []Section {
	ordered := make([]Section, 0, len(sections))
	for _, s := range sections {
		if s.Class == MemoryClassCode {
			ordered = append(ordered, s)
		}
	}
	for _, s := range sections {
		if s.Class != MemoryClassCode {
			ordered = append(ordered, s)
		}
	}
	return ordered
}

func sendError(out ipc.Channel, err error) {
	out.Send(ipc.Msg{Scalar: StatusError, Data: []byte(err.Error())})
}
