// SPDX-License-Identifier: BSD-3-Clause

// Package customization is the customization worker module (component
// F), grounded on original_source/plugins/customization: it streams a
// TLV-encoded customization script to the modem's flash device node and
// reports CustomizationDone. The TLV encoding itself is a property-store
// concern out of scope per spec.md §1; this worker treats the script as
// an opaque byte blob handed down in its init payload.
package customization

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/crm-project/crm/internal/workerhost"
	"github.com/crm-project/crm/pkg/ipc"
)

const PluginName = "customization"

func init() {
	workerhost.Register(PluginName, run)
}

// Init is this worker's init_bytes payload.
type Init struct {
	DevicePath string `json:"device_path"`
	Script     []byte `json:"script"`
}

// Status kinds reported on out, as Msg.Scalar.
const (
	StatusDone int64 = iota + 1
	StatusError
)

func run(ctx context.Context, in, out ipc.Channel, initBytes []byte) error {
	var cfg Init
	if err := json.Unmarshal(initBytes, &cfg); err != nil {
		out.Send(ipc.Msg{Scalar: StatusError, Data: []byte(err.Error())})
		return fmt.Errorf("customization: decode init: %w", err)
	}

	f, err := os.OpenFile(cfg.DevicePath, os.O_WRONLY, 0)
	if err != nil {
		err = fmt.Errorf("customization: open %s: %w", cfg.DevicePath, err)
		out.Send(ipc.Msg{Scalar: StatusError, Data: []byte(err.Error())})
		return err
	}
	defer f.Close()

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if _, err := f.Write(cfg.Script); err != nil {
		err = fmt.Errorf("customization: write script: %w", err)
		out.Send(ipc.Msg{Scalar: StatusError, Data: []byte(err.Error())})
		return err
	}

	out.Send(ipc.Msg{Scalar: StatusDone})
	return nil
}
