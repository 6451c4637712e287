// SPDX-License-Identifier: BSD-3-Clause

// Package dump is the post-crash dump worker module (component F),
// grounded on original_source/plugins/dump/{pcie,sofia}: it streams a
// crash snapshot from the modem's dump device node to a file on disk and
// reports DumpDone. Both the original's thread-mode (SOFIA) and
// process-mode (PCIe) variants are modeled as one worker selected by
// Init.Mode, since every worker module in this daemon already runs as
// its own re-exec'd process (internal/workerhost); Mode only changes how
// much is buffered in memory before a write, not the process model.
package dump

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/crm-project/crm/internal/workerhost"
	"github.com/crm-project/crm/pkg/ipc"
)

const PluginName = "dump"

func init() {
	workerhost.Register(PluginName, run)
}

// Mode records which original plugin variant this dump's shape follows.
// It has no effect on process placement, only on the copy buffer size.
type Mode string

const (
	ModeThread  Mode = "thread"  // SOFIA: small buffer, many small reads
	ModeProcess Mode = "process" // PCIe: large buffer, few large reads
)

// Init is this worker's init_bytes payload.
type Init struct {
	DumpDevicePath string `json:"dump_device_path"`
	OutputPath     string `json:"output_path"`
	Mode           Mode   `json:"mode"`
}

// Status kinds reported on out, as Msg.Scalar.
const (
	StatusProgress int64 = iota + 1
	StatusDone
	StatusError
)

func bufferSize(mode Mode) int {
	if mode == ModeProcess {
		return 256 * 1024
	}
	return 4 * 1024
}

func run(ctx context.Context, in, out ipc.Channel, initBytes []byte) error {
	var cfg Init
	if err := json.Unmarshal(initBytes, &cfg); err != nil {
		out.Send(ipc.Msg{Scalar: StatusError, Data: []byte(err.Error())})
		return fmt.Errorf("dump: decode init: %w", err)
	}

	src, err := os.Open(cfg.DumpDevicePath)
	if err != nil {
		err = fmt.Errorf("dump: open %s: %w", cfg.DumpDevicePath, err)
		out.Send(ipc.Msg{Scalar: StatusError, Data: []byte(err.Error())})
		return err
	}
	defer src.Close()

	dst, err := os.Create(cfg.OutputPath)
	if err != nil {
		err = fmt.Errorf("dump: create %s: %w", cfg.OutputPath, err)
		out.Send(ipc.Msg{Scalar: StatusError, Data: []byte(err.Error())})
		return err
	}
	defer dst.Close()

	buf := make([]byte, bufferSize(cfg.Mode))
	var total int64
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, rerr := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				werr = fmt.Errorf("dump: write output: %w", werr)
				out.Send(ipc.Msg{Scalar: StatusError, Data: []byte(werr.Error())})
				return werr
			}
			total += int64(n)
			out.Send(ipc.Msg{Scalar: StatusProgress, Data: encodeInt64(total)})
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			rerr = fmt.Errorf("dump: read device: %w", rerr)
			out.Send(ipc.Msg{Scalar: StatusError, Data: []byte(rerr.Error())})
			return rerr
		}
	}

	out.Send(ipc.Msg{Scalar: StatusDone})
	return nil
}

func encodeInt64(v int64) []byte {
	b, _ := json.Marshal(v)
	return b
}
