// SPDX-License-Identifier: BSD-3-Clause

package workerhost

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"strconv"

	"github.com/crm-project/crm/pkg/ipc"
)

// RunWorker is the entry point cmd/crmd dispatches to when EnvWorkerPlugin
// is set in its environment: a re-exec'd worker process started by
// Supervisor.create. It looks the plugin up in the closed registry
// (Register), connects its end of the worker-host/worker channel pair,
// and runs the plugin until it returns or ctx is canceled.
func RunWorker(ctx context.Context) error {
	name := os.Getenv(EnvWorkerPlugin)
	if name == "" {
		return ErrMissingPlugin
	}
	plugin, ok := lookupPlugin(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPlugin, name)
	}

	busAddr := os.Getenv(EnvWorkerBusAddr)
	if busAddr == "" {
		return ErrMissingBusAddr
	}
	subject := os.Getenv(EnvWorkerSubject)
	if subject == "" {
		return ErrMissingSubject
	}
	if _, err := strconv.Atoi(os.Getenv(EnvWorkerID)); err != nil {
		return fmt.Errorf("%w: invalid %s", ErrUnknownWorker, EnvWorkerID)
	}

	initBytes, err := base64.StdEncoding.DecodeString(os.Getenv(EnvWorkerInit))
	if err != nil {
		return fmt.Errorf("worker: decode %s: %w", EnvWorkerInit, err)
	}

	channel, err := ipc.ConnectProcessChannel(busAddr, subject, ipc.Mirrored())
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSupervisorGone, err)
	}
	defer channel.Close()

	return plugin(ctx, channel, channel, initBytes)
}
