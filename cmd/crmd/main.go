// SPDX-License-Identifier: BSD-3-Clause

// Command crmd is the cellular modem manager daemon. Invoked with no
// special environment it runs the full supervision tree described by
// internal/supervise; invoked by internal/workerhost's own re-exec (via
// CRM_WORKER_SUPERVISOR or CRM_WORKER_PLUGIN) it instead becomes a worker
// supervisor or a single worker plugin process.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/crm-project/crm/internal/supervise"
	"github.com/crm-project/crm/internal/workerhost"
	"github.com/crm-project/crm/pkg/log"
)

const version = "0.1.0"

func main() {
	os.Exit(run())
}

func run() int {
	var (
		showHelp    = flag.Bool("h", false, "print usage and exit")
		showVersion = flag.Bool("v", false, "print version and exit")
		instanceID  = flag.String("i", "", "pin the daemon to a fixed instance ID instead of resolving one from disk")
	)
	flag.Usage = usage
	flag.Parse()

	if *showHelp {
		usage()
		return 0
	}
	if *showVersion {
		fmt.Println("crmd", version)
		return 0
	}

	logger := log.New(slog.LevelInfo)
	slog.SetDefault(logger)
	log.RedirectStdLog(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if err := dispatch(ctx, logger, *instanceID); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("crmd exited with error", "error", err)
		return 1
	}
	return 0
}

// dispatch picks which of the three process roles internal/workerhost's
// re-exec model defines this invocation plays: the main daemon, the
// worker supervisor, or a single worker plugin.
func dispatch(ctx context.Context, logger *slog.Logger, instanceID string) error {
	switch {
	case os.Getenv(workerhost.EnvWorkerPlugin) != "":
		return workerhost.RunWorker(ctx)
	case os.Getenv(workerhost.EnvWorkerSupervisor) == "1":
		return workerhost.RunSupervisor(ctx)
	default:
		opts := []supervise.Option{supervise.WithLogger(logger)}
		if instanceID != "" {
			opts = append(opts, supervise.WithInstanceID(instanceID))
		}
		daemon, err := supervise.New(opts...)
		if err != nil {
			return fmt.Errorf("crmd: build daemon: %w", err)
		}
		return daemon.Run(ctx, nil)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `crmd - cellular modem manager daemon

Usage: crmd [-h] [-v] [-i <instance-id>]

  -h  print this help and exit
  -v  print the version and exit
  -i  pin the daemon to a fixed instance ID instead of resolving one
      from its persistent ID file

crmd also runs in two internal re-exec roles, selected by environment
variables internal/workerhost sets on the child process it spawns:
CRM_WORKER_SUPERVISOR=1 runs the worker supervisor, CRM_WORKER_PLUGIN=<name>
runs a single worker plugin. Neither is meant to be set by hand.
`)
}
