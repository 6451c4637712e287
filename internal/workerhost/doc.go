// SPDX-License-Identifier: BSD-3-Clause

// Package workerhost implements the worker host and supervisor substrate
// of spec.md §4.B: a process factory that runs long-running or
// crash-prone subtasks (firmware upload, customization, dump extraction,
// NVM sync) in their own OS process, so a crash in one cannot corrupt
// CRM's main process.
//
// dlopen-based plugin loading becomes a closed registry: each worker
// module (internal/workers/fwupload, .../customization, .../dump,
// .../nvm) registers a Plugin function in its init. A worker is a
// separate OS process re-executing the CRM binary itself
// (os.Executable) with CRM_WORKER_PLUGIN set in its environment; cmd/crmd
// checks that variable before building the daemon and, if set, runs
// RunWorker instead.
//
// Host, living in CRM's main process, never forks a worker directly.
// Host talks to a Supervisor sub-process (re-exec'd once at daemon start
// with CRM_WORKER_SUPERVISOR=1) over a command/ack IPC channel pair
// carried on internal/workerbus; the Supervisor owns every worker's
// os/exec.Cmd and Wait() bookkeeping, keeping SIGCHLD handling out of
// CRM's main process exactly as spec.md §4.B requires.
package workerhost
