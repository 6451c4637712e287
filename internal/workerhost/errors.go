// SPDX-License-Identifier: BSD-3-Clause

package workerhost

import "errors"

var (
	// ErrUnknownPlugin indicates Spawn was asked for a plugin name not in the registry.
	ErrUnknownPlugin = errors.New("workerhost: unknown plugin")
	// ErrPluginExists indicates Register was called twice for the same plugin name.
	ErrPluginExists = errors.New("workerhost: plugin already registered")
	// ErrNoFreeSlots indicates Spawn was called with MaxWorkers already in use.
	ErrNoFreeSlots = errors.New("workerhost: no free worker slots")
	// ErrUnknownWorker indicates an operation referenced a worker id that doesn't exist.
	ErrUnknownWorker = errors.New("workerhost: unknown worker id")
	// ErrSpawnTimeout indicates the supervisor did not ack a Create command in time.
	ErrSpawnTimeout = errors.New("workerhost: spawn ack timed out")
	// ErrSupervisorGone indicates the supervisor process is no longer reachable.
	ErrSupervisorGone = errors.New("workerhost: supervisor unreachable")
	// ErrUncleanedDeath indicates a worker died without being killed or cleaned
	// within the configured reap grace period — an internal invariant violation
	// per spec.md §7 ("Internal invariant"), fatal by design.
	ErrUncleanedDeath = errors.New("workerhost: worker died without being killed or cleaned")
	// ErrMissingBusAddr indicates a re-exec'd worker or supervisor process was
	// started without CRM_WORKERBUS_ADDR set in its environment.
	ErrMissingBusAddr = errors.New("workerhost: CRM_WORKERBUS_ADDR not set")
	// ErrMissingPlugin indicates RunWorker was invoked without CRM_WORKER_PLUGIN set.
	ErrMissingPlugin = errors.New("workerhost: CRM_WORKER_PLUGIN not set")
	// ErrMissingSubject indicates RunWorker was invoked without CRM_WORKER_SUBJECT set.
	ErrMissingSubject = errors.New("workerhost: CRM_WORKER_SUBJECT not set")
)
