// SPDX-License-Identifier: BSD-3-Clause

package workerhost

import (
	"sync"

	"github.com/crm-project/crm/pkg/ipc"
)

// Handle is a worker host's view of one spawned worker, matching
// spec.md §3's "Worker handle": {id, pid, ipc_parent_to_child,
// ipc_child_to_parent, flags: {killed, cleaned, dead}}.
type Handle struct {
	ID  int
	PID int

	channel *ipc.ProcessChannel

	mu      sync.Mutex
	killed  bool
	cleaned bool
	dead    bool
}

// Channel returns the worker-host side of this worker's pipe, for a
// caller such as internal/loop that wants to poll it directly instead of
// going through Host.Send/Host.Recv by numeric id.
func (h *Handle) Channel() ipc.Channel {
	return h.channel
}

func (h *Handle) setDead() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dead = true
}

func (h *Handle) setKilled() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.killed = true
}

func (h *Handle) setCleaned() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cleaned = true
}

// reapable reports whether it is safe to free this handle's id: the
// worker is dead and the parent has acknowledged it via either Kill or
// Clean.
func (h *Handle) reapable() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dead && (h.killed || h.cleaned)
}

func (h *Handle) isDead() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dead
}
