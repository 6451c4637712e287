// SPDX-License-Identifier: BSD-3-Clause

package workerhost

import (
	"context"
	"fmt"
	"sync"

	"github.com/crm-project/crm/pkg/ipc"
)

// Plugin is a worker module's entry point: it loops on in, publishes
// progress and results on out, and returns once ctx is canceled or in's
// readiness signals hangup. This is the Go rendering of spec.md §4.B's
// "(ipc_in, ipc_out, init_bytes) -> ()" worker contract.
type Plugin func(ctx context.Context, in, out ipc.Channel, initBytes []byte) error

var (
	registryMu sync.RWMutex
	registry   = map[string]Plugin{}
)

// Register adds a plugin to the closed registry under name. Every
// internal/workers/* package calls this from its init, the Go analogue of
// spec.md §9's "dlopen-based plugin loading becomes a closed registry of
// components selected by the configuration layer."
func Register(name string, p Plugin) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := registry[name]; exists {
		panic(fmt.Sprintf("%s: %s", ErrPluginExists, name))
	}
	registry[name] = p
}

func lookupPlugin(name string) (Plugin, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	p, ok := registry[name]
	return p, ok
}
