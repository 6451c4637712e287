// SPDX-License-Identifier: BSD-3-Clause

package hal

import "errors"

var (
	// ErrAdapterClosed indicates an operation was attempted on a closed adapter.
	ErrAdapterClosed = errors.New("hal: adapter closed")
	// ErrEventQueueFull indicates the stub's injected-event queue rejected a push.
	ErrEventQueueFull = errors.New("hal: event queue full")
)
