// SPDX-License-Identifier: BSD-3-Clause

package ipc

import "errors"

var (
	// ErrChannelClosed indicates an operation was attempted on a closed Channel.
	ErrChannelClosed = errors.New("IPC channel closed")
	// ErrMessageCorrupted indicates a ProcessChannel received bytes it could not decode into a Msg.
	ErrMessageCorrupted = errors.New("IPC message corrupted")
)
