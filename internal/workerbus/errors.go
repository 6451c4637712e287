// SPDX-License-Identifier: BSD-3-Clause

package workerbus

import "errors"

var (
	// ErrServerCreationFailed indicates the embedded NATS server could not be constructed.
	ErrServerCreationFailed = errors.New("workerbus: failed to create embedded server")
	// ErrServerNotReady indicates the embedded server did not become ready in time.
	ErrServerNotReady = errors.New("workerbus: server not ready for connections")
	// ErrConnectionNotAvailable indicates a connection was requested before the bus started.
	ErrConnectionNotAvailable = errors.New("workerbus: connection not available")
	// ErrInProcessConnFailed indicates the in-process connection could not be established.
	ErrInProcessConnFailed = errors.New("workerbus: in-process connection failed")
)
