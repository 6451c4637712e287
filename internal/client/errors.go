// SPDX-License-Identifier: BSD-3-Clause

package client

import "errors"

var (
	// ErrNameTooLong rejects a REGISTER name over wire.MaxNameLen bytes.
	ErrNameTooLong = errors.New("client: name exceeds maximum length")
	// ErrDuplicateName rejects a REGISTER whose name collides with an
	// already-connected client.
	ErrDuplicateName = errors.New("client: name already registered")
	// ErrDebugDisabled rejects REGISTER_DBG when property.debug_enable is
	// unset.
	ErrDebugDisabled = errors.New("client: debug registration disabled")
	// ErrUnknownClient is returned by any operation keyed by a client id
	// that Register was never called for, or that has since disconnected.
	ErrUnknownClient = errors.New("client: unknown client id")
	// ErrNotAcquired is returned by Release for a client that does not
	// currently hold an acquire.
	ErrNotAcquired = errors.New("client: release without acquire")
)
