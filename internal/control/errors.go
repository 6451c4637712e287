// SPDX-License-Identifier: BSD-3-Clause

package control

import "errors"

var (
	// ErrTransitionRejected is returned for a reject cell: a client
	// abstraction bug requested a transition while one was already in
	// flight.
	ErrTransitionRejected = errors.New("control: transition rejected, in-flight transition")
	// ErrUnhandledTransition is returned for the design's TODO-fatal
	// cells, reclassified per this repo's Open Question resolution:
	// logged and returned, with the Controller left in its current state,
	// instead of aborting.
	ErrUnhandledTransition = errors.New("control: unhandled state/event pair")
	// ErrUnresponsive is emitted (as HAL_MDM_UNRESPONSIVE) when a second
	// consecutive Timeout in the same state proves fatal, per rule 13.
	ErrUnresponsive = errors.New("control: modem unresponsive")
	// ErrTransientFault names the general retryable HAL/worker failure
	// class, as distinct from ErrUnresponsive; no code path in this
	// repository returns or checks it.
	ErrTransientFault = errors.New("control: transient fault")
)
