// SPDX-License-Identifier: BSD-3-Clause

package fsm

import "errors"

var (
	// ErrInvalidConfig indicates that the state machine configuration is invalid.
	ErrInvalidConfig = errors.New("fsm: invalid configuration")
	// ErrMachineNotFound indicates that the requested state machine does not exist in a Manager.
	ErrMachineNotFound = errors.New("fsm: machine not found")
	// ErrMachineExists indicates that a state machine with the same name already exists in a Manager.
	ErrMachineExists = errors.New("fsm: machine already exists")
	// ErrInvalidState indicates that the specified state is not valid for the state machine.
	ErrInvalidState = errors.New("fsm: invalid state")
	// ErrInvalidTrigger indicates that the specified trigger is not valid for the current state.
	ErrInvalidTrigger = errors.New("fsm: invalid trigger")
	// ErrInvalidTransition indicates that the requested state transition is not allowed.
	ErrInvalidTransition = errors.New("fsm: invalid state transition")
	// ErrTransitionTimeout indicates that a state transition exceeded the configured timeout.
	ErrTransitionTimeout = errors.New("fsm: transition timeout")
	// ErrPersistenceFailed indicates that persisting the state failed.
	ErrPersistenceFailed = errors.New("fsm: failed to persist state")
	// ErrNotStarted indicates that the state machine has not been started.
	ErrNotStarted = errors.New("fsm: machine not started")
	// ErrAlreadyStarted indicates that the state machine has already been started.
	ErrAlreadyStarted = errors.New("fsm: machine already started")
	// ErrStopped indicates that the state machine has been stopped.
	ErrStopped = errors.New("fsm: machine stopped")
)
