// SPDX-License-Identifier: BSD-3-Clause

// Package fsm is a thin, thread-safe wrapper around
// github.com/qmuntal/stateless, used by internal/client for the aggregate
// modem substate machine and by internal/control for the control FSM
// (component G).
//
// A machine is built once from a Config (states, transitions, optional
// guards and actions) via a functional-options constructor, then driven
// with Fire. Guards and actions run under the package's own lock
// discipline rather than stateless's, so a guard can safely read fields
// the caller's Config closed over without a separate mutex.
//
// fsm does not know anything about modems, clients, or wire messages —
// those types live in internal/control and internal/client, which build
// their transition tables into a Config; internal/client passes it to
// fsm.New and internal/control to Manager.AddStateMachine.
package fsm
