// SPDX-License-Identifier: BSD-3-Clause

// Package client is component D: the aggregate of every connected
// mdmcli process plus the single shared view of modem intent they
// collectively express. It tracks, per connection, a unique name, the
// event subscription bitmap from REGISTER/REGISTER_DBG, whether the
// connection currently holds an acquire, and any cold-reset/shutdown ack
// it owes; and, for the modem as a whole, an internal substate machine
// (Init/MdmOff/MdmStarting/MdmUp/MdmOscillating/MdmResetting/
// MdmStopping/MdmStopped/Unrecoverable) plus a reset-oscillation
// counter. internal/supervise drives Register/Unregister/Acquire/Release/
// RequestRestart from incoming wire frames and reads the aggregate
// acquire state to decide which control event to dispatch;
// internal/control sends outgoing events through Broadcast.
package client
