// SPDX-License-Identifier: BSD-3-Clause

// Package control is component G: the modem's own control FSM, the
// single named "control" machine on a pkg/fsm.Manager. It owns the ten states (Off,
// Booting, Flashing, Configuring, StartingDaemons, Running, WaitingDump,
// StoppingDaemons, WaitingLink, and the Timeout-escalation fallback
// back to Off) and the thirteen numbered transition rules of this
// daemon's control design, driving hal.Adapter, internal/workerhost, and
// internal/client in response to a typed event stream partitioned by
// source: client requests, HAL-asynchronous events, worker completions,
// and synthesized events (MdmConfigured, MuxHangup, MuxDead, Timeout).
package control
