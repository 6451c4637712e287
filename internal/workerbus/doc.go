// SPDX-License-Identifier: BSD-3-Clause

// Package workerbus provides the embedded NATS server workers and the
// worker host communicate over once a worker has been re-exec'd into its
// own OS process.
//
// CRM itself never needs a message bus for anything in-process — the
// control FSM, the client aggregator, and the event loop all talk over
// plain Go channels (pkg/ipc's ThreadChannel). The bus exists for exactly
// one reason: once a worker module has been forked into a separate
// process (pkg/wire codec framing notwithstanding, workers exchange
// structured requests, not raw byte streams), something has to carry
// bytes across that fork without going through a filesystem socket this
// daemon would have to create, permission, and clean up itself.
//
// Bus wraps an embedded *server.Server exactly as the teacher's ipc
// service did, but drops the JetStream/persistence machinery: nothing a
// worker sends needs to survive a CRM restart, so there is no stream to
// replay from. A worker's in-flight request is simply lost if CRM restarts
// mid-request, which is consistent with this daemon's restart semantics
// (internal/supervise tears down and respawns the whole worker set).
//
// By default the server listens on an ephemeral loopback port (Bus.Addr)
// so the re-exec'd supervisor and worker processes, which share nothing
// but an environment and a pair of inherited file descriptors, can dial
// in as ordinary NATS clients. WithInProcessOnly reverts to a DontListen
// server for same-process callers such as tests.
package workerbus
