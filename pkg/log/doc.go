// SPDX-License-Identifier: BSD-3-Clause

// Package log provides the structured logger used throughout the daemon: a
// zerolog console writer behind a log/slog.Handler.
//
// There is no package-level logger. log.New(level) builds one *slog.Logger
// at daemon startup and every long-running component (the control FSM, the
// worker host, each client, the event loop) is handed that logger or a
// child of it via .With(...). This keeps log context — instance id, client
// name, worker name — an explicit parameter instead of ambient state.
//
// # Adapters
//
// Two adapters let non-slog subsystems this daemon embeds log through the
// same logger:
//
//   - NewNATSLogger wraps a *slog.Logger as a server.Logger for the
//     embedded NATS worker bus.
//   - NewOversightLogger wraps a *slog.Logger as an oversight.Logger for
//     the supervision tree.
//
// NewStdLoggerAt and RedirectStdLog cover the handful of imported
// dependencies that still log through the standard library's log package.
package log
