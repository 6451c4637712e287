// SPDX-License-Identifier: BSD-3-Clause

// Package loop is the single-threaded cooperative dispatcher (component
// H): one priority-ordered pass over the control/internal channel, the
// HAL adapter's event stream, every active worker's channel, then every
// connected client's channel, non-blockingly; when nothing is ready it
// blocks on all of them at once plus the nearest armed timer's deadline.
// Go has no single pollable fd set spanning goroutine channels, NATS
// subjects, and OS pipes, so this is a hand-rolled rendering of that
// poll loop rather than a literal translation of one.
package loop
