// SPDX-License-Identifier: BSD-3-Clause

// Package config models the hierarchical configuration provider spec.md §6
// calls "TCS": device node paths, timers, NVM folder/calibration filenames,
// and the handful of read-only property keys the control FSM and client
// aggregator consume (debug-enable, disable-dump, enable-silent-reset,
// disable-escalation, service-control keys). internal/supervise resolves
// it once when it builds the daemon and passes the resolved values through
// every component's constructor, matching this daemon's "no ambient singleton" convention (pkg/log).
//
// FileProvider reads a flat key=value file, the Go analogue of the
// original's TCS reader. StaticProvider wraps a map literal for tests.
package config
