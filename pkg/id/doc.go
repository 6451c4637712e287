// SPDX-License-Identifier: BSD-3-Clause

// Package id generates and persists UUIDs: NewID for ephemeral use,
// GetOrCreatePersistentID/UpdatePersistentID for ids that must survive
// process restarts (the daemon's own instance id, in internal/supervise).
package id
