// SPDX-License-Identifier: BSD-3-Clause

// Package file provides atomic file replacement via temp-file-then-rename,
// used by internal/nvm for the calibration backup copy (spec.md §5, §6)
// and by pkg/id for persistent id files. AtomicCreateFile fails if the
// target already exists (unix.RENAME_NOREPLACE); AtomicUpdateFile always
// replaces it.
package file
