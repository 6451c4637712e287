// SPDX-License-Identifier: BSD-3-Clause

// Package nvm implements the calibration backup step of control FSM rule
// 8 (spec.md §4.G): on the next cold-reset cycle after a CtlBackup
// request, copy the modem's in-memory calibration file to its backup
// location atomically with pkg/file.AtomicCopyFile (temp file, then
// rename).
package nvm
