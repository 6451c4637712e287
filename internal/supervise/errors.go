// SPDX-License-Identifier: BSD-3-Clause

package supervise

import "errors"

var (
	// ErrNameEmpty indicates the daemon was built without a name.
	ErrNameEmpty = errors.New("supervise: name cannot be empty")
	// ErrPanicked indicates Run recovered a panic from the top level.
	ErrPanicked = errors.New("supervise: panicked")
	// ErrAddProcess indicates a component could not be added to the
	// supervision tree.
	ErrAddProcess = errors.New("supervise: failed to add process to supervision tree")
)
