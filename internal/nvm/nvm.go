// SPDX-License-Identifier: BSD-3-Clause

package nvm

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/crm-project/crm/pkg/file"
)

// CalibrationPath returns the calibration file's live path under folder.
func CalibrationPath(folder, filename string) string {
	return filepath.Join(folder, filename)
}

// BackupPath returns the calibration file's backup destination: the same
// name with a ".bak" suffix, alongside the live file.
func BackupPath(folder, filename string) string {
	return filepath.Join(folder, filename+".bak")
}

// Backup atomically copies the live calibration file to its backup
// location. It is invoked once, on the next cold-reset cycle after a
// CtlBackup request (control FSM rule 8), never on a timer.
func Backup(folder, filename string) error {
	src := CalibrationPath(folder, filename)
	dst := BackupPath(folder, filename)

	if _, err := os.Stat(src); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrNoCalibrationFile
		}
		return fmt.Errorf("nvm: stat %s: %w", src, err)
	}

	if err := file.AtomicCopyFile(src, dst, 0o644); err != nil {
		return fmt.Errorf("nvm: backup %s: %w", src, err)
	}
	return nil
}
