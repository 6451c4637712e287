// SPDX-License-Identifier: BSD-3-Clause

package nvm

import (
	"os"
	"path/filepath"
	"testing"
)

func TestBackupCopiesCalibrationFile(t *testing.T) {
	dir := t.TempDir()
	name := "calibration.nvm"
	if err := os.WriteFile(CalibrationPath(dir, name), []byte("calib-data"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if err := Backup(dir, name); err != nil {
		t.Fatalf("Backup: %v", err)
	}

	got, err := os.ReadFile(BackupPath(dir, name))
	if err != nil {
		t.Fatalf("ReadFile backup: %v", err)
	}
	if string(got) != "calib-data" {
		t.Fatalf("backup contents: got %q", got)
	}
}

func TestBackupMissingSource(t *testing.T) {
	dir := t.TempDir()
	if err := Backup(dir, "absent.nvm"); err != ErrNoCalibrationFile {
		t.Fatalf("Backup: got %v, want ErrNoCalibrationFile", err)
	}
}

func TestBackupOverwritesExisting(t *testing.T) {
	dir := t.TempDir()
	name := "calibration.nvm"
	os.WriteFile(CalibrationPath(dir, name), []byte("v2"), 0o644)
	os.WriteFile(BackupPath(dir, name), []byte("stale"), 0o644)

	if err := Backup(dir, name); err != nil {
		t.Fatalf("Backup: %v", err)
	}
	got, _ := os.ReadFile(filepath.Join(dir, name+".bak"))
	if string(got) != "v2" {
		t.Fatalf("backup contents: got %q, want v2", got)
	}
}
