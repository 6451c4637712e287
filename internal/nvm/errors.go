// SPDX-License-Identifier: BSD-3-Clause

package nvm

import "errors"

// ErrNoCalibrationFile is returned when the source calibration file does
// not exist yet, e.g. the nvm worker has not finished its first sync.
var ErrNoCalibrationFile = errors.New("nvm: calibration file not present")
