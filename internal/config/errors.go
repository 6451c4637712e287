// SPDX-License-Identifier: BSD-3-Clause

package config

import "errors"

var (
	// ErrMissingKey is returned by Resolve when a required key has no
	// default and no Provider entry.
	ErrMissingKey = errors.New("config: required key missing")
	// ErrInvalidValue is returned by Resolve when a key's value cannot be
	// parsed as the type the setting expects (duration, int, bool).
	ErrInvalidValue = errors.New("config: invalid value for key")
	// ErrParse is returned by NewFileProvider on a malformed line.
	ErrParse = errors.New("config: cannot parse line")
)
