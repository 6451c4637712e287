// SPDX-License-Identifier: BSD-3-Clause

package wire

import "errors"

var (
	// ErrShortRead indicates the underlying reader closed or errored before a full frame arrived.
	ErrShortRead = errors.New("wire: short read")
	// ErrFrameTooShort indicates total_length was smaller than the header size.
	ErrFrameTooShort = errors.New("wire: frame shorter than header")
	// ErrFrameTooLarge indicates total_length exceeded MaxFrameLen.
	ErrFrameTooLarge = errors.New("wire: frame exceeds protocol maximum")
	// ErrStringTooLarge indicates a string field exceeded MaxDataLen.
	ErrStringTooLarge = errors.New("wire: string field exceeds maximum length")
	// ErrTooManyStrings indicates a debug-info array exceeded MaxNbData entries.
	ErrTooManyStrings = errors.New("wire: debug info array exceeds maximum entries")
	// ErrTrailingBytes indicates the payload had bytes left over after decoding known fields.
	ErrTrailingBytes = errors.New("wire: trailing bytes after decoded fields")
	// ErrUnknownID indicates a message id this codec does not recognize for the configured direction.
	ErrUnknownID = errors.New("wire: unknown message id")
	// ErrNameTooLong indicates a REGISTER client name exceeded MaxNameLen.
	ErrNameTooLong = errors.New("wire: client name exceeds maximum length")
)
