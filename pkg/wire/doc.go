// SPDX-License-Identifier: BSD-3-Clause

// Package wire implements the length-prefixed, network-byte-order framed
// message format used on the CRM client socket. Every message on the wire
// is a fixed 8-byte header followed by an optional payload:
//
//	u32 id            // message kind, see IDs below
//	u32 total_length  // header + payload, network byte order
//	...payload...
//
// Strings are encoded as a u32 length followed by the raw bytes, with no
// NUL terminator. The absence of an optional debug-info payload is encoded
// by the absence of any bytes past the mandatory fields — total_length
// alone tells the decoder whether one is present.
//
// The codec is deliberately dumb about anything except framing and field
// layout: it has no notion of client/server session state, acquire/release
// semantics, or modem state. Those live in package client and package
// control. This package only has to guarantee one thing, tested as
// invariant I5 in the specification: decode(encode(m)) == m for every
// message kind and every DebugInfo with 0..MaxNbData strings.
package wire
