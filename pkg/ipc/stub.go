// SPDX-License-Identifier: BSD-3-Clause

package ipc

// StubChannel is a no-op Channel: Send always reports success without
// queuing anything, TryGet never has anything to return, and Ready never
// fires. It is useful wherever a Channel is required by a constructor but
// a test has nothing to send through it.
type StubChannel struct{}

// NewStubChannel returns a StubChannel.
func NewStubChannel() *StubChannel {
	return &StubChannel{}
}

// Send implements Channel.
func (s *StubChannel) Send(Msg) bool { return true }

// TryGet implements Channel.
func (s *StubChannel) TryGet() (Msg, bool) { return Msg{}, false }

// Ready implements Channel.
func (s *StubChannel) Ready() <-chan struct{} { return nil }

// Close implements Channel.
func (s *StubChannel) Close() error { return nil }

var _ Channel = (*StubChannel)(nil)
