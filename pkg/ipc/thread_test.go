// SPDX-License-Identifier: BSD-3-Clause

package ipc

import "testing"

func TestThreadChannelSendTryGet(t *testing.T) {
	ch := NewThreadChannel(1)
	defer ch.Close()

	if !ch.Send(Msg{Scalar: 42, Data: []byte("hi")}) {
		t.Fatal("Send: want true")
	}

	select {
	case <-ch.Ready():
	default:
		t.Fatal("Ready: want a pending signal after Send")
	}

	msg, ok := ch.TryGet()
	if !ok {
		t.Fatal("TryGet: want a message")
	}
	if msg.Scalar != 42 || string(msg.Data) != "hi" {
		t.Fatalf("TryGet: got %+v", msg)
	}

	if _, ok := ch.TryGet(); ok {
		t.Fatal("TryGet: want no message after drain")
	}
}

func TestThreadChannelMinDepth(t *testing.T) {
	ch := NewThreadChannel(1)
	defer ch.Close()

	for i := 0; i < MinThreadDepth; i++ {
		if !ch.Send(Msg{Scalar: int64(i)}) {
			t.Fatalf("Send %d: want true, depth should be raised to %d", i, MinThreadDepth)
		}
	}
}

func TestThreadChannelFullSendFails(t *testing.T) {
	ch := NewThreadChannel(MinThreadDepth)
	defer ch.Close()

	for i := 0; i < MinThreadDepth; i++ {
		if !ch.Send(Msg{Scalar: int64(i)}) {
			t.Fatalf("Send %d: want true", i)
		}
	}
	if ch.Send(Msg{Scalar: 999}) {
		t.Fatal("Send: want false on a full channel")
	}
}

func TestThreadChannelCloseClosesReady(t *testing.T) {
	ch := NewThreadChannel(MinThreadDepth)
	if err := ch.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	// Closing twice must not panic.
	if err := ch.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	if _, ok := <-ch.Ready(); ok {
		t.Fatal("Ready: want closed channel after Close")
	}

	if ch.Send(Msg{Scalar: 1}) {
		t.Fatal("Send: want false after Close")
	}
}
