// SPDX-License-Identifier: BSD-3-Clause

package ipc

import (
	"testing"

	"github.com/nats-io/nats.go"
)

// fakeSub is a no-op natsSubscription.
type fakeSub struct{ unsubscribed bool }

func (s *fakeSub) Unsubscribe() error {
	s.unsubscribed = true
	return nil
}

// fakeBus connects two in-memory ProcessChannel-like endpoints without a
// real NATS server: Publish on one side calls the handler subscribed to
// that subject on the other, synchronously.
type fakeBus struct {
	handlers map[string]nats.MsgHandler
}

func newFakeBus() *fakeBus {
	return &fakeBus{handlers: make(map[string]nats.MsgHandler)}
}

func (b *fakeBus) Publish(subject string, data []byte) error {
	if h, ok := b.handlers[subject]; ok {
		h(&nats.Msg{Subject: subject, Data: data})
	}
	return nil
}

func (b *fakeBus) Subscribe(subject string, cb nats.MsgHandler) (natsSubscription, error) {
	b.handlers[subject] = cb
	return &fakeSub{}, nil
}

func TestProcessChannelRoundTrip(t *testing.T) {
	bus := newFakeBus()

	host, err := newProcessChannel(bus, "worker.1")
	if err != nil {
		t.Fatalf("newProcessChannel (host): %v", err)
	}
	defer host.Close()

	worker, err := newProcessChannel(bus, "worker.1", Mirrored())
	if err != nil {
		t.Fatalf("newProcessChannel (worker): %v", err)
	}
	defer worker.Close()

	if !host.Send(Msg{Scalar: 7, Data: []byte("payload")}) {
		t.Fatal("host.Send: want true")
	}

	select {
	case <-worker.Ready():
	default:
		t.Fatal("worker.Ready: want a pending signal")
	}

	got, ok := worker.TryGet()
	if !ok {
		t.Fatal("worker.TryGet: want a message")
	}
	if got.Scalar != 7 || string(got.Data) != "payload" {
		t.Fatalf("worker.TryGet: got %+v", got)
	}

	if !worker.Send(Msg{Scalar: 8, Data: []byte("ack")}) {
		t.Fatal("worker.Send: want true")
	}
	got, ok = host.TryGet()
	if !ok {
		t.Fatal("host.TryGet: want a message")
	}
	if got.Scalar != 8 || string(got.Data) != "ack" {
		t.Fatalf("host.TryGet: got %+v", got)
	}
}

func TestProcessChannelCloseUnsubscribes(t *testing.T) {
	bus := newFakeBus()
	ch, err := newProcessChannel(bus, "worker.2")
	if err != nil {
		t.Fatalf("newProcessChannel: %v", err)
	}
	sub := ch.sub.(*fakeSub)

	if err := ch.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !sub.unsubscribed {
		t.Fatal("Close: want Unsubscribe to have been called")
	}
	if ch.Send(Msg{Scalar: 1}) {
		t.Fatal("Send: want false after Close")
	}
}

func TestDecodeMsgRejectsShortBuffer(t *testing.T) {
	if _, ok := decodeMsg([]byte{1, 2, 3}); ok {
		t.Fatal("decodeMsg: want false for a buffer shorter than the scalar field")
	}
}
