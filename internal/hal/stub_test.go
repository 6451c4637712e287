// SPDX-License-Identifier: BSD-3-Clause

package hal

import (
	"context"
	"testing"
)

func TestStubRecordsCalls(t *testing.T) {
	s := NewStub()
	ctx := context.Background()

	if err := s.PowerOn(ctx); err != nil {
		t.Fatalf("PowerOn: %v", err)
	}
	if err := s.Boot(ctx); err != nil {
		t.Fatalf("Boot: %v", err)
	}
	if got, want := s.Calls(), []string{"PowerOn", "Boot"}; len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("Calls: got %v, want %v", got, want)
	}
}

func TestStubInjectAndEvents(t *testing.T) {
	s := NewStub()
	if err := s.Inject(EventMdmRun); err != nil {
		t.Fatalf("Inject: %v", err)
	}
	select {
	case e := <-s.Events():
		if e != EventMdmRun {
			t.Fatalf("Events: got %v, want MdmRun", e)
		}
	default:
		t.Fatal("Events: want a pending event")
	}
}

func TestStubInjectAfterCloseFails(t *testing.T) {
	s := NewStub()
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Inject(EventMdmOff); err != ErrAdapterClosed {
		t.Fatalf("Inject after Close: got %v, want ErrAdapterClosed", err)
	}
}

func TestStubEventQueueFull(t *testing.T) {
	s := NewStub()
	for i := 0; i < stubEventDepth; i++ {
		if err := s.Inject(EventMdmOff); err != nil {
			t.Fatalf("Inject #%d: %v", i, err)
		}
	}
	if err := s.Inject(EventMdmOff); err != ErrEventQueueFull {
		t.Fatalf("Inject over depth: got %v, want ErrEventQueueFull", err)
	}
}
