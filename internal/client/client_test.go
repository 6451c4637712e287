// SPDX-License-Identifier: BSD-3-Clause

package client

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/crm-project/crm/pkg/wire"
)

func newTestAggregator(t *testing.T) *Aggregator {
	t.Helper()
	a, err := NewAggregator(WithAckTimeout(100 * time.Millisecond))
	if err != nil {
		t.Fatalf("NewAggregator: %v", err)
	}
	return a
}

func TestRegisterRejectsDuplicateName(t *testing.T) {
	a := newTestAggregator(t)
	if _, err := a.Register("id1", "app", 0, false, nil); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := a.Register("id2", "app", 0, false, nil); err != ErrDuplicateName {
		t.Fatalf("Register duplicate: got %v, want ErrDuplicateName", err)
	}
}

func TestAcquireReleaseArithmetic(t *testing.T) {
	a := newTestAggregator(t)
	a.Register("id1", "app1", 0, false, nil)
	a.Register("id2", "app2", 0, false, nil)

	if a.HasAcquire() {
		t.Fatal("HasAcquire: want false before any acquire")
	}
	if err := a.Acquire("id1"); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := a.Acquire("id2"); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if !a.HasAcquire() {
		t.Fatal("HasAcquire: want true")
	}
	if err := a.Release("id1"); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if !a.HasAcquire() {
		t.Fatal("HasAcquire: want true, id2 still holds")
	}
	if err := a.Release("id2"); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if a.HasAcquire() {
		t.Fatal("HasAcquire: want false after both released")
	}
}

func TestUnregisterImpliesReleaseAndAck(t *testing.T) {
	a := newTestAggregator(t)
	a.Register("id1", "app1", 0, false, nil)
	if err := a.Acquire("id1"); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	ch, err := a.ArmColdResetAck("id1")
	if err != nil {
		t.Fatalf("ArmColdResetAck: %v", err)
	}

	a.Unregister("id1")

	if a.HasAcquire() {
		t.Fatal("HasAcquire: want false, implicit release on disconnect")
	}
	select {
	case <-ch:
	default:
		t.Fatal("coldAckCh: want closed, disconnect implies ack")
	}
}

func TestRequestRestartCollapses(t *testing.T) {
	a := newTestAggregator(t)
	a.Register("id1", "app1", 0, false, nil)

	collapsed, err := a.RequestRestart("id1")
	if err != nil {
		t.Fatalf("RequestRestart: %v", err)
	}
	if collapsed {
		t.Fatal("RequestRestart: want first call not collapsed")
	}
	collapsed, err = a.RequestRestart("id1")
	if err != nil {
		t.Fatalf("RequestRestart: %v", err)
	}
	if !collapsed {
		t.Fatal("RequestRestart: want second call collapsed")
	}

	a.ClearRestart("id1")
	collapsed, err = a.RequestRestart("id1")
	if err != nil {
		t.Fatalf("RequestRestart: %v", err)
	}
	if collapsed {
		t.Fatal("RequestRestart: want not collapsed after clear")
	}
}

func TestRecordResetOscillation(t *testing.T) {
	a := newTestAggregator(t)
	base := time.Now()
	if a.RecordReset(base) {
		t.Fatal("RecordReset: want false after first reset")
	}
	if a.RecordReset(base.Add(time.Second)) {
		t.Fatal("RecordReset: want false after second reset")
	}
	if !a.RecordReset(base.Add(2 * time.Second)) {
		t.Fatal("RecordReset: want true at the configured limit")
	}
}

func TestBroadcastHonorsSubscriptionBitmap(t *testing.T) {
	a := newTestAggregator(t)
	var subscribed, unsubscribed bytes.Buffer
	a.Register("id1", "app1", 1<<1, false, &subscribed) // subscribed to MDM_UP
	a.Register("id2", "app2", 0, false, &unsubscribed)

	if err := a.Broadcast(wire.Message{ID: wire.MdmUp}); err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	if subscribed.Len() == 0 {
		t.Fatal("subscribed client: want a frame written")
	}
	if unsubscribed.Len() != 0 {
		t.Fatal("unsubscribed client: want no frame written")
	}
}

func TestCollectAcksTimesOutStragglers(t *testing.T) {
	a := newTestAggregator(t)
	a.Register("id1", "app1", 0, false, nil)
	a.Register("id2", "app2", 0, false, nil)

	ch1, _ := a.ArmColdResetAck("id1")
	ch2, _ := a.ArmColdResetAck("id2")

	go a.AckColdReset("id1")

	acked := a.CollectAcks(context.Background(), map[string]chan struct{}{"id1": ch1, "id2": ch2})
	if !acked["id1"] {
		t.Fatal("CollectAcks: want id1 acked")
	}
	if acked["id2"] {
		t.Fatal("CollectAcks: want id2 not acked, it never sent ACK_COLD_RESET")
	}
}
