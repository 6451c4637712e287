// SPDX-License-Identifier: BSD-3-Clause

package control

import (
	"context"
	"errors"
	"testing"

	"github.com/crm-project/crm/internal/hal"
	"github.com/crm-project/crm/pkg/fsm"
)

func newTestController(t *testing.T, opts ...Option) (*Controller, *hal.Stub) {
	t.Helper()
	stub := hal.NewStub()
	base := []Option{WithHAL(stub), WithStrictAsserts(false)}
	c, err := New(fsm.NewManager(), append(base, opts...)...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c, stub
}

func mustState(t *testing.T, ctx context.Context, c *Controller, want string) {
	t.Helper()
	got, err := c.State(ctx)
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if got != want {
		t.Fatalf("State: got %s, want %s", got, want)
	}
}

// TestHappyPathWalksEveryState drives the Controller from Off through
// Running via rules 1-5, the golden path of spec.md §4.G.
func TestHappyPathWalksEveryState(t *testing.T) {
	ctx := context.Background()
	c, stub := newTestController(t)

	steps := []struct {
		evt   Event
		state string
	}{
		{CtlPower, Booting},
		{MdmFlashReady, Flashing},
		{CtlBoot, Configuring},
		{MdmConfigured, StartingDaemons},
		{NvmRun, Running},
	}
	for _, step := range steps {
		if err := c.Dispatch(ctx, step.evt); err != nil {
			t.Fatalf("Dispatch(%s): %v", step.evt, err)
		}
		mustState(t, ctx, c, step.state)
	}

	want := []string{"PowerOn"}
	got := stub.Calls()
	if len(got) != len(want) || got[0] != want[0] {
		t.Fatalf("hal calls: got %v, want %v", got, want)
	}
}

func runUpToRunning(t *testing.T, c *Controller) {
	t.Helper()
	ctx := context.Background()
	for _, evt := range []Event{CtlPower, MdmFlashReady, CtlBoot, MdmConfigured, NvmRun} {
		if err := c.Dispatch(ctx, evt); err != nil {
			t.Fatalf("Dispatch(%s): %v", evt, err)
		}
	}
	mustState(t, ctx, c, Running)
}

// TestResetStopBackupSetPendingCorrectly exercises rules 6/7/8: each sets
// a distinct Pending (and rule 8 also arms pendingBackup) while landing in
// the same StoppingDaemons state.
func TestResetStopBackupSetPendingCorrectly(t *testing.T) {
	cases := []struct {
		name        string
		evt         Event
		wantPending Pending
		wantBackup  bool
	}{
		{"reset", CtlReset, PendingReset, false},
		{"stop", CtlStop, PendingStop, false},
		{"backup", CtlBackup, PendingReset, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			c, _ := newTestController(t)
			runUpToRunning(t, c)

			if err := c.Dispatch(ctx, tc.evt); err != nil {
				t.Fatalf("Dispatch(%s): %v", tc.evt, err)
			}
			mustState(t, ctx, c, StoppingDaemons)

			c.mu.Lock()
			gotPending, gotBackup := c.pending, c.pendingBackup
			c.mu.Unlock()
			if gotPending != tc.wantPending {
				t.Fatalf("pending: got %v, want %v", gotPending, tc.wantPending)
			}
			if gotBackup != tc.wantBackup {
				t.Fatalf("pendingBackup: got %v, want %v", gotBackup, tc.wantBackup)
			}
		})
	}
}

// TestRule9BranchesOnPending covers all three NvmStop destinations out of
// StoppingDaemons: reset always cold-resets to WaitingLink; a plain stop
// goes to WaitingLink while the link is still up, or straight to Off once
// MdmLinkDown has already been observed.
func TestRule9BranchesOnPending(t *testing.T) {
	t.Run("reset cold-resets to WaitingLink", func(t *testing.T) {
		ctx := context.Background()
		c, stub := newTestController(t)
		runUpToRunning(t, c)
		mustDispatch(t, c, CtlReset)
		mustDispatch(t, c, NvmStop)
		mustState(t, ctx, c, WaitingLink)
		if calls := stub.Calls(); len(calls) == 0 || calls[len(calls)-1] != "ColdReset" {
			t.Fatalf("hal calls: got %v, want last ColdReset", calls)
		}
	})

	t.Run("stop with link still up goes to WaitingLink", func(t *testing.T) {
		ctx := context.Background()
		c, _ := newTestController(t)
		runUpToRunning(t, c)
		mustDispatch(t, c, CtlStop)
		mustDispatch(t, c, NvmStop)
		mustState(t, ctx, c, WaitingLink)
	})

	t.Run("stop with link already down goes to Off", func(t *testing.T) {
		ctx := context.Background()
		c, _ := newTestController(t)
		runUpToRunning(t, c)
		mustDispatch(t, c, CtlStop)
		mustDispatch(t, c, MdmLinkDown)
		mustDispatch(t, c, NvmStop)
		mustState(t, ctx, c, Off)
	})
}

// TestRule10AdvancesWaitingLink checks the three ways WaitingLink resolves:
// MdmOff always returns to Off; MdmLinkDown routes to Off or Booting
// depending on the outstanding Pending reason.
func TestRule10AdvancesWaitingLink(t *testing.T) {
	t.Run("MdmOff always returns to Off", func(t *testing.T) {
		ctx := context.Background()
		c, _ := newTestController(t)
		runUpToRunning(t, c)
		mustDispatch(t, c, CtlReset)
		mustDispatch(t, c, NvmStop)
		mustDispatch(t, c, MdmOff)
		mustState(t, ctx, c, Off)
	})

	t.Run("MdmLinkDown with pending reset reboots", func(t *testing.T) {
		ctx := context.Background()
		c, _ := newTestController(t)
		runUpToRunning(t, c)
		mustDispatch(t, c, CtlReset)
		mustDispatch(t, c, NvmStop)
		mustDispatch(t, c, MdmLinkDown)
		mustState(t, ctx, c, Booting)
	})

	t.Run("MdmLinkDown with pending stop settles at Off", func(t *testing.T) {
		ctx := context.Background()
		c, _ := newTestController(t)
		runUpToRunning(t, c)
		mustDispatch(t, c, CtlStop)
		mustDispatch(t, c, NvmStop)
		mustDispatch(t, c, MdmLinkDown)
		mustState(t, ctx, c, Off)
	})
}

// TestRule11DumpDisabledTreatsAsImplicitReset checks the disabled-dump
// path lands directly in StoppingDaemons with PendingReset set, skipping
// the warm reset a real dump collection would need.
func TestRule11DumpDisabledTreatsAsImplicitReset(t *testing.T) {
	ctx := context.Background()
	c, stub := newTestController(t, WithDisableDump(true))
	runUpToRunning(t, c)

	mustDispatch(t, c, MdmCrash)
	mustState(t, ctx, c, WaitingDump)

	mustDispatch(t, c, MdmDumpReady)
	mustState(t, ctx, c, StoppingDaemons)

	c.mu.Lock()
	pending := c.pending
	c.mu.Unlock()
	if pending != PendingReset {
		t.Fatalf("pending: got %v, want PendingReset", pending)
	}
	for _, call := range stub.Calls() {
		if call == "WarmReset" {
			t.Fatalf("hal calls: unexpected WarmReset with dumps disabled: %v", stub.Calls())
		}
	}
}

// TestRule11DumpEnabledWarmResetsThenWaitsForDumpDone checks the enabled
// path issues a warm reset, stays in WaitingDump, then proceeds through
// rule 9/10's stop path once DumpDone arrives.
func TestRule11DumpEnabledWarmResetsThenWaitsForDumpDone(t *testing.T) {
	ctx := context.Background()
	c, stub := newTestController(t)
	runUpToRunning(t, c)

	mustDispatch(t, c, MdmCrash)
	mustDispatch(t, c, MdmDumpReady)
	mustState(t, ctx, c, WaitingDump)

	found := false
	for _, call := range stub.Calls() {
		if call == "WarmReset" {
			found = true
		}
	}
	if !found {
		t.Fatalf("hal calls: want WarmReset, got %v", stub.Calls())
	}

	mustDispatch(t, c, DumpDone)
	mustState(t, ctx, c, StoppingDaemons)
}

// TestRule12MuxHangupCascadesFromAnyNonOffState checks the MuxHangup
// wildcard fires an implicit reset from an arbitrary mid-flight state.
func TestRule12MuxHangupCascadesFromAnyNonOffState(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestController(t)
	mustDispatch(t, c, CtlPower)
	mustState(t, ctx, c, Booting)

	mustDispatch(t, c, MuxHangup)
	mustState(t, ctx, c, StoppingDaemons)

	c.mu.Lock()
	pending := c.pending
	c.mu.Unlock()
	if pending != PendingReset {
		t.Fatalf("pending: got %v, want PendingReset", pending)
	}
}

// TestRule12MuxHangupInOffIsNoop checks the wildcard is inert once the
// modem is already fully down.
func TestRule12MuxHangupInOffIsNoop(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestController(t)
	if err := c.Dispatch(ctx, MuxHangup); err != nil {
		t.Fatalf("Dispatch(MuxHangup): %v", err)
	}
	mustState(t, ctx, c, Off)
}

// TestRule13EscalatesOnSecondTimeout checks the first Timeout in a state
// is corrective (no transition, nil error) and the second is fatal,
// returning to Off via ErrUnresponsive.
func TestRule13EscalatesOnSecondTimeout(t *testing.T) {
	ctx := context.Background()
	c, stub := newTestController(t)
	mustDispatch(t, c, CtlPower)
	mustState(t, ctx, c, Booting)

	if err := c.Dispatch(ctx, Timeout); err != nil {
		t.Fatalf("first Timeout: got %v, want nil (corrective)", err)
	}
	mustState(t, ctx, c, Booting)

	err := c.Dispatch(ctx, Timeout)
	if !errors.Is(err, ErrUnresponsive) {
		t.Fatalf("second Timeout: got %v, want ErrUnresponsive", err)
	}
	mustState(t, ctx, c, Off)

	found := false
	for _, call := range stub.Calls() {
		if call == "PowerOff" {
			found = true
		}
	}
	if !found {
		t.Fatalf("hal calls: want PowerOff on escalation, got %v", stub.Calls())
	}
}

// TestRule13CounterResetsOnProgress checks a successful transition clears
// the timeout count for the state it left, so a later Timeout in a
// different state starts corrective again rather than inheriting a
// leftover count.
func TestRule13CounterResetsOnProgress(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestController(t)
	mustDispatch(t, c, CtlPower)

	if err := c.Dispatch(ctx, Timeout); err != nil {
		t.Fatalf("Timeout in Booting: %v", err)
	}
	mustDispatch(t, c, MdmFlashReady)
	mustState(t, ctx, c, Flashing)

	if err := c.Dispatch(ctx, Timeout); err != nil {
		t.Fatalf("first Timeout in Flashing: got %v, want nil (corrective)", err)
	}
	mustState(t, ctx, c, Flashing)
}

// TestClientRequestRejectedOutsideOff checks a client-sourced event with
// no matching transition in its current state is classified as rejected,
// not as an unhandled/assert cell, per spec.md §4.G's reject-cell rule.
func TestClientRequestRejectedOutsideOff(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestController(t)
	mustDispatch(t, c, CtlPower)
	mustState(t, ctx, c, Booting)

	err := c.Dispatch(ctx, CtlPower)
	if !errors.Is(err, ErrTransitionRejected) {
		t.Fatalf("Dispatch(CtlPower) in Booting: got %v, want ErrTransitionRejected", err)
	}
}

// TestAssertCellPanicsWhenStrict checks a logically-impossible {state,
// event} pair panics when StrictAsserts is enabled.
func TestAssertCellPanicsWhenStrict(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("Dispatch(MdmConfigured) in Off: want panic, got none")
		}
	}()
	ctx := context.Background()
	stub := hal.NewStub()
	c, err := New(fsm.NewManager(), WithHAL(stub))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_ = c.Dispatch(ctx, MdmConfigured)
}

// TestAssertCellReturnsErrorWhenNotStrict checks the same unreachable
// pair returns ErrUnhandledTransition instead of panicking once
// StrictAsserts is turned off, the configuration tests use throughout
// this file to observe the sentinel rather than crash the test binary.
func TestAssertCellReturnsErrorWhenNotStrict(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestController(t)
	err := c.Dispatch(ctx, MdmConfigured)
	if !errors.Is(err, ErrUnhandledTransition) {
		t.Fatalf("Dispatch(MdmConfigured) in Off: got %v, want ErrUnhandledTransition", err)
	}
}

func mustDispatch(t *testing.T, c *Controller, evt Event) {
	t.Helper()
	if err := c.Dispatch(context.Background(), evt); err != nil {
		t.Fatalf("Dispatch(%s): %v", evt, err)
	}
}
