// SPDX-License-Identifier: BSD-3-Clause

package fsm

import (
	"context"
	"testing"
)

func testConfig(opts ...Option) *Config {
	base := []Option{
		WithName("test"),
		WithInitialState("off"),
		WithStates("off", "on"),
		WithTransition("off", "on", "power_on"),
		WithTransition("on", "off", "power_off"),
	}
	return NewConfig(append(base, opts...)...)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Fatal("New(nil): want error")
	}
	if _, err := New(NewConfig()); err == nil {
		t.Fatal("New(empty config): want error")
	}
}

func TestFireTransitionsState(t *testing.T) {
	f, err := New(testConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()

	if !f.IsInState(ctx, "off") {
		t.Fatal("want initial state off")
	}
	if err := f.Fire(ctx, "power_on"); err != nil {
		t.Fatalf("Fire(power_on): %v", err)
	}
	if !f.IsInState(ctx, "on") {
		t.Fatal("want state on after power_on")
	}
}

func TestFireRejectsInvalidTrigger(t *testing.T) {
	f, err := New(testConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()

	if err := f.Fire(ctx, "power_off"); err == nil {
		t.Fatal("Fire(power_off) from off: want error")
	}
}

func TestGuardBlocksTransition(t *testing.T) {
	allowed := false
	cfg := NewConfig(
		WithName("guarded"),
		WithInitialState("off"),
		WithStates("off", "on"),
		WithGuardedTransition("off", "on", "power_on", func(context.Context) bool { return allowed }),
	)
	f, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()

	if f.CanFire(ctx, "power_on") {
		t.Fatal("CanFire: want false while guard denies")
	}
	allowed = true
	if !f.CanFire(ctx, "power_on") {
		t.Fatal("CanFire: want true once guard allows")
	}
	if err := f.Fire(ctx, "power_on"); err != nil {
		t.Fatalf("Fire(power_on): %v", err)
	}
	if !f.IsInState(ctx, "on") {
		t.Fatal("want state on after guarded power_on")
	}
}

func TestActionRunsOnTransition(t *testing.T) {
	var gotFrom, gotTo string
	cfg := NewConfig(
		WithName("test"),
		WithInitialState("off"),
		WithStates("off", "on"),
		WithActionTransition("off", "on", "power_on", func(_ context.Context, from, to string) error {
			gotFrom, gotTo = from, to
			return nil
		}),
	)
	f, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()
	if err := f.Fire(ctx, "power_on"); err != nil {
		t.Fatalf("Fire: %v", err)
	}
	if gotFrom != "off" || gotTo != "on" {
		t.Fatalf("action args: got from=%q to=%q", gotFrom, gotTo)
	}
}

func TestPersistenceAndBroadcastCallbacks(t *testing.T) {
	var persisted, broadcast string
	cfg := testConfig(
		WithPersistence(func(_ context.Context, _, state string) error {
			persisted = state
			return nil
		}),
		WithBroadcast(func(_ context.Context, _, from, to, trigger string) error {
			broadcast = from + "->" + to + ":" + trigger
			return nil
		}),
	)
	f, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()
	if err := f.Fire(ctx, "power_on"); err != nil {
		t.Fatalf("Fire: %v", err)
	}
	if persisted != "on" {
		t.Fatalf("persisted: got %q, want on", persisted)
	}
	if broadcast != "off->on:power_on" {
		t.Fatalf("broadcast: got %q", broadcast)
	}
}

func TestPermittedTriggers(t *testing.T) {
	f, err := New(testConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()
	triggers, err := f.PermittedTriggers(ctx)
	if err != nil {
		t.Fatalf("PermittedTriggers: %v", err)
	}
	if len(triggers) != 1 || triggers[0] != "power_on" {
		t.Fatalf("PermittedTriggers: got %v, want [power_on]", triggers)
	}
}

func TestManagerLifecycle(t *testing.T) {
	m := NewManager()
	cfg := testConfig()

	if _, err := m.AddStateMachine(cfg); err != nil {
		t.Fatalf("AddStateMachine: %v", err)
	}
	if _, err := m.AddStateMachine(cfg); err == nil {
		t.Fatal("AddStateMachine duplicate: want error")
	}

	f, err := m.GetStateMachine("test")
	if err != nil {
		t.Fatalf("GetStateMachine: %v", err)
	}
	if f.Name() != "test" {
		t.Fatalf("Name: got %q", f.Name())
	}

	if got := m.ListStateMachines(); len(got) != 1 || got[0] != "test" {
		t.Fatalf("ListStateMachines: got %v", got)
	}

	if err := m.RemoveStateMachine("test"); err != nil {
		t.Fatalf("RemoveStateMachine: %v", err)
	}
	if _, err := m.GetStateMachine("test"); err == nil {
		t.Fatal("GetStateMachine after remove: want error")
	}
}

func TestManagerStopAll(t *testing.T) {
	m := NewManager()
	if _, err := m.AddStateMachine(testConfig()); err != nil {
		t.Fatalf("AddStateMachine: %v", err)
	}
	m.StopAll()
	if got := m.ListStateMachines(); len(got) != 0 {
		t.Fatalf("ListStateMachines after StopAll: got %v, want empty", got)
	}
}
