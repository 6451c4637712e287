// SPDX-License-Identifier: BSD-3-Clause

package client

import (
	"context"
	"sync"
	"time"

	"github.com/crm-project/crm/pkg/fsm"
)

// Modem substates, the client-facing view of modem intent (distinct from
// internal/control's own, finer-grained control FSM).
const (
	ModemInit        = "init"
	ModemOff         = "mdm_off"
	ModemStarting    = "mdm_starting"
	ModemUp          = "mdm_up"
	ModemOscillating = "mdm_oscillating"
	ModemResetting   = "mdm_resetting"
	ModemStopping    = "mdm_stopping"
	ModemStopped     = "mdm_stopped"
	Unrecoverable    = "unrecoverable"
)

// Triggers fired by internal/control as it drives the aggregate view.
const (
	TriggerStart     = "start"
	TriggerUp        = "up"
	TriggerReset     = "reset"
	TriggerResetDone = "reset_done"
	TriggerOscillate = "oscillate"
	TriggerStop      = "stop"
	TriggerStopped   = "stopped"
	TriggerFail      = "fail"
)

type modemState struct {
	cfg *config
	fsm *fsm.FSM

	mu         sync.Mutex
	resetTimes []time.Time
}

func newModemState(cfg *config) (*modemState, error) {
	m := &modemState{cfg: cfg}

	f, err := fsm.New(fsm.NewConfig(
		fsm.WithName("modem"),
		fsm.WithInitialState(ModemInit),
		fsm.WithStates(ModemInit, ModemOff, ModemStarting, ModemUp, ModemOscillating,
			ModemResetting, ModemStopping, ModemStopped, Unrecoverable),
		fsm.WithTransition(ModemInit, ModemOff, TriggerStart),
		fsm.WithTransition(ModemOff, ModemStarting, TriggerStart),
		fsm.WithTransition(ModemStarting, ModemUp, TriggerUp),
		fsm.WithTransition(ModemStarting, Unrecoverable, TriggerFail),
		fsm.WithTransition(ModemUp, ModemResetting, TriggerReset),
		fsm.WithTransition(ModemUp, ModemStopping, TriggerStop),
		fsm.WithTransition(ModemResetting, ModemStarting, TriggerResetDone),
		fsm.WithTransition(ModemResetting, ModemOscillating, TriggerOscillate),
		fsm.WithTransition(ModemOscillating, ModemResetting, TriggerReset),
		fsm.WithTransition(ModemOscillating, Unrecoverable, TriggerFail),
		fsm.WithTransition(ModemOscillating, ModemStopping, TriggerStop),
		fsm.WithTransition(ModemStopping, ModemStopped, TriggerStopped),
		fsm.WithTransition(ModemStopped, ModemStarting, TriggerStart),
		fsm.WithStateTimeout(2*time.Second),
	))
	if err != nil {
		return nil, err
	}
	m.fsm = f
	return m, nil
}

// State returns the modem's current aggregate substate.
func (a *Aggregator) State(ctx context.Context) (string, error) {
	return a.modem.fsm.CurrentState(ctx)
}

// Fire drives the aggregate modem substate machine.
func (a *Aggregator) Fire(ctx context.Context, trigger string) error {
	return a.modem.fsm.Fire(ctx, trigger)
}

// RecordReset notes a reset at now and reports whether the number
// of resets within the configured oscillation window has reached the
// configured limit. Callers pass now explicitly rather than the
// Aggregator calling time.Now itself, so tests can drive the window
// deterministically.
func (a *Aggregator) RecordReset(now time.Time) (oscillating bool) {
	m := a.modem
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := now.Add(-a.cfg.oscillationWindow)
	kept := m.resetTimes[:0]
	for _, t := range m.resetTimes {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	kept = append(kept, now)
	m.resetTimes = kept

	return len(m.resetTimes) >= a.cfg.oscillationLimit
}

// ResetOscillationCounter clears the reset history, e.g. once the modem
// has stayed up long enough to no longer be considered flapping.
func (a *Aggregator) ResetOscillationCounter() {
	m := a.modem
	m.mu.Lock()
	m.resetTimes = nil
	m.mu.Unlock()
}
