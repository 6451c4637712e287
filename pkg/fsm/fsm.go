// SPDX-License-Identifier: BSD-3-Clause

package fsm

import (
	"context"
	"fmt"
	"sync"

	"github.com/qmuntal/stateless"
)

// FSM wraps a stateless.StateMachine with the Config it was built from,
// so persistence/broadcast callbacks are fired consistently on every
// transition and guards/actions can be looked up by state pair.
type FSM struct {
	config *Config
	mu     sync.Mutex
	sm     *stateless.StateMachine
}

// New builds an FSM from config. The machine starts in Config.InitialState;
// there is no separate Start step since stateless machines are ready to
// fire immediately.
func New(config *Config) (*FSM, error) {
	if config == nil {
		return nil, fmt.Errorf("%w: config cannot be nil", ErrInvalidConfig)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	f := &FSM{config: config}
	sm := stateless.NewStateMachine(config.InitialState)

	byState := make(map[string]*stateless.StateConfiguration, len(config.States))
	for _, s := range config.States {
		sc := sm.Configure(s.Name)
		if s.OnEntry != nil {
			entry := s.OnEntry
			sc.OnEntry(func(ctx context.Context, _ ...interface{}) error { return entry(ctx) })
		}
		if s.OnExit != nil {
			exit := s.OnExit
			sc.OnExit(func(ctx context.Context, _ ...interface{}) error { return exit(ctx) })
		}
		byState[s.Name] = sc
	}

	for _, t := range config.Transitions {
		sc, ok := byState[t.From]
		if !ok {
			return nil, fmt.Errorf("%w: transition from undeclared state %q", ErrInvalidConfig, t.From)
		}
		var guards []stateless.GuardFunc
		if t.Guard != nil {
			guard := t.Guard
			guards = append(guards, func(ctx context.Context, _ ...interface{}) bool { return guard(ctx) })
		}
		// stateless's Permit rejects a destination equal to the source, so
		// a self-edge is registered as a reentry.
		if t.From == t.To {
			sc.PermitReentry(t.Trigger, guards...)
		} else {
			sc.Permit(t.Trigger, t.To, guards...)
		}
	}

	sm.OnTransitioned(func(ctx context.Context, tr stateless.Transition) {
		f.onTransitioned(ctx, tr)
	})

	f.sm = sm
	return f, nil
}

// transitionFor looks up the Transition an observed (from, to, trigger)
// triple came from. Matching on all three, not just (from, to), matters
// whenever two declared transitions share a destination under the same
// trigger but different guards (stateless picks the one whose guard
// matched; this lookup must not silently fall back to whichever of the
// two was declared first).
func (f *FSM) transitionFor(from, to, trigger string) *Transition {
	for i := range f.config.Transitions {
		t := &f.config.Transitions[i]
		if t.From == from && t.To == to && t.Trigger == trigger {
			return t
		}
	}
	return nil
}

// onTransitioned runs the matched transition's action followed by the
// configured persistence/broadcast callbacks. stateless has no hook to
// abort a transition mid-flight, so action/callback errors are swallowed
// here; callers that need to observe them should have the action itself
// report through a channel or logger closed over at Config build time.
func (f *FSM) onTransitioned(ctx context.Context, tr stateless.Transition) {
	from, _ := tr.Source.(string)
	to, _ := tr.Destination.(string)
	trigger, _ := tr.Trigger.(string)

	if t := f.transitionFor(from, to, trigger); t != nil && t.Action != nil {
		_ = t.Action(ctx, from, to)
	}
	if f.config.PersistenceCallback != nil {
		_ = f.config.PersistenceCallback(ctx, f.config.Name, to)
	}
	if f.config.BroadcastCallback != nil {
		_ = f.config.BroadcastCallback(ctx, f.config.Name, from, to, trigger)
	}
}

// Name returns the machine's configured name.
func (f *FSM) Name() string { return f.config.Name }

// Description returns the machine's configured description.
func (f *FSM) Description() string { return f.config.Description }

// CurrentState returns the machine's current state.
func (f *FSM) CurrentState(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, err := f.sm.State(ctx)
	if err != nil {
		return "", err
	}
	s, _ := st.(string)
	return s, nil
}

// IsInState reports whether the machine is currently in state.
func (f *FSM) IsInState(ctx context.Context, state string) bool {
	current, err := f.CurrentState(ctx)
	if err != nil {
		return false
	}
	return current == state
}

// Fire drives the named trigger, applying the timeout from Config.StateTimeout.
func (f *FSM) Fire(ctx context.Context, trigger string, args ...interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, f.config.StateTimeout)
	defer cancel()

	if err := f.sm.FireCtx(ctx, trigger, args...); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %w", ErrTransitionTimeout, err)
		}
		return fmt.Errorf("%w: %w", ErrInvalidTransition, err)
	}
	return nil
}

// CanFire reports whether trigger is permitted from the current state.
func (f *FSM) CanFire(ctx context.Context, trigger string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	ok, _ := f.sm.CanFireCtx(ctx, trigger)
	return ok
}

// PermittedTriggers lists triggers available from the current state.
func (f *FSM) PermittedTriggers(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	triggers, err := f.sm.PermittedTriggers(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(triggers))
	for _, t := range triggers {
		if s, ok := t.(string); ok {
			out = append(out, s)
		}
	}
	return out, nil
}

// ToGraph renders the machine as a DOT graph, for diagnostics.
func (f *FSM) ToGraph() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sm.ToGraph()
}

// Manager owns a set of independently named FSMs, e.g. one per client
// connection or worker instance.
type Manager struct {
	mu       sync.RWMutex
	machines map[string]*FSM
}

// NewManager returns an empty Manager.
func NewManager() *Manager {
	return &Manager{machines: make(map[string]*FSM)}
}

// AddStateMachine builds a machine from config and registers it under
// config.Name.
func (m *Manager) AddStateMachine(config *Config) (*FSM, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.machines[config.Name]; exists {
		return nil, fmt.Errorf("%w: %q", ErrMachineExists, config.Name)
	}
	f, err := New(config)
	if err != nil {
		return nil, err
	}
	m.machines[config.Name] = f
	return f, nil
}

// RemoveStateMachine drops a machine from the Manager. It does not stop
// any in-flight Fire call.
func (m *Manager) RemoveStateMachine(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.machines[name]; !exists {
		return fmt.Errorf("%w: %q", ErrMachineNotFound, name)
	}
	delete(m.machines, name)
	return nil
}

// GetStateMachine looks up a machine by name.
func (m *Manager) GetStateMachine(name string) (*FSM, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.machines[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrMachineNotFound, name)
	}
	return f, nil
}

// ListStateMachines returns the names of all registered machines.
func (m *Manager) ListStateMachines() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.machines))
	for name := range m.machines {
		names = append(names, name)
	}
	return names
}

// StopAll removes every registered machine.
func (m *Manager) StopAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.machines = make(map[string]*FSM)
}
