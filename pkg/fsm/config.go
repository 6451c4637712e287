// SPDX-License-Identifier: BSD-3-Clause

package fsm

import (
	"context"
	"fmt"
	"time"
)

// PersistenceCallback is invoked after every successful transition, if set.
type PersistenceCallback func(ctx context.Context, machineName, state string) error

// BroadcastCallback is invoked after every successful transition, if set,
// after the persistence callback.
type BroadcastCallback func(ctx context.Context, machineName, previousState, currentState, trigger string) error

// GuardFunc decides whether a transition may fire. A guard returning false
// makes the trigger appear unavailable to CanFire/PermittedTriggers.
type GuardFunc func(ctx context.Context) bool

// ActionFunc runs once a transition's destination state has been entered.
type ActionFunc func(ctx context.Context, from, to string) error

// EntryFunc runs whenever a state is entered, regardless of which
// transition led there.
type EntryFunc func(ctx context.Context) error

// ExitFunc runs whenever a state is exited.
type ExitFunc func(ctx context.Context) error

// StateDefinition describes one state's entry/exit hooks.
type StateDefinition struct {
	Name    string
	OnEntry EntryFunc
	OnExit  ExitFunc
}

// Transition describes one edge of the state graph.
type Transition struct {
	From    string
	To      string
	Trigger string
	Guard   GuardFunc
	Action  ActionFunc
}

// Config holds the full definition of a state machine.
type Config struct {
	Name         string
	Description  string
	InitialState string
	States       []StateDefinition
	Transitions  []Transition
	StateTimeout time.Duration

	PersistenceCallback PersistenceCallback
	BroadcastCallback   BroadcastCallback
}

// Option configures a Config.
type Option interface {
	apply(*Config)
}

type optionFunc func(*Config)

func (f optionFunc) apply(c *Config) { f(c) }

// WithName sets the machine's name.
func WithName(name string) Option {
	return optionFunc(func(c *Config) { c.Name = name })
}

// WithDescription sets the machine's human-readable description.
func WithDescription(description string) Option {
	return optionFunc(func(c *Config) { c.Description = description })
}

// WithInitialState sets the machine's starting state.
func WithInitialState(state string) Option {
	return optionFunc(func(c *Config) { c.InitialState = state })
}

// WithState registers a state, with optional entry/exit hooks.
func WithState(def StateDefinition) Option {
	return optionFunc(func(c *Config) { c.States = append(c.States, def) })
}

// WithStates registers states by name with no hooks.
func WithStates(names ...string) Option {
	return optionFunc(func(c *Config) {
		for _, n := range names {
			c.States = append(c.States, StateDefinition{Name: n})
		}
	})
}

// WithTransition adds an unconditional transition.
func WithTransition(from, to, trigger string) Option {
	return optionFunc(func(c *Config) {
		c.Transitions = append(c.Transitions, Transition{From: from, To: to, Trigger: trigger})
	})
}

// WithGuardedTransition adds a transition that only fires when guard returns true.
func WithGuardedTransition(from, to, trigger string, guard GuardFunc) Option {
	return optionFunc(func(c *Config) {
		c.Transitions = append(c.Transitions, Transition{From: from, To: to, Trigger: trigger, Guard: guard})
	})
}

// WithActionTransition adds a transition that runs action after entering To.
func WithActionTransition(from, to, trigger string, action ActionFunc) Option {
	return optionFunc(func(c *Config) {
		c.Transitions = append(c.Transitions, Transition{From: from, To: to, Trigger: trigger, Action: action})
	})
}

// WithCompleteTransition adds a transition with both a guard and an action.
func WithCompleteTransition(from, to, trigger string, guard GuardFunc, action ActionFunc) Option {
	return optionFunc(func(c *Config) {
		c.Transitions = append(c.Transitions, Transition{From: from, To: to, Trigger: trigger, Guard: guard, Action: action})
	})
}

// WithStateTimeout bounds how long a single Fire call may take.
func WithStateTimeout(timeout time.Duration) Option {
	return optionFunc(func(c *Config) { c.StateTimeout = timeout })
}

// WithPersistence sets the persistence callback.
func WithPersistence(cb PersistenceCallback) Option {
	return optionFunc(func(c *Config) { c.PersistenceCallback = cb })
}

// WithBroadcast sets the broadcast callback.
func WithBroadcast(cb BroadcastCallback) Option {
	return optionFunc(func(c *Config) { c.BroadcastCallback = cb })
}

const defaultStateTimeout = 5 * time.Second

// NewConfig builds a Config from options.
func NewConfig(opts ...Option) *Config {
	cfg := &Config{StateTimeout: defaultStateTimeout}
	for _, opt := range opts {
		opt.apply(cfg)
	}
	return cfg
}

// Validate checks internal consistency: every referenced state must be
// declared, the initial state must exist, and there must be no duplicates.
func (c *Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidConfig)
	}
	if c.InitialState == "" {
		return fmt.Errorf("%w: initial state cannot be empty", ErrInvalidConfig)
	}
	if len(c.States) == 0 {
		return fmt.Errorf("%w: at least one state must be defined", ErrInvalidConfig)
	}

	names := make(map[string]bool, len(c.States))
	for _, s := range c.States {
		if s.Name == "" {
			return fmt.Errorf("%w: state name cannot be empty", ErrInvalidConfig)
		}
		if names[s.Name] {
			return fmt.Errorf("%w: duplicate state %q", ErrInvalidConfig, s.Name)
		}
		names[s.Name] = true
	}
	if !names[c.InitialState] {
		return fmt.Errorf("%w: initial state %q not declared", ErrInvalidConfig, c.InitialState)
	}

	for _, t := range c.Transitions {
		if t.From == "" || t.To == "" || t.Trigger == "" {
			return fmt.Errorf("%w: transition missing from/to/trigger", ErrInvalidConfig)
		}
		if !names[t.From] {
			return fmt.Errorf("%w: transition from %q not declared", ErrInvalidConfig, t.From)
		}
		if !names[t.To] {
			return fmt.Errorf("%w: transition to %q not declared", ErrInvalidConfig, t.To)
		}
	}

	if c.StateTimeout <= 0 {
		return fmt.Errorf("%w: state timeout must be positive", ErrInvalidConfig)
	}

	return nil
}
