// SPDX-License-Identifier: BSD-3-Clause

package client

import (
	"io"
	"sync"

	"github.com/crm-project/crm/pkg/wire"
)

// Client is one connected mdmcli process.
type Client struct {
	ID     string
	Name   string
	Events uint32 // subscription bitmap from REGISTER/REGISTER_DBG
	Debug  bool

	writer io.Writer

	mu                 sync.Mutex
	holdsAcquire       bool
	pendingColdAck     bool
	pendingShutdownAck bool
	coldAckCh          chan struct{}
	shutdownAckCh      chan struct{}
	restartInFlight    bool
	disconnected       bool
}

// Subscribed reports whether id's bitmap includes evt.
func (c *Client) Subscribed(evt wire.ID) bool {
	bit := eventBit(evt)
	if bit == 0 {
		return true
	}
	return c.Events&bit != 0
}

// eventBit maps a server->client wire.ID to the bit mdmcli sets in its
// subscription bitmap. Client requests (Register..NotifyDebug) have no
// bit: they are never filtered by subscription.
func eventBit(id wire.ID) uint32 {
	switch id {
	case wire.MdmDown:
		return 1 << 0
	case wire.MdmUp:
		return 1 << 1
	case wire.MdmOn:
		return 1 << 2
	case wire.MdmOOS:
		return 1 << 3
	case wire.MdmBusy:
		return 1 << 4
	case wire.MdmFlash:
		return 1 << 5
	case wire.MdmDump:
		return 1 << 6
	case wire.MdmNeedReset:
		return 1 << 7
	case wire.MdmColdReset:
		return 1 << 8
	case wire.MdmShutdown:
		return 1 << 9
	case wire.MdmDbgInfo:
		return 1 << 10
	default:
		return 0
	}
}

// HoldsAcquire reports whether this client currently holds an acquire.
func (c *Client) HoldsAcquire() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.holdsAcquire
}

// Aggregator is the registry of every connected client plus the shared
// modem intent they express together: the acquire count, the reset
// oscillation window, and the modem substate machine.
type Aggregator struct {
	cfg *config

	mu       sync.RWMutex
	byID     map[string]*Client
	byName   map[string]string // name -> id
	acquires int

	modem *modemState
}

// NewAggregator builds an empty Aggregator.
func NewAggregator(opts ...Option) (*Aggregator, error) {
	cfg := newConfig(opts...)
	m, err := newModemState(cfg)
	if err != nil {
		return nil, err
	}
	return &Aggregator{
		cfg:    cfg,
		byID:   make(map[string]*Client),
		byName: make(map[string]string),
		modem:  m,
	}, nil
}

// Register admits a new client. debug must be false unless the caller
// has already checked property.debug_enable: Aggregator itself does not
// hold a *config.Settings, so that gate lives in internal/supervise where
// the settings are in scope.
func (a *Aggregator) Register(id, name string, bitmap uint32, debug bool, w io.Writer) (*Client, error) {
	if len(name) > wire.MaxNameLen {
		return nil, ErrNameTooLong
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if _, exists := a.byName[name]; exists {
		return nil, ErrDuplicateName
	}

	c := &Client{
		ID:     id,
		Name:   name,
		Events: bitmap,
		Debug:  debug,
		writer: w,
	}
	a.byID[id] = c
	a.byName[name] = id
	return c, nil
}

// Unregister removes a client, implicitly releasing any acquire it held
// and implicitly acking any cold-reset/shutdown it owed: a disconnected
// socket can never send ACK_COLD_RESET/ACK_SHUTDOWN, so the protocol
// treats disconnection itself as the ack.
func (a *Aggregator) Unregister(id string) {
	a.mu.Lock()
	c, ok := a.byID[id]
	if !ok {
		a.mu.Unlock()
		return
	}
	delete(a.byID, id)
	delete(a.byName, c.Name)
	a.mu.Unlock()

	c.mu.Lock()
	c.disconnected = true
	if c.holdsAcquire {
		c.holdsAcquire = false
		a.decAcquire()
	}
	if c.pendingColdAck && c.coldAckCh != nil {
		close(c.coldAckCh)
		c.pendingColdAck = false
	}
	if c.pendingShutdownAck && c.shutdownAckCh != nil {
		close(c.shutdownAckCh)
		c.pendingShutdownAck = false
	}
	c.mu.Unlock()
}

// Get looks up a client by id.
func (a *Aggregator) Get(id string) (*Client, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	c, ok := a.byID[id]
	if !ok {
		return nil, ErrUnknownClient
	}
	return c, nil
}

// All returns a snapshot of every connected client.
func (a *Aggregator) All() []*Client {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]*Client, 0, len(a.byID))
	for _, c := range a.byID {
		out = append(out, c)
	}
	return out
}

// Acquire records that id now holds an acquire. Repeated acquires by the
// same client are idempotent and do not inflate the aggregate count.
func (a *Aggregator) Acquire(id string) error {
	c, err := a.Get(id)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.holdsAcquire {
		return nil
	}
	c.holdsAcquire = true
	a.incAcquire()
	return nil
}

// Release clears id's acquire hold.
func (a *Aggregator) Release(id string) error {
	c, err := a.Get(id)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.holdsAcquire {
		return ErrNotAcquired
	}
	c.holdsAcquire = false
	a.decAcquire()
	return nil
}

// HasAcquire reports whether any client currently holds an acquire: the
// control FSM keeps the modem powered on exactly while this is true.
func (a *Aggregator) HasAcquire() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.acquires > 0
}

func (a *Aggregator) incAcquire() {
	a.mu.Lock()
	a.acquires++
	a.mu.Unlock()
}

func (a *Aggregator) decAcquire() {
	a.mu.Lock()
	if a.acquires > 0 {
		a.acquires--
	}
	a.mu.Unlock()
}

// RequestRestart records a client's RESTART request, collapsing it with
// any restart already in flight for that client: a second RESTART before
// the first has completed is a no-op, matching the original's dedup of
// back-to-back restart requests from one misbehaving client.
func (a *Aggregator) RequestRestart(id string) (collapsed bool, err error) {
	c, err := a.Get(id)
	if err != nil {
		return false, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.restartInFlight {
		return true, nil
	}
	c.restartInFlight = true
	return false, nil
}

// ClearRestart marks id's in-flight restart as completed.
func (a *Aggregator) ClearRestart(id string) {
	c, err := a.Get(id)
	if err != nil {
		return
	}
	c.mu.Lock()
	c.restartInFlight = false
	c.mu.Unlock()
}
