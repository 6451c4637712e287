// SPDX-License-Identifier: BSD-3-Clause

package client

import (
	"context"
	"sync"

	"github.com/arunsworld/nursery"
)

// ArmColdResetAck marks id as owing an ACK_COLD_RESET before the
// MDM_COLD_RESET notification is sent, and returns the channel that
// closes once the ack arrives (via AckColdReset) or the client
// disconnects (via Unregister).
func (a *Aggregator) ArmColdResetAck(id string) (chan struct{}, error) {
	c, err := a.Get(id)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pendingColdAck = true
	c.coldAckCh = make(chan struct{})
	return c.coldAckCh, nil
}

// ArmShutdownAck is ArmColdResetAck's counterpart for SHUTDOWN/ACK_SHUTDOWN.
func (a *Aggregator) ArmShutdownAck(id string) (chan struct{}, error) {
	c, err := a.Get(id)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pendingShutdownAck = true
	c.shutdownAckCh = make(chan struct{})
	return c.shutdownAckCh, nil
}

// AckColdReset records id's ACK_COLD_RESET.
func (a *Aggregator) AckColdReset(id string) error {
	c, err := a.Get(id)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pendingColdAck && c.coldAckCh != nil {
		close(c.coldAckCh)
		c.pendingColdAck = false
	}
	return nil
}

// AckShutdown records id's ACK_SHUTDOWN.
func (a *Aggregator) AckShutdown(id string) error {
	c, err := a.Get(id)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pendingShutdownAck && c.shutdownAckCh != nil {
		close(c.shutdownAckCh)
		c.pendingShutdownAck = false
	}
	return nil
}

// CollectAcks waits, up to the Aggregator's configured ack timeout, for
// every channel in chans to close, running the waits concurrently the
// way u-bmc's statemgr spins up N state machines concurrently via
// nursery. A client that never acks within the deadline is simply not
// in the returned set.
func (a *Aggregator) CollectAcks(ctx context.Context, chans map[string]chan struct{}) map[string]bool {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.ackTimeout)
	defer cancel()

	acked := make(map[string]bool, len(chans))
	var mu sync.Mutex

	var jobs []nursery.ConcurrentJob
	for id, ch := range chans {
		id, ch := id, ch
		jobs = append(jobs, func(ctx context.Context, errCh chan error) {
			select {
			case <-ch:
				mu.Lock()
				acked[id] = true
				mu.Unlock()
			case <-ctx.Done():
			}
		})
	}
	if len(jobs) == 0 {
		return acked
	}

	_ = nursery.RunConcurrentlyWithContext(ctx, jobs...)
	return acked
}

// AwaitAck reports whether a single ack channel closed within the
// deadline, for call sites that only care about one client at a time.
func (a *Aggregator) AwaitAck(ctx context.Context, ch chan struct{}) bool {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.ackTimeout)
	defer cancel()
	select {
	case <-ch:
		return true
	case <-ctx.Done():
		return false
	}
}
