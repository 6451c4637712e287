// SPDX-License-Identifier: BSD-3-Clause

package ipc

import "sync"

// ThreadChannel is the in-process Channel backend: a buffered queue plus a
// readiness signal, used whenever producer and consumer are goroutines in
// the same CRM process.
type ThreadChannel struct {
	queue chan Msg
	ready chan struct{}

	mu        sync.Mutex
	closed    bool
	closeOnce sync.Once
}

// MinThreadDepth is the minimum buffer depth NewThreadChannel accepts,
// matching the smallest queue depth the original used for any client or
// worker channel.
const MinThreadDepth = 8

// NewThreadChannel creates a ThreadChannel with the given buffer depth,
// raised to MinThreadDepth if smaller.
func NewThreadChannel(depth int) *ThreadChannel {
	if depth < MinThreadDepth {
		depth = MinThreadDepth
	}
	return &ThreadChannel{
		queue: make(chan Msg, depth),
		ready: make(chan struct{}, 1),
	}
}

// Send implements Channel.
func (c *ThreadChannel) Send(msg Msg) bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	c.mu.Unlock()

	select {
	case c.queue <- msg:
		c.signal()
		return true
	default:
		return false
	}
}

// TryGet implements Channel.
func (c *ThreadChannel) TryGet() (Msg, bool) {
	select {
	case m := <-c.queue:
		return m, true
	default:
		return Msg{}, false
	}
}

// Ready implements Channel.
func (c *ThreadChannel) Ready() <-chan struct{} {
	return c.ready
}

// Close implements Channel. It is safe to call more than once.
func (c *ThreadChannel) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		close(c.ready)
		c.mu.Unlock()
	})
	return nil
}

// signal pings the ready channel without blocking. It holds the same lock
// Close uses so a signal attempt never races a close of the ready channel.
func (c *ThreadChannel) signal() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.ready <- struct{}{}:
	default:
	}
}

var _ Channel = (*ThreadChannel)(nil)
