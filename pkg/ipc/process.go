// SPDX-License-Identifier: BSD-3-Clause

package ipc

import (
	"encoding/binary"
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/crm-project/crm/internal/workerbus"
)

// natsSubscription is the subset of *nats.Subscription ProcessChannel
// needs, small enough to fake in tests without an embedded server.
type natsSubscription interface {
	Unsubscribe() error
}

// natsConn is the subset of *nats.Conn ProcessChannel needs, small enough
// to fake in tests without an embedded server.
type natsConn interface {
	Publish(subject string, data []byte) error
	Subscribe(subject string, cb nats.MsgHandler) (natsSubscription, error)
}

// realConn adapts *nats.Conn to natsConn; *nats.Conn.Subscribe returns the
// concrete *nats.Subscription, which satisfies natsSubscription but not
// natsConn directly.
type realConn struct {
	*nats.Conn
}

func (r realConn) Subscribe(subject string, cb nats.MsgHandler) (natsSubscription, error) {
	return r.Conn.Subscribe(subject, cb)
}

// ProcessOption configures a ProcessChannel.
type ProcessOption interface {
	apply(*processConfig)
}

type processConfig struct {
	mirrored bool
}

type processOptionFunc func(*processConfig)

func (f processOptionFunc) apply(c *processConfig) { f(c) }

// Mirrored swaps which suffix ProcessChannel publishes to and subscribes
// on. A worker-host/worker pair always uses one plain ProcessChannel on
// one side and one Mirrored ProcessChannel on the other, so that one
// side's outbound subject is the other's inbound subject.
func Mirrored() ProcessOption {
	return processOptionFunc(func(c *processConfig) { c.mirrored = true })
}

// ProcessChannel is the cross-process Channel backend, built on a subject
// pair over the embedded worker bus (internal/workerbus). Every Msg is
// copied into a byte slice for the trip across the bus and copied back out
// on arrival: no pointer this daemon holds ever crosses the process
// boundary, matching the original's CRM_IPC_PROCESS contract.
type ProcessChannel struct {
	conn natsConn
	sub  natsSubscription

	inSubject  string
	outSubject string

	ready chan struct{}

	mu     sync.Mutex
	queue  []Msg
	closed bool
}

// NewProcessChannel creates a ProcessChannel addressed by subject, opening
// its own connection to the embedded bus. The host side of a workerhost
// pair calls this with no options; the worker-side process, re-exec'd with
// the same subject in its environment, calls this with Mirrored() so each
// side's outbound subject lands on the other's inbound subject.
func NewProcessChannel(bus *workerbus.Bus, subject string, opts ...ProcessOption) (*ProcessChannel, error) {
	conn, err := bus.Conn()
	if err != nil {
		return nil, err
	}
	return newProcessChannel(realConn{conn}, subject, opts...)
}

// ConnectProcessChannel dials a real NATS connection at addr (the
// "host:port" internal/workerbus.Bus.Addr reports) and builds a
// ProcessChannel on top of it. This is the constructor a re-exec'd
// supervisor or worker process uses: it has no access to the in-process
// Bus value, only the address passed down through its environment.
func ConnectProcessChannel(addr, subject string, opts ...ProcessOption) (*ProcessChannel, error) {
	conn, err := nats.Connect("nats://" + addr)
	if err != nil {
		return nil, err
	}
	return newProcessChannel(realConn{conn}, subject, opts...)
}

func newProcessChannel(conn natsConn, subject string, opts ...ProcessOption) (*ProcessChannel, error) {
	cfg := &processConfig{}
	for _, opt := range opts {
		opt.apply(cfg)
	}

	in, out := subject+".in", subject+".out"
	if cfg.mirrored {
		in, out = out, in
	}

	c := &ProcessChannel{
		conn:       conn,
		inSubject:  in,
		outSubject: out,
		ready:      make(chan struct{}, 1),
	}

	sub, err := conn.Subscribe(in, c.onMessage)
	if err != nil {
		return nil, err
	}
	c.sub = sub
	return c, nil
}

func (c *ProcessChannel) onMessage(m *nats.Msg) {
	msg, ok := decodeMsg(m.Data)
	if !ok {
		return
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.queue = append(c.queue, msg)
	c.mu.Unlock()

	select {
	case c.ready <- struct{}{}:
	default:
	}
}

// Send implements Channel.
func (c *ProcessChannel) Send(msg Msg) bool {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return false
	}
	return c.conn.Publish(c.outSubject, encodeMsg(msg)) == nil
}

// TryGet implements Channel.
func (c *ProcessChannel) TryGet() (Msg, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.queue) == 0 {
		return Msg{}, false
	}
	msg := c.queue[0]
	c.queue = c.queue[1:]
	return msg, true
}

// Ready implements Channel.
func (c *ProcessChannel) Ready() <-chan struct{} {
	return c.ready
}

// Close implements Channel.
func (c *ProcessChannel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	var err error
	if c.sub != nil {
		err = c.sub.Unsubscribe()
	}
	close(c.ready)
	return err
}

var _ Channel = (*ProcessChannel)(nil)

// encodeMsg/decodeMsg carry a Msg across the bus as {i64 scalar, raw data}.
func encodeMsg(msg Msg) []byte {
	buf := make([]byte, 8+len(msg.Data))
	binary.BigEndian.PutUint64(buf[:8], uint64(msg.Scalar))
	copy(buf[8:], msg.Data)
	return buf
}

func decodeMsg(buf []byte) (Msg, bool) {
	if len(buf) < 8 {
		return Msg{}, false
	}
	scalar := int64(binary.BigEndian.Uint64(buf[:8]))
	data := make([]byte, len(buf)-8)
	copy(data, buf[8:])
	return Msg{Scalar: scalar, Data: data}, true
}
