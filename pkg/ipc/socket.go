// SPDX-License-Identifier: BSD-3-Clause

package ipc

import "net"

// SocketChannel is the Channel backend for one accepted mdmcli
// connection: a goroutine blocks on reading whole wire frames off conn
// and feeds each one into the same buffered queue ThreadChannel uses,
// so internal/loop can poll a client socket exactly like any other
// source instead of knowing it is a net.Conn.
type SocketChannel struct {
	conn net.Conn
	*ThreadChannel
}

// NewSocketChannel wraps conn, whose first frame has already been
// consumed by whatever accepted it (spec.md §1: the REGISTER/REGISTER_DBG
// handshake is handled before a channel is ever registered on the loop),
// and starts the read loop. readFrame reads exactly one frame off conn;
// internal/supervise passes wire.Decode re-encoded via wire.Encode,
// since this package cannot import pkg/wire without an import cycle.
// onClose, if non-nil, runs once the read loop exits (EOF or a protocol
// violation), so the caller can deregister the client elsewhere.
func NewSocketChannel(conn net.Conn, depth int, readFrame func(net.Conn) ([]byte, error), onClose func()) *SocketChannel {
	sc := &SocketChannel{conn: conn, ThreadChannel: NewThreadChannel(depth)}
	go sc.readLoop(readFrame, onClose)
	return sc
}

func (c *SocketChannel) readLoop(readFrame func(net.Conn) ([]byte, error), onClose func()) {
	defer func() {
		_ = c.Close()
		if onClose != nil {
			onClose()
		}
	}()
	for {
		frame, err := readFrame(c.conn)
		if err != nil {
			return
		}
		if !c.ThreadChannel.Send(Msg{Data: frame}) {
			return
		}
	}
}

// Send implements Channel by writing directly to the socket: the inbound
// queue ThreadChannel gives us carries client->server frames only, since
// internal/client's Aggregator already owns this conn's outbound writes
// through the io.Writer it was registered with.
func (c *SocketChannel) Send(msg Msg) bool {
	_, err := c.conn.Write(msg.Data)
	return err == nil
}

// Close implements Channel, closing both the underlying connection and
// the inbound queue. Safe to call more than once.
func (c *SocketChannel) Close() error {
	_ = c.conn.Close()
	return c.ThreadChannel.Close()
}

var _ Channel = (*SocketChannel)(nil)
