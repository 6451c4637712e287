// SPDX-License-Identifier: BSD-3-Clause

package supervise

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/crm-project/crm/internal/client"
	"github.com/crm-project/crm/pkg/ipc"
	"github.com/crm-project/crm/pkg/wire"
)

// acceptClients opens the mdmcli listen socket (spec.md §6's
// "crm<instance>" Unix-domain socket) and accepts connections until ctx
// is canceled, handing each one to registerClient. It is component D's
// entry point: nothing upstream of this loop ever calls loop.AddClient.
func (d *daemonService) acceptClients(ctx context.Context) error {
	path := filepath.Join(d.socketDir, "crm"+d.instanceID)

	if err := removeStaleSocket(path); err != nil {
		return fmt.Errorf("daemon: remove stale client socket: %w", err)
	}

	ln, err := net.Listen("unix", path)
	if err != nil {
		return fmt.Errorf("daemon: listen on client socket: %w", err)
	}
	if err := os.Chmod(path, 0o666); err != nil {
		_ = ln.Close()
		return fmt.Errorf("daemon: chmod client socket: %w", err)
	}
	defer os.Remove(path)

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	var nextID atomic.Int64
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("daemon: accept client: %w", err)
		}
		id := fmt.Sprintf("client:%d", nextID.Add(1))
		go d.registerClient(ctx, id, conn)
	}
}

// registerClient consumes the mandatory first REGISTER/REGISTER_DBG
// frame (spec.md §4.H: the client listen socket is accepted only by
// component D, which owns this handshake before anything is registered
// on the loop), admits the client into the aggregator, and only then
// wraps conn as a Channel and puts it on the event loop.
func (d *daemonService) registerClient(ctx context.Context, id string, conn net.Conn) {
	m, err := wire.Decode(conn)
	if err != nil {
		d.logger.WarnContext(ctx, "daemon: client handshake failed", "client", id, "error", err)
		_ = conn.Close()
		return
	}

	debug := m.ID == wire.RegisterDebug
	if m.ID != wire.Register && !debug {
		d.logger.WarnContext(ctx, "daemon: client did not register first", "client", id, "id", m.ID)
		_ = conn.Close()
		return
	}
	if debug && !d.debugEnable {
		d.logger.WarnContext(ctx, "daemon: rejecting debug registration", "client", id, "error", client.ErrDebugDisabled)
		_ = conn.Close()
		return
	}

	if _, err := d.clients.Register(id, m.Name, m.EventsBitmap, debug, conn); err != nil {
		d.logger.WarnContext(ctx, "daemon: client registration rejected", "client", id, "name", m.Name, "error", err)
		_ = conn.Close()
		return
	}

	onClose := func() {
		d.loop.RemoveClient(id)
		d.clients.Unregister(id)
	}
	ch := ipc.NewSocketChannel(conn, ipc.MinThreadDepth, readWireFrame, onClose)
	d.loop.AddClient(id, ch)
}

// readWireFrame decodes exactly one wire frame off conn and re-encodes
// it, the shape pkg/ipc.SocketChannel needs to stay independent of
// pkg/wire: internal/loop's Client handler (daemonService.handleClient)
// decodes the frame itself from msg.Data.
func readWireFrame(conn net.Conn) ([]byte, error) {
	m, err := wire.Decode(conn)
	if err != nil {
		return nil, err
	}
	return wire.Encode(m)
}

// removeStaleSocket removes a leftover socket file from a previous crash,
// refusing to touch anything that isn't actually a socket.
func removeStaleSocket(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	if info.Mode().Type() != fs.ModeSocket {
		return fmt.Errorf("daemon: refusing to remove non-socket at %s", path)
	}
	return os.Remove(path)
}
