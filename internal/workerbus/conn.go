// SPDX-License-Identifier: BSD-3-Clause

package workerbus

import (
	"fmt"
	"net"
	"time"

	"github.com/nats-io/nats-server/v2/server"
)

// ConnProvider implements pkg/ipc.ConnProvider against the embedded server,
// so the same provider-style wiring the teacher used for its BMC-wide NATS
// bus works unchanged for the worker bus.
type ConnProvider struct {
	server *server.Server
}

// InProcessConn returns an in-process net.Conn to the embedded server,
// blocking (briefly) for the server to finish starting if necessary.
func (p *ConnProvider) InProcessConn() (net.Conn, error) {
	if p.server == nil {
		return nil, ErrConnectionNotAvailable
	}
	if !p.server.ReadyForConnections(time.Minute) {
		return nil, ErrServerNotReady
	}
	conn, err := p.server.InProcessConn()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInProcessConnFailed, err)
	}
	return conn, nil
}
