// SPDX-License-Identifier: BSD-3-Clause

package workerbus

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"

	"github.com/crm-project/crm/pkg/log"
	"github.com/crm-project/crm/service"
)

// Compile-time assertion that Bus implements service.Service.
var _ service.Service = (*Bus)(nil)

// Bus is the embedded NATS server that carries messages between
// internal/workerhost and the re-exec'd supervisor/worker processes. See
// doc.go for why CRM embeds a server rather than shelling out to one.
type Bus struct {
	config *config
	server *server.Server
}

// New constructs a Bus. It does not start the embedded server; that
// happens in Run, following the same service.Service lifecycle every
// other long-running CRM component uses.
func New(opts ...Option) *Bus {
	return &Bus{config: newConfig(opts...)}
}

// Name implements service.Service.
func (b *Bus) Name() string {
	return b.config.serverName
}

// Run implements service.Service: it starts the embedded NATS server,
// blocks until ctx is canceled, then shuts the server down gracefully.
func (b *Bus) Run(ctx context.Context, _ nats.InProcessConnProvider) error {
	l := b.config.logger.With("component", "workerbus")
	l.InfoContext(ctx, "starting worker bus", "server_name", b.config.serverName)

	ns, err := server.NewServer(b.config.toServerOptions())
	if err != nil {
		return fmt.Errorf("%w: %w", ErrServerCreationFailed, err)
	}
	ns.SetLoggerV2(log.NewNATSLogger(l), false, false, false)
	b.server = ns
	b.server.Start()

	if !b.server.ReadyForConnections(b.config.startupTimeout) {
		b.server.Shutdown()
		return fmt.Errorf("%w: not ready within %s", ErrServerNotReady, b.config.startupTimeout)
	}
	l.InfoContext(ctx, "worker bus ready", "server_id", b.server.ID())

	<-ctx.Done()

	l.InfoContext(ctx, "shutting down worker bus", "timeout", b.config.shutdownTimeout)
	done := make(chan struct{})
	go func() {
		defer close(done)
		b.server.Shutdown()
	}()
	select {
	case <-done:
	case <-time.After(b.config.shutdownTimeout):
		l.WarnContext(ctx, "worker bus shutdown timed out")
	}

	return ctx.Err()
}

// ConnProvider returns an ipc.ConnProvider-compatible handle to the
// embedded server, polling briefly if Run hasn't finished starting yet.
func (b *Bus) ConnProvider() *ConnProvider {
	deadline := time.Now().Add(b.config.startupTimeout)
	for b.server == nil && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	return &ConnProvider{server: b.server}
}

// Conn opens a *nats.Conn against the embedded server for publish/subscribe
// use by pkg/ipc.ProcessChannel from within CRM's own process. Each caller
// gets its own connection; the embedded server handles fan-out.
func (b *Bus) Conn() (*nats.Conn, error) {
	provider := b.ConnProvider()
	return nats.Connect("", nats.InProcessServer(provider))
}

// Addr returns the "host:port" the embedded server is listening on, for
// passing to a re-exec'd worker or supervisor process via the environment
// (see internal/workerhost). Returns ErrServerNotReady if the server
// hasn't started listening yet, or if it was built with WithInProcessOnly.
func (b *Bus) Addr() (string, error) {
	deadline := time.Now().Add(b.config.startupTimeout)
	for b.server == nil && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if b.server == nil {
		return "", ErrServerNotReady
	}
	addr := b.server.Addr()
	if addr == nil {
		return "", fmt.Errorf("%w: bus is in-process-only", ErrServerNotReady)
	}
	return addr.String(), nil
}
