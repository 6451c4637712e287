// SPDX-License-Identifier: BSD-3-Clause

package workerhost

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/crm-project/crm/internal/workerbus"
	"github.com/crm-project/crm/pkg/ipc"
	"github.com/crm-project/crm/service"
)

// EnvWorkerSupervisor, when set to "1" in a re-exec'd CRM process's
// environment, tells cmd/crmd to run as the worker supervisor instead of
// the daemon. EnvWorkerBusAddr carries the embedded bus's listen address.
const (
	EnvWorkerSupervisor = "CRM_WORKER_SUPERVISOR"
	EnvWorkerPlugin     = "CRM_WORKER_PLUGIN"
	EnvWorkerID         = "CRM_WORKER_ID"
	EnvWorkerSubject    = "CRM_WORKER_SUBJECT"
	EnvWorkerInit       = "CRM_WORKER_INIT"
	EnvWorkerBusAddr    = "CRM_WORKERBUS_ADDR"
)

// Compile-time assertion that Host implements service.Service.
var _ service.Service = (*Host)(nil)

// Host is the worker host of spec.md §4.B, living in CRM's main process.
// It never forks a worker directly; every lifecycle command is relayed to
// a re-exec'd Supervisor sub-process over the embedded worker bus.
type Host struct {
	config *config

	supervisorCmd  *exec.Cmd
	supervisorChan *ipc.ProcessChannel

	mu       sync.Mutex
	handles  map[int]*Handle
	nextID   int
	pending  map[int]chan ackResponse
	ready    chan struct{}
	readyErr error
}

// New builds a Host bound to bus. Run must be called before Spawn.
func New(bus *workerbus.Bus, opts ...Option) *Host {
	return &Host{
		config:  newConfig(bus, opts...),
		handles: make(map[int]*Handle),
		pending: make(map[int]chan ackResponse),
		ready:   make(chan struct{}),
	}
}

// Name implements service.Service.
func (h *Host) Name() string { return "workerhost" }

// Run implements service.Service: it re-execs the CRM binary as the
// worker supervisor, establishes the command/ack channel to it, and then
// blocks until ctx is canceled, at which point it disposes of every
// worker and terminates the supervisor.
func (h *Host) Run(ctx context.Context, _ nats.InProcessConnProvider) error {
	l := h.config.logger.With("component", "workerhost")

	addr, err := h.config.bus.Addr()
	if err != nil {
		h.failReady(err)
		return fmt.Errorf("%w: %w", ErrSupervisorGone, err)
	}

	exe, err := os.Executable()
	if err != nil {
		h.failReady(err)
		return err
	}

	cmd := exec.CommandContext(ctx, exe)
	cmd.Env = append(os.Environ(),
		EnvWorkerSupervisor+"=1",
		EnvWorkerBusAddr+"="+addr,
	)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	l.InfoContext(ctx, "starting worker supervisor", "path", exe)
	if err := cmd.Start(); err != nil {
		h.failReady(err)
		return fmt.Errorf("%w: %w", ErrSupervisorGone, err)
	}
	h.supervisorCmd = cmd

	supChan, err := ipc.NewProcessChannel(h.config.bus, h.config.busySubject)
	if err != nil {
		h.failReady(err)
		return err
	}
	h.supervisorChan = supChan
	close(h.ready)

	go h.dispatchAcks(ctx)

	supervisorDone := make(chan error, 1)
	go func() { supervisorDone <- cmd.Wait() }()

	select {
	case <-ctx.Done():
	case err := <-supervisorDone:
		l.ErrorContext(ctx, "worker supervisor exited unexpectedly", "error", err)
		return fmt.Errorf("%w: %w", ErrSupervisorGone, err)
	}

	_ = h.Dispose(context.Background())
	_ = supChan.Close()
	<-supervisorDone

	return ctx.Err()
}

func (h *Host) failReady(err error) {
	h.mu.Lock()
	h.readyErr = err
	h.mu.Unlock()
	close(h.ready)
}

// waitReady blocks until Run has established the supervisor channel, or
// ctx is canceled.
func (h *Host) waitReady(ctx context.Context) error {
	select {
	case <-h.ready:
		h.mu.Lock()
		err := h.readyErr
		h.mu.Unlock()
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// dispatchAcks routes every ackResponse arriving on the supervisor channel
// to whichever Spawn/Clean/Kill/Dispose call is waiting for it, and any
// unsolicited death notification (a frame whose scalar carries
// cmdDeathNotice, decoded as a simpleRequest) to markDead.
func (h *Host) dispatchAcks(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-h.supervisorChan.Ready():
		}
		for {
			msg, ok := h.supervisorChan.TryGet()
			if !ok {
				break
			}
			if cmdKind(msg.Scalar) == cmdDeathNotice {
				notice, err := decodeJSON[simpleRequest](msg.Data)
				if err == nil {
					h.markDead(notice.ID)
				}
				continue
			}
			ack, err := decodeJSON[ackResponse](msg.Data)
			if err != nil {
				continue
			}
			h.mu.Lock()
			waiter, ok := h.pending[ack.ID]
			h.mu.Unlock()
			if ok {
				waiter <- ack
			}
		}
	}
}

func (h *Host) markDead(id int) {
	h.mu.Lock()
	handle, ok := h.handles[id]
	h.mu.Unlock()
	if ok {
		handle.setDead()
	}
}

func (h *Host) allocID() (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.handles) >= h.config.maxWorkers {
		return 0, ErrNoFreeSlots
	}
	for id := 0; id < h.config.maxWorkers; id++ {
		if _, taken := h.handles[id]; !taken {
			return id, nil
		}
	}
	return 0, ErrNoFreeSlots
}

func (h *Host) send(ctx context.Context, kind cmdKind, id int, payload any) (ackResponse, error) {
	if err := h.waitReady(ctx); err != nil {
		return ackResponse{}, err
	}

	waitCh := make(chan ackResponse, 1)
	h.mu.Lock()
	h.pending[id] = waitCh
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		delete(h.pending, id)
		h.mu.Unlock()
	}()

	if !h.supervisorChan.Send(ipc.Msg{Scalar: int64(kind), Data: encodeJSON(payload)}) {
		return ackResponse{}, ErrSupervisorGone
	}

	select {
	case ack := <-waitCh:
		if ack.Error != "" {
			return ack, fmt.Errorf("%s", ack.Error)
		}
		return ack, nil
	case <-time.After(h.config.ackTimeout):
		return ackResponse{}, ErrSpawnTimeout
	case <-ctx.Done():
		return ackResponse{}, ctx.Err()
	}
}

// Spawn starts a new worker process running the named plugin with
// initBytes as its opaque init payload, matching spec.md §4.B's
// spawn(plugin_name, init_bytes) -> worker_id | err.
func (h *Host) Spawn(ctx context.Context, plugin string, initBytes []byte) (*Handle, error) {
	id, err := h.allocID()
	if err != nil {
		return nil, err
	}

	subject := fmt.Sprintf("workerhost.worker.%d", id)
	channel, err := ipc.NewProcessChannel(h.config.bus, subject)
	if err != nil {
		return nil, err
	}

	handle := &Handle{ID: id, channel: channel}
	h.mu.Lock()
	h.handles[id] = handle
	h.mu.Unlock()

	ack, err := h.send(ctx, cmdCreate, id, createRequest{
		ID:        id,
		Plugin:    plugin,
		InitBytes: initBytes,
		Subject:   subject,
	})
	if err != nil {
		h.mu.Lock()
		delete(h.handles, id)
		h.mu.Unlock()
		_ = channel.Close()
		return nil, err
	}

	handle.PID = ack.PID
	return handle, nil
}

func (h *Host) lookup(id int) (*Handle, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	handle, ok := h.handles[id]
	if !ok {
		return nil, ErrUnknownWorker
	}
	return handle, nil
}

// Send delivers msg to worker id's inbound channel.
func (h *Host) Send(id int, msg ipc.Msg) (bool, error) {
	handle, err := h.lookup(id)
	if err != nil {
		return false, err
	}
	return handle.channel.Send(msg), nil
}

// Recv returns at most one pending message from worker id.
func (h *Host) Recv(id int) (ipc.Msg, bool, error) {
	handle, err := h.lookup(id)
	if err != nil {
		return ipc.Msg{}, false, err
	}
	msg, ok := handle.channel.TryGet()
	return msg, ok, nil
}

// Ready returns worker id's readiness channel, for use in a select.
func (h *Host) Ready(id int) (<-chan struct{}, error) {
	handle, err := h.lookup(id)
	if err != nil {
		return nil, err
	}
	return handle.channel.Ready(), nil
}

// Clean acknowledges that the parent has read worker id's last message,
// per spec.md §4.B. If the worker has already died, this frees its id.
func (h *Host) Clean(ctx context.Context, id int) error {
	handle, err := h.lookup(id)
	if err != nil {
		return err
	}
	handle.setCleaned()
	_, err = h.send(ctx, cmdClean, id, simpleRequest{ID: id})
	h.maybeReap(id)
	return err
}

// Kill terminates worker id.
func (h *Host) Kill(ctx context.Context, id int) error {
	handle, err := h.lookup(id)
	if err != nil {
		return err
	}
	handle.setKilled()
	_, err = h.send(ctx, cmdKill, id, simpleRequest{ID: id})
	h.maybeReap(id)
	return err
}

func (h *Host) maybeReap(id int) {
	h.mu.Lock()
	handle, ok := h.handles[id]
	h.mu.Unlock()
	if !ok || !handle.reapable() {
		return
	}
	h.mu.Lock()
	delete(h.handles, id)
	h.mu.Unlock()
	_ = handle.channel.Close()
}

// Dispose waits for every outstanding worker to finish after closing its
// pipes, matching spec.md §4.B's dispose().
func (h *Host) Dispose(ctx context.Context) error {
	h.mu.Lock()
	ids := make([]int, 0, len(h.handles))
	for id := range h.handles {
		ids = append(ids, id)
	}
	h.mu.Unlock()

	for _, id := range ids {
		_ = h.Kill(ctx, id)
	}

	_, err := h.send(ctx, cmdDispose, -1, simpleRequest{})
	return err
}
