// SPDX-License-Identifier: BSD-3-Clause

package workerhost

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/crm-project/crm/pkg/ipc"
)

// workerProc is the supervisor's bookkeeping for one spawned worker
// process: its os/exec.Cmd plus the killed/cleaned/exited flags from
// spec.md §3's Worker handle.
type workerProc struct {
	id  int
	cmd *exec.Cmd

	mu         sync.Mutex
	killed     bool
	cleaned    bool
	exited     bool
	graceTimer *time.Timer
}

// Supervisor owns fork+wait bookkeeping for every worker process, kept
// out of CRM's main process per spec.md §4.B. It runs as its own OS
// process, re-exec'd with EnvWorkerSupervisor=1; RunSupervisor is its
// entire body.
type Supervisor struct {
	reapGrace time.Duration
	logger    *slog.Logger
	selfPath  string
	busAddr   string

	mu      sync.Mutex
	workers map[int]*workerProc
}

// RunSupervisor is the entry point cmd/crmd dispatches to when
// EnvWorkerSupervisor is set. It blocks until its command channel is
// closed or ctx is canceled.
func RunSupervisor(ctx context.Context, opts ...Option) error {
	cfg := newConfig(nil, opts...)
	l := cfg.logger.With("component", "worker-supervisor")

	busAddr := os.Getenv(EnvWorkerBusAddr)
	if busAddr == "" {
		return ErrMissingBusAddr
	}
	selfPath, err := os.Executable()
	if err != nil {
		return err
	}

	channel, err := ipc.ConnectProcessChannel(busAddr, cfg.busySubject, ipc.Mirrored())
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSupervisorGone, err)
	}
	defer channel.Close()

	s := &Supervisor{
		reapGrace: cfg.reapGrace,
		logger:    l,
		selfPath:  selfPath,
		busAddr:   busAddr,
		workers:   make(map[int]*workerProc),
	}

	l.InfoContext(ctx, "worker supervisor ready")
	for {
		select {
		case <-ctx.Done():
			s.disposeAll()
			return ctx.Err()
		case <-channel.Ready():
		}
		for {
			msg, ok := channel.TryGet()
			if !ok {
				break
			}
			s.handleCommand(ctx, channel, cmdKind(msg.Scalar), msg.Data)
		}
	}
}

func (s *Supervisor) handleCommand(ctx context.Context, channel *ipc.ProcessChannel, kind cmdKind, data []byte) {
	switch kind {
	case cmdCreate:
		req, err := decodeJSON[createRequest](data)
		if err != nil {
			return
		}
		s.create(ctx, channel, req)
	case cmdClean:
		req, err := decodeJSON[simpleRequest](data)
		if err != nil {
			return
		}
		s.acknowledge(req.ID, true, false)
		s.ack(channel, req.ID, 0, nil)
	case cmdKill:
		req, err := decodeJSON[simpleRequest](data)
		if err != nil {
			return
		}
		s.acknowledge(req.ID, false, true)
		s.kill(req.ID)
		s.ack(channel, req.ID, 0, nil)
	case cmdDispose:
		s.disposeAll()
		s.ack(channel, -1, 0, nil)
	}
}

func (s *Supervisor) ack(channel *ipc.ProcessChannel, id, pid int, err error) {
	resp := ackResponse{ID: id, PID: pid}
	if err != nil {
		resp.Error = err.Error()
	}
	channel.Send(ipc.Msg{Scalar: int64(cmdCreate), Data: encodeJSON(resp)})
}

func (s *Supervisor) create(ctx context.Context, channel *ipc.ProcessChannel, req createRequest) {
	cmd := exec.CommandContext(ctx, s.selfPath)
	cmd.Env = append(os.Environ(),
		EnvWorkerPlugin+"="+req.Plugin,
		fmt.Sprintf("%s=%d", EnvWorkerID, req.ID),
		EnvWorkerSubject+"="+req.Subject,
		EnvWorkerInit+"="+base64.StdEncoding.EncodeToString(req.InitBytes),
		EnvWorkerBusAddr+"="+s.busAddr,
	)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		s.ack(channel, req.ID, 0, err)
		return
	}

	wp := &workerProc{id: req.ID, cmd: cmd}
	s.mu.Lock()
	s.workers[req.ID] = wp
	s.mu.Unlock()

	go s.wait(channel, wp)

	s.ack(channel, req.ID, cmd.Process.Pid, nil)
}

// wait blocks on the worker's exit, classifies it (WIFSIGNALED or not),
// notifies the host, and starts the uncleaned-death grace timer.
func (s *Supervisor) wait(channel *ipc.ProcessChannel, wp *workerProc) {
	err := wp.cmd.Wait()

	signaled := false
	if wp.cmd.ProcessState != nil {
		if ws, ok := wp.cmd.ProcessState.Sys().(syscall.WaitStatus); ok {
			signaled = ws.Signaled()
		}
	}

	wp.mu.Lock()
	wp.exited = true
	killed, cleaned := wp.killed, wp.cleaned
	wp.mu.Unlock()

	s.logger.Info("worker exited", "id", wp.id, "signaled", signaled, "error", err)
	channel.Send(ipc.Msg{Scalar: int64(cmdDeathNotice), Data: encodeJSON(simpleRequest{ID: wp.id})})

	if killed || cleaned {
		s.reap(wp.id)
		return
	}

	wp.mu.Lock()
	wp.graceTimer = time.AfterFunc(s.reapGrace, func() { s.assertReaped(wp.id) })
	wp.mu.Unlock()
}

// assertReaped enforces spec.md §4.B's "a worker that hasn't been cleaned
// within 500 ms of its death is a bug": if the host has still neither
// killed nor cleaned the worker, that is an internal invariant violation,
// fatal per spec.md §7. The caller (cmd/crmd, under oversight) restarts
// the whole process.
func (s *Supervisor) assertReaped(id int) {
	s.mu.Lock()
	wp, ok := s.workers[id]
	s.mu.Unlock()
	if !ok {
		return
	}
	wp.mu.Lock()
	killed, cleaned := wp.killed, wp.cleaned
	wp.mu.Unlock()
	if killed || cleaned {
		return
	}
	panic(fmt.Sprintf("%s: worker %d", ErrUncleanedDeath, id))
}

func (s *Supervisor) acknowledge(id int, cleaned, killed bool) {
	s.mu.Lock()
	wp, ok := s.workers[id]
	s.mu.Unlock()
	if !ok {
		return
	}
	wp.mu.Lock()
	if cleaned {
		wp.cleaned = true
	}
	if killed {
		wp.killed = true
	}
	if wp.graceTimer != nil {
		wp.graceTimer.Stop()
	}
	exited := wp.exited
	wp.mu.Unlock()
	if exited {
		s.reap(id)
	}
}

func (s *Supervisor) kill(id int) {
	s.mu.Lock()
	wp, ok := s.workers[id]
	s.mu.Unlock()
	if !ok || wp.cmd.Process == nil {
		return
	}
	_ = wp.cmd.Process.Kill()
}

func (s *Supervisor) reap(id int) {
	s.mu.Lock()
	delete(s.workers, id)
	s.mu.Unlock()
}

func (s *Supervisor) disposeAll() {
	s.mu.Lock()
	ids := make([]int, 0, len(s.workers))
	for id := range s.workers {
		ids = append(ids, id)
	}
	s.mu.Unlock()
	for _, id := range ids {
		s.kill(id)
	}
}
