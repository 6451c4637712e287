// SPDX-License-Identifier: BSD-3-Clause

package loop

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/crm-project/crm/internal/hal"
	"github.com/crm-project/crm/pkg/ipc"
)

// Handlers are the callbacks Loop invokes for each source, in the
// priority order spec.md §4.H names: internal first, HAL second,
// worker/config third, client last. A handler returning an error stops
// Run; every handler here is expected to log and swallow anything it
// considers non-fatal itself, the same contract internal/control's
// Dispatch already follows for most of its own error paths.
type Handlers struct {
	Internal func(ctx context.Context, msg ipc.Msg) error
	HAL      func(ctx context.Context, evt hal.Event) error
	Worker   func(ctx context.Context, id string, msg ipc.Msg) error
	Client   func(ctx context.Context, id string, msg ipc.Msg) error
	Timeout  func(ctx context.Context, timer string) error
}

// Loop is the single-threaded event dispatcher driving component G. It
// owns no state machine itself; every handler it calls is expected to be
// a thin adapter into internal/control.Controller.Dispatch or
// internal/client.Aggregator.
type Loop struct {
	internal ipc.Channel
	hal      hal.Adapter
	handlers Handlers
	timers   *Timers

	mu          sync.Mutex
	workers     map[string]ipc.Channel
	workerOrder []string
	clients     map[string]ipc.Channel
	clientOrder []string
}

// New builds a Loop. internal carries the control FSM's own synthesized
// events (e.g. MdmConfigured once the configuration phase posts its
// completion); h is the HAL adapter whose Events() channel is polled
// second.
func New(internal ipc.Channel, h hal.Adapter, handlers Handlers) *Loop {
	return &Loop{
		internal: internal,
		hal:      h,
		handlers: handlers,
		timers:   NewTimers(),
		workers:  make(map[string]ipc.Channel),
		clients:  make(map[string]ipc.Channel),
	}
}

// Timers exposes the loop's armed-deadline set so a caller can arm and
// disarm named timers without Loop needing to know what each one means.
// No component in this repository arms one; only the loop tests do.
func (l *Loop) Timers() *Timers { return l.timers }

// AddWorker registers an active worker's channel, polled in insertion
// order on the third priority tier. The id is whatever internal/workerhost
// assigned the worker instance.
func (l *Loop) AddWorker(id string, ch ipc.Channel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.workers[id]; !exists {
		l.workerOrder = append(l.workerOrder, id)
	}
	l.workers[id] = ch
}

// RemoveWorker drops a worker's channel, e.g. once its plugin exits.
func (l *Loop) RemoveWorker(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.workers, id)
	l.workerOrder = removeID(l.workerOrder, id)
}

// AddClient registers a connected client's channel, polled last.
func (l *Loop) AddClient(id string, ch ipc.Channel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.clients[id]; !exists {
		l.clientOrder = append(l.clientOrder, id)
	}
	l.clients[id] = ch
}

// RemoveClient drops a client's channel, e.g. on disconnect.
func (l *Loop) RemoveClient(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.clients, id)
	l.clientOrder = removeID(l.clientOrder, id)
}

func removeID(order []string, id string) []string {
	for i, o := range order {
		if o == id {
			return append(order[:i], order[i+1:]...)
		}
	}
	return order
}

func (l *Loop) orderedWorkers() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.workerOrder...)
}

func (l *Loop) orderedClients() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.clientOrder...)
}

func (l *Loop) workerChannel(id string) (ipc.Channel, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.workers[id]
	return ch, ok
}

func (l *Loop) clientChannel(id string) (ipc.Channel, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.clients[id]
	return ch, ok
}

// Run drives the loop until ctx is done or a handler returns an error.
// Each iteration is one non-blocking priority pass (drainOnce); if that
// pass found nothing to do, Run blocks on every source plus the nearest
// timer deadline before trying again. A cycle never blocks while a timer
// is armed, per spec.md §4.H.
func (l *Loop) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		acted, err := l.drainOnce(ctx)
		if err != nil {
			return err
		}
		if acted {
			continue
		}
		if err := l.waitForWork(ctx); err != nil {
			return err
		}
	}
}

// drainOnce tries exactly one source, in priority order, and returns as
// soon as it handles something. Re-entering from the top on every single
// event (rather than draining each source fully before moving to the
// next) is what gives a just-armed internal event priority over a worker
// message that arrived moments earlier but hasn't been read yet.
func (l *Loop) drainOnce(ctx context.Context) (bool, error) {
	if msg, ok := l.internal.TryGet(); ok {
		return true, l.handlers.Internal(ctx, msg)
	}

	select {
	case evt, ok := <-l.hal.Events():
		if !ok {
			return true, fmt.Errorf("loop: hal event stream closed")
		}
		return true, l.handlers.HAL(ctx, evt)
	default:
	}

	for _, id := range l.orderedWorkers() {
		ch, ok := l.workerChannel(id)
		if !ok {
			continue
		}
		if msg, ok := ch.TryGet(); ok {
			return true, l.handlers.Worker(ctx, id, msg)
		}
	}

	for _, id := range l.orderedClients() {
		ch, ok := l.clientChannel(id)
		if !ok {
			continue
		}
		if msg, ok := ch.TryGet(); ok {
			return true, l.handlers.Client(ctx, id, msg)
		}
	}

	for _, name := range l.timers.Expired(time.Now()) {
		if err := l.handlers.Timeout(ctx, name); err != nil {
			return true, err
		}
	}
	return false, nil
}

// waitForWork blocks until some source becomes ready or the nearest
// armed timer elapses, whichever comes first. It uses reflect.Select
// because the set of worker/client channels changes at runtime (workers
// spawn and exit, clients connect and disconnect) — a literal select
// statement can only name a fixed set of cases at compile time.
func (l *Loop) waitForWork(ctx context.Context) error {
	cases := []reflect.SelectCase{
		{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(ctx.Done())},
		{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(l.internal.Ready())},
		{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(l.hal.Events())},
	}

	if _, at, ok := l.timers.Nearest(); ok {
		d := time.Until(at)
		if d <= 0 {
			return nil
		}
		timer := time.NewTimer(d)
		defer timer.Stop()
		cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(timer.C)})
	}

	for _, id := range l.orderedWorkers() {
		if ch, ok := l.workerChannel(id); ok {
			cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(ch.Ready())})
		}
	}
	for _, id := range l.orderedClients() {
		if ch, ok := l.clientChannel(id); ok {
			cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(ch.Ready())})
		}
	}

	chosen, _, _ := reflect.Select(cases)
	if chosen == 0 {
		return ctx.Err()
	}
	return nil
}
