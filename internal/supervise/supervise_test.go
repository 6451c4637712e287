// SPDX-License-Identifier: BSD-3-Clause

package supervise

import (
	"context"
	"reflect"
	"testing"

	"github.com/crm-project/crm/internal/control"
	"github.com/crm-project/crm/internal/hal"
	"github.com/crm-project/crm/internal/workerbus"
	"github.com/crm-project/crm/internal/workers/customization"
	"github.com/crm-project/crm/internal/workers/dump"
	"github.com/crm-project/crm/internal/workers/fwupload"
	"github.com/crm-project/crm/internal/workers/nvm"
	"github.com/crm-project/crm/pkg/ipc"
	"github.com/crm-project/crm/pkg/wire"
	"github.com/crm-project/crm/service"
)

func newTestDaemon(t *testing.T) (*daemonService, *hal.Stub) {
	t.Helper()
	stub := hal.NewStub()
	cfg := newConfig(
		WithHAL(stub),
		WithBus(workerbus.New(workerbus.WithInProcessOnly())),
	)
	d, err := newDaemon(cfg, cfg.bus, cfg.logger)
	if err != nil {
		t.Fatalf("newDaemon: %v", err)
	}
	return d, stub
}

func TestNewPopulatesAllThreeServiceFields(t *testing.T) {
	daemon, err := New(WithName("crmd-test"), WithHAL(hal.NewStub()), WithBus(workerbus.New(workerbus.WithInProcessOnly())))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if daemon.Name() != "crmd-test" {
		t.Fatalf("Name: got %q, want %q", daemon.Name(), "crmd-test")
	}

	var found int
	v := reflect.ValueOf(daemon.config)
	for i := range v.NumField() {
		field := v.Field(i)
		if !field.IsValid() || !field.CanInterface() {
			continue
		}
		if iface := field.Interface(); iface != nil {
			if _, ok := iface.(service.Service); ok {
				found++
			}
		}
	}
	if found != 3 {
		t.Fatalf("reflected service.Service fields: got %d, want 3 (Bus, Host, Daemon)", found)
	}
}

func TestHALEventToControlCoversEveryEvent(t *testing.T) {
	cases := []struct {
		in   hal.Event
		want control.Event
	}{
		{hal.EventMdmOff, control.MdmOff},
		{hal.EventMdmFlashReady, control.MdmFlashReady},
		{hal.EventMdmRun, control.MdmRun},
		{hal.EventMdmCrash, control.MdmCrash},
		{hal.EventMdmDumpReady, control.MdmDumpReady},
		{hal.EventMdmLinkDown, control.MdmLinkDown},
	}
	for _, c := range cases {
		got, ok := halEventToControl(c.in)
		if !ok || got != c.want {
			t.Fatalf("halEventToControl(%v): got (%v, %v), want (%v, true)", c.in, got, ok, c.want)
		}
	}
	if _, ok := halEventToControl(hal.Event(99)); ok {
		t.Fatal("halEventToControl(99): want ok=false for an unknown event")
	}
}

func TestWorkerStatusToControl(t *testing.T) {
	cases := []struct {
		kind string
		code int64
		want control.Event
	}{
		{fwupload.PluginName, fwupload.StatusPackaged, control.FwPackaged},
		{fwupload.PluginName, fwupload.StatusFlashed, control.FwFlashed},
		{customization.PluginName, customization.StatusDone, control.CustomizationDone},
		{dump.PluginName, dump.StatusDone, control.DumpDone},
		{nvm.PluginName, nvm.StatusRun, control.NvmRun},
		{nvm.PluginName, nvm.StatusStop, control.NvmStop},
	}
	for _, c := range cases {
		got, ok := workerStatusToControl(c.kind, c.code)
		if !ok || got != c.want {
			t.Fatalf("workerStatusToControl(%q, %d): got (%v, %v), want (%v, true)", c.kind, c.code, got, ok, c.want)
		}
	}
	if _, ok := workerStatusToControl(fwupload.PluginName, fwupload.StatusError); ok {
		t.Fatal("workerStatusToControl(fwupload, StatusError): want ok=false")
	}
	if _, ok := workerStatusToControl("unknown-kind", 1); ok {
		t.Fatal("workerStatusToControl(unknown kind): want ok=false")
	}
}

func TestHandleClientAcquireDrivesControlToBooting(t *testing.T) {
	d, stub := newTestDaemon(t)
	ctx := context.Background()

	if _, err := d.clients.Register("c1", "cli1", 0, false, nil); err != nil {
		t.Fatalf("Register: %v", err)
	}

	frame, err := wire.Encode(wire.Message{ID: wire.Acquire})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	if err := d.handleClient(ctx, "c1", msgFromFrame(frame)); err != nil {
		t.Fatalf("handleClient: %v", err)
	}

	state, err := d.controller.State(ctx)
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if state != control.Booting {
		t.Fatalf("state: got %q, want %q", state, control.Booting)
	}
	if len(stub.Calls()) == 0 || stub.Calls()[0] != "PowerOn" {
		t.Fatalf("Calls: got %v, want first call PowerOn", stub.Calls())
	}
}

func TestHandleClientMalformedFrameIsIgnored(t *testing.T) {
	d, _ := newTestDaemon(t)
	if err := d.handleClient(context.Background(), "c1", msgFromFrame([]byte{0x01})); err != nil {
		t.Fatalf("handleClient: want nil error on a malformed frame, got %v", err)
	}
}

func TestHandleTimeoutDispatchesTimeoutEvent(t *testing.T) {
	d, _ := newTestDaemon(t)
	ctx := context.Background()

	// A first Timeout is corrective: Dispatch issues no transition and
	// returns nil, and handleTimeout returns nil.
	if err := d.handleTimeout(ctx, "boot"); err != nil {
		t.Fatalf("handleTimeout: %v", err)
	}
}

func msgFromFrame(b []byte) ipc.Msg {
	return ipc.Msg{Data: b}
}
