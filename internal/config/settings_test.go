// SPDX-License-Identifier: BSD-3-Clause

package config

import (
	"strings"
	"testing"
	"time"
)

func TestResolveAppliesDefaults(t *testing.T) {
	s, err := Resolve(StaticProvider{KeyInstanceID: "crm0"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if s.InstanceID != "crm0" {
		t.Fatalf("InstanceID: got %q", s.InstanceID)
	}
	if s.ModemDeviceNode != defaultSettings.ModemDeviceNode {
		t.Fatalf("ModemDeviceNode: got %q, want default", s.ModemDeviceNode)
	}
	if s.BootTimeout != defaultSettings.BootTimeout {
		t.Fatalf("BootTimeout: got %v, want default", s.BootTimeout)
	}
}

func TestResolveOverridesFromProvider(t *testing.T) {
	s, err := Resolve(StaticProvider{
		KeyInstanceID:          "crm0",
		KeyModemDeviceNode:     "/dev/modem7",
		KeyTimerBoot:           "45s",
		KeyPropertyDebugEnable: "true",
		KeyNVMRawLayout:        "true",
		KeyTimerOscillationLim: "5",
	})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if s.ModemDeviceNode != "/dev/modem7" {
		t.Fatalf("ModemDeviceNode: got %q", s.ModemDeviceNode)
	}
	if s.BootTimeout != 45*time.Second {
		t.Fatalf("BootTimeout: got %v", s.BootTimeout)
	}
	if !s.DebugEnable {
		t.Fatal("DebugEnable: want true")
	}
	if !s.NVMRawLayout {
		t.Fatal("NVMRawLayout: want true")
	}
	if s.OscillationLimit != 5 {
		t.Fatalf("OscillationLimit: got %d", s.OscillationLimit)
	}
}

func TestResolveMissingInstanceID(t *testing.T) {
	if _, err := Resolve(StaticProvider{}); err == nil {
		t.Fatal("Resolve: want error for missing instance id")
	}
}

func TestResolveInvalidDuration(t *testing.T) {
	_, err := Resolve(StaticProvider{
		KeyInstanceID: "crm0",
		KeyTimerBoot:  "not-a-duration",
	})
	if err == nil {
		t.Fatal("Resolve: want error for invalid duration")
	}
}

func TestFileProviderParsesKeyValueLines(t *testing.T) {
	p, err := parseFileProvider(strings.NewReader(`
# comment
crm.instance_id = crm0
modem.device_node = /dev/modem3

timer.boot_timeout=30s
`))
	if err != nil {
		t.Fatalf("parseFileProvider: %v", err)
	}
	if v, ok := p.Lookup(KeyInstanceID); !ok || v != "crm0" {
		t.Fatalf("Lookup(instance_id): got %q, %v", v, ok)
	}
	if v, ok := p.Lookup(KeyModemDeviceNode); !ok || v != "/dev/modem3" {
		t.Fatalf("Lookup(device_node): got %q, %v", v, ok)
	}
	if v, ok := p.Lookup(KeyTimerBoot); !ok || v != "30s" {
		t.Fatalf("Lookup(boot_timeout): got %q, %v", v, ok)
	}
}

func TestFileProviderRejectsMalformedLine(t *testing.T) {
	if _, err := parseFileProvider(strings.NewReader("not-a-kv-line")); err == nil {
		t.Fatal("parseFileProvider: want error for malformed line")
	}
}
