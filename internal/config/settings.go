// SPDX-License-Identifier: BSD-3-Clause

package config

import (
	"fmt"
	"strconv"
	"time"
)

// Settings is the typed, resolved view of a Provider. internal/supervise
// resolves one *Settings when it builds the daemon and passes its fields
// to each component as constructor options, so a missing or malformed key
// fails fast at startup instead of at first use deep in a state machine.
type Settings struct {
	InstanceID string

	ModemDeviceNode    string
	PingDeviceNode     string
	ShutdownDeviceNode string
	FlashDeviceNode    string
	DumpDeviceNode     string

	NVMDeviceNode      string
	NVMFolder          string
	NVMCalibrationFile string
	NVMRawLayout       bool

	// FirmwareImagePath and CustomizationScriptPath are staged by an
	// out-of-scope provisioning flow (spec.md §1: the core does not
	// itself decode modem firmware); the control plane only shuttles
	// whatever bytes it finds there to the fwupload/customization
	// workers. DumpOutputPath is where the dump worker writes the crash
	// snapshot it streams off DumpDeviceNode.
	FirmwareImagePath       string
	CustomizationScriptPath string
	DumpOutputPath          string

	// ClientSocketDir is where the mdmcli listen socket (named
	// "crm<instance>", spec.md §6) is created.
	ClientSocketDir string

	BootTimeout            time.Duration
	FlashTimeout           time.Duration
	ColdResetAckTimeout    time.Duration
	ShutdownAckTimeout     time.Duration
	OscillationWindow      time.Duration
	OscillationLimit       int
	WorkerReadyTimeout     time.Duration
	WorkerCleanDeadTimeout time.Duration

	DebugEnable       bool
	DisableDump       bool
	EnableSilentReset bool
	DisableEscalation bool
}

// defaults mirror the original daemon's compiled-in fallbacks: every one
// of these keys is optional in a Provider, so a StaticProvider in a test
// only needs to set the keys that test actually cares about.
var defaultSettings = Settings{
	ModemDeviceNode:         "/dev/modem0",
	PingDeviceNode:          "/dev/modem0_ping",
	ShutdownDeviceNode:      "/dev/modem0_shutdown",
	FlashDeviceNode:         "/dev/modem0_flash",
	DumpDeviceNode:          "/dev/modem0_dump",
	NVMDeviceNode:           "/dev/modem0_nvm",
	NVMFolder:               "/var/lib/crm/nvm",
	NVMCalibrationFile:      "calibration.nvm",
	NVMRawLayout:            false,
	FirmwareImagePath:       "/var/lib/crm/firmware.fls",
	CustomizationScriptPath: "/var/lib/crm/customization.tlv",
	DumpOutputPath:          "/var/lib/crm/dump.bin",
	ClientSocketDir:         "/run/crm",
	BootTimeout:             20 * time.Second,
	FlashTimeout:            2 * time.Minute,
	ColdResetAckTimeout:     3 * time.Second,
	ShutdownAckTimeout:      3 * time.Second,
	OscillationWindow:       60 * time.Second,
	OscillationLimit:        3,
	WorkerReadyTimeout:      5 * time.Second,
	WorkerCleanDeadTimeout:  500 * time.Millisecond,
}

// Resolve builds a *Settings by overlaying p's values on top of the
// built-in defaults. KeyInstanceID has no default: a Provider that omits
// it returns ErrMissingKey, since it names the client socket ("crm<instance>").
func Resolve(p Provider) (*Settings, error) {
	s := defaultSettings

	instanceID, ok := p.Lookup(KeyInstanceID)
	if !ok || instanceID == "" {
		return nil, fmt.Errorf("%w: %s", ErrMissingKey, KeyInstanceID)
	}
	s.InstanceID = instanceID

	if v, ok := p.Lookup(KeyModemDeviceNode); ok {
		s.ModemDeviceNode = v
	}
	if v, ok := p.Lookup(KeyPingDeviceNode); ok {
		s.PingDeviceNode = v
	}
	if v, ok := p.Lookup(KeyShutdownDeviceNode); ok {
		s.ShutdownDeviceNode = v
	}
	if v, ok := p.Lookup(KeyFlashDeviceNode); ok {
		s.FlashDeviceNode = v
	}
	if v, ok := p.Lookup(KeyDumpDeviceNode); ok {
		s.DumpDeviceNode = v
	}
	if v, ok := p.Lookup(KeyNVMDeviceNode); ok {
		s.NVMDeviceNode = v
	}
	if v, ok := p.Lookup(KeyNVMFolder); ok {
		s.NVMFolder = v
	}
	if v, ok := p.Lookup(KeyNVMCalibrationFile); ok {
		s.NVMCalibrationFile = v
	}
	if v, ok := p.Lookup(KeyFirmwareImagePath); ok {
		s.FirmwareImagePath = v
	}
	if v, ok := p.Lookup(KeyCustomizationScriptPath); ok {
		s.CustomizationScriptPath = v
	}
	if v, ok := p.Lookup(KeyDumpOutputPath); ok {
		s.DumpOutputPath = v
	}
	if v, ok := p.Lookup(KeyClientSocketDir); ok {
		s.ClientSocketDir = v
	}

	var err error
	if s.NVMRawLayout, err = resolveBool(p, KeyNVMRawLayout, s.NVMRawLayout); err != nil {
		return nil, err
	}
	if s.BootTimeout, err = resolveDuration(p, KeyTimerBoot, s.BootTimeout); err != nil {
		return nil, err
	}
	if s.FlashTimeout, err = resolveDuration(p, KeyTimerFlash, s.FlashTimeout); err != nil {
		return nil, err
	}
	if s.ColdResetAckTimeout, err = resolveDuration(p, KeyTimerColdResetAck, s.ColdResetAckTimeout); err != nil {
		return nil, err
	}
	if s.ShutdownAckTimeout, err = resolveDuration(p, KeyTimerShutdownAck, s.ShutdownAckTimeout); err != nil {
		return nil, err
	}
	if s.OscillationWindow, err = resolveDuration(p, KeyTimerOscillationWin, s.OscillationWindow); err != nil {
		return nil, err
	}
	if s.WorkerReadyTimeout, err = resolveDuration(p, KeyTimerWorkerReady, s.WorkerReadyTimeout); err != nil {
		return nil, err
	}
	if s.WorkerCleanDeadTimeout, err = resolveDuration(p, KeyTimerWorkerCleanDead, s.WorkerCleanDeadTimeout); err != nil {
		return nil, err
	}
	if s.OscillationLimit, err = resolveInt(p, KeyTimerOscillationLim, s.OscillationLimit); err != nil {
		return nil, err
	}
	if s.DebugEnable, err = resolveBool(p, KeyPropertyDebugEnable, s.DebugEnable); err != nil {
		return nil, err
	}
	if s.DisableDump, err = resolveBool(p, KeyPropertyDisableDump, s.DisableDump); err != nil {
		return nil, err
	}
	if s.EnableSilentReset, err = resolveBool(p, KeyPropertyEnableSilentReset, s.EnableSilentReset); err != nil {
		return nil, err
	}
	if s.DisableEscalation, err = resolveBool(p, KeyPropertyDisableEscalation, s.DisableEscalation); err != nil {
		return nil, err
	}

	return &s, nil
}

func resolveBool(p Provider, key string, fallback bool) (bool, error) {
	v, ok := p.Lookup(key)
	if !ok {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%w: %s=%q", ErrInvalidValue, key, v)
	}
	return b, nil
}

func resolveInt(p Provider, key string, fallback int) (int, error) {
	v, ok := p.Lookup(key)
	if !ok {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q", ErrInvalidValue, key, v)
	}
	return n, nil
}

func resolveDuration(p Provider, key string, fallback time.Duration) (time.Duration, error) {
	v, ok := p.Lookup(key)
	if !ok {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q", ErrInvalidValue, key, v)
	}
	return d, nil
}
