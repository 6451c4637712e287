// SPDX-License-Identifier: BSD-3-Clause

package config

// Well-known keys read from a Provider. The names mirror the original TCS
// property tree layout (section names lowercased, dotted) closely enough
// that a FileProvider backed by an exported TCS dump needs no translation.
const (
	KeyInstanceID = "crm.instance_id"

	KeyModemDeviceNode    = "modem.device_node"
	KeyPingDeviceNode     = "modem.ping_device_node"
	KeyShutdownDeviceNode = "modem.shutdown_device_node"
	KeyFlashDeviceNode    = "modem.flash_device_node"
	KeyDumpDeviceNode     = "modem.dump_device_node"

	KeyNVMDeviceNode      = "nvm.device_node"
	KeyNVMFolder          = "nvm.folder"
	KeyNVMCalibrationFile = "nvm.calibration_file"
	KeyNVMRawLayout       = "nvm.raw_layout"

	KeyFirmwareImagePath       = "firmware.image_path"
	KeyCustomizationScriptPath = "customization.script_path"
	KeyDumpOutputPath          = "dump.output_path"
	KeyClientSocketDir         = "client.socket_dir"

	KeyTimerBoot            = "timer.boot_timeout"
	KeyTimerFlash           = "timer.flash_timeout"
	KeyTimerColdResetAck    = "timer.cold_reset_ack_timeout"
	KeyTimerShutdownAck     = "timer.shutdown_ack_timeout"
	KeyTimerOscillationWin  = "timer.oscillation_window"
	KeyTimerOscillationLim  = "timer.oscillation_limit"
	KeyTimerWorkerReady     = "timer.worker_ready_timeout"
	KeyTimerWorkerCleanDead = "timer.worker_clean_dead_timeout"

	KeyPropertyDebugEnable        = "property.debug_enable"
	KeyPropertyDisableDump        = "property.disable_dump"
	KeyPropertyEnableSilentReset  = "property.enable_silent_reset"
	KeyPropertyDisableEscalation  = "property.disable_escalation"
	KeyPropertyServiceControlFlag = "property.service_control"
)
