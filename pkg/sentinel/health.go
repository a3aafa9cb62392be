// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sentinel

import "fmt"

// FirmwareStatus reports why the beacon last rebooted and its radio health
type FirmwareStatus struct {
	LastBootCauses []string `json:"lastBootCauses" cbor:"lastBootCauses"`
	SoftwareStatus string   `json:"softwareStatus" cbor:"softwareStatus"`
}

type bootCauseBit struct {
	mask  byte
	cause string
}

// Hardware boot causes, second byte of the reset status register
var hardwareBootCauses2 = []bootCauseBit{
	{0x01, "Low Leakage Wakeup"},
	{0x02, "Low Voltage Detect Reset"},
	{0x04, "Loss of Clock Reset"},
	{0x08, "Loss of Lock Reset"},
	{0x20, "Watchdog"},
	{0x40, "External Reset Pin"},
	{0x80, "Power On Reset"},
}

// Hardware boot causes, first byte of the reset status register
var hardwareBootCauses1 = []bootCauseBit{
	{0x01, "Jtag Generated Reset"},
	{0x02, "Core Lockup"},
	{0x04, "Software - SYSRESETREQ bit"},
	{0x08, "MDM-AP System Reset Request"},
	{0x20, "Stop Mode Acknowledge Error Reset"},
}

// deviceHealth is indexed by the software status code uplinked by the beacon
var deviceHealth = []string{
	"LoRaWAN Ok",
	"LoRaWAN unknown unsollicited reception",
	"LoRaWAN invalid double data length",
	"LoRaWAN unknown transmission error",
	"LoRaWAN pending transmission",
	"LoRaWAN link check failed",
	"LoRaWAN consecutive unsollicited message missed",
	"LoRaWAN invalid parameter received",
	"LoRaWAN modem wakeup failed",
	"LoRaWAN data rate too low",
}

// DecodeFirmwareStatus maps boot cause bitfields and the software status code
// to a health report. Second-byte causes are listed before first-byte causes.
func DecodeFirmwareStatus(software int16, hardware1, hardware2 byte) FirmwareStatus {
	status := FirmwareStatus{
		LastBootCauses: []string{},
	}

	for _, b := range hardwareBootCauses2 {
		if hardware2&b.mask != 0 {
			status.LastBootCauses = append(status.LastBootCauses, b.cause)
		}
	}
	for _, b := range hardwareBootCauses1 {
		if hardware1&b.mask != 0 {
			status.LastBootCauses = append(status.LastBootCauses, b.cause)
		}
	}

	status.SoftwareStatus = FormatDeviceHealth(software)
	return status
}

// FormatDeviceHealth returns the description of a software status code
func FormatDeviceHealth(code int16) string {
	if code >= 0 && int(code) < len(deviceHealth) {
		return deviceHealth[code]
	}
	return fmt.Sprintf("Invalid Sentinel device health value (%d)", code)
}
