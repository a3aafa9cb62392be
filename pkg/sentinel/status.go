// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sentinel

import (
	"encoding/binary"
	"encoding/hex"
	"strings"
	"unicode/utf8"
)

// activationNames maps activation bitmask bit numbers to the scheduled measurement
var activationNames = map[int]string{
	0:  "Battery level",
	2:  "Humidity",
	4:  "Mileage",
	7:  "Pressure",
	8:  "Wake-on event",
	9:  "Machine drift",
	10: "Shock detection",
	11: "Signature",
	12: "Signature reference",
	13: "Signature extension",
	14: "Temperature",
	16: "PT100 probe",
	17: "TC probe",
	18: "Ambient aggregator",
	19: "Wave",
	20: "LoRa link",
	21: "Settings reader",
}

var woeModeNames = []string{
	WoeInactive:       "WoeInactive",
	WoeMotionTrig:     "WoeMotionTrig",
	WoeMotionTrigAuto: "WoeMotionTrigAuto",
	WoeSchedulerTrig:  "WoeSchedulerTrig",
	WoeAnalogTrig:     "WoeAnalogTrig",
	WoeContactTrig:    "WoeContactTrig",
}

// sensorOrientationNames is keyed by the third byte of the sensor bitmask.
// The trailing newline on ZPreferred is what deployed dashboards match on.
var sensorOrientationNames = map[byte]string{
	0: "NoOrientation",
	1: "XPreferred",
	2: "YPreferred",
	4: "ZPreferred\n",
}

// decodeSystemStatus decodes a system status report body:
//
//	0..1   software boot cause, big-endian int16
//	2..3   hardware boot cause bytes
//	4..8   firmware version text
//	9..18  scheduling settings
//	19..56 advanced settings
//	57..   extension settings
func (d *frameDecoder) decodeSystemStatus(body []byte) {
	if len(body) < systemStatusMinSize {
		d.result.raise(IssueTruncatedVector, map[string]interface{}{
			"length":  len(body),
			"minimum": systemStatusMinSize,
		}, "Truncated system status report (%d bytes, at least %d expected)", len(body), systemStatusMinSize)
		return
	}

	software := int16(binary.BigEndian.Uint16(body[statusSoftwareBootOffset:]))
	status := DecodeFirmwareStatus(software, body[statusHardwareBootOffset], body[statusHardwareBootOffset+1])

	version := body[statusFirmwareOffset : statusFirmwareOffset+statusFirmwareSize]
	d.result.Data.FirmwareVersion = decodeText(version)
	d.result.Data.FirmwareStatus = &status

	d.decodeScheduling(body[statusSchedulingOffset : statusSchedulingOffset+statusSchedulingSize])
	d.decodeAdvanced(body[statusAdvancedOffset : statusAdvancedOffset+statusAdvancedSize])
	d.decodeExtensionSettings(body[statusExtensionOffset:])
}

// decodeText decodes UTF-8 text, replacing each maximal invalid subsequence
// with one U+FFFD
func decodeText(b []byte) string {
	var sb strings.Builder
	for len(b) > 0 {
		r, size := utf8.DecodeRune(b)
		if r != utf8.RuneError || size > 1 {
			sb.WriteRune(r)
			b = b[size:]
			continue
		}
		sb.WriteRune(utf8.RuneError)
		b = b[invalidPrefix(b):]
	}
	return sb.String()
}

// invalidPrefix returns the length of the truncated sequence starting at b[0]
func invalidPrefix(b []byte) int {
	var need int
	lo, hi := byte(0x80), byte(0xBF)
	switch c := b[0]; {
	case c >= 0xC2 && c <= 0xDF:
		need = 1
	case c >= 0xE0 && c <= 0xEF:
		need = 2
		if c == 0xE0 {
			lo = 0xA0
		} else if c == 0xED {
			hi = 0x9F
		}
	case c >= 0xF0 && c <= 0xF4:
		need = 3
		if c == 0xF0 {
			lo = 0x90
		} else if c == 0xF4 {
			hi = 0x8F
		}
	default:
		return 1
	}

	n := 1
	for ; n <= need && n < len(b); n++ {
		if b[n] < lo || b[n] > hi {
			break
		}
		lo, hi = 0x80, 0xBF
	}
	return n
}

func (d *frameDecoder) decodeScheduling(b []byte) {
	d.result.Data.SchedulingSettings = &SchedulingSettings{
		ActivationBitmask:        hex.EncodeToString(b[0:4]),
		AmbientPeriodicity:       uint32(binary.LittleEndian.Uint16(b[4:])) * schedulingPeriodScale,
		PredictionPeriodicity:    uint32(binary.LittleEndian.Uint16(b[6:])) * schedulingPeriodScale,
		IntrospectionPeriodicity: uint32(binary.LittleEndian.Uint16(b[8:])) * schedulingPeriodScale,
	}
	d.result.Data.ActivationStatus = ActivationStatus(b[0:4])
}

// ActivationStatus lists the measurements whose scheduling bit is set.
// Bit n is bit n%8 of byte n/8.
func ActivationStatus(bitmask []byte) []string {
	status := []string{}
	for i, b := range bitmask {
		for j := 0; j < 8; j++ {
			if b&(1<<j) == 0 {
				continue
			}
			if name, ok := activationNames[8*i+j]; ok {
				status = append(status, name+" scheduling is active")
			}
		}
	}
	return status
}

func (d *frameDecoder) decodeAdvanced(b []byte) {
	adv := &AdvancedSettings{
		SensorInformationBitmask: hex.EncodeToString(b[0:4]),
		SensorInformation:        d.sensorInformation(b[0:4]),
		Frequencies: FrequencySettings{
			SonicFrequencyHigh:     uint32(binary.LittleEndian.Uint16(b[4:])) * sonicFrequencyScale,
			SonicFrequencyLow:      uint32(binary.LittleEndian.Uint16(b[6:])) * sonicFrequencyScale,
			VibrationFrequencyHigh: uint32(binary.LittleEndian.Uint16(b[8:])),
			VibrationFrequencyLow:  uint32(binary.LittleEndian.Uint16(b[10:])),
		},
		RotationSpeedBoundaries: RotationSpeedBoundaries{
			RPMUpperBoundary: uint32(binary.LittleEndian.Uint16(b[12:])) * rpmScale,
			RPMLowerBoundary: uint32(binary.LittleEndian.Uint16(b[14:])) * rpmScale,
		},
		MileageThreshold:       binary.LittleEndian.Uint16(b[16:]),
		ReferenceCustomParam:   binary.LittleEndian.Uint16(b[18:]),
		CustomSpectrumType:     binary.LittleEndian.Uint16(b[20:]),
		CustomSpectrumParam:    binary.LittleEndian.Uint16(b[22:]),
		WakeOnEventInformation: d.wakeOnEvent(b[24:32]),
		LorawanConfig:          lorawanConfig(b[32:38]),
	}
	d.result.Data.AdvancedSettings = adv
}

func (d *frameDecoder) sensorInformation(bitmask []byte) SensorInformation {
	var info SensorInformation

	enumeration := bitmask[0]
	if enumeration&byte(SensorAccelerometer) == byte(SensorAccelerometer) {
		info.Enumeration += "AnyAccelerometer\n"
	}
	if enumeration&byte(SensorMicrophone) == byte(SensorMicrophone) {
		info.Enumeration += "AnyMicrophone"
	}
	if enumeration&0x0F == 0 {
		info.Enumeration = "NoSensor"
		d.result.raise(IssueNoSensor, nil, "No sensor information in frame, this is unexpected")
	}

	info.OrientationCode = bitmask[2]
	if name, ok := sensorOrientationNames[bitmask[2]]; ok {
		info.Orientation = name
	} else {
		d.result.raise(IssueUnknownEnumeration, map[string]interface{}{
			"orientation": bitmask[2],
		}, "Unknown sensor orientation (%d)", bitmask[2])
	}
	return info
}

// wakeOnEvent unpacks the wake-on-event words:
// mode (4 bits) | flag (1 bit) | param (11 bits), then profile (2 bits) | threshold (14 bits),
// then the pre- and post-trigger thresholds
func (d *frameDecoder) wakeOnEvent(b []byte) WakeOnEvent {
	modeWord := binary.LittleEndian.Uint16(b[0:])
	thresholdWord := binary.LittleEndian.Uint16(b[2:])

	woe := WakeOnEvent{
		WoeMode:             uint8(modeWord & 0x0F),
		WoeFlag:             modeWord&0x10 != 0,
		WoeParam:            modeWord >> 5,
		WoeProfile:          uint8(thresholdWord & 0x03),
		WoeThreshold:        thresholdWord >> 2,
		WoePretrigThreshold: binary.LittleEndian.Uint16(b[4:]),
		WoePostrigThreshold: binary.LittleEndian.Uint16(b[6:]),
	}

	if int(woe.WoeMode) < len(woeModeNames) {
		woe.WoeModeString = woeModeNames[woe.WoeMode]
	} else {
		d.result.raise(IssueUnknownEnumeration, map[string]interface{}{
			"woe_mode": woe.WoeMode,
		}, "Unknown Wake-On-Event mode \"%d\"", woe.WoeMode)
	}
	return woe
}

func lorawanConfig(b []byte) LorawanConfig {
	flags := b[0]
	return LorawanConfig{
		AdrIsEnabled:             flags&(1<<0) != 0,
		TransmissionIsAcked:      flags&(1<<1) != 0,
		NetworkIsPrivate:         flags&(1<<2) != 0,
		LorawanCodingRateIsBase:  flags&(1<<3) != 0,
		DwellTimeIsOn:            flags&(1<<4) != 0,
		RetransmitAckTwice:       flags&(1<<5) != 0,
		PacketSplitIsEnabled:     flags&(1<<6) != 0,
		SpecialFrequencySettings: binary.LittleEndian.Uint16(b[2:]),
		LinkCheckPeriod:          binary.LittleEndian.Uint16(b[4:]),
	}
}

// decodeExtensionSettings parses the extension block of a status report and
// persists it for later FFT zoom vectors. Reports without an extension block
// come from firmware predating the extension and are accepted silently.
func (d *frameDecoder) decodeExtensionSettings(b []byte) {
	if len(b) == 0 {
		return
	}
	if len(b) < extensionHeaderSize {
		d.result.raise(IssueTruncatedSettings, map[string]interface{}{
			"length": len(b),
		}, "Truncated extension settings (%d bytes, at least %d expected), settings not stored", len(b), extensionHeaderSize)
		return
	}

	s := ExtensionSettings{
		Handle:                   b[0],
		Activation:               ExtensionActivation(b[1]),
		Steps:                    b[2],
		Algorithm:                ExtensionAlgorithm(b[3]),
		SensorType:               SensorType(b[4]),
		AccelerometerOrientation: AxisOrientation(b[5]),
	}

	if !s.Activation.Valid() {
		d.unknownEnum("activation", b[1], "Unknown extension activation state (%d)")
	}
	if !s.Algorithm.Valid() {
		d.unknownEnum("algorithm", b[3], "Unknown extension algorithm type (%d)")
	}
	if !s.SensorType.Valid() {
		d.unknownEnum("sensor_type", b[4], "Unknown sensor type (%d)")
	}
	if !s.AccelerometerOrientation.Valid() {
		d.unknownEnum("accelerometer_orientation", b[5], "Unknown accelerometer orientation (%d)")
	}

	if s.Algorithm == AlgorithmFftZoom {
		if len(b) < extensionFftZoomSize {
			d.result.raise(IssueTruncatedSettings, map[string]interface{}{
				"length": len(b),
			}, "Truncated FFT zoom settings (%d bytes, %d expected), settings not stored", len(b), extensionFftZoomSize)
			return
		}

		s.UpperFrequency = binary.LittleEndian.Uint32(b[6:])
		s.LowerFrequency = binary.LittleEndian.Uint32(b[10:])
		s.CompressionType = CompressionType(binary.LittleEndian.Uint32(b[14:]))
		s.SpectrumType = SpectrumType(binary.LittleEndian.Uint32(b[18:]))
		s.CutOffFrequency = binary.LittleEndian.Uint32(b[22:])

		if !s.CompressionType.Valid() {
			d.unknownEnum("compression_type", s.CompressionType, "Unknown compression type (%d)")
		}
		if !s.SpectrumType.Valid() {
			d.unknownEnum("spectrum_type", s.SpectrumType, "Unknown spectrum type (%d)")
		}
	}

	d.result.Data.ExtensionSettings = &s

	if d.settings == nil {
		d.result.raise(IssueSettingsPersistence, nil, "No extension settings store available, settings not stored")
		return
	}
	if err := d.settings.Save(d.ctx, d.deviceID, s); err != nil {
		d.result.raise(IssueSettingsPersistence, map[string]interface{}{
			"device": d.deviceID,
			"error":  err.Error(),
		}, "Could not store extension settings for device %s (%v)", d.deviceID, err)
	}
}

func (d *frameDecoder) unknownEnum(field string, value interface{}, format string) {
	d.result.raise(IssueUnknownEnumeration, map[string]interface{}{field: value}, format, value)
}
