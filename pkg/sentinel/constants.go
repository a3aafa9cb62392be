// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package sentinel decodes uplink frames sent by Sentinel vibration and
// acoustic monitoring beacons over LoRaWAN.
//
// A beacon payload is a sequence of 3-byte scalar entries optionally followed
// by one type-tagged vector (signature spectrum, FFT zoom spectrum or system
// status report). Payloads larger than the radio allows are split into
// segments which are reassembled per device before decoding. The LoRaWAN
// fPort carries the element count used to locate the scalar/vector boundary,
// or the segment sequence marker for split frames.
package sentinel

import "time"

// Element count (fPort) ranges
const (
	MaxElementCount      = 105
	FirstSegmentPort     = 100
	LastSegmentPort      = 104
	LegacyStatusPort     = 67 // Older firmware sent status reports on this port
	LegacyStatusLength   = 84
	LegacyStatusMarker   = 0xFF
	SegmentHeaderSize    = 5
	DuplicateWindow      = 2 * time.Second
	ScalarEntrySize      = 3
	VectorElementSize    = 2
	rawScale16           = 65535.0
	rawScale8            = 255.0
	maxFftZoomBands      = 200
	systemStatusMinSize  = 57
	extensionHeaderSize  = 6
	extensionFftZoomSize = 26
)

// Scalar value identifiers
const (
	ScalarBatteryLevel       = 0x00
	ScalarCurrentLoop        = 0x01
	ScalarHumidity           = 0x02
	ScalarAmbientTemperature = 0x0E
)

// Vector type tags
const (
	VectorShockDetection     = 0x0A
	VectorSignature          = 0x0B
	VectorSignatureReference = 0x0C
	VectorSignatureExtension = 0x0D
	VectorSystemStatus       = 0xFF
)

// System status report layout (offsets relative to the vector body)
const (
	statusSoftwareBootOffset = 0
	statusHardwareBootOffset = 2
	statusFirmwareOffset     = 4
	statusFirmwareSize       = 5
	statusSchedulingOffset   = 9
	statusSchedulingSize     = 10
	statusAdvancedOffset     = 19
	statusAdvancedSize       = 38
	statusExtensionOffset    = 57
)

// Scaling factors applied to raw settings fields
const (
	schedulingPeriodScale = 10
	sonicFrequencyScale   = 10
	rpmScale              = 60
)

// CRC-16-CCITT configuration
const (
	crcPolynomial = 0x1021
	crcInitial    = 0xFFFF
)

// ExtensionActivation is the scheduling mode of the signature extension
type ExtensionActivation uint8

const (
	ActivationNotActivated ExtensionActivation = 0x0
	ActivationPeriodic     ExtensionActivation = 0x1
	ActivationBurst        ExtensionActivation = 0x2
)

// ExtensionAlgorithm identifies the algorithm producing extension vectors
type ExtensionAlgorithm uint8

const (
	AlgorithmFftZoom ExtensionAlgorithm = 0x0
)

// SensorType identifies the sensor feeding the extension algorithm
type SensorType uint8

const (
	SensorAccelerometer SensorType = 0x3
	SensorMicrophone    SensorType = 0xC
)

// AxisOrientation is the accelerometer axis used by the extension algorithm
type AxisOrientation uint8

const (
	OrientationAverage AxisOrientation = 0x0
	OrientationX       AxisOrientation = 0x1
	OrientationY       AxisOrientation = 0x2
	OrientationZ       AxisOrientation = 0x4
)

// CompressionType selects band count and element width of FFT zoom vectors
type CompressionType uint32

const (
	Compression50Bands8Bits   CompressionType = 0x0
	Compression50Bands16Bits  CompressionType = 0x1
	Compression100Bands8Bits  CompressionType = 0x2
	Compression100Bands16Bits CompressionType = 0x3
	Compression200Bands8Bits  CompressionType = 0x4
)

// SpectrumType is the kind of spectrum computed by the FFT zoom algorithm
type SpectrumType uint32

const (
	SpectrumRMS          SpectrumType = 0x1
	SpectrumPeak         SpectrumType = 0x2
	SpectrumVelocityRMS  SpectrumType = 0x3
	SpectrumVelocityPeak SpectrumType = 0x4
	SpectrumEnvelopeRMS  SpectrumType = 0x5
	SpectrumEnvelopePeak SpectrumType = 0x6
)

// Wake-on-event modes
const (
	WoeInactive = iota
	WoeMotionTrig
	WoeMotionTrigAuto
	WoeSchedulerTrig
	WoeAnalogTrig
	WoeContactTrig
)

// Units used by the physical value catalog
const (
	UnitVolt     = "Volt"
	UnitHumidity = "% rH"
	UnitCelsius  = "°C"
	UnitDecibel  = "dB"
	UnitG        = "g"
	UnitMmPerSec = "mm/s"
	UnitRPM      = "rpm"
	UnitNone     = ""
)
