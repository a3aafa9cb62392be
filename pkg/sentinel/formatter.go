// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sentinel

import (
	"fmt"
	"strings"
)

// FormatUplink formats a record and its decode result into a human-readable string
func FormatUplink(rec CanonicalRecord, r DecodeResult) string {
	timestamp := rec.ReceivedAt.Format("15:04:05.000")

	kind := "FRAME"
	switch {
	case rec.IsFirstSegment():
		kind = "SEGMENT_FIRST"
	case rec.IsContinuation():
		kind = fmt.Sprintf("SEGMENT_%d", rec.ElementCount-FirstSegmentPort)
	}

	result := fmt.Sprintf("[%s] %s %s fPort=%d len=%d\n", timestamp, rec.DeviceID, kind, rec.ElementCount, len(rec.Bytes))
	return result + FormatResult(r)
}

// FormatResult formats the data, errors and warnings of a decode result
func FormatResult(r DecodeResult) string {
	var sb strings.Builder
	data := r.Data

	writeValues(&sb, "Scalars", data.ScalarValues)
	writeValues(&sb, "Signature", data.SignatureValues)
	writeValues(&sb, "FFT zoom", data.FftZoomValues)

	if data.FirmwareVersion != "" {
		fmt.Fprintf(&sb, "  Firmware: %q\n", data.FirmwareVersion)
	}
	if data.FirmwareStatus != nil {
		causes := "none"
		if len(data.FirmwareStatus.LastBootCauses) > 0 {
			causes = strings.Join(data.FirmwareStatus.LastBootCauses, ", ")
		}
		fmt.Fprintf(&sb, "  Health: %s, Boot causes: %s\n", data.FirmwareStatus.SoftwareStatus, causes)
	}
	if s := data.SchedulingSettings; s != nil {
		fmt.Fprintf(&sb, "  Scheduling: mask=%s ambient=%ds prediction=%ds introspection=%ds\n",
			s.ActivationBitmask, s.AmbientPeriodicity, s.PredictionPeriodicity, s.IntrospectionPeriodicity)
	}
	for _, a := range data.ActivationStatus {
		fmt.Fprintf(&sb, "    %s\n", a)
	}
	if a := data.AdvancedSettings; a != nil {
		fmt.Fprintf(&sb, "  Sensors: %s, Orientation: %s\n",
			strings.ReplaceAll(strings.TrimSpace(a.SensorInformation.Enumeration), "\n", "+"),
			formatOrientation(a.SensorInformation))
		fmt.Fprintf(&sb, "  Sonic: %d-%d Hz, Vibration: %d-%d Hz, RPM: %d-%d\n",
			a.Frequencies.SonicFrequencyLow, a.Frequencies.SonicFrequencyHigh,
			a.Frequencies.VibrationFrequencyLow, a.Frequencies.VibrationFrequencyHigh,
			a.RotationSpeedBoundaries.RPMLowerBoundary, a.RotationSpeedBoundaries.RPMUpperBoundary)
		woe := a.WakeOnEventInformation
		fmt.Fprintf(&sb, "  Wake-on-event: %s (%d), Flag: %t, Threshold: %d\n",
			formatWoeMode(woe), woe.WoeMode, woe.WoeFlag, woe.WoeThreshold)
		l := a.LorawanConfig
		fmt.Fprintf(&sb, "  LoRaWAN: ADR=%t Acked=%t Private=%t Split=%t LinkCheck=%d\n",
			l.AdrIsEnabled, l.TransmissionIsAcked, l.NetworkIsPrivate, l.PacketSplitIsEnabled, l.LinkCheckPeriod)
	}
	if e := data.ExtensionSettings; e != nil {
		fmt.Fprintf(&sb, "  Extension: handle=%d %s algorithm=%s sensor=%s axis=%s\n",
			e.Handle, e.Activation, e.Algorithm, e.SensorType, e.AccelerometerOrientation)
		if e.Algorithm == AlgorithmFftZoom {
			fmt.Fprintf(&sb, "    Band: %d-%d Hz, Compression: %s, Spectrum: %s, Cut-off: %d Hz\n",
				e.LowerFrequency, e.UpperFrequency, e.CompressionType, e.SpectrumType, e.CutOffFrequency)
		}
	}

	for _, e := range r.Errors {
		fmt.Fprintf(&sb, "  ERROR: %s\n", e)
	}
	for _, w := range r.Warnings {
		fmt.Fprintf(&sb, "  WARNING: %s\n", w)
	}

	if sb.Len() == 0 {
		return "  (no data)\n"
	}
	return sb.String()
}

func writeValues(sb *strings.Builder, title string, values []PhysicalValue) {
	if len(values) == 0 {
		return
	}
	fmt.Fprintf(sb, "  %s (%d):\n", title, len(values))
	for _, v := range values {
		fmt.Fprintf(sb, "    %s\n", FormatPhysicalValue(v))
	}
}

// FormatPhysicalValue renders a value with its unit and range
func FormatPhysicalValue(v PhysicalValue) string {
	unit := ""
	if v.Unit != "" {
		unit = " " + v.Unit
	}
	return fmt.Sprintf("%s: %.3f%s [%g, %g]", v.Name, v.Value, unit, v.Min, v.Max)
}

func formatOrientation(info SensorInformation) string {
	if info.Orientation != "" {
		return strings.TrimSpace(info.Orientation)
	}
	return fmt.Sprintf("UNKNOWN (%d)", info.OrientationCode)
}

func formatWoeMode(woe WakeOnEvent) string {
	if woe.WoeModeString != "" {
		return woe.WoeModeString
	}
	return "UNKNOWN"
}

// String returns the activation mode name
func (a ExtensionActivation) String() string {
	switch a {
	case ActivationNotActivated:
		return "NOT_ACTIVATED"
	case ActivationPeriodic:
		return "PERIODIC"
	case ActivationBurst:
		return "BURST"
	default:
		return "UNKNOWN"
	}
}

// Valid reports whether a is a known activation mode
func (a ExtensionActivation) Valid() bool {
	return a <= ActivationBurst
}

// String returns the algorithm name
func (a ExtensionAlgorithm) String() string {
	if a == AlgorithmFftZoom {
		return "FFT_ZOOM"
	}
	return "UNKNOWN"
}

// Valid reports whether a is a known algorithm
func (a ExtensionAlgorithm) Valid() bool {
	return a == AlgorithmFftZoom
}

// String returns the sensor type name
func (s SensorType) String() string {
	switch s {
	case SensorAccelerometer:
		return "ACCELEROMETER"
	case SensorMicrophone:
		return "MICROPHONE"
	default:
		return "UNKNOWN"
	}
}

// Valid reports whether s is a known sensor type
func (s SensorType) Valid() bool {
	return s == SensorAccelerometer || s == SensorMicrophone
}

// String returns the axis name
func (o AxisOrientation) String() string {
	switch o {
	case OrientationAverage:
		return "AVERAGE"
	case OrientationX:
		return "X"
	case OrientationY:
		return "Y"
	case OrientationZ:
		return "Z"
	default:
		return "UNKNOWN"
	}
}

// Valid reports whether o is a known axis
func (o AxisOrientation) Valid() bool {
	switch o {
	case OrientationAverage, OrientationX, OrientationY, OrientationZ:
		return true
	}
	return false
}

// String returns the compression name
func (c CompressionType) String() string {
	names := []string{"50_BANDS_8_BITS", "50_BANDS_16_BITS", "100_BANDS_8_BITS", "100_BANDS_16_BITS", "200_BANDS_8_BITS"}
	if int(c) < len(names) {
		return names[c]
	}
	return "UNKNOWN"
}

// Valid reports whether c is a known compression type
func (c CompressionType) Valid() bool {
	return c <= Compression200Bands8Bits
}

// Bands returns the number of spectrum bands of the compression type
func (c CompressionType) Bands() int {
	switch c {
	case Compression50Bands8Bits, Compression50Bands16Bits:
		return 50
	case Compression100Bands8Bits, Compression100Bands16Bits:
		return 100
	case Compression200Bands8Bits:
		return 200
	default:
		return 0
	}
}

// String returns the spectrum type name
func (s SpectrumType) String() string {
	names := []string{"RMS", "PEAK", "VELOCITY_RMS", "VELOCITY_PEAK", "ENVELOPE_RMS", "ENVELOPE_PEAK"}
	if s >= SpectrumRMS && int(s) <= len(names) {
		return names[s-1]
	}
	return "UNKNOWN"
}

// Valid reports whether s is a known spectrum type
func (s SpectrumType) Valid() bool {
	return s >= SpectrumRMS && s <= SpectrumEnvelopePeak
}
