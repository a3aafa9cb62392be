// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sentinel

import "fmt"

// DecodeResult is the outcome of decoding one uplink.
// A non-empty Errors list means the frame is unusable even if Data is partly filled.
type DecodeResult struct {
	Data     FrameData `json:"data" cbor:"data"`
	Errors   []string  `json:"errors" cbor:"errors"`
	Warnings []string  `json:"warnings" cbor:"warnings"`

	// Issues holds the classified form of Errors and Warnings, in raise order
	Issues []Issue `json:"-" cbor:"-"`
}

// FrameData holds the named outputs of a decoded frame.
// Fields are only set when the matching record was present.
type FrameData struct {
	ScalarValues       []PhysicalValue     `json:"scalarValues,omitempty" cbor:"scalarValues,omitempty"`
	SignatureValues    []PhysicalValue     `json:"signatureValues,omitempty" cbor:"signatureValues,omitempty"`
	FftZoomValues      []PhysicalValue     `json:"fftZoomValues,omitempty" cbor:"fftZoomValues,omitempty"`
	FirmwareVersion    string              `json:"firmwareVersion,omitempty" cbor:"firmwareVersion,omitempty"`
	FirmwareStatus     *FirmwareStatus     `json:"firmwareStatus,omitempty" cbor:"firmwareStatus,omitempty"`
	SchedulingSettings *SchedulingSettings `json:"schedulingSettings,omitempty" cbor:"schedulingSettings,omitempty"`
	ActivationStatus   []string            `json:"activationStatus,omitempty" cbor:"activationStatus,omitempty"`
	AdvancedSettings   *AdvancedSettings   `json:"advancedSettings,omitempty" cbor:"advancedSettings,omitempty"`
	ExtensionSettings  *ExtensionSettings  `json:"extensionSettings,omitempty" cbor:"extensionSettings,omitempty"`
}

// SchedulingSettings are the public measurement schedules of a beacon
type SchedulingSettings struct {
	ActivationBitmask        string `json:"activationBitmask" cbor:"activationBitmask"`
	AmbientPeriodicity       uint32 `json:"ambientPeriodicity" cbor:"ambientPeriodicity"`
	PredictionPeriodicity    uint32 `json:"predictionPeriodicity" cbor:"predictionPeriodicity"`
	IntrospectionPeriodicity uint32 `json:"introspectionPeriodicity" cbor:"introspectionPeriodicity"`
}

// AdvancedSettings are the private device settings of a beacon
type AdvancedSettings struct {
	SensorInformationBitmask string                  `json:"sensorInformationBitmask" cbor:"sensorInformationBitmask"`
	SensorInformation        SensorInformation       `json:"sensorInformation" cbor:"sensorInformation"`
	Frequencies              FrequencySettings       `json:"frequencies" cbor:"frequencies"`
	RotationSpeedBoundaries  RotationSpeedBoundaries `json:"rotationSpeedBoundaries" cbor:"rotationSpeedBoundaries"`
	MileageThreshold         uint16                  `json:"mileageThreshold" cbor:"mileageThreshold"`
	ReferenceCustomParam     uint16                  `json:"referenceCustomParam" cbor:"referenceCustomParam"`
	CustomSpectrumType       uint16                  `json:"customSpectrumType" cbor:"customSpectrumType"`
	CustomSpectrumParam      uint16                  `json:"customSpectrumParam" cbor:"customSpectrumParam"`
	WakeOnEventInformation   WakeOnEvent             `json:"wakeOnEventInformation" cbor:"wakeOnEventInformation"`
	LorawanConfig            LorawanConfig           `json:"lorawanConfig" cbor:"lorawanConfig"`
}

// SensorInformation describes the sensors enumerated by the beacon
type SensorInformation struct {
	Enumeration     string `json:"enumeration" cbor:"enumeration"`
	Orientation     string `json:"orientation,omitempty" cbor:"orientation,omitempty"`
	OrientationCode uint8  `json:"orientationCode" cbor:"orientationCode"`
}

// FrequencySettings are the acquisition bandwidths, in Hz
type FrequencySettings struct {
	SonicFrequencyHigh     uint32 `json:"sonicFrequencyHigh" cbor:"sonicFrequencyHigh"`
	SonicFrequencyLow      uint32 `json:"sonicFrequencyLow" cbor:"sonicFrequencyLow"`
	VibrationFrequencyHigh uint32 `json:"vibrationFrequencyHigh" cbor:"vibrationFrequencyHigh"`
	VibrationFrequencyLow  uint32 `json:"vibrationFrequencyLow" cbor:"vibrationFrequencyLow"`
}

// RotationSpeedBoundaries bound the machine rotation speed, in rpm
type RotationSpeedBoundaries struct {
	RPMUpperBoundary uint32 `json:"rpmUpperBoundary" cbor:"rpmUpperBoundary"`
	RPMLowerBoundary uint32 `json:"rpmLowerBoundary" cbor:"rpmLowerBoundary"`
}

// WakeOnEvent is the wake-on-event trigger configuration
type WakeOnEvent struct {
	WoeMode             uint8  `json:"woeMode" cbor:"woeMode"`
	WoeModeString       string `json:"woeModeString,omitempty" cbor:"woeModeString,omitempty"`
	WoeFlag             bool   `json:"woeFlag" cbor:"woeFlag"`
	WoeParam            uint16 `json:"woeParam" cbor:"woeParam"`
	WoeProfile          uint8  `json:"woeProfile" cbor:"woeProfile"`
	WoeThreshold        uint16 `json:"woeThreshold" cbor:"woeThreshold"`
	WoePretrigThreshold uint16 `json:"woePretrigThreshold" cbor:"woePretrigThreshold"`
	WoePostrigThreshold uint16 `json:"woePostrigThreshold" cbor:"woePostrigThreshold"`
}

// LorawanConfig is the radio configuration of the beacon
type LorawanConfig struct {
	AdrIsEnabled             bool   `json:"adrIsEnabled" cbor:"adrIsEnabled"`
	TransmissionIsAcked      bool   `json:"transmissionIsAcked" cbor:"transmissionIsAcked"`
	NetworkIsPrivate         bool   `json:"networkIsPrivate" cbor:"networkIsPrivate"`
	LorawanCodingRateIsBase  bool   `json:"lorawanCodingRateIsBase" cbor:"lorawanCodingRateIsBase"`
	DwellTimeIsOn            bool   `json:"dwellTimeIsOn" cbor:"dwellTimeIsOn"`
	RetransmitAckTwice       bool   `json:"retransmitAckTwice" cbor:"retransmitAckTwice"`
	PacketSplitIsEnabled     bool   `json:"packetSplitIsEnabled" cbor:"packetSplitIsEnabled"`
	SpecialFrequencySettings uint16 `json:"specialFrequencySettings" cbor:"specialFrequencySettings"`
	LinkCheckPeriod          uint16 `json:"linkCheckPeriod" cbor:"linkCheckPeriod"`
}

func newDecodeResult() DecodeResult {
	return DecodeResult{
		Errors:   []string{},
		Warnings: []string{},
	}
}

// Failed reports whether decoding hit a fatal issue
func (r *DecodeResult) Failed() bool {
	return len(r.Errors) > 0
}

// HasKind reports whether an issue of the given kind was raised
func (r *DecodeResult) HasKind(kind IssueKind) bool {
	for _, issue := range r.Issues {
		if issue.Kind == kind {
			return true
		}
	}
	return false
}

// raise records an issue under Errors or Warnings depending on its kind
func (r *DecodeResult) raise(kind IssueKind, details map[string]interface{}, format string, args ...interface{}) {
	issue := Issue{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
		Details: details,
	}
	r.Issues = append(r.Issues, issue)
	if kind.Fatal() {
		r.Errors = append(r.Errors, issue.Message)
	} else {
		r.Warnings = append(r.Warnings, issue.Message)
	}
}

// merge appends the issues of another result in order
func (r *DecodeResult) merge(other DecodeResult) {
	for _, issue := range other.Issues {
		r.raise(issue.Kind, issue.Details, "%s", issue.Message)
	}
}
