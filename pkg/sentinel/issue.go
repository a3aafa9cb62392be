// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sentinel

// IssueKind classifies a problem found while decoding an uplink
type IssueKind int

const (
	// Fatal kinds stop decoding of the current frame
	IssueInvalidElementCount IssueKind = iota
	IssueInconsistentData
	IssueLengthMismatch
	IssueUnknownVectorType
	IssueTruncatedVector
	IssueSettingsUnavailable
	IssueUnknownExtensionHandle
	IssueUnknownExtensionAlgorithm
	IssueUnknownCompressionType
	IssueSegmentCRC
	IssueSegmentOverflow
	IssueInternal

	// Warning kinds never block emission of data
	IssueUnknownScalar
	IssueUnknownEnumeration
	IssueNoSensor
	IssueSegmentPending
	IssueSegmentDuplicate
	IssueSegmentLost
	IssueSegmentContinuity
	IssueSegmentOrphan
	IssueMalformedSegment
	IssueExcessVectorData
	IssueSettingsPersistence
	IssueTruncatedSettings
)

var issueKindNames = map[IssueKind]string{
	IssueInvalidElementCount:       "INVALID_ELEMENT_COUNT",
	IssueInconsistentData:          "INCONSISTENT_DATA",
	IssueLengthMismatch:            "LENGTH_MISMATCH",
	IssueUnknownVectorType:         "UNKNOWN_VECTOR_TYPE",
	IssueTruncatedVector:           "TRUNCATED_VECTOR",
	IssueSettingsUnavailable:       "SETTINGS_UNAVAILABLE",
	IssueUnknownExtensionHandle:    "UNKNOWN_EXTENSION_HANDLE",
	IssueUnknownExtensionAlgorithm: "UNKNOWN_EXTENSION_ALGORITHM",
	IssueUnknownCompressionType:    "UNKNOWN_COMPRESSION_TYPE",
	IssueSegmentCRC:                "SEGMENT_CRC",
	IssueSegmentOverflow:           "SEGMENT_OVERFLOW",
	IssueInternal:                  "INTERNAL",
	IssueUnknownScalar:             "UNKNOWN_SCALAR",
	IssueUnknownEnumeration:        "UNKNOWN_ENUMERATION",
	IssueNoSensor:                  "NO_SENSOR",
	IssueSegmentPending:            "SEGMENT_PENDING",
	IssueSegmentDuplicate:          "SEGMENT_DUPLICATE",
	IssueSegmentLost:               "SEGMENT_LOST",
	IssueSegmentContinuity:         "SEGMENT_CONTINUITY",
	IssueSegmentOrphan:             "SEGMENT_ORPHAN",
	IssueMalformedSegment:          "MALFORMED_SEGMENT",
	IssueExcessVectorData:          "EXCESS_VECTOR_DATA",
	IssueSettingsPersistence:       "SETTINGS_PERSISTENCE",
	IssueTruncatedSettings:         "TRUNCATED_SETTINGS",
}

// String returns the upper-case name of the kind
func (k IssueKind) String() string {
	if name, ok := issueKindNames[k]; ok {
		return name
	}
	return "UNKNOWN"
}

// Fatal reports whether the kind marks the frame as unusable
func (k IssueKind) Fatal() bool {
	return k <= IssueInternal
}

// Issue is a single error or warning raised while decoding
type Issue struct {
	Kind    IssueKind
	Message string
	Details map[string]interface{}
}

// Error implements the error interface
func (i *Issue) Error() string {
	return i.Message
}
