// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sentinel

import (
	"encoding/hex"
	"time"
)

// CanonicalRecord is one uplink as delivered by a network server adapter
type CanonicalRecord struct {
	DeviceID     string    `json:"deviceId" cbor:"deviceId"`
	Bytes        []byte    `json:"bytes" cbor:"bytes"`
	ElementCount uint16    `json:"elementCount" cbor:"elementCount"`
	ReceivedAt   time.Time `json:"receivedAt" cbor:"receivedAt"`
}

// IsFirstSegment reports whether the record opens a segmented frame
func (r CanonicalRecord) IsFirstSegment() bool {
	return r.ElementCount == FirstSegmentPort
}

// IsContinuation reports whether the record is a following segment
func (r CanonicalRecord) IsContinuation() bool {
	return r.ElementCount > FirstSegmentPort && r.ElementCount <= LastSegmentPort
}

// IsSegment reports whether the record is part of a segmented frame
func (r CanonicalRecord) IsSegment() bool {
	return r.IsFirstSegment() || r.IsContinuation()
}

// Hex returns the payload as a lower-case hex string
func (r CanonicalRecord) Hex() string {
	return hex.EncodeToString(r.Bytes)
}
