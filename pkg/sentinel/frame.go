// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sentinel

import (
	"context"
	"encoding/binary"
)

// frameDecoder carries the state of one DecodeFrame call
type frameDecoder struct {
	ctx      context.Context
	deviceID string
	settings SettingsStore
	result   *DecodeResult
}

// DecodeFrame interprets a complete (non-segmented) payload.
//
// elementCount is the number of entries in the payload: when the payload is
// exactly elementCount scalar entries long it holds scalars only, otherwise
// the last entry is a vector taking the rest of the payload. settings is read
// for FFT zoom vectors and written when a system status report carries
// extension settings; it may be nil.
//
// DecodeFrame keeps no state of its own and returns whatever data was decoded
// before the first fatal issue.
func DecodeFrame(ctx context.Context, deviceID string, payload []byte, elementCount uint16, settings SettingsStore) DecodeResult {
	result := newDecodeResult()
	d := &frameDecoder{
		ctx:      ctx,
		deviceID: deviceID,
		settings: settings,
		result:   &result,
	}
	d.decode(payload, elementCount)
	return result
}

func (d *frameDecoder) decode(payload []byte, elementCount uint16) {
	if elementCount > MaxElementCount {
		d.result.raise(IssueInvalidElementCount, map[string]interface{}{
			"element_count": elementCount,
		}, "Invalid number of elements in frame (%d)", elementCount)
		return
	}

	// Older firmware sent its status report on a port of its own
	if elementCount == LegacyStatusPort {
		if len(payload) != LegacyStatusLength || payload[0] != LegacyStatusMarker {
			d.result.raise(IssueInconsistentData, map[string]interface{}{
				"length": len(payload),
			}, "Inconsistent data from frame (looks partly like a system status report)")
			return
		}
		elementCount = 1
	}

	n := int(elementCount)
	if len(payload) < n*ScalarEntrySize || (n == 0 && len(payload) > 0) {
		d.result.raise(IssueLengthMismatch, map[string]interface{}{
			"element_count": n,
			"length":        len(payload),
		}, "Inconsistent number of elements in frame (%d) and frame length (%d)", n, len(payload))
		return
	}
	if n == 0 {
		return
	}

	nbScalars := n
	hasVector := false
	if len(payload) > n*ScalarEntrySize {
		nbScalars = n - 1
		hasVector = true
	}

	if nbScalars > 0 {
		d.decodeScalars(payload[:nbScalars*ScalarEntrySize])
	}

	if hasVector {
		vectorStart := nbScalars * ScalarEntrySize
		d.decodeVector(payload[vectorStart], payload[vectorStart+1:])
	}
}

// decodeScalars reads 3-byte entries: identifier then unsigned little-endian raw value
func (d *frameDecoder) decodeScalars(entries []byte) {
	values := []PhysicalValue{}

	for i := 0; i+ScalarEntrySize <= len(entries); i += ScalarEntrySize {
		id := entries[i]
		raw := binary.LittleEndian.Uint16(entries[i+1 : i+3])

		desc, ok := LookupScalar(id)
		if !ok {
			d.result.raise(IssueUnknownScalar, map[string]interface{}{
				"id":  id,
				"raw": raw,
			}, "Unindentified scalar value indicator (%d)", id)
			continue
		}
		values = append(values, desc.Scale(uint32(raw), rawScale16))
	}

	d.result.Data.ScalarValues = values
}

func (d *frameDecoder) decodeVector(vectorType byte, body []byte) {
	switch vectorType {
	case VectorShockDetection, VectorSignatureReference:
		// Carried for completeness, no values are derived from them
	case VectorSignature:
		d.decodeSignature(body)
	case VectorSignatureExtension:
		d.decodeExtension(body)
	case VectorSystemStatus:
		d.decodeSystemStatus(body)
	default:
		d.result.raise(IssueUnknownVectorType, map[string]interface{}{
			"vector_type": vectorType,
		}, "Unknown vector type (%d)", vectorType)
	}
}
