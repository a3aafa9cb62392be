// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sentinel

import (
	"encoding/hex"
	"time"
)

// Reassembler rebuilds split frames from their segments, one context per device.
//
// A first segment (port 100) opens or replaces the device context. Following
// segments (ports 101 to 104) must arrive in order; a repeated segment is
// dropped when it is byte-identical and within DuplicateWindow of the previous
// one, any other irregularity discards the frame in progress.
//
// Reassembler does not serialize calls for the same device; callers must.
// Contexts handed to the store are never modified afterwards, so the store
// may be swept concurrently.
type Reassembler struct {
	store SegmentStore
	now   func() time.Time
}

// NewReassembler creates a reassembler keeping its contexts in store
func NewReassembler(store SegmentStore) *Reassembler {
	if store == nil {
		store = NewMemorySegmentStore()
	}
	return &Reassembler{store: store, now: time.Now}
}

// Store returns the underlying segment store
func (r *Reassembler) Store() SegmentStore {
	return r.store
}

// Process feeds one record through the state machine. It returns the record to
// decode and true when a complete frame is available: the record itself when it
// is not a segment, or the reconstructed frame carrying its embedded element count.
func (r *Reassembler) Process(rec CanonicalRecord, result *DecodeResult) (CanonicalRecord, bool) {
	switch {
	case rec.IsFirstSegment():
		r.startFrame(rec, result)
		return CanonicalRecord{}, false
	case rec.IsContinuation():
		return r.continueFrame(rec, result)
	default:
		return rec, true
	}
}

func (r *Reassembler) startFrame(rec CanonicalRecord, result *DecodeResult) {
	ctx, err := newSegmentationContext(rec.Bytes, rec.ReceivedAt)
	if err != nil {
		r.store.Remove(rec.DeviceID)
		result.raise(IssueMalformedSegment, nil, "Malformed first frame of a segmented data frame (%v)", err)
		return
	}

	r.save(rec.DeviceID, ctx)
	result.raise(IssueSegmentPending, map[string]interface{}{
		"expected_length": ctx.ExpectedLength,
		"received":        len(ctx.Accumulated),
	}, "First frame of a segmented data frame; additional data frames are needed")
}

func (r *Reassembler) continueFrame(rec CanonicalRecord, result *DecodeResult) (CanonicalRecord, bool) {
	ctx, ok := r.store.Get(rec.DeviceID)
	if !ok {
		result.raise(IssueSegmentOrphan, nil,
			"This is a following chunk of a segmented frame, but the first one has been lost")
		return CanonicalRecord{}, false
	}

	switch rec.ElementCount {
	case ctx.LastChunkPort + 1:
		return r.appendChunk(ctx.clone(), rec, result)

	case ctx.LastChunkPort:
		details := map[string]interface{}{
			"previous":             hex.EncodeToString(ctx.LastChunkBytes),
			"current":              rec.Hex(),
			"previous_received_at": ctx.LastChunkReceivedAt.Format(time.RFC3339Nano),
			"current_received_at":  rec.ReceivedAt.Format(time.RFC3339Nano),
		}
		if ctx.isDuplicate(rec.Bytes, rec.ReceivedAt) {
			r.save(rec.DeviceID, ctx.clone())
			result.raise(IssueSegmentDuplicate, details, "This is a duplicate frame segment, just ignore it.")
			return CanonicalRecord{}, false
		}
		r.store.Remove(rec.DeviceID)
		result.raise(IssueSegmentLost, details,
			"This is not a duplicate frame segment ==> frame segments have been lost")
		return CanonicalRecord{}, false

	default:
		r.store.Remove(rec.DeviceID)
		result.raise(IssueSegmentContinuity, map[string]interface{}{
			"previous_port": ctx.LastChunkPort,
			"current_port":  rec.ElementCount,
		}, "Continuity break in frame segment sequence (port %d after port %d)", rec.ElementCount, ctx.LastChunkPort)
		return CanonicalRecord{}, false
	}
}

func (r *Reassembler) appendChunk(ctx *SegmentationContext, rec CanonicalRecord, result *DecodeResult) (CanonicalRecord, bool) {
	ctx.append(rec.Bytes)

	switch ctx.checkLength() {
	case -1:
		ctx.remember(rec.ElementCount, rec.Bytes, rec.ReceivedAt)
		r.save(rec.DeviceID, ctx)
		result.raise(IssueSegmentPending, map[string]interface{}{
			"expected_length": ctx.ExpectedLength,
			"received":        len(ctx.Accumulated),
		}, "Complementary frame (port %d) of a segmented data frame; additional data frames are needed", rec.ElementCount)
		return CanonicalRecord{}, false

	case 1:
		r.store.Remove(rec.DeviceID)
		result.raise(IssueSegmentOverflow, map[string]interface{}{
			"expected_length": ctx.ExpectedLength,
			"received":        len(ctx.Accumulated),
		}, "The reconstructed frame is too large (%d bytes, %d expected)! Resetting the context.",
			len(ctx.Accumulated), ctx.ExpectedLength)
		return CanonicalRecord{}, false
	}

	r.store.Remove(rec.DeviceID)
	if !ctx.checkCRC() {
		result.raise(IssueSegmentCRC, map[string]interface{}{
			"expected_crc": ctx.CRC,
			"computed_crc": CalculateCRC(ctx.Accumulated),
		}, "Frame segmentation problem (CRC check failed)")
		return CanonicalRecord{}, false
	}

	return CanonicalRecord{
		DeviceID:     rec.DeviceID,
		Bytes:        ctx.Accumulated,
		ElementCount: ctx.ElementCount,
		ReceivedAt:   rec.ReceivedAt,
	}, true
}

// save stamps a context with the decoder clock and stores it
func (r *Reassembler) save(deviceID string, ctx *SegmentationContext) {
	ctx.TouchedAt = r.now()
	r.store.Set(deviceID, ctx)
}

// EvictIdle drops frames in progress not stored for ttl, measured on the
// decoder clock. Segment timestamps are not involved.
// It is a no-op when the store cannot enumerate its contexts.
func (r *Reassembler) EvictIdle(now time.Time, ttl time.Duration) []string {
	evicter, ok := r.store.(interface {
		EvictIdle(cutoff time.Time) []string
	})
	if !ok || ttl <= 0 {
		return nil
	}
	return evicter.EvictIdle(now.Add(-ttl))
}
