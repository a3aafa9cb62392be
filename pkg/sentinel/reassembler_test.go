// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sentinel

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"testing"
	"time"
)

// ============================================================
// Segmentation Test Helpers
// ============================================================

var segmentEpoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// segmentedScalars returns a four-scalar frame and its segments (3 chunks of at most 8 bytes)
func segmentedScalars(t *testing.T) ([]byte, [][]byte) {
	t.Helper()
	payload := concat(
		scalarEntry(ScalarBatteryLevel, 0xFFFF),
		scalarEntry(ScalarCurrentLoop, 0),
		scalarEntry(ScalarHumidity, 0xFFFF),
		scalarEntry(ScalarAmbientTemperature, 0),
	)
	chunks, err := SplitFrame(payload, 4, 8)
	if err != nil {
		t.Fatalf("SplitFrame failed: %v", err)
	}
	if len(chunks) != 3 {
		t.Fatalf("Expected 3 chunks, got %d", len(chunks))
	}
	return payload, chunks
}

// segment builds the record carrying chunk i, received offset after the epoch
func segment(chunks [][]byte, i int, offset time.Duration) CanonicalRecord {
	return CanonicalRecord{
		DeviceID:     testDevice,
		Bytes:        chunks[i],
		ElementCount: uint16(FirstSegmentPort + i),
		ReceivedAt:   segmentEpoch.Add(offset),
	}
}

// feed decodes records in order and returns the last result
func feed(t *testing.T, codec *Codec, recs ...CanonicalRecord) DecodeResult {
	t.Helper()
	var r DecodeResult
	for _, rec := range recs {
		r = codec.DecodeUplink(context.Background(), rec)
	}
	return r
}

func pendingContexts(codec *Codec) int {
	return codec.Reassembler().Store().(*MemorySegmentStore).Len()
}

// ============================================================
// Reassembly Tests
// ============================================================

func TestReassembler_HappyPath(t *testing.T) {
	codec := NewCodec()
	_, chunks := segmentedScalars(t)

	first := feed(t, codec, segment(chunks, 0, 0))
	assertWarning(t, first, IssueSegmentPending)
	if first.Warnings[0] != "First frame of a segmented data frame; additional data frames are needed" {
		t.Errorf("Unexpected warning %q", first.Warnings[0])
	}

	middle := feed(t, codec, segment(chunks, 1, time.Second))
	assertWarning(t, middle, IssueSegmentPending)

	last := feed(t, codec, segment(chunks, 2, 2*time.Second))
	assertNoIssues(t, last)

	if len(last.Data.ScalarValues) != 4 {
		t.Fatalf("Expected 4 scalars from the reassembled frame, got %d", len(last.Data.ScalarValues))
	}
	if !approxEqual(last.Data.ScalarValues[2].Value, 100) {
		t.Errorf("Unexpected humidity %v", last.Data.ScalarValues[2].Value)
	}
	if pendingContexts(codec) != 0 {
		t.Error("Context should be released after completion")
	}
}

func TestReassembler_ForwardsEmbeddedElementCount(t *testing.T) {
	r := NewReassembler(nil)
	payload := vectorEntry(VectorSignature, make([]byte, 20))
	chunks, err := SplitFrame(payload, 1, 10)
	if err != nil {
		t.Fatalf("SplitFrame failed: %v", err)
	}

	var frame CanonicalRecord
	var ok bool
	for i := range chunks {
		result := newDecodeResult()
		frame, ok = r.Process(segment(chunks, i, time.Duration(i)*time.Second), &result)
	}
	if !ok {
		t.Fatal("Frame should be complete")
	}
	if frame.ElementCount != 1 {
		t.Errorf("Expected embedded element count 1, got %d", frame.ElementCount)
	}
	if string(frame.Bytes) != string(payload) {
		t.Errorf("Reassembled payload differs: %x", frame.Bytes)
	}
}

func TestReassembler_PassThrough(t *testing.T) {
	r := NewReassembler(nil)
	result := newDecodeResult()
	rec := CanonicalRecord{DeviceID: testDevice, Bytes: scalarEntry(ScalarHumidity, 1), ElementCount: 1}

	out, ok := r.Process(rec, &result)
	if !ok || out.ElementCount != 1 || len(result.Issues) != 0 {
		t.Errorf("Plain frames must pass through untouched, got %+v ok=%t", out, ok)
	}
}

func TestReassembler_Reorder(t *testing.T) {
	codec := NewCodec()
	_, chunks := segmentedScalars(t)

	feed(t, codec, segment(chunks, 0, 0))

	skipped := feed(t, codec, segment(chunks, 2, time.Second))
	assertWarning(t, skipped, IssueSegmentContinuity)
	if pendingContexts(codec) != 0 {
		t.Error("Continuity break should reset the context")
	}

	late := feed(t, codec, segment(chunks, 1, 2*time.Second))
	assertWarning(t, late, IssueSegmentOrphan)
	if late.Warnings[0] != "This is a following chunk of a segmented frame, but the first one has been lost" {
		t.Errorf("Unexpected warning %q", late.Warnings[0])
	}
	if late.Data.ScalarValues != nil {
		t.Error("No data should be emitted")
	}
}

func TestReassembler_Duplicates(t *testing.T) {
	_, chunks := segmentedScalars(t)

	t.Run("Identical within window is ignored", func(t *testing.T) {
		codec := NewCodec()
		feed(t, codec, segment(chunks, 0, 0), segment(chunks, 1, time.Second))

		dup := feed(t, codec, segment(chunks, 1, time.Second+1500*time.Millisecond))
		assertWarning(t, dup, IssueSegmentDuplicate)
		if dup.Warnings[0] != "This is a duplicate frame segment, just ignore it." {
			t.Errorf("Unexpected warning %q", dup.Warnings[0])
		}

		last := feed(t, codec, segment(chunks, 2, 3*time.Second))
		assertNoIssues(t, last)
		if len(last.Data.ScalarValues) != 4 {
			t.Errorf("Frame should complete after a duplicate, got %d scalars", len(last.Data.ScalarValues))
		}
	})

	t.Run("Identical outside window resets", func(t *testing.T) {
		codec := NewCodec()
		feed(t, codec, segment(chunks, 0, 0), segment(chunks, 1, time.Second))

		late := feed(t, codec, segment(chunks, 1, 3*time.Second))
		assertWarning(t, late, IssueSegmentLost)
		if late.Warnings[0] != "This is not a duplicate frame segment ==> frame segments have been lost" {
			t.Errorf("Unexpected warning %q", late.Warnings[0])
		}

		orphan := feed(t, codec, segment(chunks, 2, 4*time.Second))
		assertWarning(t, orphan, IssueSegmentOrphan)
	})

	t.Run("Different bytes within window resets", func(t *testing.T) {
		codec := NewCodec()
		feed(t, codec, segment(chunks, 0, 0), segment(chunks, 1, time.Second))

		changed := segment(chunks, 1, time.Second+100*time.Millisecond)
		changed.Bytes = append([]byte{0x00}, chunks[1][1:]...)
		r := feed(t, codec, changed)
		assertWarning(t, r, IssueSegmentLost)
		if pendingContexts(codec) != 0 {
			t.Error("Context should be reset")
		}
	})

	t.Run("Window is measured in both directions", func(t *testing.T) {
		codec := NewCodec()
		feed(t, codec, segment(chunks, 0, 0), segment(chunks, 1, 5*time.Second))

		earlier := feed(t, codec, segment(chunks, 1, 4*time.Second))
		assertWarning(t, earlier, IssueSegmentDuplicate)
	})

	t.Run("Repeated first segment restarts the frame", func(t *testing.T) {
		codec := NewCodec()
		feed(t, codec, segment(chunks, 0, 0), segment(chunks, 1, time.Second))

		restart := feed(t, codec, segment(chunks, 0, 2*time.Second))
		assertWarning(t, restart, IssueSegmentPending)

		last := feed(t, codec, segment(chunks, 1, 3*time.Second), segment(chunks, 2, 4*time.Second))
		assertNoIssues(t, last)
		if len(last.Data.ScalarValues) != 4 {
			t.Errorf("Expected 4 scalars, got %d", len(last.Data.ScalarValues))
		}
	})
}

func TestReassembler_Overflow(t *testing.T) {
	codec := NewCodec()
	useful := []byte{0x02, 0x10, 0x00, 0x0E}

	first := make([]byte, SegmentHeaderSize)
	first[0] = 1
	binary.LittleEndian.PutUint16(first[1:], 3)
	binary.LittleEndian.PutUint16(first[3:], CalculateCRC(useful[:3]))
	first = append(first, useful[:2]...)

	feed(t, codec, segment([][]byte{first}, 0, 0))
	r := feed(t, codec, CanonicalRecord{DeviceID: testDevice, Bytes: useful[2:], ElementCount: 101, ReceivedAt: segmentEpoch.Add(time.Second)})

	assertFatal(t, r, IssueSegmentOverflow)
	if pendingContexts(codec) != 0 {
		t.Error("Overflow should reset the context")
	}
}

func TestReassembler_CRCFailure(t *testing.T) {
	codec := NewCodec()
	_, chunks := segmentedScalars(t)

	corrupted := append([]byte(nil), chunks[2]...)
	corrupted[0] ^= 0xFF

	feed(t, codec, segment(chunks, 0, 0), segment(chunks, 1, time.Second))
	rec := segment(chunks, 2, 2*time.Second)
	rec.Bytes = corrupted
	r := feed(t, codec, rec)

	assertFatal(t, r, IssueSegmentCRC)
	if r.Errors[0] != "Frame segmentation problem (CRC check failed)" {
		t.Errorf("Unexpected error %q", r.Errors[0])
	}
	if r.Data.ScalarValues != nil {
		t.Error("Corrupted frame must not be decoded")
	}
	if pendingContexts(codec) != 0 {
		t.Error("CRC failure should reset the context")
	}
}

func TestReassembler_MalformedFirstSegment(t *testing.T) {
	codec := NewCodec()
	r := feed(t, codec, CanonicalRecord{DeviceID: testDevice, Bytes: []byte{1, 2, 3}, ElementCount: FirstSegmentPort})

	assertWarning(t, r, IssueMalformedSegment)
	if pendingContexts(codec) != 0 {
		t.Error("No context should be created")
	}
}

func TestReassembler_DevicesAreIndependent(t *testing.T) {
	codec := NewCodec()
	_, chunks := segmentedScalars(t)

	a := segment(chunks, 0, 0)
	b := segment(chunks, 0, 0)
	b.DeviceID = "other"
	feed(t, codec, a, b)

	next := segment(chunks, 1, time.Second)
	next.DeviceID = "other"
	feed(t, codec, next)

	// Device A is still waiting for its second segment
	r := feed(t, codec, segment(chunks, 1, time.Second), segment(chunks, 2, 2*time.Second))
	assertNoIssues(t, r)
}

// ============================================================
// Eviction Tests
// ============================================================

func TestCodec_IdleEviction(t *testing.T) {
	now := segmentEpoch
	codec := NewCodec(WithIdleTTL(10*time.Second), WithClock(func() time.Time { return now }))
	_, chunks := segmentedScalars(t)

	feed(t, codec, segment(chunks, 0, 0))
	if evicted := codec.Sweep(); len(evicted) != 0 {
		t.Fatalf("Fresh context evicted: %v", evicted)
	}

	now = segmentEpoch.Add(30 * time.Second)
	evicted := codec.Sweep()
	if len(evicted) != 1 || evicted[0] != testDevice {
		t.Fatalf("Expected %s to be evicted, got %v", testDevice, evicted)
	}

	r := feed(t, codec, segment(chunks, 1, 31*time.Second))
	assertWarning(t, r, IssueSegmentOrphan)
}

func TestCodec_IdleEvictionIgnoresSegmentTimestamps(t *testing.T) {
	// Segments stamped long before the decoder clock, as in a replayed capture
	now := time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)
	codec := NewCodec(WithIdleTTL(time.Minute), WithClock(func() time.Time { return now }))
	_, chunks := segmentedScalars(t)

	feed(t, codec, segment(chunks, 0, 0))
	now = now.Add(1500 * time.Millisecond)
	if evicted := codec.Sweep(); len(evicted) != 0 {
		t.Fatalf("Live context evicted: %v", evicted)
	}

	r := feed(t, codec, segment(chunks, 1, time.Second), segment(chunks, 2, 2*time.Second))
	assertNoIssues(t, r)
	if len(r.Data.ScalarValues) != 4 {
		t.Errorf("Expected 4 scalars, got %d", len(r.Data.ScalarValues))
	}

	// An idle context is evicted on the decoder clock alone
	feed(t, codec, segment(chunks, 0, 0))
	now = now.Add(2 * time.Minute)
	if evicted := codec.Sweep(); len(evicted) != 1 {
		t.Fatalf("Expected the idle context to be evicted, got %v", evicted)
	}
}

func TestCodec_EvictionDisabled(t *testing.T) {
	now := segmentEpoch
	codec := NewCodec(WithClock(func() time.Time { return now }))
	_, chunks := segmentedScalars(t)

	feed(t, codec, segment(chunks, 0, 0))
	now = segmentEpoch.Add(time.Hour)
	if evicted := codec.Sweep(); evicted != nil {
		t.Errorf("Eviction should be disabled, got %v", evicted)
	}
	r := feed(t, codec, segment(chunks, 1, time.Hour), segment(chunks, 2, time.Hour))
	assertNoIssues(t, r)
}

// ============================================================
// Split Tests
// ============================================================

func TestSplitFrame(t *testing.T) {
	payload := make([]byte, 30)
	for i := range payload {
		payload[i] = byte(i)
	}

	chunks, err := SplitFrame(payload, 10, 12)
	if err != nil {
		t.Fatalf("SplitFrame failed: %v", err)
	}
	if len(chunks) != 3 {
		t.Fatalf("Expected 3 chunks, got %d", len(chunks))
	}
	if chunks[0][0] != 10 || binary.LittleEndian.Uint16(chunks[0][1:]) != 30 {
		t.Errorf("Unexpected header % X", chunks[0][:SegmentHeaderSize])
	}
	if binary.LittleEndian.Uint16(chunks[0][3:]) != CalculateCRC(payload) {
		t.Error("Header CRC does not match payload")
	}
	for _, c := range chunks {
		if len(c) > 12 {
			t.Errorf("Chunk exceeds size: %d", len(c))
		}
	}
}

func TestSplitFrame_Errors(t *testing.T) {
	tests := []struct {
		name         string
		length       int
		elementCount uint16
		chunkSize    int
	}{
		{"Element count too large", 30, 300, 12},
		{"Chunk too small", 30, 1, SegmentHeaderSize},
		{"Fits in one uplink", 5, 1, 12},
		{"Too many segments", 100, 1, 12},
		{"Payload too long", 0x10000, 1, 0x4000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := SplitFrame(make([]byte, tt.length), tt.elementCount, tt.chunkSize); err == nil {
				t.Error("Expected error")
			}
		})
	}
}

// ============================================================
// Concurrency Tests
// ============================================================

func TestCodec_ConcurrentDevices(t *testing.T) {
	codec := NewCodec()
	_, chunks := segmentedScalars(t)

	const devices = 16
	results := make([]DecodeResult, devices)

	var wg sync.WaitGroup
	for d := 0; d < devices; d++ {
		wg.Add(1)
		go func(d int) {
			defer wg.Done()
			for i := range chunks {
				rec := segment(chunks, i, time.Duration(i)*time.Second)
				rec.DeviceID = fmt.Sprintf("device-%02d", d)
				results[d] = codec.DecodeUplink(context.Background(), rec)
			}
		}(d)
	}
	wg.Wait()

	for d, r := range results {
		if r.Failed() || len(r.Data.ScalarValues) != 4 {
			t.Errorf("Device %d: unexpected result %+v", d, r)
		}
	}
	if codec.locks.size() != 0 {
		t.Errorf("Device locks leaked: %d", codec.locks.size())
	}
}

func TestCodec_ConcurrentSameDevice(t *testing.T) {
	codec := NewCodec()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			block := fftZoomSettingsBlock(byte(i), Compression50Bands8Bits)
			frame := vectorEntry(VectorSystemStatus, statusBody(block))
			codec.DecodeUplink(ctx, CanonicalRecord{DeviceID: testDevice, Bytes: frame, ElementCount: 1})
		}(i)
	}
	wg.Wait()

	if _, err := codec.Settings().Load(ctx, testDevice); err != nil {
		t.Errorf("Settings should be stored: %v", err)
	}
}

// ============================================================
// Panic Recovery Tests
// ============================================================

type panickingSettingsStore struct{}

func (panickingSettingsStore) Load(ctx context.Context, deviceID string) (ExtensionSettings, error) {
	panic("backend exploded")
}

func (panickingSettingsStore) Save(ctx context.Context, deviceID string, s ExtensionSettings) error {
	return nil
}

func TestCodec_RecoversFromPanic(t *testing.T) {
	codec := NewCodec(WithSettingsStore(panickingSettingsStore{}))
	rec := CanonicalRecord{
		DeviceID:     testDevice,
		Bytes:        vectorEntry(VectorSignatureExtension, []byte{1, 2, 3}),
		ElementCount: 1,
	}

	r := codec.DecodeUplink(context.Background(), rec)
	if len(r.Errors) != 1 || !r.HasKind(IssueInternal) {
		t.Fatalf("Expected a single internal error, got %v", r.Errors)
	}
	if len(r.Warnings) != 0 {
		t.Errorf("Unexpected warnings %v", r.Warnings)
	}
	if codec.locks.size() != 0 {
		t.Error("Device lock must be released after a panic")
	}

	// The codec stays usable
	ok := codec.DecodeUplink(context.Background(), CanonicalRecord{DeviceID: testDevice, Bytes: scalarEntry(ScalarHumidity, 1), ElementCount: 1})
	assertNoIssues(t, ok)
}
