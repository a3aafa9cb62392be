// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sentinel

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"
)

// SegmentationContext accumulates the segments of one split frame.
//
// The first segment starts with a header:
//
//	[0]    element count of the reconstructed frame
//	[1..2] useful payload length, little-endian
//	[3..4] CRC-16-CCITT of the useful payload, little-endian
//
// followed by the first useful bytes. Following segments carry useful bytes only.
type SegmentationContext struct {
	ElementCount        uint16
	ExpectedLength      uint32
	CRC                 uint16
	Accumulated         []byte
	LastChunkPort       uint16
	LastChunkBytes      []byte
	LastChunkReceivedAt time.Time

	// TouchedAt is the decoder clock reading when the context was last stored
	TouchedAt time.Time
}

// newSegmentationContext parses a first segment
func newSegmentationContext(chunk []byte, receivedAt time.Time) (*SegmentationContext, error) {
	if len(chunk) < SegmentHeaderSize {
		return nil, fmt.Errorf("first segment too short (%d bytes, need at least %d)", len(chunk), SegmentHeaderSize)
	}

	ctx := &SegmentationContext{
		ElementCount:   uint16(chunk[0]),
		ExpectedLength: uint32(binary.LittleEndian.Uint16(chunk[1:3])),
		CRC:            binary.LittleEndian.Uint16(chunk[3:5]),
	}
	ctx.Accumulated = append(make([]byte, 0, ctx.ExpectedLength), chunk[SegmentHeaderSize:]...)
	ctx.remember(FirstSegmentPort, chunk, receivedAt)
	return ctx, nil
}

// clone returns a deep copy; stored contexts are never modified in place
func (c *SegmentationContext) clone() *SegmentationContext {
	out := *c
	out.Accumulated = append(make([]byte, 0, c.ExpectedLength), c.Accumulated...)
	out.LastChunkBytes = append([]byte(nil), c.LastChunkBytes...)
	return &out
}

// remember records the chunk used for duplicate detection
func (c *SegmentationContext) remember(port uint16, chunk []byte, receivedAt time.Time) {
	c.LastChunkPort = port
	c.LastChunkBytes = append(c.LastChunkBytes[:0], chunk...)
	c.LastChunkReceivedAt = receivedAt
}

// append adds a following segment's useful bytes
func (c *SegmentationContext) append(chunk []byte) {
	c.Accumulated = append(c.Accumulated, chunk...)
}

// checkLength compares accumulated and expected length: -1 short, 0 complete, 1 too long
func (c *SegmentationContext) checkLength() int {
	n := uint32(len(c.Accumulated))
	switch {
	case n < c.ExpectedLength:
		return -1
	case n > c.ExpectedLength:
		return 1
	default:
		return 0
	}
}

// checkCRC verifies the accumulated payload against the header checksum
func (c *SegmentationContext) checkCRC() bool {
	return CalculateCRC(c.Accumulated) == c.CRC
}

// isDuplicate reports whether chunk repeats the remembered one within the duplicate window
func (c *SegmentationContext) isDuplicate(chunk []byte, receivedAt time.Time) bool {
	if !bytes.Equal(chunk, c.LastChunkBytes) {
		return false
	}
	delta := receivedAt.Sub(c.LastChunkReceivedAt)
	if delta < 0 {
		delta = -delta
	}
	return delta < DuplicateWindow
}

// SplitFrame cuts a complete payload into segments of at most chunkSize bytes,
// the first one carrying the segmentation header. Segment i is sent on
// port FirstSegmentPort+i.
func SplitFrame(payload []byte, elementCount uint16, chunkSize int) ([][]byte, error) {
	if elementCount > 0xFF {
		return nil, fmt.Errorf("element count %d does not fit the segment header", elementCount)
	}
	if len(payload) > 0xFFFF {
		return nil, fmt.Errorf("payload too long to segment (%d bytes)", len(payload))
	}
	if chunkSize <= SegmentHeaderSize {
		return nil, fmt.Errorf("chunk size %d leaves no room for payload", chunkSize)
	}

	header := make([]byte, SegmentHeaderSize)
	header[0] = byte(elementCount)
	binary.LittleEndian.PutUint16(header[1:3], uint16(len(payload)))
	binary.LittleEndian.PutUint16(header[3:5], CalculateCRC(payload))

	firstLen := chunkSize - SegmentHeaderSize
	if firstLen > len(payload) {
		firstLen = len(payload)
	}

	chunks := [][]byte{append(header, payload[:firstLen]...)}
	for rest := payload[firstLen:]; len(rest) > 0; {
		n := chunkSize
		if n > len(rest) {
			n = len(rest)
		}
		chunks = append(chunks, append([]byte(nil), rest[:n]...))
		rest = rest[n:]
	}

	if len(chunks) < 2 {
		return nil, fmt.Errorf("payload fits in a single uplink (%d bytes)", len(payload))
	}
	if len(chunks) > int(LastSegmentPort-FirstSegmentPort)+1 {
		return nil, fmt.Errorf("payload needs %d segments, at most %d are addressable",
			len(chunks), LastSegmentPort-FirstSegmentPort+1)
	}
	return chunks, nil
}
