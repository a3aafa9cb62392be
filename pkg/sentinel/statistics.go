// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sentinel

import (
	"fmt"
	"sort"
	"time"
)

// Statistics tracks uplink statistics and error rates
type Statistics struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Counters
	TotalUplinks   uint64
	DecodedFrames  uint64
	FailedFrames   uint64
	Segments       uint64
	Reassembled    uint64
	Duplicates     uint64
	LostSegments   uint64
	CRCErrors      uint64
	Overflows      uint64
	TotalWarnings  uint64
	SettingsStored uint64

	// Per kind counters
	IssueCounts map[IssueKind]uint64

	// Rates (calculated)
	UplinkRate float64 // uplinks/sec
	ErrorRate  float64 // failed frames/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{
		StartTime:      now,
		LastUpdateTime: now,
		IssueCounts:    make(map[IssueKind]uint64),
	}
}

// segmentOutcomes are the issues raised when a segment does not complete a frame
var segmentOutcomes = []IssueKind{
	IssueSegmentPending,
	IssueSegmentDuplicate,
	IssueSegmentLost,
	IssueSegmentContinuity,
	IssueSegmentOrphan,
	IssueSegmentCRC,
	IssueSegmentOverflow,
	IssueMalformedSegment,
}

// CompletesFrame reports whether the record produced a frame that reached the decoder
func CompletesFrame(rec CanonicalRecord, r DecodeResult) bool {
	if r.HasKind(IssueInternal) {
		return false
	}
	if !rec.IsSegment() {
		return true
	}
	for _, kind := range segmentOutcomes {
		if r.HasKind(kind) {
			return false
		}
	}
	return rec.IsContinuation()
}

// Update updates statistics based on an uplink and its decode result
func (s *Statistics) Update(rec CanonicalRecord, r DecodeResult) {
	s.TotalUplinks++

	if rec.IsSegment() {
		s.Segments++
	}

	for _, issue := range r.Issues {
		s.IssueCounts[issue.Kind]++
		switch issue.Kind {
		case IssueSegmentDuplicate:
			s.Duplicates++
		case IssueSegmentLost, IssueSegmentContinuity, IssueSegmentOrphan:
			s.LostSegments++
		case IssueSegmentCRC:
			s.CRCErrors++
		case IssueSegmentOverflow:
			s.Overflows++
		}
	}
	s.TotalWarnings += uint64(len(r.Warnings))

	if CompletesFrame(rec, r) {
		if rec.IsSegment() {
			s.Reassembled++
		}
		if r.Failed() {
			s.FailedFrames++
		} else {
			s.DecodedFrames++
		}
	} else if r.Failed() {
		s.FailedFrames++
	}

	if r.Data.ExtensionSettings != nil && !r.HasKind(IssueSettingsPersistence) {
		s.SettingsStored++
	}

	// Update timestamp for rate calculation
	s.LastUpdateTime = time.Now()
}

// CalculateRates calculates uplink and error rates
func (s *Statistics) CalculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.UplinkRate = float64(s.TotalUplinks) / elapsed
		s.ErrorRate = float64(s.FailedFrames) / elapsed
	}
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	s.CalculateRates()

	var decodedPercent, failedPercent float64
	if s.TotalUplinks > 0 {
		decodedPercent = float64(s.DecodedFrames) * 100.0 / float64(s.TotalUplinks)
		failedPercent = float64(s.FailedFrames) * 100.0 / float64(s.TotalUplinks)
	}

	elapsed := time.Since(s.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Total Uplinks:   %8d\n", s.TotalUplinks)
	result += fmt.Sprintf("Decoded Frames:  %8d (%.1f%%)\n", s.DecodedFrames, decodedPercent)

	if s.FailedFrames > 0 {
		result += fmt.Sprintf("Failed Frames:   %8d (%.1f%%)\n", s.FailedFrames, failedPercent)
	}
	if s.Segments > 0 {
		result += fmt.Sprintf("Segments:        %8d\n", s.Segments)
		result += fmt.Sprintf("  Reassembled:      %5d\n", s.Reassembled)
		if s.Duplicates > 0 {
			result += fmt.Sprintf("  Duplicates:       %5d\n", s.Duplicates)
		}
		if s.LostSegments > 0 {
			result += fmt.Sprintf("  Lost/Broken:      %5d\n", s.LostSegments)
		}
		if s.CRCErrors > 0 {
			result += fmt.Sprintf("  CRC Errors:       %5d\n", s.CRCErrors)
		}
		if s.Overflows > 0 {
			result += fmt.Sprintf("  Overflows:        %5d\n", s.Overflows)
		}
	}
	if s.SettingsStored > 0 {
		result += fmt.Sprintf("Settings Stored: %8d\n", s.SettingsStored)
	}
	if s.TotalWarnings > 0 {
		result += fmt.Sprintf("Warnings:        %8d\n", s.TotalWarnings)
	}

	kinds := make([]IssueKind, 0, len(s.IssueCounts))
	for kind := range s.IssueCounts {
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	for _, kind := range kinds {
		result += fmt.Sprintf("  %-28s %5d\n", kind.String()+":", s.IssueCounts[kind])
	}

	result += fmt.Sprintf("Uplink Rate:     %8.1f uplinks/sec\n", s.UplinkRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", s.ErrorRate)
	result += "================================\n"

	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	now := time.Now()
	s.StartTime = now
	s.LastUpdateTime = now
	s.TotalUplinks = 0
	s.DecodedFrames = 0
	s.FailedFrames = 0
	s.Segments = 0
	s.Reassembled = 0
	s.Duplicates = 0
	s.LostSegments = 0
	s.CRCErrors = 0
	s.Overflows = 0
	s.TotalWarnings = 0
	s.SettingsStored = 0
	s.IssueCounts = make(map[IssueKind]uint64)
	s.UplinkRate = 0
	s.ErrorRate = 0
}
