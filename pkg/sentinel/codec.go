// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sentinel

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"
)

// sweepInterval bounds how often idle segmentation contexts are looked for
const sweepInterval = time.Second

const downlinkNotImplemented = "Not yet implemented"

// Codec is the single entry point for decoding uplinks.
// It owns the segment reassembler and serializes work per device, so it is
// safe to call from several goroutines; uplinks of different devices never
// wait on each other.
type Codec struct {
	settings    SettingsStore
	reassembler *Reassembler
	locks       *deviceLocks
	logf        func(format string, args ...interface{})
	now         func() time.Time
	idleTTL     time.Duration

	sweepMu   sync.Mutex
	lastSweep time.Time
}

// Option configures a Codec
type Option func(*Codec)

// WithSettingsStore sets where extension settings are persisted
func WithSettingsStore(store SettingsStore) Option {
	return func(c *Codec) { c.settings = store }
}

// WithSegmentStore sets where segmentation contexts are kept
func WithSegmentStore(store SegmentStore) Option {
	return func(c *Codec) { c.reassembler = NewReassembler(store) }
}

// WithLogger sets a printf-style trace function
func WithLogger(logf func(format string, args ...interface{})) Option {
	return func(c *Codec) { c.logf = logf }
}

// WithClock replaces time.Now, for tests
func WithClock(now func() time.Time) Option {
	return func(c *Codec) { c.now = now }
}

// WithIdleTTL drops frames in progress that received no segment for ttl.
// Zero disables eviction.
func WithIdleTTL(ttl time.Duration) Option {
	return func(c *Codec) { c.idleTTL = ttl }
}

// NewCodec creates a codec. Without options it keeps settings and segments in memory.
func NewCodec(opts ...Option) *Codec {
	c := &Codec{
		locks: newDeviceLocks(),
		logf:  func(string, ...interface{}) {},
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.settings == nil {
		c.settings = NewMemorySettingsStore()
	}
	if c.reassembler == nil {
		c.reassembler = NewReassembler(NewMemorySegmentStore())
	}
	c.reassembler.now = c.now
	return c
}

// Settings returns the extension settings store
func (c *Codec) Settings() SettingsStore {
	return c.settings
}

// Reassembler returns the segment reassembler
func (c *Codec) Reassembler() *Reassembler {
	return c.reassembler
}

// DecodeUplink decodes one uplink, reassembling segmented frames first.
// A panic while decoding is reported as a single internal error.
func (c *Codec) DecodeUplink(ctx context.Context, rec CanonicalRecord) (result DecodeResult) {
	defer func() {
		if r := recover(); r != nil {
			c.logf("panic recovered decoding uplink from %s: %v\n%s", rec.DeviceID, r, debug.Stack())
			result = newDecodeResult()
			result.raise(IssueInternal, map[string]interface{}{
				"panic": fmt.Sprint(r),
			}, "Internal decoder error (%v)", r)
		}
	}()

	if rec.ReceivedAt.IsZero() {
		rec.ReceivedAt = c.now()
	}

	c.sweep()

	unlock := c.locks.lock(rec.DeviceID)
	defer unlock()

	result = newDecodeResult()
	frame, ok := c.reassembler.Process(rec, &result)
	if !ok {
		return result
	}
	if rec.IsContinuation() {
		c.logf("reassembled %d byte frame from %s (element count %d)", len(frame.Bytes), rec.DeviceID, frame.ElementCount)
	}

	decoded := DecodeFrame(ctx, frame.DeviceID, frame.Bytes, frame.ElementCount, c.settings)
	result.Data = decoded.Data
	result.merge(decoded)

	if decoded.Data.ExtensionSettings != nil && !decoded.HasKind(IssueSettingsPersistence) {
		c.logf("extension settings (handle %d) stored for %s", decoded.Data.ExtensionSettings.Handle, rec.DeviceID)
	}
	return result
}

// Sweep evicts idle segmentation contexts immediately
func (c *Codec) Sweep() []string {
	if c.idleTTL <= 0 {
		return nil
	}
	evicted := c.reassembler.EvictIdle(c.now(), c.idleTTL)
	for _, id := range evicted {
		c.logf("dropped incomplete segmented frame from %s (idle for more than %s)", id, c.idleTTL)
	}
	return evicted
}

func (c *Codec) sweep() {
	if c.idleTTL <= 0 {
		return
	}

	c.sweepMu.Lock()
	now := c.now()
	due := now.Sub(c.lastSweep) >= sweepInterval
	if due {
		c.lastSweep = now
	}
	c.sweepMu.Unlock()

	if due {
		c.Sweep()
	}
}

// EncodedDownlink is the outcome of EncodeDownlink
type EncodedDownlink struct {
	FPort  uint8    `json:"fPort,omitempty" cbor:"fPort,omitempty"`
	Bytes  []byte   `json:"bytes,omitempty" cbor:"bytes,omitempty"`
	Errors []string `json:"errors" cbor:"errors"`
}

// DecodedDownlink is the outcome of DecodeDownlink
type DecodedDownlink struct {
	Data   map[string]interface{} `json:"data,omitempty" cbor:"data,omitempty"`
	Errors []string               `json:"errors" cbor:"errors"`
}

// EncodeDownlink builds a downlink for a device. Downlinks are not supported by
// the beacon firmware yet, so it always reports an error.
func (c *Codec) EncodeDownlink(data map[string]interface{}) EncodedDownlink {
	return EncodedDownlink{Errors: []string{downlinkNotImplemented}}
}

// DecodeDownlink interprets a downlink payload. Always reports an error.
func (c *Codec) DecodeDownlink(payload []byte, fPort uint8) DecodedDownlink {
	return DecodedDownlink{Errors: []string{downlinkNotImplemented}}
}

// deviceLocks hands out one mutex per device, dropped when no longer used
type deviceLocks struct {
	mu    sync.Mutex
	locks map[string]*deviceLock
}

type deviceLock struct {
	mu   sync.Mutex
	refs int
}

func newDeviceLocks() *deviceLocks {
	return &deviceLocks{locks: make(map[string]*deviceLock)}
}

// lock acquires the device mutex and returns its release function
func (d *deviceLocks) lock(deviceID string) func() {
	d.mu.Lock()
	l, ok := d.locks[deviceID]
	if !ok {
		l = &deviceLock{}
		d.locks[deviceID] = l
	}
	l.refs++
	d.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()

		d.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(d.locks, deviceID)
		}
		d.mu.Unlock()
	}
}

// size returns the number of devices currently holding or waiting on a lock
func (d *deviceLocks) size() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.locks)
}
