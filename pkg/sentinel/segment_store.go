// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sentinel

import (
	"sync"
	"time"
)

// SegmentStore holds at most one segmentation context per device
type SegmentStore interface {
	Get(deviceID string) (*SegmentationContext, bool)
	Set(deviceID string, ctx *SegmentationContext)
	Remove(deviceID string)
}

// MemorySegmentStore is a SegmentStore backed by a mutex-guarded map
type MemorySegmentStore struct {
	mu       sync.Mutex
	contexts map[string]*SegmentationContext
}

// NewMemorySegmentStore creates an empty store
func NewMemorySegmentStore() *MemorySegmentStore {
	return &MemorySegmentStore{
		contexts: make(map[string]*SegmentationContext),
	}
}

// Get returns the context of a device
func (m *MemorySegmentStore) Get(deviceID string) (*SegmentationContext, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ctx, ok := m.contexts[deviceID]
	return ctx, ok
}

// Set stores or replaces the context of a device
func (m *MemorySegmentStore) Set(deviceID string, ctx *SegmentationContext) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.contexts[deviceID] = ctx
}

// Remove drops the context of a device
func (m *MemorySegmentStore) Remove(deviceID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.contexts, deviceID)
}

// Len returns the number of devices with a frame in progress
func (m *MemorySegmentStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.contexts)
}

// EvictIdle removes contexts last stored before cutoff (decoder clock)
// and returns the evicted device identifiers
func (m *MemorySegmentStore) EvictIdle(cutoff time.Time) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var evicted []string
	for id, ctx := range m.contexts {
		if ctx.TouchedAt.Before(cutoff) {
			delete(m.contexts, id)
			evicted = append(evicted, id)
		}
	}
	return evicted
}
