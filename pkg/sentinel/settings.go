// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sentinel

import (
	"context"
	"errors"
	"sync"
)

// ErrSettingsNotFound is returned when no extension settings were recorded for a device
var ErrSettingsNotFound = errors.New("extension settings not found")

// ExtensionSettings tell the decoder how to interpret FFT zoom vectors of a device.
// They arrive in system status reports and are persisted per device.
type ExtensionSettings struct {
	Handle                   uint8               `json:"handle" cbor:"handle"`
	Activation               ExtensionActivation `json:"activation" cbor:"activation"`
	Steps                    uint8               `json:"steps" cbor:"steps"`
	Algorithm                ExtensionAlgorithm  `json:"algorithm" cbor:"algorithm"`
	SensorType               SensorType          `json:"sensorType" cbor:"sensorType"`
	AccelerometerOrientation AxisOrientation     `json:"accelerometerOrientation" cbor:"accelerometerOrientation"`
	UpperFrequency           uint32              `json:"upperFrequency" cbor:"upperFrequency"`
	LowerFrequency           uint32              `json:"lowerFrequency" cbor:"lowerFrequency"`
	CompressionType          CompressionType     `json:"compressionType" cbor:"compressionType"`
	SpectrumType             SpectrumType        `json:"spectrumType" cbor:"spectrumType"`
	CutOffFrequency          uint32              `json:"cutOffFrequency" cbor:"cutOffFrequency"`
}

// SettingsStore persists extension settings keyed by device identifier.
// Save must replace the previous record atomically.
type SettingsStore interface {
	Load(ctx context.Context, deviceID string) (ExtensionSettings, error)
	Save(ctx context.Context, deviceID string, settings ExtensionSettings) error
}

// MemorySettingsStore keeps extension settings in process memory
type MemorySettingsStore struct {
	mu       sync.RWMutex
	settings map[string]ExtensionSettings
}

// NewMemorySettingsStore creates an empty in-memory settings store
func NewMemorySettingsStore() *MemorySettingsStore {
	return &MemorySettingsStore{
		settings: make(map[string]ExtensionSettings),
	}
}

// Load returns the settings of a device or ErrSettingsNotFound
func (m *MemorySettingsStore) Load(ctx context.Context, deviceID string) (ExtensionSettings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.settings[deviceID]
	if !ok {
		return ExtensionSettings{}, ErrSettingsNotFound
	}
	return s, nil
}

// Save replaces the settings of a device
func (m *MemorySettingsStore) Save(ctx context.Context, deviceID string, settings ExtensionSettings) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.settings[deviceID] = settings
	return nil
}

// Delete forgets the settings of a device
func (m *MemorySettingsStore) Delete(ctx context.Context, deviceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.settings, deviceID)
	return nil
}

// CachedSettingsStore serves settings from memory and writes through to a backend
type CachedSettingsStore struct {
	backend SettingsStore
	cache   *MemorySettingsStore
}

// NewCachedSettingsStore wraps backend with a write-through memory cache
func NewCachedSettingsStore(backend SettingsStore) *CachedSettingsStore {
	return &CachedSettingsStore{
		backend: backend,
		cache:   NewMemorySettingsStore(),
	}
}

// Load returns cached settings, falling back to the backend on a miss
func (c *CachedSettingsStore) Load(ctx context.Context, deviceID string) (ExtensionSettings, error) {
	if s, err := c.cache.Load(ctx, deviceID); err == nil {
		return s, nil
	}

	s, err := c.backend.Load(ctx, deviceID)
	if err != nil {
		return ExtensionSettings{}, err
	}
	_ = c.cache.Save(ctx, deviceID, s)
	return s, nil
}

// Save persists settings to the backend, then refreshes the cache.
// The cache is left untouched when the backend fails.
func (c *CachedSettingsStore) Save(ctx context.Context, deviceID string, settings ExtensionSettings) error {
	if err := c.backend.Save(ctx, deviceID, settings); err != nil {
		return err
	}
	return c.cache.Save(ctx, deviceID, settings)
}

// Invalidate drops a device from the cache
func (c *CachedSettingsStore) Invalidate(deviceID string) {
	_ = c.cache.Delete(context.Background(), deviceID)
}
