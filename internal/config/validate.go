// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"fmt"
	"strings"
)

// Registers used by one exported device: four float32 values
const registersPerDevice = 8

// Validate checks configuration correctness.
// It performs declarative validation only.
// It MUST NOT mutate configuration.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config: nil configuration")
	}

	// ------------------------------------------------------------
	// SETTINGS STORE
	// ------------------------------------------------------------

	switch cfg.Settings.Format {
	case "", "json", "cbor":
	default:
		return fmt.Errorf("settings: unsupported format %q (json or cbor)", cfg.Settings.Format)
	}

	if cfg.Segments.IdleTTLMs < 0 {
		return fmt.Errorf("segments: idle_ttl_ms must not be negative (%d)", cfg.Segments.IdleTTLMs)
	}

	// ------------------------------------------------------------
	// POLL SOURCES
	// ------------------------------------------------------------

	if cfg.Poll.IntervalMs < 0 {
		return fmt.Errorf("poll: interval_ms must not be negative (%d)", cfg.Poll.IntervalMs)
	}

	names := make(map[string]bool)
	for i, s := range cfg.Poll.Sources {
		if s.Host == "" {
			return fmt.Errorf("poll source #%d: host is required", i)
		}
		if strings.Contains(s.Host, "/") {
			return fmt.Errorf("poll source %q: host must not contain a scheme or path", s.Host)
		}
		if s.Token != "" && s.TokenEnv != "" {
			return fmt.Errorf("poll source %q: token and token_env are mutually exclusive", s.Host)
		}

		name := s.Name
		if name == "" {
			name = s.Host
		}
		if names[name] {
			return fmt.Errorf("poll source %q defined twice", name)
		}
		names[name] = true
	}

	// ------------------------------------------------------------
	// MODBUS EXPORT GEOMETRY
	// ------------------------------------------------------------

	m := cfg.Export.Modbus
	if m == nil {
		return nil
	}

	if m.Endpoint == "" {
		return fmt.Errorf("export modbus: endpoint is required")
	}
	if m.TimeoutMs < 0 {
		return fmt.Errorf("export modbus: timeout_ms must not be negative (%d)", m.TimeoutMs)
	}

	type span struct {
		start  uint32
		end    uint32
		device string
	}
	var spans []span
	seen := make(map[string]bool)

	for _, d := range m.Devices {
		id := canonicalEUI(d.DevEUI)
		if id == "" {
			return fmt.Errorf("export modbus: device without dev_eui")
		}
		if seen[id] {
			return fmt.Errorf("export modbus: device %q mapped twice", d.DevEUI)
		}
		seen[id] = true

		start := uint32(d.Base)
		end := start + registersPerDevice - 1
		if end > 0xFFFF {
			return fmt.Errorf("export modbus: device %q base %d exceeds the register space", d.DevEUI, d.Base)
		}

		for _, s := range spans {
			// overlap check (inclusive)
			if !(end < s.start || start > s.end) {
				return fmt.Errorf(
					"export modbus: device %q range=%d-%d overlaps with device %q range=%d-%d",
					d.DevEUI, start, end, s.device, s.start, s.end,
				)
			}
		}
		spans = append(spans, span{start: start, end: end, device: d.DevEUI})
	}

	return nil
}

func canonicalEUI(eui string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(eui), "-", ""))
}
