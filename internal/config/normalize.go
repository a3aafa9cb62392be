// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

// Defaults applied by Normalize
const (
	DefaultSettingsDir    = "."
	DefaultSettingsFormat = "json"
	DefaultPollIntervalMs = 10000
	DefaultModbusTimeout  = 1000
)

// Normalize applies post-validation normalization.
// It is allowed to mutate configuration.
// It MUST be called only after Validate().
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}

	if cfg.Settings.Dir == "" {
		cfg.Settings.Dir = DefaultSettingsDir
	}
	if cfg.Settings.Format == "" {
		cfg.Settings.Format = DefaultSettingsFormat
	}

	if cfg.Poll.IntervalMs == 0 {
		cfg.Poll.IntervalMs = DefaultPollIntervalMs
	}
	for i := range cfg.Poll.Sources {
		s := &cfg.Poll.Sources[i]
		if s.Name == "" {
			s.Name = s.Host
		}
	}

	if m := cfg.Export.Modbus; m != nil {
		if m.TimeoutMs == 0 {
			m.TimeoutMs = DefaultModbusTimeout
		}
		// Device EUIs are matched against canonical record ids
		for i := range m.Devices {
			m.Devices[i].DevEUI = canonicalEUI(m.Devices[i].DevEUI)
		}
	}
}
