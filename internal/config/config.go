// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads the optional YAML configuration of the sentinel tool.
package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Settings SettingsConfig `yaml:"settings"`
	Segments SegmentsConfig `yaml:"segments"`
	Poll     PollConfig     `yaml:"poll"`
	Export   ExportConfig   `yaml:"export"`
}

// ---- EXTENSION SETTINGS STORE ----

type SettingsConfig struct {
	Dir    string `yaml:"dir"`
	Format string `yaml:"format"` // json | cbor
	Cache  bool   `yaml:"cache"`
}

// ---- SEGMENT REASSEMBLY ----

type SegmentsConfig struct {
	// 0 keeps contexts until they complete or break
	IdleTTLMs int `yaml:"idle_ttl_ms"`
}

// ---- HTTP UPLINK POLLING ----

type PollConfig struct {
	IntervalMs int            `yaml:"interval_ms"`
	Sources    []SourceConfig `yaml:"sources"`
}

type SourceConfig struct {
	Name     string `yaml:"name"`
	Host     string `yaml:"host"`
	Token    string `yaml:"token"`
	TokenEnv string `yaml:"token_env"`
	Insecure bool   `yaml:"insecure"` // plain http
}

// ---- MODBUS EXPORT ----

type ExportConfig struct {
	Modbus *ModbusConfig `yaml:"modbus"`
}

type ModbusConfig struct {
	Endpoint  string         `yaml:"endpoint"`
	UnitID    uint8          `yaml:"unit_id"`
	TimeoutMs int            `yaml:"timeout_ms"`
	Devices   []DeviceConfig `yaml:"devices"`
}

type DeviceConfig struct {
	DevEUI string `yaml:"dev_eui"`
	Base   uint16 `yaml:"base"`
}

// Load reads a YAML configuration file. Unknown keys are rejected.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes a YAML document. An empty document yields a zero Config.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if len(bytes.TrimSpace(data)) == 0 {
		return cfg, nil
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// IdleTTL returns the segment context idle timeout
func (c *Config) IdleTTL() time.Duration {
	return time.Duration(c.Segments.IdleTTLMs) * time.Millisecond
}

// Interval returns the delay between two poll rounds
func (p PollConfig) Interval() time.Duration {
	return time.Duration(p.IntervalMs) * time.Millisecond
}

// Credentials returns the Basic token of a source, from the file or the named environment variable
func (s SourceConfig) Credentials() string {
	if s.Token != "" {
		return s.Token
	}
	if s.TokenEnv != "" {
		return os.Getenv(s.TokenEnv)
	}
	return ""
}

// Timeout returns the Modbus request timeout
func (m ModbusConfig) Timeout() time.Duration {
	return time.Duration(m.TimeoutMs) * time.Millisecond
}
