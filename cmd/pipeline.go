// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/Thermoquad/sentinel/internal/config"
	"github.com/Thermoquad/sentinel/internal/export"
	"github.com/Thermoquad/sentinel/internal/lns"
	"github.com/Thermoquad/sentinel/pkg/sentinel"
)

// canonicalNetwork names uplinks read as canonical records
const canonicalNetwork = "Canonical"

// loadConfig reads the optional configuration file and applies flag overrides
func loadConfig() (*config.Config, error) {
	cfg := &config.Config{}
	if configPath != "" {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return nil, err
		}
	}

	if settingsDir != "" {
		cfg.Settings.Dir = settingsDir
	}
	if settingsFormat != "" {
		cfg.Settings.Format = settingsFormat
	}
	if idleTTLMs >= 0 {
		cfg.Segments.IdleTTLMs = idleTTLMs
	}

	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	config.Normalize(cfg)
	return cfg, nil
}

// openSettingsStore opens the file store of extension settings
func openSettingsStore(cfg *config.Config) (*sentinel.FileSettingsStore, error) {
	return sentinel.NewFileSettingsStore(cfg.Settings.Dir, sentinel.SettingsFormat(cfg.Settings.Format))
}

// pipeline decodes uplinks through one codec, keeps statistics and
// publishes scalar values when an export is configured
type pipeline struct {
	codec    *sentinel.Codec
	exporter *export.Exporter
	client   *export.TCPClient

	mu    sync.Mutex
	stats *sentinel.Statistics
}

func newPipeline(cfg *config.Config) (*pipeline, error) {
	file, err := openSettingsStore(cfg)
	if err != nil {
		return nil, err
	}

	var store sentinel.SettingsStore = file
	if cfg.Settings.Cache {
		store = sentinel.NewCachedSettingsStore(file)
	}

	opts := []sentinel.Option{
		sentinel.WithSettingsStore(store),
		sentinel.WithIdleTTL(cfg.IdleTTL()),
	}
	if verbose {
		opts = append(opts, sentinel.WithLogger(log.Printf))
	}

	p := &pipeline{
		codec: sentinel.NewCodec(opts...),
		stats: sentinel.NewStatistics(),
	}

	if m := cfg.Export.Modbus; m != nil {
		client, err := export.Dial(m.Endpoint, m.Timeout())
		if err != nil {
			return nil, err
		}
		p.client = client
		p.exporter = export.NewExporter(client, *m)
	}

	return p, nil
}

// Close releases the export connection
func (p *pipeline) Close() error {
	if p.client != nil {
		return p.client.Close()
	}
	return nil
}

// Decode decodes one uplink and records its outcome
func (p *pipeline) Decode(ctx context.Context, up lns.Uplink) sentinel.DecodeResult {
	r := p.codec.DecodeUplink(ctx, up.Record)

	p.mu.Lock()
	p.stats.Update(up.Record, r)
	p.mu.Unlock()

	if p.exporter != nil {
		if _, err := p.exporter.Export(up.Record.DeviceID, r); err != nil {
			log.Printf("%v", err)
		}
	}
	return r
}

// Statistics returns a summary of the uplinks decoded so far
func (p *pipeline) Statistics() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats.String()
}

// Snapshot returns a copy of the current statistics
func (p *pipeline) Snapshot() sentinel.Statistics {
	p.mu.Lock()
	defer p.mu.Unlock()

	snap := *p.stats
	snap.IssueCounts = make(map[sentinel.IssueKind]uint64, len(p.stats.IssueCounts))
	for kind, n := range p.stats.IssueCounts {
		snap.IssueCounts[kind] = n
	}
	snap.CalculateRates()
	return snap
}

// parseUplink reads one JSON uplink: a network server envelope, or a
// canonical record when forced or when the object carries a deviceId
func parseUplink(line []byte, canonical bool) (lns.Uplink, error) {
	if !canonical {
		var probe struct {
			Data     json.RawMessage `json:"data"`
			DeviceID string          `json:"deviceId"`
		}
		if err := json.Unmarshal(line, &probe); err != nil {
			return lns.Uplink{}, fmt.Errorf("%w: %v", lns.ErrMalformedFrame, err)
		}
		if probe.Data != nil || probe.DeviceID == "" {
			return lns.Parse(line)
		}
	}

	var rec sentinel.CanonicalRecord
	if err := json.Unmarshal(line, &rec); err != nil {
		return lns.Uplink{}, fmt.Errorf("%w: %v", lns.ErrMalformedFrame, err)
	}
	return canonicalUplink(rec)
}

// canonicalUplink wraps a canonical record read from a file or a stream
func canonicalUplink(rec sentinel.CanonicalRecord) (lns.Uplink, error) {
	if rec.DeviceID == "" {
		return lns.Uplink{}, fmt.Errorf("%w: missing device id", lns.ErrMalformedFrame)
	}
	if rec.ReceivedAt.IsZero() {
		rec.ReceivedAt = time.Now()
	}
	return lns.Uplink{
		Record: rec,
		Metadata: lns.Metadata{
			Network:   canonicalNetwork,
			DevEUI:    rec.DeviceID,
			DataRate:  lns.UnknownDataRate,
			FPort:     rec.ElementCount,
			Timestamp: rec.ReceivedAt,
		},
	}, nil
}

// printDecodeError prints an uplink that could not be canonicalized
func printDecodeError(err error) {
	timestamp := time.Now().Format("15:04:05.000")
	fmt.Printf("[%s] \033[1;31mDECODE ERROR:\033[0m %v\n", timestamp, err)
}

// formatMetadata formats the network information of an uplink
func formatMetadata(m lns.Metadata) string {
	result := fmt.Sprintf("  Network: %s", m.Network)
	if m.Client != "" {
		result += fmt.Sprintf("  Client: %s", m.Client)
	}
	if m.Gateway != "" {
		result += fmt.Sprintf("  Gateway: %s", m.Gateway)
	}
	result += "\n"
	if m.Network != canonicalNetwork {
		result += fmt.Sprintf("  DR: %d  SNR: %.1f dB  RSSI: %.0f dBm  Freq: %.3f MHz\n", m.DataRate, m.SNR, m.RSSI, m.Frequency)
	}
	return result
}
