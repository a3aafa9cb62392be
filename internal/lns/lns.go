// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package lns turns raw uplink messages forwarded by LoRaWAN network servers
// into canonical records for the Sentinel decoder.
package lns

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Thermoquad/sentinel/pkg/sentinel"
)

var (
	// ErrUselessFrame marks messages carrying nothing to decode (downlinks, MAC-only frames)
	ErrUselessFrame = errors.New("frame not to be processed")
	// ErrUnknownNetwork marks messages from a network server that has no adapter
	ErrUnknownNetwork = errors.New("unknown network server")
	// ErrMalformedFrame marks messages whose envelope cannot be interpreted
	ErrMalformedFrame = errors.New("malformed frame")
)

// Legacy firmware status marker; a lone zero byte on that port is a keep-alive
const legacyStatusPort = 67

// Envelope is the HTTP forwarding wrapper around a network server message
type Envelope struct {
	Data struct {
		Req struct {
			RawHeaders []string `json:"rawHeaders"`
		} `json:"req"`
		Payload json.RawMessage `json:"payload"`
	} `json:"data"`
}

// Header returns the value of a raw header. Names are matched case-insensitively.
func (e *Envelope) Header(name string) (string, bool) {
	headers := e.Data.Req.RawHeaders
	for i := 0; i+1 < len(headers); i += 2 {
		if strings.EqualFold(headers[i], name) {
			return headers[i+1], true
		}
	}
	return "", false
}

// Metadata is the radio and routing information that travels with an uplink
type Metadata struct {
	Network   string    `json:"network"`
	DevEUI    string    `json:"devEui"`
	Client    string    `json:"client,omitempty"`
	Gateway   string    `json:"gateway,omitempty"`
	DataRate  int       `json:"dataRate"`
	SNR       float64   `json:"snr"`
	RSSI      float64   `json:"rssi"`
	Frequency float64   `json:"frequency"` // MHz
	Sensor    string    `json:"sensor,omitempty"`
	FPort     uint16    `json:"fPort"`
	Timestamp time.Time `json:"timestamp"`
}

// Uplink is a canonical record plus its network metadata
type Uplink struct {
	Record   sentinel.CanonicalRecord `json:"record"`
	Metadata Metadata                 `json:"metadata"`
}

// Adapter converts the messages of one network server family
type Adapter interface {
	Name() string
	Canonicalize(env *Envelope) (Uplink, error)
}

// Parse decodes a JSON envelope and canonicalizes it
func Parse(raw []byte) (Uplink, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Uplink{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	return Canonicalize(&env)
}

// Canonicalize resolves the adapter of an envelope and runs it
func Canonicalize(env *Envelope) (Uplink, error) {
	adapter, err := Resolve(env)
	if err != nil {
		return Uplink{}, err
	}

	up, err := adapter.Canonicalize(env)
	if err != nil {
		return Uplink{}, fmt.Errorf("%s: %w", adapter.Name(), err)
	}
	up.Metadata.Network = adapter.Name()
	return up, nil
}

func newUplink(deviceID string, payload []byte, port uint16, ts time.Time, meta Metadata) (Uplink, error) {
	if port == 0 {
		return Uplink{}, ErrUselessFrame
	}
	if port == legacyStatusPort && len(payload) == 1 && payload[0] == 0 {
		return Uplink{}, ErrUselessFrame
	}
	if deviceID == "" {
		return Uplink{}, fmt.Errorf("%w: missing device EUI", ErrMalformedFrame)
	}

	meta.DevEUI = deviceID
	meta.FPort = port
	meta.Timestamp = ts
	if meta.Sensor == "" {
		meta.Sensor = "Asystom"
	}

	return Uplink{
		Record: sentinel.CanonicalRecord{
			DeviceID:     deviceID,
			Bytes:        payload,
			ElementCount: port,
			ReceivedAt:   ts,
		},
		Metadata: meta,
	}, nil
}

// canonicalEUI strips dashes and lower-cases a device EUI
func canonicalEUI(eui string) string {
	return strings.ToLower(strings.ReplaceAll(eui, "-", ""))
}

func decodeHex(s string) ([]byte, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid hex payload: %v", ErrMalformedFrame, err)
	}
	return b, nil
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000Z0700",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// parseTime accepts the timestamp layouts seen from network servers.
// An unparseable value yields the zero time.
func parseTime(s string) time.Time {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func unmarshalPayload(env *Envelope, v interface{}) error {
	if len(env.Data.Payload) == 0 {
		return fmt.Errorf("%w: empty payload", ErrMalformedFrame)
	}
	if err := json.Unmarshal(env.Data.Payload, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	return nil
}
