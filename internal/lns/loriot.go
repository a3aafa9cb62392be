// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package lns

import (
	"fmt"
	"time"
)

type loriotGateway struct {
	RSSI float64 `json:"rssi"`
	SNR  float64 `json:"snr"`
	TS   int64   `json:"ts"`
}

type loriotUplink struct {
	Cmd      string          `json:"cmd"`
	EUI      string          `json:"EUI"`
	Port     uint16          `json:"port"`
	Data     *string         `json:"data"`
	DR       string          `json:"dr"`
	Freq     *float64        `json:"freq"`
	StatFreq *float64        `json:"stat_freq"`
	TS       *int64          `json:"ts"`
	RSSI     float64         `json:"rssi"`
	SNR      float64         `json:"snr"`
	StatRSSI float64         `json:"stat_rssi"`
	StatLSNR float64         `json:"stat_lsnr"`
	Tstamp   int64           `json:"tstamp"`
	Gateways []loriotGateway `json:"gws"`
	Sensor   string          `json:"sensor"`
}

// loriotAdapter handles Loriot websocket/HTTP application outputs ("rx" and "gw" commands)
type loriotAdapter struct {
	network string
}

func (loriotAdapter) Name() string { return "Loriot" }

func (a loriotAdapter) Canonicalize(env *Envelope) (Uplink, error) {
	var msg loriotUplink
	if err := unmarshalPayload(env, &msg); err != nil {
		return Uplink{}, err
	}
	if msg.Port == 0 || msg.Cmd == "txd" {
		return Uplink{}, ErrUselessFrame
	}
	if msg.Data == nil {
		return Uplink{}, fmt.Errorf("%w: frame without a Sentinel payload", ErrMalformedFrame)
	}

	payload, err := decodeHex(*msg.Data)
	if err != nil {
		return Uplink{}, err
	}

	client := a.network
	if client == "" {
		client = "Loriot_Asystom"
	}
	meta := Metadata{
		Client:    client,
		Gateway:   client,
		DataRate:  DataRateFromCSS(msg.DR),
		Frequency: 868.0,
		Sensor:    msg.Sensor,
	}
	if msg.Freq != nil {
		meta.Frequency = *msg.Freq / 1e6
	} else if msg.StatFreq != nil {
		meta.Frequency = *msg.StatFreq / 1e6
	}

	var ts int64
	switch msg.Cmd {
	case "", "rx":
		if msg.TS != nil {
			meta.RSSI, meta.SNR, ts = msg.RSSI, msg.SNR, *msg.TS
		} else {
			meta.RSSI, meta.SNR, ts = msg.StatRSSI, msg.StatLSNR, msg.Tstamp
		}
	case "gw":
		if len(msg.Gateways) > 0 {
			gw := msg.Gateways[0]
			meta.RSSI, meta.SNR, ts = gw.RSSI, gw.SNR, gw.TS
		}
	}

	var receivedAt time.Time
	if ts > 0 {
		receivedAt = time.UnixMilli(ts).UTC()
	}
	return newUplink(canonicalEUI(msg.EUI), payload, msg.Port, receivedAt, meta)
}
