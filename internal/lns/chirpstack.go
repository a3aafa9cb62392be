// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package lns

import (
	"encoding/base64"
	"fmt"
)

type chirpstackUplink struct {
	Data       *string `json:"data"`
	FPort      uint16  `json:"fPort"`
	DR         int     `json:"dr"`
	DeviceInfo struct {
		DevEUI     string `json:"devEui"`
		TenantName string `json:"tenantName"`
	} `json:"deviceInfo"`
	RxInfo []struct {
		RSSI   float64 `json:"rssi"`
		SNR    float64 `json:"snr"`
		GwTime string  `json:"gwTime"`
	} `json:"rxInfo"`
	TxInfo struct {
		Frequency *float64 `json:"frequency"`
	} `json:"txInfo"`
}

// chirpstackAdapter handles ChirpStack v4 HTTP integration events
type chirpstackAdapter struct{}

func (chirpstackAdapter) Name() string { return "Chirpstack" }

func (chirpstackAdapter) Canonicalize(env *Envelope) (Uplink, error) {
	var msg chirpstackUplink
	if err := unmarshalPayload(env, &msg); err != nil {
		return Uplink{}, err
	}
	if msg.Data == nil {
		return Uplink{}, fmt.Errorf("%w: frame without a Sentinel payload", ErrMalformedFrame)
	}

	payload, err := base64.StdEncoding.DecodeString(*msg.Data)
	if err != nil {
		return Uplink{}, fmt.Errorf("%w: invalid base64 payload: %v", ErrMalformedFrame, err)
	}

	client := msg.DeviceInfo.TenantName
	if client == "" {
		client = "Chirpstack"
	}
	meta := Metadata{
		Client:   client,
		Gateway:  client,
		DataRate: msg.DR,
	}
	if msg.TxInfo.Frequency != nil {
		meta.Frequency = *msg.TxInfo.Frequency / 1e6
	}

	var ts string
	if len(msg.RxInfo) > 0 {
		meta.RSSI = msg.RxInfo[0].RSSI
		meta.SNR = msg.RxInfo[0].SNR
		ts = msg.RxInfo[0].GwTime
	}

	return newUplink(canonicalEUI(msg.DeviceInfo.DevEUI), payload, msg.FPort, parseTime(ts), meta)
}
