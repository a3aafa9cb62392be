// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package lns

import "fmt"

type kerlinkUplink struct {
	EndDevice *struct {
		DevEUI string `json:"devEui"`
	} `json:"endDevice"`
	FPort       uint16   `json:"fPort"`
	Payload     string   `json:"payload"`
	DataRate    string   `json:"dataRate"`
	ULFrequency *float64 `json:"ulFrequency"`
	RecvTime    string   `json:"recvTime"`
	GwInfo      []struct {
		RfRegion string  `json:"rfRegion"`
		RSSI     float64 `json:"rssi"`
		SNR      float64 `json:"snr"`
	} `json:"gwInfo"`
}

// kerlinkAdapter handles Kerlink Wanesy Management Center data-up pushes
type kerlinkAdapter struct{}

func (kerlinkAdapter) Name() string { return "KerlinkWMC" }

func (kerlinkAdapter) Canonicalize(env *Envelope) (Uplink, error) {
	var msg kerlinkUplink
	if err := unmarshalPayload(env, &msg); err != nil {
		return Uplink{}, err
	}
	if msg.FPort == 0 || msg.EndDevice == nil {
		return Uplink{}, ErrUselessFrame
	}
	if len(msg.GwInfo) == 0 {
		return Uplink{}, fmt.Errorf("%w: no gateway information", ErrMalformedFrame)
	}

	payload, err := decodeHex(msg.Payload)
	if err != nil {
		return Uplink{}, err
	}

	client, _ := env.Header("Client")
	sensor, _ := env.Header("Sensor")
	gw := msg.GwInfo[0]
	meta := Metadata{
		Client:    client,
		Gateway:   client,
		DataRate:  DataRateFromSFBW(msg.DataRate, gw.RfRegion),
		SNR:       gw.SNR,
		RSSI:      gw.RSSI,
		Frequency: 868.0,
		Sensor:    sensor,
	}
	if msg.ULFrequency != nil {
		meta.Frequency = *msg.ULFrequency
	}

	return newUplink(canonicalEUI(msg.EndDevice.DevEUI), payload, msg.FPort, parseTime(msg.RecvTime), meta)
}
