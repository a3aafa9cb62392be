// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package lns

type multitechUplink struct {
	Client string `json:"client"`
	SN     string `json:"sn"`
	Sensor string `json:"sensor"`
	Data   struct {
		Payload *string `json:"payload"`
		DevEUI  string  `json:"deveui"`
		Port    uint16  `json:"port"`
		Time    string  `json:"time"`
		Datr    string  `json:"datr"`
		LSNR    float64 `json:"lsnr"`
		RSSI    float64 `json:"rssi"`
		Freq    float64 `json:"freq"`
	} `json:"data"`
}

// multitechAdapter handles Multitech Conduit forwards ("asystomv2" network)
type multitechAdapter struct{}

func (multitechAdapter) Name() string { return "Multitech" }

func (multitechAdapter) Canonicalize(env *Envelope) (Uplink, error) {
	var msg multitechUplink
	if err := unmarshalPayload(env, &msg); err != nil {
		return Uplink{}, err
	}
	if msg.Data.Port == 0 || msg.Data.Payload == nil {
		return Uplink{}, ErrUselessFrame
	}

	payload, err := decodeHex(*msg.Data.Payload)
	if err != nil {
		return Uplink{}, err
	}

	meta := Metadata{
		Client:    msg.Client,
		Gateway:   msg.SN,
		DataRate:  DataRateFromSFBW(msg.Data.Datr, ""),
		SNR:       msg.Data.LSNR,
		RSSI:      msg.Data.RSSI,
		Frequency: msg.Data.Freq,
		Sensor:    msg.Sensor,
	}
	return newUplink(canonicalEUI(msg.Data.DevEUI), payload, msg.Data.Port, parseTime(msg.Data.Time), meta)
}
