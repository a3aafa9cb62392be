// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package lns

type nifiUplink struct {
	PayloadCleartext string `json:"payload_cleartext"`
	ProtocolData     struct {
		Port uint16 `json:"port"`
	} `json:"protocol_data"`
	DeviceProperties struct {
		DevEUI string `json:"deveui"`
	} `json:"device_properties"`
	LoraSF    int     `json:"lora_sf"`
	LoraSNR   float64 `json:"lora_snr"`
	LoraRSSI  float64 `json:"lora_rssi"`
	Site      string  `json:"site"`
	Timestamp string  `json:"Timestamp"`
	Sensor    string  `json:"sensor"`
}

// nifiAdapter handles Objenious messages relayed through an Apache NiFi flow
type nifiAdapter struct{}

func (nifiAdapter) Name() string { return "NiFi" }

func (nifiAdapter) Canonicalize(env *Envelope) (Uplink, error) {
	var msg nifiUplink
	if err := unmarshalPayload(env, &msg); err != nil {
		return Uplink{}, err
	}
	if msg.ProtocolData.Port == 0 {
		return Uplink{}, ErrUselessFrame
	}

	payload, err := decodeHex(msg.PayloadCleartext)
	if err != nil {
		return Uplink{}, err
	}

	meta := Metadata{
		Client:    msg.Site,
		Gateway:   msg.Site,
		DataRate:  DataRateFromSF(msg.LoraSF),
		SNR:       msg.LoraSNR,
		RSSI:      msg.LoraRSSI,
		Frequency: 868.0,
		Sensor:    msg.Sensor,
	}
	return newUplink(canonicalEUI(msg.DeviceProperties.DevEUI), payload, msg.ProtocolData.Port, parseTime(msg.Timestamp), meta)
}
