// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package lns

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"
)

// envelope wraps a vendor payload with optional raw headers (name, value, ...)
func envelope(t *testing.T, payload interface{}, headers ...string) []byte {
	t.Helper()
	if headers == nil {
		headers = []string{}
	}
	raw, err := json.Marshal(map[string]interface{}{
		"data": map[string]interface{}{
			"req":     map[string]interface{}{"rawHeaders": headers},
			"payload": payload,
		},
	})
	if err != nil {
		t.Fatalf("Failed to build envelope: %v", err)
	}
	return raw
}

func mustParse(t *testing.T, raw []byte) Uplink {
	t.Helper()
	up, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	return up
}

// ============================================================
// Adapter Resolution Tests
// ============================================================

func TestResolve(t *testing.T) {
	tests := []struct {
		name     string
		headers  []string
		payload  map[string]interface{}
		expected string
		err      error
	}{
		{"Loriot header", []string{"Network", "Wika_Loriot"}, map[string]interface{}{}, "Loriot", nil},
		{"Kerlink header", []string{"network", "KerlinkWMC_Asystom"}, map[string]interface{}{}, "KerlinkWMC", nil},
		{"Chirpstack header", []string{"network", "Chirpstack_Asystom"}, map[string]interface{}{}, "Chirpstack", nil},
		{"Actility header", []string{"network", "Actility_Asystom"}, map[string]interface{}{}, "", ErrUnknownNetwork},
		{"TTI header", []string{"network", "TTI"}, map[string]interface{}{}, "", ErrUnknownNetwork},
		{"Unknown header", []string{"network", "acme"}, map[string]interface{}{}, "", ErrUnknownNetwork},
		{"Multitech payload", nil, map[string]interface{}{"network": "asystomv2"}, "Multitech", nil},
		{"Kerlink SPN payload", nil, map[string]interface{}{"network": "kerlink"}, "", ErrUnknownNetwork},
		{"Unknown payload network", nil, map[string]interface{}{"network": "acme"}, "", ErrUnknownNetwork},
		{"NiFi shape", nil, map[string]interface{}{"Asystom_Network": "Objenious_Renault"}, "NiFi", nil},
		{"Other Asystom network", nil, map[string]interface{}{"Asystom_Network": "elsewhere"}, "", ErrUnknownNetwork},
		{"Loriot shape", nil, map[string]interface{}{"EUI": "70-B3-D5"}, "Loriot", nil},
		{"Nothing to go on", nil, map[string]interface{}{"foo": 1}, "", ErrUnknownNetwork},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var env Envelope
			if err := json.Unmarshal(envelope(t, tt.payload, tt.headers...), &env); err != nil {
				t.Fatal(err)
			}

			adapter, err := Resolve(&env)
			if tt.err != nil {
				if !errors.Is(err, tt.err) {
					t.Fatalf("Expected %v, got %v", tt.err, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve failed: %v", err)
			}
			if adapter.Name() != tt.expected {
				t.Errorf("Expected %s adapter, got %s", tt.expected, adapter.Name())
			}
		})
	}
}

func TestParse_MalformedEnvelope(t *testing.T) {
	for _, raw := range []string{"not json", `{"data": {"req": {"rawHeaders": []}}}`} {
		if _, err := Parse([]byte(raw)); !errors.Is(err, ErrMalformedFrame) {
			t.Errorf("Parse(%q): expected ErrMalformedFrame, got %v", raw, err)
		}
	}
}

func TestEnvelope_Header(t *testing.T) {
	env := Envelope{}
	env.Data.Req.RawHeaders = []string{"Content-Type", "application/json", "client", "acme", "dangling"}

	if v, ok := env.Header("Client"); !ok || v != "acme" {
		t.Errorf("Expected case-insensitive match, got %q %t", v, ok)
	}
	if _, ok := env.Header("dangling"); ok {
		t.Error("A name without value should not match")
	}
}

// ============================================================
// Vendor Adapter Tests
// ============================================================

func TestChirpstack(t *testing.T) {
	raw := envelope(t, map[string]interface{}{
		"data":       "AQIDBA==",
		"fPort":      1,
		"dr":         5,
		"deviceInfo": map[string]interface{}{"devEui": "70B3D5E75E0012AB", "tenantName": "acme"},
		"rxInfo":     []interface{}{map[string]interface{}{"rssi": -97, "snr": 7.5, "gwTime": "2025-03-01T12:00:00.250Z"}},
		"txInfo":     map[string]interface{}{"frequency": 868100000},
	}, "network", "Chirpstack_Asystom")

	up := mustParse(t, raw)
	if up.Record.DeviceID != "70b3d5e75e0012ab" || up.Record.ElementCount != 1 {
		t.Errorf("Unexpected record %+v", up.Record)
	}
	if !bytes.Equal(up.Record.Bytes, []byte{1, 2, 3, 4}) {
		t.Errorf("Unexpected payload % X", up.Record.Bytes)
	}
	if up.Metadata.Frequency != 868.1 || up.Metadata.RSSI != -97 || up.Metadata.SNR != 7.5 || up.Metadata.DataRate != 5 {
		t.Errorf("Unexpected metadata %+v", up.Metadata)
	}
	if !up.Record.ReceivedAt.Equal(time.Date(2025, 3, 1, 12, 0, 0, 250e6, time.UTC)) {
		t.Errorf("Unexpected timestamp %v", up.Record.ReceivedAt)
	}
	if up.Metadata.Client != "acme" || up.Metadata.Network != "Chirpstack" {
		t.Errorf("Unexpected routing %+v", up.Metadata)
	}
}

func TestChirpstack_MissingData(t *testing.T) {
	raw := envelope(t, map[string]interface{}{"fPort": 1}, "network", "Chirpstack_Asystom")
	if _, err := Parse(raw); !errors.Is(err, ErrMalformedFrame) {
		t.Errorf("Expected ErrMalformedFrame, got %v", err)
	}
}

func TestLoriot(t *testing.T) {
	t.Run("rx command", func(t *testing.T) {
		raw := envelope(t, map[string]interface{}{
			"cmd":  "rx",
			"EUI":  "70-B3-D5-E7-5E-00-12-AB",
			"port": 100,
			"data": "0a0b0c",
			"dr":   "SF9 BW125 4/5",
			"freq": 867500000,
			"ts":   1740830400000,
			"rssi": -110,
			"snr":  -3.5,
		}, "network", "Asystom_Loriot")

		up := mustParse(t, raw)
		if up.Record.DeviceID != "70b3d5e75e0012ab" || up.Record.ElementCount != 100 {
			t.Errorf("Unexpected record %+v", up.Record)
		}
		if up.Metadata.DataRate != 3 || up.Metadata.Frequency != 867.5 || up.Metadata.RSSI != -110 {
			t.Errorf("Unexpected metadata %+v", up.Metadata)
		}
		if up.Metadata.Client != "Asystom_Loriot" {
			t.Errorf("Unexpected client %q", up.Metadata.Client)
		}
		if up.Record.ReceivedAt.UnixMilli() != 1740830400000 {
			t.Errorf("Unexpected timestamp %v", up.Record.ReceivedAt)
		}
	})

	t.Run("gw command", func(t *testing.T) {
		raw := envelope(t, map[string]interface{}{
			"cmd":  "gw",
			"EUI":  "70B3D5E75E0012AB",
			"port": 2,
			"data": "00",
			"gws":  []interface{}{map[string]interface{}{"rssi": -80, "snr": 9, "ts": 1740830400000}},
		})

		up := mustParse(t, raw)
		if up.Metadata.RSSI != -80 || up.Metadata.SNR != 9 || up.Metadata.Frequency != 868.0 {
			t.Errorf("Unexpected metadata %+v", up.Metadata)
		}
		if up.Metadata.Client != "Loriot_Asystom" || up.Metadata.DataRate != UnknownDataRate {
			t.Errorf("Unexpected defaults %+v", up.Metadata)
		}
	})

	t.Run("downlink", func(t *testing.T) {
		raw := envelope(t, map[string]interface{}{"cmd": "txd", "EUI": "70B3D5E75E0012AB", "port": 2, "data": "00"})
		if _, err := Parse(raw); !errors.Is(err, ErrUselessFrame) {
			t.Errorf("Expected ErrUselessFrame, got %v", err)
		}
	})
}

func TestKerlink(t *testing.T) {
	raw := envelope(t, map[string]interface{}{
		"endDevice":   map[string]interface{}{"devEui": "70B3D5E75E0012AB"},
		"fPort":       3,
		"payload":     "010203040506070809",
		"dataRate":    "SF10BW125",
		"ulFrequency": 868.3,
		"recvTime":    "2025-03-01T12:00:00Z",
		"gwInfo":      []interface{}{map[string]interface{}{"rfRegion": "EU863", "rssi": -101, "snr": 2}},
	}, "network", "KerlinkWMC_Asystom", "Client", "acme", "Sensor", "Vibration")

	up := mustParse(t, raw)
	if up.Record.ElementCount != 3 || len(up.Record.Bytes) != 9 {
		t.Errorf("Unexpected record %+v", up.Record)
	}
	if up.Metadata.DataRate != 2 || up.Metadata.Frequency != 868.3 || up.Metadata.Client != "acme" || up.Metadata.Sensor != "Vibration" {
		t.Errorf("Unexpected metadata %+v", up.Metadata)
	}
}

func TestKerlink_NoDevice(t *testing.T) {
	raw := envelope(t, map[string]interface{}{"fPort": 3, "payload": "00"}, "network", "KerlinkWMC_Asystom")
	if _, err := Parse(raw); !errors.Is(err, ErrUselessFrame) {
		t.Errorf("Expected ErrUselessFrame, got %v", err)
	}
}

func TestMultitech(t *testing.T) {
	raw := envelope(t, map[string]interface{}{
		"network": "asystomv2",
		"client":  "acme",
		"sn":      "18712345",
		"data": map[string]interface{}{
			"payload": "ff00",
			"deveui":  "70-b3-d5-e7-5e-00-12-ab",
			"port":    67,
			"time":    "2025-03-01T12:00:00.000000Z",
			"datr":    "SF12BW125",
			"lsnr":    -12.5,
			"rssi":    -120,
			"freq":    868.5,
		},
	})

	up := mustParse(t, raw)
	if up.Record.DeviceID != "70b3d5e75e0012ab" || up.Record.ElementCount != 67 {
		t.Errorf("Unexpected record %+v", up.Record)
	}
	if up.Metadata.DataRate != 0 || up.Metadata.Gateway != "18712345" || up.Metadata.Frequency != 868.5 {
		t.Errorf("Unexpected metadata %+v", up.Metadata)
	}
}

func TestNiFi(t *testing.T) {
	raw := envelope(t, map[string]interface{}{
		"Asystom_Network":   "Objenious_Renault",
		"payload_cleartext": "0a0b",
		"protocol_data":     map[string]interface{}{"port": 1},
		"device_properties": map[string]interface{}{"deveui": "70B3D5E75E0012AB"},
		"lora_sf":           7,
		"lora_snr":          8,
		"lora_rssi":         -70,
		"site":              "Douai",
		"Timestamp":         "2025-03-01T12:00:00Z",
	})

	up := mustParse(t, raw)
	if up.Metadata.DataRate != 5 || up.Metadata.Client != "Douai" || up.Metadata.Network != "NiFi" {
		t.Errorf("Unexpected metadata %+v", up.Metadata)
	}
}

func TestUselessFrames(t *testing.T) {
	tests := []struct {
		name string
		port int
		data string
	}{
		{"Port zero", 0, "0102"},
		{"Legacy keep-alive", 67, "00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := envelope(t, map[string]interface{}{
				"cmd": "rx", "EUI": "70B3D5E75E0012AB", "port": tt.port, "data": tt.data,
			}, "network", "Loriot")
			if _, err := Parse(raw); !errors.Is(err, ErrUselessFrame) {
				t.Errorf("Expected ErrUselessFrame, got %v", err)
			}
		})
	}
}

// ============================================================
// Data Rate Tests
// ============================================================

func TestDataRate(t *testing.T) {
	tests := []struct {
		sf, bw, region string
		expected       int
	}{
		{"SF7", "BW125", "EU863", 5},
		{"SF7", "BW250", "", 6},
		{"SF12", "", "", 0},
		{"SF7", "BW500", "AU915", 13},
		{"SF10", "BW125", "US902", 0},
		{"SF11", "BW125", "US902", UnknownDataRate},
		{"SF7", "BW125", "EU868", UnknownDataRate},
		{"SF6", "BW125", "EU863", UnknownDataRate},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s_%s_%s", tt.sf, tt.bw, tt.region), func(t *testing.T) {
			if got := DataRate(tt.sf, tt.bw, tt.region); got != tt.expected {
				t.Errorf("Expected %d, got %d", tt.expected, got)
			}
		})
	}
}

func TestDataRateParsers(t *testing.T) {
	if got := DataRateFromCSS("SF8 BW125 4/5"); got != 4 {
		t.Errorf("DataRateFromCSS: expected 4, got %d", got)
	}
	if got := DataRateFromCSS(""); got != UnknownDataRate {
		t.Errorf("DataRateFromCSS empty: expected %d, got %d", UnknownDataRate, got)
	}
	if got := DataRateFromSFBW("SF10BW500", "AU915"); got != 10 {
		t.Errorf("DataRateFromSFBW: expected 10, got %d", got)
	}
	if got := DataRateFromSFBW("garbage", ""); got != UnknownDataRate {
		t.Errorf("DataRateFromSFBW garbage: expected %d, got %d", UnknownDataRate, got)
	}
	if got := DataRateFromSF(9); got != 3 {
		t.Errorf("DataRateFromSF: expected 3, got %d", got)
	}
}
