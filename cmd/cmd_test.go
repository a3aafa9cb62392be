// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Thermoquad/sentinel/internal/config"
	"github.com/Thermoquad/sentinel/internal/lns"
	"github.com/Thermoquad/sentinel/pkg/sentinel"
	"github.com/fxamacker/cbor/v2"
)

const testDevice = "70b3d5e75e0012ab"

// batteryFull is a one-scalar frame: battery level at full scale
var batteryFull = []byte{0x00, 0xFF, 0xFF}

// multitechEnvelope wraps a hex payload in a Multitech forwarding envelope
func multitechEnvelope(t *testing.T, payloadHex string, port int) []byte {
	t.Helper()
	raw, err := json.Marshal(map[string]interface{}{
		"data": map[string]interface{}{
			"req": map[string]interface{}{"rawHeaders": []string{}},
			"payload": map[string]interface{}{
				"network": "asystomv2",
				"sn":      "18712345",
				"data": map[string]interface{}{
					"payload": payloadHex,
					"deveui":  "70-b3-d5-e7-5e-00-12-ab",
					"port":    port,
					"time":    "2025-03-01T12:00:00.000000Z",
					"datr":    "SF7BW125",
				},
			},
		},
	})
	if err != nil {
		t.Fatalf("Failed to build envelope: %v", err)
	}
	return raw
}

func testPipeline(t *testing.T) *pipeline {
	t.Helper()
	cfg := &config.Config{}
	cfg.Settings.Dir = t.TempDir()
	config.Normalize(cfg)

	p, err := newPipeline(cfg)
	if err != nil {
		t.Fatalf("newPipeline failed: %v", err)
	}
	t.Cleanup(func() { p.Close() })
	return p
}

// ============================================================
// Uplink Parsing Tests
// ============================================================

func TestParseUplink_Envelope(t *testing.T) {
	up, err := parseUplink(multitechEnvelope(t, "00ffff", 1), false)
	if err != nil {
		t.Fatalf("parseUplink failed: %v", err)
	}
	if up.Metadata.Network != "Multitech" {
		t.Errorf("Expected Multitech, got %q", up.Metadata.Network)
	}
	if up.Record.DeviceID != testDevice || !bytes.Equal(up.Record.Bytes, batteryFull) {
		t.Errorf("Unexpected record %+v", up.Record)
	}
}

func TestParseUplink_CanonicalRecord(t *testing.T) {
	line := []byte(`{"deviceId":"` + testDevice + `","bytes":"AP//","elementCount":1}`)

	for _, forced := range []bool{false, true} {
		t.Run(fmt.Sprintf("forced=%v", forced), func(t *testing.T) {
			up, err := parseUplink(line, forced)
			if err != nil {
				t.Fatalf("parseUplink failed: %v", err)
			}
			if up.Metadata.Network != canonicalNetwork {
				t.Errorf("Expected network %q, got %q", canonicalNetwork, up.Metadata.Network)
			}
			if !bytes.Equal(up.Record.Bytes, batteryFull) || up.Record.ElementCount != 1 {
				t.Errorf("Unexpected record %+v", up.Record)
			}
			if up.Record.ReceivedAt.IsZero() {
				t.Error("A missing timestamp should default to now")
			}
			if up.Metadata.DataRate != lns.UnknownDataRate {
				t.Errorf("Expected unknown data rate, got %d", up.Metadata.DataRate)
			}
		})
	}
}

func TestParseUplink_Errors(t *testing.T) {
	tests := []struct {
		name      string
		line      string
		canonical bool
		err       error
	}{
		{"Not JSON", `{oops`, false, lns.ErrMalformedFrame},
		{"Unknown network", `{"data":{"payload":{"foo":1}}}`, false, lns.ErrUnknownNetwork},
		{"No envelope", `{"foo":1}`, false, lns.ErrMalformedFrame},
		{"Canonical without device", `{"bytes":"AA==","elementCount":1}`, true, lns.ErrMalformedFrame},
		{"Canonical not JSON", `[1,2`, true, lns.ErrMalformedFrame},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseUplink([]byte(tt.line), tt.canonical)
			if !errors.Is(err, tt.err) {
				t.Errorf("Expected %v, got %v", tt.err, err)
			}
		})
	}
}

func TestParseUplink_KeepAlive(t *testing.T) {
	_, err := parseUplink(multitechEnvelope(t, "00", 67), false)
	if !errors.Is(err, lns.ErrUselessFrame) {
		t.Errorf("Expected ErrUselessFrame, got %v", err)
	}
}

// ============================================================
// Source Tests
// ============================================================

func TestLineReader(t *testing.T) {
	reader := NewLineReader(strings.NewReader("\n{\"a\":1}\n   \n  {\"b\":2}"))

	var lines []string
	for {
		line, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		lines = append(lines, string(line))
	}

	if len(lines) != 2 || lines[0] != `{"a":1}` || lines[1] != `{"b":2}` {
		t.Errorf("Unexpected lines %q", lines)
	}
}

func TestIsClosed(t *testing.T) {
	if !isClosed(io.EOF) {
		t.Error("EOF should mean closed")
	}
	if !isClosed(fmt.Errorf("%w: going away", ErrConnectionClosed)) {
		t.Error("Wrapped ErrConnectionClosed should mean closed")
	}
	if isClosed(errors.New("bad line")) {
		t.Error("Other errors should not mean closed")
	}
}

func TestReadUplinkEntries(t *testing.T) {
	tests := []struct {
		name  string
		input string
		count int
	}{
		{"JSON array", `[{"a":1}, {"b":2}, {"c":3}]`, 3},
		{"JSON lines", "{\"a\":1}\n{\"b\":2}\n", 2},
		{"Concatenated objects", `{"a":1}{"b":2}`, 2},
		{"Empty", "  \n", 0},
		{"Empty array", "[]", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries, err := readUplinkEntries(strings.NewReader(tt.input))
			if err != nil {
				t.Fatalf("readUplinkEntries failed: %v", err)
			}
			if len(entries) != tt.count {
				t.Errorf("Expected %d entries, got %d", tt.count, len(entries))
			}
		})
	}

	if _, err := readUplinkEntries(strings.NewReader(`{"a":1}` + "\n{broken")); err == nil {
		t.Error("Expected an error for a broken entry")
	}
}

func TestPayloadFromFlags(t *testing.T) {
	tests := []struct {
		name    string
		hex     string
		base64  string
		want    []byte
		wantErr bool
	}{
		{"Hex", "00ffff", "", batteryFull, false},
		{"Hex with prefix and spaces", "0x00 ff ff", "", batteryFull, false},
		{"Base64", "", "AP//", batteryFull, false},
		{"Both", "00", "AA==", nil, true},
		{"Neither", "", "", nil, true},
		{"Bad hex", "0g", "", nil, true},
		{"Bad base64", "", "!!", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := payloadFromFlags(tt.hex, tt.base64)
			if tt.wantErr {
				if err == nil {
					t.Errorf("Expected an error, got %x", got)
				}
				return
			}
			if err != nil || !bytes.Equal(got, tt.want) {
				t.Errorf("Expected %x, got %x (%v)", tt.want, got, err)
			}
		})
	}
}

// ============================================================
// Pipeline Tests
// ============================================================

func TestPipeline_Decode(t *testing.T) {
	p := testPipeline(t)

	up, err := parseUplink(multitechEnvelope(t, "00ffff", 1), false)
	if err != nil {
		t.Fatal(err)
	}
	r := p.Decode(context.Background(), up)
	if len(r.Errors) != 0 || len(r.Data.ScalarValues) != 1 {
		t.Fatalf("Unexpected result %+v", r)
	}
	if math.Abs(r.Data.ScalarValues[0].Value-100) > 1e-9 {
		t.Errorf("Expected battery at 100, got %v", r.Data.ScalarValues[0].Value)
	}

	// A frame with an invalid element count fails
	_ = p.Decode(context.Background(), lns.Uplink{Record: sentinel.CanonicalRecord{DeviceID: testDevice, Bytes: []byte{1}, ElementCount: 200}})

	snap := p.Snapshot()
	if snap.TotalUplinks != 2 || snap.DecodedFrames != 1 || snap.FailedFrames != 1 {
		t.Errorf("Unexpected statistics %+v", snap)
	}
	if !strings.Contains(p.Statistics(), "Total Uplinks:") {
		t.Error("Statistics summary is missing its counters")
	}
}

func TestPipeline_SnapshotIsACopy(t *testing.T) {
	p := testPipeline(t)
	_ = p.Decode(context.Background(), lns.Uplink{Record: sentinel.CanonicalRecord{DeviceID: testDevice, Bytes: []byte{1}, ElementCount: 200}})

	snap := p.Snapshot()
	for kind := range snap.IssueCounts {
		snap.IssueCounts[kind] = 1000
	}
	for kind, n := range p.Snapshot().IssueCounts {
		if n == 1000 {
			t.Errorf("Snapshot shares its counters (%s)", kind)
		}
	}
}

func TestLoadConfig_FlagOverrides(t *testing.T) {
	dir := t.TempDir()
	settingsDir, settingsFormat, idleTTLMs, configPath = dir, "cbor", 5000, ""
	defer func() { settingsDir, settingsFormat, idleTTLMs = "", "", -1 }()

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}
	if cfg.Settings.Dir != dir || cfg.Settings.Format != "cbor" || cfg.IdleTTL() != 5*time.Second {
		t.Errorf("Flags not applied: %+v", cfg)
	}
	if cfg.Poll.IntervalMs != config.DefaultPollIntervalMs {
		t.Errorf("Defaults not applied, interval %d", cfg.Poll.IntervalMs)
	}

	settingsFormat = "xml"
	if _, err := loadConfig(); err == nil {
		t.Error("Expected an invalid format to be rejected")
	}
}

// ============================================================
// Output Tests
// ============================================================

func TestWriteResult(t *testing.T) {
	p := testPipeline(t)
	up, _ := canonicalUplink(sentinel.CanonicalRecord{DeviceID: testDevice, Bytes: batteryFull, ElementCount: 1})
	r := p.Decode(context.Background(), up)

	t.Run("text", func(t *testing.T) {
		var buf bytes.Buffer
		if err := writeResult(&buf, formatText, up, r); err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(buf.String(), testDevice) {
			t.Errorf("Text output lacks the device:\n%s", buf.String())
		}
	})

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		if err := writeResult(&buf, formatJSON, up, r); err != nil {
			t.Fatal(err)
		}
		var decoded sentinel.DecodeResult
		if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
			t.Fatalf("Output is not JSON: %v", err)
		}
		if len(decoded.Data.ScalarValues) != 1 {
			t.Errorf("Expected 1 scalar, got %d", len(decoded.Data.ScalarValues))
		}
	})

	t.Run("cbor", func(t *testing.T) {
		var buf bytes.Buffer
		if err := writeResult(&buf, formatCBOR, up, r); err != nil {
			t.Fatal(err)
		}
		var decoded map[string]interface{}
		if err := cbor.Unmarshal(buf.Bytes(), &decoded); err != nil {
			t.Fatalf("Output is not CBOR: %v", err)
		}
		for _, key := range []string{"data", "errors", "warnings"} {
			if _, ok := decoded[key]; !ok {
				t.Errorf("Missing key %q", key)
			}
		}
	})
}

func TestCheckFormat(t *testing.T) {
	for _, format := range []string{formatText, formatJSON, formatCBOR} {
		if err := checkFormat(format); err != nil {
			t.Errorf("Format %q rejected: %v", format, err)
		}
	}
	if err := checkFormat("xml"); err == nil {
		t.Error("Expected xml to be rejected")
	}
}

func TestFormatUptime(t *testing.T) {
	tests := []struct {
		ms   uint64
		want string
	}{
		{0, "0 seconds"},
		{1000, "1 second"},
		{59000, "59 seconds"},
		{61000, "1 minute and 1 second"},
		{3600000, "1 hour"},
		{90061000, "1 day, 1 hour, 1 minute, and 1 second"},
	}

	for _, tt := range tests {
		if got := formatUptime(tt.ms); got != tt.want {
			t.Errorf("formatUptime(%d) = %q, want %q", tt.ms, got, tt.want)
		}
	}
}

// ============================================================
// Poller Tests
// ============================================================

func testSource(srv *httptest.Server) config.SourceConfig {
	return config.SourceConfig{
		Name:     "test",
		Host:     strings.TrimPrefix(srv.URL, "http://"),
		Token:    "dXNlcjpwYXNz",
		Insecure: true,
	}
}

func TestPoller_Fetch(t *testing.T) {
	envelope := multitechEnvelope(t, "00ffff", 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/dev/forward/uplink" {
			t.Errorf("Unexpected path %q", r.URL.Path)
		}
		if q := r.URL.Query(); q.Get("flush") != "yes" || q.Get("type") != "raw" {
			t.Errorf("Unexpected query %q", r.URL.RawQuery)
		}
		if got := r.Header.Get("Authorization"); got != "Basic dXNlcjpwYXNz" {
			t.Errorf("Unexpected Authorization %q", got)
		}
		fmt.Fprintf(w, "[%s, %s]", envelope, envelope)
	}))
	defer srv.Close()

	frames, err := NewPoller(time.Second).Fetch(context.Background(), testSource(srv))
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(frames) != 2 {
		t.Fatalf("Expected 2 frames, got %d", len(frames))
	}
	if _, err := lns.Parse(frames[0]); err != nil {
		t.Errorf("Fetched frame does not parse: %v", err)
	}
}

func TestPoller_NothingPending(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"No content", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) }},
		{"Empty array", func(w http.ResponseWriter, r *http.Request) { fmt.Fprint(w, "[]") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			frames, err := NewPoller(time.Second).Fetch(context.Background(), testSource(srv))
			if err != nil || len(frames) != 0 {
				t.Errorf("Expected no frames, got %d (%v)", len(frames), err)
			}
		})
	}
}

func TestPoller_Failures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"Unauthorized", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusUnauthorized) }},
		{"Server error", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusInternalServerError) }},
		{"Not a list", func(w http.ResponseWriter, r *http.Request) { fmt.Fprint(w, `{"frames":1}`) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			if _, err := NewPoller(time.Second).Fetch(context.Background(), testSource(srv)); err == nil {
				t.Error("Expected an error")
			}
		})
	}
}

func TestSourceURL(t *testing.T) {
	src := config.SourceConfig{Host: "lns.example.com"}
	if got := sourceURL(src); got != "https://lns.example.com/dev/forward/uplink?flush=yes&type=raw" {
		t.Errorf("Unexpected URL %q", got)
	}
	src.Insecure = true
	if got := sourceURL(src); !strings.HasPrefix(got, "http://") {
		t.Errorf("Expected plain http, got %q", got)
	}
}

func TestProcessPolled(t *testing.T) {
	p := testPipeline(t)
	pollHideResult = true
	defer func() { pollHideResult = false }()

	var examples bytes.Buffer
	if err := processPolled(context.Background(), p, multitechEnvelope(t, "00ffff", 1), &examples); err != nil {
		t.Fatalf("processPolled failed: %v", err)
	}
	if examples.Len() != 0 {
		t.Errorf("A frame without firmware version is no example: %s", examples.String())
	}

	if err := processPolled(context.Background(), p, []byte(`{"data":{"payload":{"foo":1}}}`), &examples); !errors.Is(err, lns.ErrUnknownNetwork) {
		t.Errorf("Expected ErrUnknownNetwork, got %v", err)
	}
	if p.Snapshot().TotalUplinks != 1 {
		t.Errorf("Expected 1 decoded uplink, got %d", p.Snapshot().TotalUplinks)
	}
}

func TestNewExampleEntry(t *testing.T) {
	ts := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	up := lns.Uplink{Record: sentinel.CanonicalRecord{DeviceID: testDevice, Bytes: []byte{1, 2}, ElementCount: 67, ReceivedAt: ts}}
	r := sentinel.DecodeResult{Data: sentinel.FrameData{FirmwareVersion: "2.4.1"}}

	var buf bytes.Buffer
	if err := writeExample(&buf, up, r); err != nil {
		t.Fatal(err)
	}

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Example is not JSON: %v", err)
	}
	if entry["type"] != "uplink" {
		t.Errorf("Unexpected type %v", entry["type"])
	}
	out := buf.String()
	for _, want := range []string{`"bytes":[1,2]`, `"fPort":67`, `"recvTime":"2025-03-01T12:00:00Z"`, `"errors":[]`, `"warnings":[]`, `"firmwareVersion":"2.4.1"`} {
		if !strings.Contains(out, want) {
			t.Errorf("Missing %s in %s", want, out)
		}
	}
}

func TestDeviceArg(t *testing.T) {
	tests := map[string]string{
		"70-B3-D5-E7-5E-00-12-AB": testDevice,
		"70B3D5E75E0012AB":        testDevice,
		testDevice:                testDevice,
	}
	for in, want := range tests {
		if got := deviceArg(in); got != want {
			t.Errorf("deviceArg(%q) = %q, want %q", in, got, want)
		}
	}
}
