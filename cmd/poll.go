// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/Thermoquad/sentinel/internal/config"
	"github.com/Thermoquad/sentinel/internal/lns"
	"github.com/Thermoquad/sentinel/pkg/sentinel"
	"github.com/spf13/cobra"
)

// uplinkPath is the forwarding endpoint drained on every request
const uplinkPath = "/dev/forward/uplink?flush=yes&type=raw"

var (
	pollHideResult bool
	pollExamples   string
	pollIntervalMs int
	pollOnce       bool
)

var pollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Poll HTTP forwarding endpoints for uplinks",
	Long: `Fetch raw uplinks from the HTTP forwarding endpoints of the configuration.

Every source of the poll section is requested at the configured interval:

  GET https://<host>/dev/forward/uplink?flush=yes&type=raw
  Authorization: Basic <token>

The endpoint returns a JSON array of network server envelopes, or 204 when
nothing is pending. Each envelope is canonicalized and decoded.

With --examples, every frame reporting a firmware version is appended to a
JSON lines file as a codec example entry (type, description, input, output).

Press Ctrl+C to stop; a statistics summary is printed on exit.`,
	RunE: runPoll,
}

func init() {
	rootCmd.AddCommand(pollCmd)
	pollCmd.Flags().BoolVar(&pollHideResult, "hide-result", false, "Do not print decoded values")
	pollCmd.Flags().StringVar(&pollExamples, "examples", "", "Append codec example entries to this file")
	pollCmd.Flags().IntVar(&pollIntervalMs, "interval", 0, "Request interval in milliseconds (default from config, 10000)")
	pollCmd.Flags().BoolVar(&pollOnce, "once", false, "Poll every source once and exit")
}

// Poller fetches uplinks from HTTP forwarding endpoints
type Poller struct {
	client *http.Client
}

// NewPoller creates a poller with a request timeout
func NewPoller(timeout time.Duration) *Poller {
	return &Poller{client: &http.Client{Timeout: timeout}}
}

// sourceURL builds the forwarding endpoint of a source
func sourceURL(src config.SourceConfig) string {
	scheme := "https"
	if src.Insecure {
		scheme = "http"
	}
	return scheme + "://" + src.Host + uplinkPath
}

// Fetch drains the pending uplinks of a source. It returns no entry when
// the endpoint has nothing to deliver.
func (p *Poller) Fetch(ctx context.Context, src config.SourceConfig) ([]json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL(src), nil)
	if err != nil {
		return nil, err
	}
	if token := src.Credentials(); token != "" {
		req.Header.Set("Authorization", "Basic "+token)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("response status: %s", resp.Status)
	}
	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var frames []json.RawMessage
	if err := json.Unmarshal(body, &frames); err != nil {
		return nil, fmt.Errorf("invalid uplink list: %w", err)
	}
	return frames, nil
}

func runPoll(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if len(cfg.Poll.Sources) == 0 {
		return fmt.Errorf("no uplink source configured (poll.sources in --config)")
	}
	if pollIntervalMs < 0 {
		return fmt.Errorf("--interval must not be negative")
	}
	if pollIntervalMs > 0 {
		cfg.Poll.IntervalMs = pollIntervalMs
	}

	p, err := newPipeline(cfg)
	if err != nil {
		return err
	}
	defer p.Close()

	var examples io.Writer
	if pollExamples != "" {
		f, err := os.OpenFile(pollExamples, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open examples file: %w", err)
		}
		defer f.Close()
		examples = f
	}

	fmt.Printf("Sentinel - Uplink Poller\n")
	fmt.Printf("Sources: %d\n", len(cfg.Poll.Sources))
	fmt.Printf("Hide result: %v\n", pollHideResult)
	fmt.Printf("Request interval: %d ms\n\n", cfg.Poll.IntervalMs)

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt)
	defer stop()

	poller := NewPoller(cfg.Poll.Interval())
	round := func() {
		for _, src := range cfg.Poll.Sources {
			frames, err := poller.Fetch(ctx, src)
			if err != nil {
				if ctx.Err() == nil {
					log.Printf("Could not fetch uplinks from %s: %v", src.Name, err)
				}
				continue
			}
			for _, frame := range frames {
				if err := processPolled(ctx, p, frame, examples); err != nil && !errors.Is(err, lns.ErrUselessFrame) {
					log.Printf("Could not process LoRaWAN message from %s: %v", src.Name, err)
				}
			}
		}
	}

	round()
	if !pollOnce {
		ticker := time.NewTicker(cfg.Poll.Interval())
		defer ticker.Stop()

	loop:
		for {
			select {
			case <-ctx.Done():
				break loop
			case <-ticker.C:
				round()
			}
		}
	}

	fmt.Println()
	fmt.Print(p.Statistics())
	return nil
}

// processPolled decodes one polled envelope
func processPolled(ctx context.Context, p *pipeline, frame json.RawMessage, examples io.Writer) error {
	up, err := lns.Parse(frame)
	if err != nil {
		return err
	}

	r := p.Decode(ctx, up)
	if !pollHideResult {
		rec := up.Record
		fmt.Printf("Content for frame of device %s with fPort %d received from gateway %s at %s\n",
			rec.DeviceID, rec.ElementCount, up.Metadata.Gateway, rec.ReceivedAt.Format(time.RFC3339))
		fmt.Print(sentinel.FormatResult(r))
		fmt.Println()
	}

	if examples != nil && r.Data.FirmwareVersion != "" {
		return writeExample(examples, up, r)
	}
	return nil
}

// exampleEntry is a codec example: an uplink and its expected decoding
type exampleEntry struct {
	Type        string        `json:"type"`
	Description string        `json:"description"`
	Input       exampleInput  `json:"input"`
	Output      exampleOutput `json:"output"`
}

type exampleInput struct {
	Bytes    []int  `json:"bytes"`
	FPort    uint16 `json:"fPort"`
	RecvTime string `json:"recvTime"`
}

type exampleOutput struct {
	Data     sentinel.FrameData `json:"data"`
	Errors   []string           `json:"errors"`
	Warnings []string           `json:"warnings"`
}

// newExampleEntry builds the example entry of a frame reporting a configuration
func newExampleEntry(up lns.Uplink, r sentinel.DecodeResult) exampleEntry {
	rec := up.Record
	bytes := make([]int, len(rec.Bytes))
	for i, b := range rec.Bytes {
		bytes[i] = int(b)
	}

	entry := exampleEntry{
		Type:        "uplink",
		Description: "uplink frame containing a device configuration",
		Input: exampleInput{
			Bytes:    bytes,
			FPort:    rec.ElementCount,
			RecvTime: rec.ReceivedAt.Format(time.RFC3339Nano),
		},
		Output: exampleOutput{
			Data:     r.Data,
			Errors:   r.Errors,
			Warnings: r.Warnings,
		},
	}
	if entry.Output.Errors == nil {
		entry.Output.Errors = []string{}
	}
	if entry.Output.Warnings == nil {
		entry.Output.Warnings = []string{}
	}
	return entry
}

func writeExample(w io.Writer, up lns.Uplink, r sentinel.DecodeResult) error {
	data, err := json.Marshal(newExampleEntry(up, r))
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s\n", data)
	return err
}
