// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/Thermoquad/sentinel/internal/lns"
	"github.com/Thermoquad/sentinel/pkg/sentinel"
	"github.com/fxamacker/cbor/v2"
	"github.com/spf13/cobra"
)

var (
	replayCanonical bool
	replayFormat    string
	replayQuiet     bool
)

var replayCmd = &cobra.Command{
	Use:   "replay FILE",
	Short: "Decode uplinks recorded in a file",
	Long: `Decode the uplinks of a file in order through one decoder.

The file holds either a JSON array or JSON lines. Each entry is a network
server envelope, as captured by "sentinel raw_log --capture", or a canonical
record ({"deviceId", "bytes", "elementCount", "receivedAt"}) with --canonical.
Segmented frames are reassembled across entries, so the order matters.

Use "-" to read from stdin. A statistics summary is printed at the end, on
stderr when the output is JSON lines or a CBOR sequence.`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().BoolVar(&replayCanonical, "canonical", false, "Entries are canonical records instead of envelopes")
	replayCmd.Flags().StringVarP(&replayFormat, "format", "f", formatText, "Output format: text, json or cbor (a CBOR sequence)")
	replayCmd.Flags().BoolVarP(&replayQuiet, "quiet", "q", false, "Only print the statistics summary")
}

func runReplay(cmd *cobra.Command, args []string) error {
	if err := checkFormat(replayFormat); err != nil {
		return err
	}

	var in io.Reader = os.Stdin
	if args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	entries, err := readUplinkEntries(in)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	p, err := newPipeline(cfg)
	if err != nil {
		return err
	}
	defer p.Close()

	jsonOut := json.NewEncoder(os.Stdout)
	cborOut := cbor.NewEncoder(os.Stdout)
	skipped := 0
	for i, entry := range entries {
		up, err := parseUplink(entry, replayCanonical)
		if err != nil {
			if errors.Is(err, lns.ErrUselessFrame) {
				skipped++
				continue
			}
			printDecodeError(fmt.Errorf("entry %d: %w", i, err))
			continue
		}

		r := p.Decode(cmd.Context(), up)
		if replayQuiet {
			continue
		}
		switch replayFormat {
		case formatJSON:
			if err := jsonOut.Encode(decodedOutput{Record: up.Record, Metadata: up.Metadata, Result: r}); err != nil {
				return err
			}
			continue
		case formatCBOR:
			if err := cborOut.Encode(decodedOutput{Record: up.Record, Metadata: up.Metadata, Result: r}); err != nil {
				return err
			}
			continue
		}
		fmt.Print(formatRawUplink(up))
		fmt.Print(sentinel.FormatResult(r))
		fmt.Println()
	}

	summary := os.Stdout
	if replayFormat != formatText {
		summary = os.Stderr
	}
	if skipped > 0 {
		fmt.Fprintf(summary, "Skipped %d keep-alive or downlink entries\n", skipped)
	}
	fmt.Fprint(summary, p.Statistics())
	return nil
}

// readUplinkEntries splits a JSON array or a JSON lines stream into entries
func readUplinkEntries(r io.Reader) ([]json.RawMessage, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}

	if data[0] == '[' {
		var entries []json.RawMessage
		if err := json.Unmarshal(data, &entries); err != nil {
			return nil, fmt.Errorf("invalid JSON array: %w", err)
		}
		return entries, nil
	}

	var entries []json.RawMessage
	dec := json.NewDecoder(bytes.NewReader(data))
	for {
		var entry json.RawMessage
		err := dec.Decode(&entry)
		if err == io.EOF {
			return entries, nil
		}
		if err != nil {
			return nil, fmt.Errorf("invalid JSON entry %d: %w", len(entries), err)
		}
		entries = append(entries, entry)
	}
}
