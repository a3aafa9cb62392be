// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/Thermoquad/sentinel/internal/lns"
	"github.com/Thermoquad/sentinel/pkg/sentinel"
	"github.com/spf13/cobra"
)

var (
	packetTestTimeout int
)

var packetTestCmd = &cobra.Command{
	Use:   "packet_test",
	Short: "Test a source by waiting for a decodable uplink",
	Long: `Wait for an uplink that decodes without errors until timeout.

This command connects to a serial port or WebSocket and waits for an uplink
that canonicalizes and decodes into a frame without errors. Malformed lines,
keep-alives and failed frames are counted and skipped. The first segment of a
segmented frame does not count; the frame must complete.

Exit codes:
  0 - Uplink decoded before timeout
  1 - Timeout reached without a decodable uplink
  2 - Connection error`,
	RunE: runPacketTest,
}

func init() {
	rootCmd.AddCommand(packetTestCmd)
	packetTestCmd.Flags().IntVar(&packetTestTimeout, "timeout", 60, "Timeout in seconds to wait for an uplink")
}

// decodedUplink is an uplink with its decode result
type decodedUplink struct {
	up     lns.Uplink
	result sentinel.DecodeResult
}

func runPacketTest(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	p, err := newPipeline(cfg)
	if err != nil {
		return err
	}
	defer p.Close()

	conn, connInfo, err := OpenConnection()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	fmt.Printf("Sentinel - Uplink Test\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %d seconds\n", packetTestTimeout)
	fmt.Printf("Waiting for a decodable uplink...\n\n")

	okChan := make(chan decodedUplink, 1)
	errChan := make(chan error, 1)

	// Reader goroutine
	go func() {
		reader := NewLineReader(conn)
		skipped := 0
		for {
			line, err := reader.Next()
			if err != nil {
				errChan <- err
				return
			}

			up, err := parseUplink(line, false)
			if err != nil {
				skipped++
				continue
			}
			r := p.Decode(context.Background(), up)
			if r.Failed() || !sentinel.CompletesFrame(up.Record, r) {
				skipped++
				continue
			}

			if skipped > 0 {
				fmt.Printf("(skipped %d uplinks before a decodable one)\n", skipped)
			}
			okChan <- decodedUplink{up: up, result: r}
			return
		}
	}()

	select {
	case d := <-okChan:
		rec := d.up.Record
		fmt.Printf("SUCCESS: Decoded uplink\n")
		fmt.Printf("  Device: %s\n", rec.DeviceID)
		fmt.Printf("  Network: %s\n", d.up.Metadata.Network)
		fmt.Printf("  fPort: %d\n", rec.ElementCount)
		fmt.Printf("  Length: %d bytes\n", len(rec.Bytes))
		fmt.Printf("  Warnings: %d\n", len(d.result.Warnings))
		os.Exit(0)

	case err := <-errChan:
		fmt.Fprintf(os.Stderr, "Read error: %v\n", err)
		os.Exit(2)

	case <-time.After(time.Duration(packetTestTimeout) * time.Second):
		fmt.Fprintf(os.Stderr, "TIMEOUT: No decodable uplink received within %d seconds\n", packetTestTimeout)
		os.Exit(1)
	}

	return nil
}
