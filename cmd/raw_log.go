// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/Thermoquad/sentinel/internal/lns"
	"github.com/spf13/cobra"
)

var (
	rawLogCapture string
)

var rawLogCmd = &cobra.Command{
	Use:   "raw_log",
	Short: "Display raw uplink log in human-readable format",
	Long: `Continuously canonicalize and display uplinks as they arrive, without decoding.

Each uplink is shown with timestamp, device, fPort, hex payload and the
network metadata (data rate, SNR, RSSI, frequency).

With --capture, every line received is also appended to a JSON lines file
that can be decoded later with "sentinel replay".

Supports both serial and WebSocket connections.`,
	RunE: runRawLog,
}

func init() {
	rootCmd.AddCommand(rawLogCmd)
	rawLogCmd.Flags().StringVar(&rawLogCapture, "capture", "", "Append received uplinks to this JSON lines file")
}

func runRawLog(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	var capture *os.File
	if rawLogCapture != "" {
		capture, err = os.OpenFile(rawLogCapture, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open capture file: %w", err)
		}
		defer capture.Close()
	}

	fmt.Printf("Sentinel - Raw Uplink Log\n")
	fmt.Printf("Connection: %s\n", connInfo)
	if capture != nil {
		fmt.Printf("Capture: %s\n", rawLogCapture)
	}
	fmt.Printf("Press Ctrl+C to exit\n\n")

	reader := NewLineReader(conn)
	for {
		line, err := reader.Next()
		if err != nil {
			// For WebSocket connections, a read error usually means
			// the connection is permanently closed - exit gracefully
			if isClosed(err) {
				log.Printf("Connection closed")
				return nil
			}
			return fmt.Errorf("read error: %w", err)
		}

		if capture != nil {
			if _, err := fmt.Fprintf(capture, "%s\n", line); err != nil {
				return fmt.Errorf("capture failed: %w", err)
			}
		}

		up, err := parseUplink(line, false)
		if err != nil {
			if errors.Is(err, lns.ErrUselessFrame) {
				continue
			}
			fmt.Printf("[ERROR] %v\n", err)
			continue
		}
		fmt.Print(formatRawUplink(up))
	}
}

// formatRawUplink formats an uplink without decoding its payload
func formatRawUplink(up lns.Uplink) string {
	rec := up.Record

	result := fmt.Sprintf("[%s] %s fPort=%d len=%d\n", rec.ReceivedAt.Format("15:04:05.000"), rec.DeviceID, rec.ElementCount, len(rec.Bytes))
	result += fmt.Sprintf("  Payload: %s\n", rec.Hex())
	result += formatMetadata(up.Metadata)
	return result
}
