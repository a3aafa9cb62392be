// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"
)

var (
	discoveryTimeout int
)

var discoveryCmd = &cobra.Command{
	Use:   "discovery",
	Short: "List the devices heard on a serial or WebSocket source",
	Long: `Listen to an uplink source and list the distinct devices heard until timeout.

Beacons cannot be queried, so discovery is passive: every uplink that can be
canonicalized counts, including keep-alives and uplinks that do not decode.

Examples:
  # LoRa bridge on a serial port
  sentinel discovery --port /dev/ttyUSB0

  # Network server forwarding over WebSocket
  sentinel discovery --url wss://lns.example.com/uplinks --username ops --timeout 60

Exit codes:
  0 - Discovery successful (at least one device heard)
  1 - Discovery failed (no devices before timeout)
  2 - Connection error`,
	RunE: runDiscovery,
}

func init() {
	rootCmd.AddCommand(discoveryCmd)
	discoveryCmd.Flags().IntVar(&discoveryTimeout, "timeout", 30, "Timeout in seconds for discovery")
}

// discoveredDevice is one device heard during discovery
type discoveredDevice struct {
	id        string
	network   string
	uplinks   int
	firstSeen time.Time
	lastRSSI  float64
	lastSNR   float64
}

func runDiscovery(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := OpenConnection()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	fmt.Printf("Sentinel - Device Discovery\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %d seconds\n\n", discoveryTimeout)

	devices := make(map[string]*discoveredDevice)
	lines := make(chan []byte, 10)
	errChan := make(chan error, 1)
	go readLines(conn, lines, errChan)

	timeout := time.After(time.Duration(discoveryTimeout) * time.Second)

listen:
	for {
		select {
		case line := <-lines:
			up, err := parseUplink(line, false)
			if err != nil {
				continue
			}

			id := up.Record.DeviceID
			d, ok := devices[id]
			if !ok {
				d = &discoveredDevice{id: id, network: up.Metadata.Network, firstSeen: time.Now()}
				devices[id] = d
				fmt.Printf("Device found: %s (%s)\n", id, d.network)
			}
			d.uplinks++
			d.lastRSSI = up.Metadata.RSSI
			d.lastSNR = up.Metadata.SNR

		case err := <-errChan:
			if isClosed(err) {
				fmt.Printf("\nConnection closed\n")
				break listen
			}
			fmt.Printf("READ FAILED: %v\n", err)
			os.Exit(2)

		case <-timeout:
			fmt.Printf("\nDiscovery timeout reached\n")
			break listen
		}
	}

	// Summary
	fmt.Printf("\n--- Discovery summary ---\n")
	fmt.Printf("Devices found: %d\n", len(devices))

	ids := make([]string, 0, len(devices))
	for id := range devices {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		d := devices[id]
		fmt.Printf("  %s  %-12s uplinks=%d  RSSI=%.0f dBm  SNR=%.1f dB\n", d.id, d.network, d.uplinks, d.lastRSSI, d.lastSNR)
	}

	if len(devices) == 0 {
		fmt.Printf("No devices heard. Check the source and that beacons are transmitting.\n")
		os.Exit(1)
	}

	return nil
}
