// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"github.com/spf13/cobra"
)

var (
	// Serial connection flags
	portName string
	baudRate int

	// WebSocket connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	// Decoder flags
	configPath     string
	settingsDir    string
	settingsFormat string
	idleTTLMs      int
	verbose        bool
)

var rootCmd = &cobra.Command{
	Use:   "sentinel",
	Short: "Sentinel LoRa Uplink Decoder",
	Long: `Sentinel - A CLI tool for decoding and monitoring Sentinel beacon uplinks.

Decodes the LoRa uplinks of Sentinel vibration and acoustic beacons, reassembling
segmented frames and keeping the extension settings each beacon reports.

Uplink sources:
  Serial:    --port /dev/ttyUSB0 [--baud 115200]   (one JSON uplink per line)
  WebSocket: --url ws://host/path [--username user] (one JSON uplink per message)
  HTTP:      sentinel poll --config sentinel.yaml
  Files:     sentinel replay capture.jsonl

For WebSocket authentication, the password is read from the SENTINEL_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.`,
	Version:       "1.0.0",
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	// Serial connection flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 115200, "Baud rate (serial only)")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	// Decoder flags, overriding the configuration file
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&settingsDir, "settings-dir", "", "Directory of the extension settings files (default \".\")")
	rootCmd.PersistentFlags().StringVar(&settingsFormat, "settings-format", "", "Extension settings file format: json or cbor (default \"json\")")
	rootCmd.PersistentFlags().IntVar(&idleTTLMs, "idle-ttl", -1, "Drop segmented frames idle for this many milliseconds (0 keeps them)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log settings persistence and segment eviction")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
