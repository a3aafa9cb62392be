// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/Thermoquad/sentinel/pkg/sentinel"
	"github.com/spf13/cobra"
)

var (
	downlinkData  string
	downlinkHex   string
	downlinkFPort uint8
)

var downlinkCmd = &cobra.Command{
	Use:   "downlink",
	Short: "Encode or decode downlinks",
	Long: `Encode or decode downlinks for Sentinel beacons.

The beacon firmware does not accept downlinks yet: both operations report an
error entry and no payload.`,
}

var downlinkEncodeCmd = &cobra.Command{
	Use:   "encode",
	Short: "Encode a downlink from JSON data",
	RunE:  runDownlinkEncode,
}

var downlinkDecodeCmd = &cobra.Command{
	Use:   "decode",
	Short: "Decode a downlink payload",
	RunE:  runDownlinkDecode,
}

func init() {
	rootCmd.AddCommand(downlinkCmd)
	downlinkCmd.AddCommand(downlinkEncodeCmd)
	downlinkCmd.AddCommand(downlinkDecodeCmd)
	downlinkEncodeCmd.Flags().StringVar(&downlinkData, "data", "{}", "Downlink data as a JSON object")
	downlinkDecodeCmd.Flags().StringVar(&downlinkHex, "hex", "", "Payload as a hex string")
	downlinkDecodeCmd.Flags().Uint8Var(&downlinkFPort, "fport", 1, "fPort of the downlink")
}

func runDownlinkEncode(cmd *cobra.Command, args []string) error {
	var data map[string]interface{}
	if err := json.Unmarshal([]byte(downlinkData), &data); err != nil {
		return fmt.Errorf("invalid --data: %w", err)
	}
	out := sentinel.NewCodec().EncodeDownlink(data)
	return printDownlink(out, len(out.Errors))
}

func runDownlinkDecode(cmd *cobra.Command, args []string) error {
	payload, err := payloadFromFlags(downlinkHex, "")
	if err != nil {
		return err
	}
	out := sentinel.NewCodec().DecodeDownlink(payload, downlinkFPort)
	return printDownlink(out, len(out.Errors))
}

// printDownlink prints a downlink outcome as JSON and fails when it carries errors
func printDownlink(out interface{}, errorCount int) error {
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	fmt.Printf("%s\n", data)
	if errorCount > 0 {
		return fmt.Errorf("downlink not processed")
	}
	return nil
}
