// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// Sentinel - LoRa Uplink Decoder
//
// A CLI tool for decoding, replaying and monitoring the uplinks of
// Sentinel vibration and acoustic beacons.

package main

import (
	"os"

	"github.com/Thermoquad/sentinel/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
