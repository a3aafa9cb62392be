// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package lns

import (
	"fmt"
	"strings"
)

// UnknownDataRate is reported when no table entry matches
const UnknownDataRate = 99

const (
	defaultBandwidth = "BW125"
	defaultRegion    = "EU863"
)

type dataRateTable struct {
	regions []string
	// spreading factor -> bandwidth -> data rate
	rates map[string]map[string]int
}

// LoRaWAN regional parameters v1.0.3
var dataRateTables = []dataRateTable{
	{
		regions: []string{"EU863", "EU433", "CN779", "CN470", "AS923", "KR920", "IN865", "RU864"},
		rates: map[string]map[string]int{
			"SF7":  {"BW125": 5, "BW250": 6},
			"SF8":  {"BW125": 4},
			"SF9":  {"BW125": 3},
			"SF10": {"BW125": 2},
			"SF11": {"BW125": 1},
			"SF12": {"BW125": 0},
		},
	},
	{
		regions: []string{"AU915"},
		rates: map[string]map[string]int{
			"SF7":  {"BW125": 5, "BW500": 13},
			"SF8":  {"BW125": 4, "BW500": 12},
			"SF9":  {"BW125": 3, "BW500": 11},
			"SF10": {"BW125": 2, "BW500": 10},
			"SF11": {"BW125": 1, "BW500": 9},
			"SF12": {"BW125": 0, "BW500": 8},
		},
	},
	{
		regions: []string{"US902"},
		rates: map[string]map[string]int{
			"SF7":  {"BW125": 3, "BW500": 13},
			"SF8":  {"BW125": 2, "BW500": 12},
			"SF9":  {"BW125": 1, "BW500": 11},
			"SF10": {"BW125": 0, "BW500": 10},
			"SF11": {"BW500": 9},
			"SF12": {"BW500": 8},
		},
	},
}

// DataRate returns the LoRaWAN data rate index of a spreading factor ("SF7")
// and bandwidth ("BW125") in a region. Empty bandwidth and region default to
// BW125 and EU863.
func DataRate(spreadingFactor, bandwidth, region string) int {
	if bandwidth == "" {
		bandwidth = defaultBandwidth
	}
	if region == "" {
		region = defaultRegion
	}

	for _, table := range dataRateTables {
		for _, r := range table.regions {
			if r != region {
				continue
			}
			if dr, ok := table.rates[spreadingFactor][bandwidth]; ok {
				return dr
			}
			return UnknownDataRate
		}
	}
	return UnknownDataRate
}

// DataRateFromSF returns the EU863 BW125 data rate of a numeric spreading factor
func DataRateFromSF(spreadingFactor int) int {
	return DataRate(fmt.Sprintf("SF%d", spreadingFactor), "", "")
}

// DataRateFromCSS parses "<SF> <BW> <coding rate>", e.g. "SF9 BW125 4/5"
func DataRateFromCSS(css string) int {
	fields := strings.Fields(css)
	switch len(fields) {
	case 0:
		return UnknownDataRate
	case 1:
		return DataRate(fields[0], "", "")
	default:
		return DataRate(fields[0], fields[1], "")
	}
}

// DataRateFromSFBW parses a packed "SF7BW125" string
func DataRateFromSFBW(sfbw, region string) int {
	i := strings.Index(sfbw, "BW")
	if i <= 0 {
		return UnknownDataRate
	}
	return DataRate(sfbw[:i], sfbw[i:], region)
}
