// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package lns

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Network ids known to be forwarded but without an adapter
var unsupportedHeaderNetworks = map[string]string{
	"NNN_Asystom":      "Actility",
	"Tektelik_BI":      "Tektelic BI",
	"actility_Senzary": "Actility (Senzary)",
	"wilhelmsen":       "TTN (Wilhelmsen)",
	"Actility_Asystom": "Actility (Asystom)",
	"TTI":              "TTI",
}

var unsupportedPayloadNetworks = map[string]string{
	"kerlink": "Kerlink SPN",
	"TPE":     "Actility TPE",
	"gerflor": "Actility TPE (gerflor)",
	"ECBM":    "Actility TPE (ECBM)",
	"requea":  "Actility (requea)",
}

// Resolve picks the adapter for an envelope: from the "network" header first,
// then from the payload network field, then from the payload shape.
func Resolve(env *Envelope) (Adapter, error) {
	if id, ok := env.Header("network"); ok {
		return resolveHeaderNetwork(id)
	}

	var fields map[string]json.RawMessage
	if err := unmarshalPayload(env, &fields); err != nil {
		return nil, err
	}

	if raw, ok := fields["network"]; ok {
		var id string
		if err := json.Unmarshal(raw, &id); err == nil {
			return resolvePayloadNetwork(id)
		}
	}
	return resolveUnusual(fields)
}

func resolveHeaderNetwork(id string) (Adapter, error) {
	if strings.Contains(id, "Loriot") {
		return loriotAdapter{network: id}, nil
	}

	switch id {
	case "KerlinkWMC_Asystom":
		return kerlinkAdapter{}, nil
	case "Chirpstack_Asystom":
		return chirpstackAdapter{}, nil
	}

	if name, ok := unsupportedHeaderNetworks[id]; ok {
		return nil, fmt.Errorf("%w: %s network server (%q) is not supported", ErrUnknownNetwork, name, id)
	}
	return nil, fmt.Errorf("%w: unknown network id %q", ErrUnknownNetwork, id)
}

func resolvePayloadNetwork(id string) (Adapter, error) {
	if id == "asystomv2" {
		return multitechAdapter{}, nil
	}
	if name, ok := unsupportedPayloadNetworks[id]; ok {
		return nil, fmt.Errorf("%w: %s network server (%q) is not supported", ErrUnknownNetwork, name, id)
	}
	return nil, fmt.Errorf("%w: unknown payload network %q", ErrUnknownNetwork, id)
}

// resolveUnusual handles messages naming their network nowhere
func resolveUnusual(fields map[string]json.RawMessage) (Adapter, error) {
	raw, ok := fields["Asystom_Network"]
	if !ok {
		if _, hasEUI := fields["EUI"]; hasEUI {
			return loriotAdapter{}, nil
		}
		return nil, fmt.Errorf("%w: frame received from an unknown network server", ErrUnknownNetwork)
	}

	var network string
	_ = json.Unmarshal(raw, &network)
	if network == "Objenious_Renault" {
		return nifiAdapter{}, nil
	}
	return nil, fmt.Errorf("%w: unknown Asystom_Network %q", ErrUnknownNetwork, network)
}
