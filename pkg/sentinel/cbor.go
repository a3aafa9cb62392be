// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sentinel

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// resultEncMode sorts map keys so equal results encode to equal bytes
var resultEncMode = mustEncMode(cbor.CanonicalEncOptions())

func mustEncMode(opts cbor.EncOptions) cbor.EncMode {
	em, err := opts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("invalid CBOR encoding options: %v", err))
	}
	return em
}

// MarshalResultCBOR encodes a decode result as a CBOR map keyed like its JSON form
func MarshalResultCBOR(r DecodeResult) ([]byte, error) {
	data, err := resultEncMode.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to encode CBOR: %w", err)
	}
	return data, nil
}

// UnmarshalResultCBOR decodes a result produced by MarshalResultCBOR.
// Issue classification is not carried on the wire.
func UnmarshalResultCBOR(data []byte) (DecodeResult, error) {
	var r DecodeResult
	if len(data) == 0 {
		return r, fmt.Errorf("empty CBOR payload")
	}
	if err := cbor.Unmarshal(data, &r); err != nil {
		return DecodeResult{}, fmt.Errorf("failed to decode CBOR: %w", err)
	}
	return r, nil
}
