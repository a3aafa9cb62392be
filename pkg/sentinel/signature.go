// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sentinel

import "encoding/binary"

// decodeSignature maps uint16 elements onto the signature catalog, in slot order
func (d *frameDecoder) decodeSignature(body []byte) {
	nbElements := len(body) / VectorElementSize
	if len(body)%VectorElementSize != 0 {
		d.result.raise(IssueExcessVectorData, map[string]interface{}{
			"length": len(body),
		}, "Signature vector length (%d) is not a multiple of %d, trailing byte ignored", len(body), VectorElementSize)
	}
	if nbElements > len(signatureCatalog) {
		d.result.raise(IssueExcessVectorData, map[string]interface{}{
			"elements": nbElements,
			"known":    len(signatureCatalog),
		}, "Signature vector holds %d elements, only the first %d are known", nbElements, len(signatureCatalog))
		nbElements = len(signatureCatalog)
	}

	values := make([]PhysicalValue, 0, nbElements)
	for i := 0; i < nbElements; i++ {
		desc := signatureCatalog[i]
		if desc.Reserved() {
			continue
		}
		raw := binary.LittleEndian.Uint16(body[i*VectorElementSize:])
		values = append(values, desc.Scale(uint32(raw), rawScale16))
	}

	d.result.Data.SignatureValues = values
}
