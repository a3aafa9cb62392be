// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sentinel

import (
	"encoding/binary"
	"errors"
)

// elementLayout returns the element width and full-scale value for a compression type
func elementLayout(c CompressionType) (size int, scale float64, ok bool) {
	switch c {
	case Compression50Bands8Bits, Compression100Bands8Bits, Compression200Bands8Bits:
		return 1, rawScale8, true
	case Compression50Bands16Bits, Compression100Bands16Bits:
		return 2, rawScale16, true
	default:
		return 0, 0, false
	}
}

// decodeExtension decodes an FFT zoom vector using the extension settings
// stored for the device. The last body byte is the settings handle the beacon
// used; it must match the stored one.
func (d *frameDecoder) decodeExtension(body []byte) {
	if len(body) == 0 {
		d.result.raise(IssueTruncatedVector, nil, "Empty signature extension vector, cannot proceed.")
		return
	}

	settings, err := d.loadSettings()
	if err != nil {
		details := map[string]interface{}{"device": d.deviceID}
		if errors.Is(err, ErrSettingsNotFound) {
			d.result.raise(IssueSettingsUnavailable, details,
				"Could not read extension settings for device %s (none received yet), cannot proceed", d.deviceID)
		} else {
			d.result.raise(IssueSettingsUnavailable, details,
				"Could not read extension settings for device %s (%v), cannot proceed", d.deviceID, err)
		}
		return
	}

	handle := body[len(body)-1]
	if handle != settings.Handle {
		d.result.raise(IssueUnknownExtensionHandle, map[string]interface{}{
			"handle":        handle,
			"stored_handle": settings.Handle,
		}, "Unknown extension settings handle \"%d\", cannot proceed.", handle)
		return
	}

	if settings.Algorithm != AlgorithmFftZoom {
		d.result.raise(IssueUnknownExtensionAlgorithm, map[string]interface{}{
			"algorithm": settings.Algorithm,
		}, "Unknown extension algorithm \"%d\", only FFT zoom (#0) is implemented yet. Cannot proceed.", settings.Algorithm)
		return
	}

	size, scale, ok := elementLayout(settings.CompressionType)
	if !ok {
		d.result.raise(IssueUnknownCompressionType, map[string]interface{}{
			"compression_type": settings.CompressionType,
		}, "Unknown compression type (%d), cannot proceed.", settings.CompressionType)
		return
	}

	data := body[:len(body)-1]
	nbElements := len(data) / size
	if len(data)%size != 0 {
		d.result.raise(IssueExcessVectorData, map[string]interface{}{
			"length": len(data),
		}, "FFT zoom vector length (%d) is not a multiple of %d, trailing byte ignored", len(data), size)
	}
	if nbElements > len(fftZoomCatalog) {
		d.result.raise(IssueExcessVectorData, map[string]interface{}{
			"elements": nbElements,
			"known":    len(fftZoomCatalog),
		}, "FFT zoom vector holds %d elements, only the first %d are decoded", nbElements, len(fftZoomCatalog))
		nbElements = len(fftZoomCatalog)
	}

	values := make([]PhysicalValue, 0, nbElements)
	for i := 0; i < nbElements; i++ {
		var raw uint32
		if size == 1 {
			raw = uint32(data[i])
		} else {
			raw = uint32(binary.LittleEndian.Uint16(data[i*size:]))
		}
		values = append(values, fftZoomCatalog[i].Scale(raw, scale))
	}

	d.result.Data.FftZoomValues = values
}

func (d *frameDecoder) loadSettings() (ExtensionSettings, error) {
	if d.settings == nil {
		return ExtensionSettings{}, ErrSettingsNotFound
	}
	return d.settings.Load(d.ctx, d.deviceID)
}
