// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sentinel

import "fmt"

// PhysicalValue is a decoded measurement together with its scaling range
type PhysicalValue struct {
	Name  string  `json:"name" cbor:"name"`
	Unit  string  `json:"unit" cbor:"unit"`
	Value float64 `json:"value" cbor:"value"`
	Min   float64 `json:"min" cbor:"min"`
	Max   float64 `json:"max" cbor:"max"`
}

// Descriptor describes how a raw slot maps to a physical value.
// An empty Name marks a reserved slot that is never emitted.
type Descriptor struct {
	Name string
	Unit string
	Min  float64
	Max  float64
}

// Reserved reports whether the slot carries no meaningful measurement
func (d Descriptor) Reserved() bool {
	return d.Name == ""
}

// Scale converts a raw reading into a physical value using full-scale rawMax
func (d Descriptor) Scale(raw uint32, rawMax float64) PhysicalValue {
	return PhysicalValue{
		Name:  d.Name,
		Unit:  d.Unit,
		Value: float64(raw)*(d.Max-d.Min)/rawMax + d.Min,
		Min:   d.Min,
		Max:   d.Max,
	}
}

var scalarCatalog = map[byte]Descriptor{
	ScalarBatteryLevel:       {Name: "Battery level", Unit: UnitVolt, Min: 0.0, Max: 100.0},
	ScalarCurrentLoop:        {Name: "Current loop", Unit: UnitNone, Min: 0.0, Max: 30.0},
	ScalarHumidity:           {Name: "Humidity", Unit: UnitHumidity, Min: 0.0, Max: 100.0},
	ScalarAmbientTemperature: {Name: "Ambient temperature", Unit: UnitCelsius, Min: -273.15, Max: 2000.0},
}

// ScalarIDs lists the known scalar identifiers in catalog order
var ScalarIDs = []byte{
	ScalarBatteryLevel,
	ScalarCurrentLoop,
	ScalarHumidity,
	ScalarAmbientTemperature,
}

// LookupScalar returns the descriptor for a scalar identifier
func LookupScalar(id byte) (Descriptor, bool) {
	d, ok := scalarCatalog[id]
	return d, ok
}

// signatureCatalog is indexed by element position in a signature vector
var signatureCatalog = buildSignatureCatalog()

func buildSignatureCatalog() []Descriptor {
	catalog := make([]Descriptor, 0, 49)

	for i := 0; i < 10; i++ {
		catalog = append(catalog, Descriptor{
			Name: fmt.Sprintf("vibration_frequencyBandS%d", i), Unit: UnitDecibel, Min: -150.0, Max: 0.0,
		})
	}
	for i := 10; i < 20; i++ {
		catalog = append(catalog, Descriptor{
			Name: fmt.Sprintf("sound_frequencyBandS%d", i), Unit: UnitDecibel, Min: -150.0, Max: 0.0,
		})
	}

	for _, axis := range []string{"x", "y", "z"} {
		catalog = append(catalog,
			Descriptor{Name: "acceleration_" + axis, Unit: UnitG, Min: 0.0, Max: 16.0},
			Descriptor{Name: "velocity_" + axis, Unit: UnitMmPerSec, Min: 0.0, Max: 100.0},
			Descriptor{Name: "acceleration_" + axis + "_peak", Unit: UnitG, Min: 0.0, Max: 16.0},
			Descriptor{Name: "kurtosis_" + axis, Unit: UnitNone, Min: 0.0, Max: 100.0},
			Descriptor{Name: "vibration_" + axis + "_root", Unit: UnitRPM, Min: 0.0, Max: 30000.0},
			Descriptor{Name: "velocity_" + axis + "_f1", Unit: UnitMmPerSec, Min: 0.0, Max: 100.0},
			Descriptor{Name: "velocity_" + axis + "_f2", Unit: UnitMmPerSec, Min: 0.0, Max: 100.0},
			Descriptor{Name: "velocity_" + axis + "_f3", Unit: UnitMmPerSec, Min: 0.0, Max: 100.0},
		)
	}

	catalog = append(catalog,
		Descriptor{Name: "temperature_machineSurface", Unit: UnitCelsius, Min: -273.15, Max: 2000.0},
		Descriptor{Name: "", Unit: UnitNone, Min: 0.0, Max: 100.0},
		Descriptor{Name: "kurtosis_ultrasound", Unit: UnitNone, Min: 0.0, Max: 1.0},
		Descriptor{Name: "sound_sonicRmslog", Unit: UnitDecibel, Min: -150.0, Max: 0.0},
		Descriptor{Name: "", Unit: UnitNone, Min: 0.0, Max: 65535.0},
	)

	return catalog
}

// SignatureCatalog returns a copy of the signature slot descriptors
func SignatureCatalog() []Descriptor {
	out := make([]Descriptor, len(signatureCatalog))
	copy(out, signatureCatalog)
	return out
}

var fftZoomCatalog = buildFftZoomCatalog()

func buildFftZoomCatalog() []Descriptor {
	catalog := make([]Descriptor, maxFftZoomBands)
	for i := range catalog {
		catalog[i] = Descriptor{
			Name: fmt.Sprintf("frequency_zoomFftBand%d", i),
			Unit: UnitDecibel,
			Min:  -150.0,
			Max:  0.0,
		}
	}
	return catalog
}

// FftZoomCatalog returns a copy of the FFT zoom band descriptors
func FftZoomCatalog() []Descriptor {
	out := make([]Descriptor, len(fftZoomCatalog))
	copy(out, fftZoomCatalog)
	return out
}
