// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package export publishes decoded Sentinel scalars to external systems.
package export

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/goburrow/modbus"

	"github.com/Thermoquad/sentinel/internal/config"
	"github.com/Thermoquad/sentinel/pkg/sentinel"
)

// RegistersPerValue is the width of one float32 value
const RegistersPerValue = 2

// RegisterWriter writes a block of holding registers on a unit
type RegisterWriter interface {
	WriteRegisters(unitID uint8, addr uint16, regs []uint16) error
}

// TCPClient is a single Modbus TCP connection.
// It serializes requests because it mutates SlaveId per write.
type TCPClient struct {
	mu      sync.Mutex
	handler *modbus.TCPClientHandler
	client  modbus.Client
}

// Dial connects to a Modbus TCP endpoint
func Dial(endpoint string, timeout time.Duration) (*TCPClient, error) {
	if endpoint == "" {
		return nil, errors.New("modbus export: endpoint required")
	}

	h := modbus.NewTCPClientHandler(endpoint)
	h.Timeout = timeout

	if err := h.Connect(); err != nil {
		return nil, fmt.Errorf("modbus export: failed to connect to %s: %w", endpoint, err)
	}

	return &TCPClient{
		handler: h,
		client:  modbus.NewClient(h),
	}, nil
}

// Close closes the connection
func (c *TCPClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handler.Close()
}

// WriteRegisters implements RegisterWriter with function code 16
func (c *TCPClient) WriteRegisters(unitID uint8, addr uint16, regs []uint16) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.handler.SlaveId = unitID

	_, err := c.client.WriteMultipleRegisters(addr, uint16(len(regs)), packRegisters(regs))
	return err
}

func packRegisters(regs []uint16) []byte {
	out := make([]byte, len(regs)*2)
	for i, r := range regs {
		out[2*i] = byte(r >> 8)
		out[2*i+1] = byte(r)
	}
	return out
}

// Exporter maps device scalars to holding registers: one float32 per
// catalog scalar, high word first, at base + 2*slot.
type Exporter struct {
	writer RegisterWriter
	unitID uint8
	bases  map[string]uint16
	slots  map[string]int
}

// NewExporter builds an exporter from the Modbus export configuration
func NewExporter(w RegisterWriter, cfg config.ModbusConfig) *Exporter {
	e := &Exporter{
		writer: w,
		unitID: cfg.UnitID,
		bases:  make(map[string]uint16, len(cfg.Devices)),
		slots:  make(map[string]int, len(sentinel.ScalarIDs)),
	}
	for _, d := range cfg.Devices {
		e.bases[d.DevEUI] = d.Base
	}
	for slot, id := range sentinel.ScalarIDs {
		if desc, ok := sentinel.LookupScalar(id); ok {
			e.slots[desc.Name] = slot
		}
	}
	return e
}

// Handles reports whether a device is mapped
func (e *Exporter) Handles(deviceID string) bool {
	_, ok := e.bases[deviceID]
	return ok
}

// Export writes the scalar values of a decoded frame. Frames of unmapped
// devices and frames without scalars are skipped. Scalars absent from the
// frame are written as NaN.
func (e *Exporter) Export(deviceID string, r sentinel.DecodeResult) (bool, error) {
	base, ok := e.bases[deviceID]
	if !ok || r.Failed() || len(r.Data.ScalarValues) == 0 {
		return false, nil
	}

	regs := Registers(r.Data.ScalarValues, e.slots)
	if err := e.writer.WriteRegisters(e.unitID, base, regs); err != nil {
		return false, fmt.Errorf("modbus export: device %s at %d: %w", deviceID, base, err)
	}
	return true, nil
}

// Registers encodes values into float32 register pairs by slot
func Registers(values []sentinel.PhysicalValue, slots map[string]int) []uint16 {
	regs := make([]uint16, len(slots)*RegistersPerValue)
	nan := math.Float32bits(float32(math.NaN()))
	for i := 0; i < len(regs); i += RegistersPerValue {
		regs[i], regs[i+1] = uint16(nan>>16), uint16(nan)
	}

	for _, v := range values {
		slot, ok := slots[v.Name]
		if !ok || slot*RegistersPerValue >= len(regs) {
			continue
		}
		bits := math.Float32bits(float32(v.Value))
		regs[slot*RegistersPerValue] = uint16(bits >> 16)
		regs[slot*RegistersPerValue+1] = uint16(bits)
	}
	return regs
}
