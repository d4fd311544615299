// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.
package rtu

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ffutop/modbus-master/modbus"
	"github.com/ffutop/modbus-master/modbus/crc"
)

type mockPort struct {
	io.Reader
	io.Writer
	closed bool
}

func (m *mockPort) Close() error {
	m.closed = true
	return nil
}

func frame(b ...byte) []byte {
	return crc.Append(b)
}

func echoHandler(calls *[]byte) func(context.Context, byte, modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error) {
	return func(_ context.Context, slaveID byte, pdu modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error) {
		*calls = append(*calls, slaveID)
		if pdu.FunctionCode == modbus.FuncCodeReadInputRegisters {
			return modbus.ProtocolDataUnit{FunctionCode: pdu.FunctionCode, Data: []byte{0x02, 0x00, 0xC8}}, nil
		}
		return pdu, nil
	}
}

func TestScanLoop(t *testing.T) {
	var input []byte
	input = append(input, frame(0x0A, 0x04, 0x00, 0x01, 0x00, 0x01)...)
	// A device the server does not simulate.
	input = append(input, frame(0x0B, 0x04, 0x00, 0x01, 0x00, 0x01)...)
	// Broadcast write: executed, never answered.
	input = append(input, frame(0x00, 0x06, 0x01, 0x01, 0x00, 0x14)...)
	input = append(input, frame(0x0A, 0x06, 0x01, 0x01, 0x00, 0x14)...)

	out := &bytes.Buffer{}
	port := &mockPort{Reader: bytes.NewReader(input), Writer: out}

	s := NewServer(testSerialConfig(), func(id byte) bool { return id == 0x0A })
	var calls []byte
	err := s.scanLoop(context.Background(), port, echoHandler(&calls))
	assert.ErrorIs(t, err, io.EOF)

	assert.Equal(t, []byte{0x0A, 0x00, 0x0A}, calls)

	var want []byte
	want = append(want, frame(0x0A, 0x04, 0x02, 0x00, 0xC8)...)
	want = append(want, frame(0x0A, 0x06, 0x01, 0x01, 0x00, 0x14)...)
	assert.Equal(t, want, out.Bytes())
}

func TestScanLoop_FunctionCodes(t *testing.T) {
	tests := []struct {
		name string
		req  []byte
	}{
		{"ReadHoldingRegisters", frame(0x01, 0x03, 0x00, 0x00, 0x00, 0x01)},
		{"WriteSingleRegister", frame(0x01, 0x06, 0x00, 0x00, 0xAA, 0xBB)},
		{"WriteMultipleRegisters", frame(0x01, 0x10, 0x00, 0x01, 0x00, 0x02, 0x04, 0x11, 0x22, 0x33, 0x44)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := &bytes.Buffer{}
			port := &mockPort{Reader: bytes.NewReader(tt.req), Writer: out}

			var calls []byte
			err := (&Server{}).scanLoop(context.Background(), port, echoHandler(&calls))
			assert.ErrorIs(t, err, io.EOF)
			require.Len(t, calls, 1)
			assert.NotZero(t, out.Len())
		})
	}
}

func TestScanLoop_BadCRC(t *testing.T) {
	req := frame(0x01, 0x03, 0x00, 0x00, 0x00, 0x01)
	req[len(req)-1] ^= 0xFF

	out := &bytes.Buffer{}
	var calls []byte
	err := (&Server{}).scanLoop(context.Background(), &mockPort{Reader: bytes.NewReader(req), Writer: out}, echoHandler(&calls))
	assert.ErrorIs(t, err, io.EOF)
	assert.Empty(t, calls)
	assert.Zero(t, out.Len())
}
